// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete Cadre CLI command tree. The
// cadre binary's main imports this package; tests import it to drive
// commands without a process boundary.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cadreworks/cadre/cmd/cadre/cli"
	packcmd "github.com/cadreworks/cadre/cmd/cadre/pack"
	requirementscmd "github.com/cadreworks/cadre/cmd/cadre/requirements"
	setupcmd "github.com/cadreworks/cadre/cmd/cadre/setup"
	teamcmd "github.com/cadreworks/cadre/cmd/cadre/team"
	"github.com/cadreworks/cadre/lib/version"
)

// Root builds and returns the complete Cadre CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "cadre",
		Description: `Cadre: cloud provisioning for AI agent fleets.

Provision the directory identity, workload credential, permission
grants, and messaging endpoint an agent needs to run — one agent at a
time or a whole team in one pass. Every step is idempotent: reruns
converge on the desired state instead of failing on what already
exists.`,
		Subcommands: []*cli.Command{
			setupcmd.Command(),
			requirementscmd.Command(),
			teamcmd.Command(),
			packcmd.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Printf("cadre %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Check the environment before provisioning anything",
				Command:     "cadre requirements",
			},
			{
				Description: "Provision the agent described by ./agent.json",
				Command:     "cadre setup",
			},
			{
				Description: "Provision a whole team, skipping already-built infrastructure",
				Command:     "cadre setup --team teams/research.json --skip-infrastructure",
			},
			{
				Description: "Preview a run without contacting any external service",
				Command:     "cadre setup --dry-run",
			},
			{
				Description: "Validate a team file without provisioning",
				Command:     "cadre team validate teams/research.json",
			},
			{
				Description: "Build the deployment archive",
				Command:     "cadre package",
			},
		},
	}
}
