// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package team implements the "cadre team" command group for working
// with team config files.
package team

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/cadreworks/cadre/cmd/cadre/cli"
	"github.com/cadreworks/cadre/lib/agentconfig"
)

// Command returns the "team" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "team",
		Summary: "Validate and inspect team config files",
		Usage:   "cadre team <command> [flags]",
		Subcommands: []*cli.Command{
			validateCommand(),
		},
	}
}

// validateParams holds the parameters for the team validate command.
type validateParams struct {
	cli.JSONOutput
}

// validateReport is the validation outcome for one team file.
type validateReport struct {
	Team     string   `json:"team"`
	Members  int      `json:"members"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems"`
}

func validateCommand() *cli.Command {
	var params validateParams

	return &cli.Command{
		Name:    "validate",
		Summary: "Check a team config file for structural problems",
		Description: `Parse a team config file and report every structural problem in one
pass: missing shared resources, malformed identifiers, duplicate
member names, absent deploy paths, externally hosted members without
an endpoint address.

Validation is purely local; nothing is provisioned and no external
service is contacted. Setup runs the same validation before touching
anything, so a clean report here means a team run will start.`,
		Usage: "cadre team validate <team-config> [flags]",
		Examples: []cli.Example{
			{
				Description: "Validate a team file",
				Command:     "cadre team validate teams/research.json",
			},
			{
				Description: "Machine-readable problem list",
				Command:     "cadre team validate teams/research.json --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("validate", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return cli.Validation("team config path required")
			}
			if len(args) > 1 {
				return cli.Validation("unexpected argument: %s", args[1])
			}

			teamConfig, err := agentconfig.LoadTeam(args[0])
			if err != nil {
				return cli.Validation("%v", err)
			}

			problems := teamConfig.Validate()
			report := validateReport{
				Team:     teamConfig.Name,
				Members:  len(teamConfig.Agents),
				Valid:    len(problems) == 0,
				Problems: append([]string{}, problems...),
			}

			if done, err := params.EmitJSON(report); done {
				if err != nil {
					return err
				}
				if !report.Valid {
					return &cli.ExitError{Code: 1}
				}
				return nil
			}

			if report.Valid {
				fmt.Printf("Team %q is valid: %d member(s).\n", report.Team, report.Members)
				return nil
			}
			fmt.Printf("Team %q has %d problem(s):\n", report.Team, len(problems))
			for _, problem := range problems {
				fmt.Printf("  - %s\n", problem)
			}
			return &cli.ExitError{Code: 1}
		},
	}
}
