// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package requirements implements "cadre requirements", the preflight
// checklist command.
package requirements

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/cadreworks/cadre/cmd/cadre/cli"
	"github.com/cadreworks/cadre/lib/agentconfig"
	"github.com/cadreworks/cadre/lib/requirement"
)

// checkParams holds the parameters for the requirements command.
type checkParams struct {
	cli.JSONOutput
	cli.SettingsFlags
	Config string `flag:"config,c" desc:"path to the agent config file" default:"agent.json"`
}

// Command returns the "requirements" command.
func Command() *cli.Command {
	var params checkParams

	return &cli.Command{
		Name:    "requirements",
		Summary: "Run the preflight requirement checklist",
		Description: `Check everything setup depends on before it provisions anything:
the provider CLI, directory reachability, token acquisition, the
config's identifier formats, the deploy path, and the hosting plan
SKU. Every check runs even after a failure, so one pass reports the
complete picture.

Exit code 1 means at least one check failed; warnings alone exit 0.
This is the same checklist setup runs first, so a clean report here
means setup will get past its preflight.`,
		Usage: "cadre requirements [flags]",
		Examples: []cli.Example{
			{
				Description: "Check the environment for ./agent.json",
				Command:     "cadre requirements",
			},
			{
				Description: "Machine-readable report for CI",
				Command:     "cadre requirements --config agents/reviewer.json --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("requirements", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}

			config, err := agentconfig.LoadAgent(params.Config)
			if err != nil {
				return cli.NotFound("load agent config: %v", err)
			}
			resolved, err := params.ResolveSettings()
			if err != nil {
				return cli.Validation("%v", err)
			}
			connection, err := cli.Connect(resolved, logger)
			if err != nil {
				return cli.Validation("%v", err)
			}
			defer connection.Close()

			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			report, err := requirement.NewRunner(logger, connection.Checks...).Run(ctx, config)
			if err != nil {
				return cli.Internal("checklist aborted: %v", err)
			}

			if done, err := params.EmitJSON(report); done {
				if err != nil {
					return err
				}
				if !report.OK {
					return &cli.ExitError{Code: 1}
				}
				return nil
			}

			requirement.PrintChecklist(os.Stdout, report)
			if !report.OK {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
