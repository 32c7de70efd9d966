// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package pack implements "cadre package", which builds the
// deployment archive for an agent's deploy path.
package pack

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/cadreworks/cadre/cmd/cadre/cli"
	"github.com/cadreworks/cadre/lib/agentconfig"
	"github.com/cadreworks/cadre/lib/deploypack"
)

// packageParams holds the parameters for the package command.
type packageParams struct {
	cli.JSONOutput
	Config string `flag:"config,c" desc:"path to the agent config file" default:"agent.json"`
}

// packageReport is the build outcome: the archive descriptor plus
// whether the digest changed since the last recorded package.
type packageReport struct {
	*deploypack.Package
	Changed bool `json:"changed"`
}

// Command returns the "package" command.
func Command() *cli.Command {
	var params packageParams

	return &cli.Command{
		Name:    "package",
		Summary: "Build the deployment archive for an agent",
		Description: `Zip the agent's deploy path into .cadre/package.zip inside that
path and record the archive digest in the agent config. A digest
that differs from the recorded one marks the agent as needing
deployment.

The archive is deterministic: entries are sorted, timestamps are
zeroed, and modes are normalized, so an unchanged file tree always
produces the same digest. Cadre's own bookkeeping under .cadre/ is
excluded from the archive.`,
		Usage: "cadre package [flags]",
		Examples: []cli.Example{
			{
				Description: "Package the agent described by ./agent.json",
				Command:     "cadre package",
			},
			{
				Description: "Package a specific agent and emit the descriptor",
				Command:     "cadre package --config agents/reviewer.json --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("package", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}

			store := agentconfig.NewFileStore(params.Config)
			config, err := store.Load()
			if err != nil {
				return cli.NotFound("load agent config: %v", err)
			}
			if config.DeployPath == "" {
				return cli.Validation("agent config %s has no deployPath", params.Config)
			}

			built, err := deploypack.Build(config.DeployPath)
			if err != nil {
				return cli.Internal("build package: %v", err)
			}

			changed := config.PackageDigest != built.Digest
			if changed {
				config.PackageDigest = built.Digest
				config.NeedsDeployment = true
				if err := store.Save(config); err != nil {
					return cli.Internal("record package digest: %v", err)
				}
			}
			logger.Info("package built",
				"agent", config.DisplayName,
				"archive", built.Path,
				"files", built.Files,
				"bytes", built.Bytes,
				"changed", changed)

			if done, err := params.EmitJSON(packageReport{Package: built, Changed: changed}); done {
				return err
			}

			fmt.Printf("Packaged %d file(s) (%s) into %s\n", built.Files, formatBytes(built.Bytes), built.Path)
			fmt.Printf("digest: %s\n", built.Digest)
			if changed {
				fmt.Println("Agent marked for deployment.")
			} else {
				fmt.Println("Archive unchanged since the last package.")
			}
			return nil
		},
	}
}

// formatBytes renders a byte count in the largest sensible unit.
func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
