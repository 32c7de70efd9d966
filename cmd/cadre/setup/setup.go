// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package setup implements "cadre setup", the end-to-end provisioning
// command for a single agent or a whole team.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/cadreworks/cadre/cmd/cadre/cli"
	"github.com/cadreworks/cadre/lib/agentconfig"
	"github.com/cadreworks/cadre/lib/deploypack"
	libsetup "github.com/cadreworks/cadre/lib/setup"
	"github.com/cadreworks/cadre/lib/settings"
)

// defaultConfigPath is where setup looks for the agent config when
// neither --config nor --team is given.
const defaultConfigPath = "agent.json"

// setupParams holds the parameters for the setup command.
type setupParams struct {
	cli.JSONOutput
	cli.SettingsFlags
	Config             string        `flag:"config,c" desc:"path to the agent config file (default agent.json)"`
	Team               string        `flag:"team,t" desc:"path to a team config file; provisions every member in declaration order"`
	WorkDir            string        `flag:"work-dir" desc:"directory for materialized per-member configs in team mode (default <team dir>/.cadre)"`
	SkipInfrastructure bool          `flag:"skip-infrastructure" desc:"skip resource group and hosting plan provisioning"`
	SkipRequirements   bool          `flag:"skip-requirements" desc:"skip the preflight requirement checklist"`
	DryRun             bool          `flag:"dry-run" desc:"print the planned steps without contacting any external service"`
	Timeout            time.Duration `flag:"timeout" desc:"overall deadline for the invocation" default:"15m"`
}

// Command returns the "setup" command.
func Command() *cli.Command {
	var params setupParams

	return &cli.Command{
		Name:    "setup",
		Summary: "Provision an agent or a team end to end",
		Description: `Provision everything an agent needs to run: hosting infrastructure,
its directory blueprint, a workload credential for federated token
exchange, tool platform and messaging permission grants, the
messaging endpoint registration, and the synced project env file.

Safe to re-run: every step finds existing resources before creating
anything, and a creation that races another run treats the resulting
conflict as success. Identity failures (requirement checks, the
blueprint) stop the run; everything downstream is recorded on the
result and converges on the next run.

With --team, every member of the team file is provisioned in order.
One member's failure never stops the rest; the exit code reports
whether any member failed.`,
		Usage: "cadre setup [flags]",
		Examples: []cli.Example{
			{
				Description: "Provision the agent described by ./agent.json",
				Command:     "cadre setup",
			},
			{
				Description: "Provision a whole team",
				Command:     "cadre setup --team teams/research.json",
			},
			{
				Description: "See what would happen without touching anything",
				Command:     "cadre setup --config agents/reviewer.json --dry-run",
			},
			{
				Description: "Re-run identity steps only, against existing infrastructure",
				Command:     "cadre setup --skip-infrastructure",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("setup", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			if params.Config != "" && params.Team != "" {
				return cli.Validation("--config and --team are mutually exclusive")
			}

			resolved, err := params.ResolveSettings()
			if err != nil {
				return cli.Validation("%v", err)
			}

			options := libsetup.Options{
				SkipInfrastructure: params.SkipInfrastructure,
				SkipRequirements:   params.SkipRequirements,
			}

			if params.Team != "" {
				return runTeam(ctx, &params, resolved, options, logger)
			}
			return runSingle(ctx, &params, resolved, options, logger)
		},
	}
}

// runSingle provisions the one agent described by the config file.
func runSingle(ctx context.Context, params *setupParams, resolved *settings.Settings, options libsetup.Options, logger *slog.Logger) error {
	configPath := params.Config
	if configPath == "" {
		configPath = defaultConfigPath
	}
	store := agentconfig.NewFileStore(configPath)

	if params.DryRun {
		config, err := store.Load()
		if err != nil {
			return cli.NotFound("load agent config: %v", err)
		}
		plan := agentPlan{
			Agent:  config.DisplayName,
			Config: configPath,
			Steps:  libsetup.Plan(config, resolved, options),
		}
		if done, err := params.EmitJSON(plan); done {
			return err
		}
		printPlan(os.Stdout, plan)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()

	connection, err := cli.Connect(resolved, logger)
	if err != nil {
		return cli.Validation("%v", err)
	}
	defer connection.Close()

	orchestrator, err := libsetup.NewOrchestrator(libsetup.OrchestratorConfig{
		Store:     store,
		Directory: connection.Directory,
		Runner:    connection.Runner,
		Settings:  resolved,
		Logger:    logger,
		Options:   options,
		Checks:    connection.Checks,
	})
	if err != nil {
		return cli.Internal("%v", err)
	}

	result, runErr := orchestrator.Run(ctx)

	if params.OutputJSON {
		report := agentRunReport{Result: result}
		if runErr != nil {
			report.FatalError = runErr.Error()
			report.Guidance = libsetup.GuidanceOf(runErr)
		}
		if err := cli.WriteJSON(report); err != nil {
			return err
		}
		if runErr != nil {
			return &cli.ExitError{Code: 1}
		}
		return nil
	}

	printResult(os.Stdout, result)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "\nsetup failed: %v\n", runErr)
		if guidance := libsetup.GuidanceOf(runErr); guidance != "" {
			fmt.Fprintln(os.Stderr, guidance)
		}
		return &cli.ExitError{Code: 1}
	}
	return nil
}

// runTeam provisions every member of the team file in order.
func runTeam(ctx context.Context, params *setupParams, resolved *settings.Settings, options libsetup.Options, logger *slog.Logger) error {
	team, err := agentconfig.LoadTeam(params.Team)
	if err != nil {
		return cli.Validation("load team config: %v", err)
	}

	if params.DryRun {
		return planTeam(params, team, resolved, options)
	}

	workDir := params.WorkDir
	if workDir == "" {
		workDir = filepath.Join(filepath.Dir(params.Team), deploypack.MetaDir)
	}

	ctx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()

	connection, err := cli.Connect(resolved, logger)
	if err != nil {
		return cli.Validation("%v", err)
	}
	defer connection.Close()

	orchestrator := &libsetup.TeamOrchestrator{
		Team:    team,
		WorkDir: workDir,
		Options: options,
		Logger:  logger,
		RunAgent: func(ctx context.Context, store agentconfig.Store, options libsetup.Options) (*libsetup.Result, error) {
			memberOrchestrator, err := libsetup.NewOrchestrator(libsetup.OrchestratorConfig{
				Store:     store,
				Directory: connection.Directory,
				Runner:    connection.Runner,
				Settings:  resolved,
				Logger:    logger,
				Options:   options,
				Checks:    connection.Checks,
			})
			if err != nil {
				return nil, libsetup.Fatal("orchestrator_init_failed", err)
			}
			return memberOrchestrator.Run(ctx)
		},
	}

	teamResult, runErr := orchestrator.Run(ctx)
	if runErr != nil && teamResult == nil {
		// Validation failure: nothing was provisioned. Report the full
		// problem list instead of a single collapsed error line.
		var classified *libsetup.Error
		if errors.As(runErr, &classified) && classified.Kind == libsetup.KindValidation {
			return reportInvalidTeam(params, classified.Details)
		}
		return runErr
	}

	if params.OutputJSON {
		report := teamRunReport{TeamResult: teamResult}
		if runErr != nil {
			report.Aborted = runErr.Error()
		}
		if err := cli.WriteJSON(report); err != nil {
			return err
		}
		if runErr != nil || !teamResult.OK() {
			return &cli.ExitError{Code: 1}
		}
		return nil
	}

	printTeamResult(os.Stdout, teamResult, len(team.Agents))
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "\nteam setup aborted: %v\n", runErr)
		return &cli.ExitError{Code: 1}
	}
	if !teamResult.OK() {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

// planTeam prints the per-member dry-run plans.
func planTeam(params *setupParams, team *agentconfig.TeamConfig, resolved *settings.Settings, options libsetup.Options) error {
	if problems := team.Validate(); len(problems) > 0 {
		return reportInvalidTeam(params, problems)
	}

	plans := teamPlans(team, resolved, options)

	if done, err := params.EmitJSON(plans); done {
		return err
	}
	fmt.Printf("Team %s: %d member(s)\n", team.Name, len(team.Agents))
	for _, plan := range plans {
		fmt.Println()
		printPlan(os.Stdout, plan)
	}
	return nil
}

// teamPlans builds the per-member dry-run plans. The first member's
// plan includes infrastructure; later members see it as already
// provisioned, mirroring what a real run does.
func teamPlans(team *agentconfig.TeamConfig, resolved *settings.Settings, options libsetup.Options) []agentPlan {
	plans := make([]agentPlan, 0, len(team.Agents))
	for i, member := range team.Agents {
		memberOptions := options
		if i > 0 {
			memberOptions.SharedInfrastructureReady = true
		}
		merged := agentconfig.Merge(*team.SharedResources, member)
		plans = append(plans, agentPlan{
			Agent: member.Name,
			Steps: libsetup.Plan(&merged, resolved, memberOptions),
		})
	}
	return plans
}

// reportInvalidTeam prints the complete validation problem list, in
// JSON when requested, and exits non-zero without provisioning.
func reportInvalidTeam(params *setupParams, problems []string) error {
	if params.OutputJSON {
		report := struct {
			Team     string   `json:"team"`
			Problems []string `json:"problems"`
		}{Team: params.Team, Problems: problems}
		if err := cli.WriteJSON(report); err != nil {
			return err
		}
		return &cli.ExitError{Code: 1}
	}

	fmt.Fprintf(os.Stderr, "team config %s is invalid:\n", params.Team)
	for _, problem := range problems {
		fmt.Fprintf(os.Stderr, "  - %s\n", problem)
	}
	fmt.Fprintln(os.Stderr, "Fix the team configuration; nothing was provisioned.")
	return &cli.ExitError{Code: 1}
}
