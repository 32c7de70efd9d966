// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cadreworks/cadre/lib/agentconfig"
)

// AgentReport is one team member's provisioning disposition.
type AgentReport struct {
	// Agent is the member's name from the team config.
	Agent string `json:"agent"`

	// Succeeded is true when the member's pipeline ran to completion,
	// advisory errors included.
	Succeeded bool `json:"succeeded"`

	// Error is the fatal failure message for members that did not
	// complete.
	Error string `json:"error,omitempty"`

	// Result carries the per-step dispositions, partial on failure.
	Result *Result `json:"result,omitempty"`
}

// TeamResult aggregates a full team run.
type TeamResult struct {
	Team   string        `json:"team"`
	Agents []AgentReport `json:"agents"`
}

// FailedCount returns how many members did not complete.
func (r *TeamResult) FailedCount() int {
	failed := 0
	for _, report := range r.Agents {
		if !report.Succeeded {
			failed++
		}
	}
	return failed
}

// OK reports whether every member completed.
func (r *TeamResult) OK() bool { return r.FailedCount() == 0 }

// AgentRunFunc runs the single-agent pipeline against an isolated
// store. Production wiring builds an [Orchestrator] around the store;
// tests substitute their own.
type AgentRunFunc func(ctx context.Context, store agentconfig.Store, options Options) (*Result, error)

// TeamOrchestrator fans the single-agent pipeline out across a team,
// strictly in declaration order. One member's failure is recorded and
// never stops the remaining members: a half-provisioned team where
// nine of ten agents work beats an aborted run every time, and reruns
// converge the one that failed.
type TeamOrchestrator struct {
	// Team is the validated team configuration.
	Team *agentconfig.TeamConfig

	// WorkDir is where per-agent config copies materialize, one
	// directory per member under <WorkDir>/<team>/<agent>/.
	WorkDir string

	// Options apply to every member. SharedInfrastructureReady is
	// managed by the run itself and should be left false.
	Options Options

	// Logger receives per-member progress. Nil means slog.Default().
	Logger *slog.Logger

	// RunAgent executes one member's pipeline.
	RunAgent AgentRunFunc
}

// Run validates the team config and provisions every member. A
// validation failure aborts before any provisioning with a
// KindValidation error carrying the full problem list. After that,
// the only error Run returns is context cancellation; per-member
// failures live in the TeamResult.
func (t *TeamOrchestrator) Run(ctx context.Context) (*TeamResult, error) {
	if t.Team == nil {
		return nil, fmt.Errorf("team: configuration is required")
	}
	if t.RunAgent == nil {
		return nil, fmt.Errorf("team: agent run function is required")
	}
	if t.WorkDir == "" {
		return nil, fmt.Errorf("team: working directory is required")
	}

	if problems := t.Team.Validate(); len(problems) > 0 {
		return nil, Validation("team_config_invalid", problems).
			WithGuidance("Fix the team configuration; nothing was provisioned.")
	}

	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	result := &TeamResult{Team: t.Team.Name}
	sharedInfraReady := false

	for _, member := range t.Team.Agents {
		if err := ctx.Err(); err != nil {
			// Cancelled between members: report what ran, leave the
			// rest untouched.
			return result, err
		}

		logger.Info("provisioning team member",
			"team", t.Team.Name,
			"agent", member.Name,
			"completed", len(result.Agents),
			"total", len(t.Team.Agents))

		report := t.provisionMember(ctx, member, sharedInfraReady)
		result.Agents = append(result.Agents, report)

		if r := report.Result; r != nil && (r.InfrastructureCreated || r.InfrastructureAlreadyExisted) {
			sharedInfraReady = true
		}
		if !report.Succeeded {
			logger.Warn("team member failed; continuing with the rest",
				"agent", member.Name,
				"error", report.Error)
		}
	}

	return result, nil
}

// provisionMember merges, materializes, and runs one member. All
// failure paths come back as a report, never as an error: the team
// loop must not be stoppable by a member.
func (t *TeamOrchestrator) provisionMember(ctx context.Context, member agentconfig.TeamAgentConfig, sharedInfraReady bool) AgentReport {
	merged := agentconfig.Merge(*t.Team.SharedResources, member)

	store := agentconfig.NewFileStore(filepath.Join(t.WorkDir, t.Team.Name, member.Name, "agent.json"))
	if err := store.Save(&merged); err != nil {
		return AgentReport{Agent: member.Name, Error: fmt.Sprintf("materializing config: %v", err)}
	}

	options := t.Options
	if sharedInfraReady {
		options.SharedInfrastructureReady = true
	}

	result, err := t.runIsolated(ctx, store, options)
	if result != nil {
		result.Agent = member.Name
	}
	if err != nil {
		return AgentReport{Agent: member.Name, Error: err.Error(), Result: result}
	}
	return AgentReport{Agent: member.Name, Succeeded: true, Result: result}
}

// runIsolated invokes the member pipeline with a panic guard, so a bug
// in one member's run degrades to a failed report instead of taking
// down the whole team loop.
func (t *TeamOrchestrator) runIsolated(ctx context.Context, store agentconfig.Store, options Options) (result *Result, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("agent pipeline panicked: %v", recovered)
		}
	}()
	return t.RunAgent(ctx, store, options)
}
