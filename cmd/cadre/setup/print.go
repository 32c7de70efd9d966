// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"fmt"
	"io"
	"text/tabwriter"

	libsetup "github.com/cadreworks/cadre/lib/setup"
)

// agentPlan is the dry-run output for one agent.
type agentPlan struct {
	Agent  string   `json:"agent"`
	Config string   `json:"config,omitempty"`
	Steps  []string `json:"steps"`
}

// agentRunReport is the --json output for a single-agent run. The
// fatal error, when present, explains why the embedded result stops
// partway through the pipeline.
type agentRunReport struct {
	*libsetup.Result
	FatalError string `json:"fatalError,omitempty"`
	Guidance   string `json:"guidance,omitempty"`
}

// teamRunReport is the --json output for a team run. Aborted is set
// when the invocation was cancelled between members; the embedded
// result still lists every member that ran.
type teamRunReport struct {
	*libsetup.TeamResult
	Aborted string `json:"aborted,omitempty"`
}

func printPlan(w io.Writer, plan agentPlan) {
	if plan.Config != "" {
		fmt.Fprintf(w, "Plan for %s (%s):\n", plan.Agent, plan.Config)
	} else {
		fmt.Fprintf(w, "Plan for %s:\n", plan.Agent)
	}
	for i, step := range plan.Steps {
		fmt.Fprintf(w, "  %2d. %s\n", i+1, step)
	}
	fmt.Fprintln(w, "\nNo changes made (--dry-run).")
}

// printResult renders the per-step outcome table for one agent,
// followed by any warnings and advisory errors.
func printResult(w io.Writer, result *libsetup.Result) {
	if result.Agent == "" {
		// The pipeline failed before the config loaded; there is no
		// table to print.
		return
	}

	fmt.Fprintf(w, "Setup summary for %s:\n\n", result.Agent)
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "  STEP\tSTATUS\n")
	fmt.Fprintf(tw, "  infrastructure\t%s\n", stepStatus(result.InfrastructureCreated, result.InfrastructureAlreadyExisted, "created"))
	fmt.Fprintf(tw, "  blueprint\t%s\n", stepStatus(result.BlueprintCreated, result.BlueprintAlreadyExisted, "created"))
	fmt.Fprintf(tw, "  workload credential\t%s\n", stepStatus(result.WorkloadCredentialConfigured, result.WorkloadCredentialAlreadyExisted, "configured"))
	fmt.Fprintf(tw, "  tool platform permissions\t%s\n", doneStatus(result.ToolPermissionsConfigured, "configured"))
	fmt.Fprintf(tw, "  inheritable permissions\t%s\n", doneStatus(result.InheritablePermissionsConfigured, "declared"))
	fmt.Fprintf(tw, "  messaging permissions\t%s\n", doneStatus(result.MessagingPermissionsConfigured, "configured"))
	fmt.Fprintf(tw, "  messaging endpoint\t%s\n", stepStatus(result.EndpointRegistered, result.EndpointAlreadyExisted, "registered"))
	fmt.Fprintf(tw, "  project sync\t%s\n", doneStatus(result.ProjectSynced, "synced"))
	tw.Flush()

	if len(result.Warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings:\n")
		for _, warning := range result.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(w, "\nIncomplete steps (rerun setup after fixing):\n")
		for _, message := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", message)
		}
	}
}

// printTeamResult renders the per-member outcome table. total is the
// declared member count, which exceeds len(result.Agents) when the
// run was cancelled partway through.
func printTeamResult(w io.Writer, result *libsetup.TeamResult, total int) {
	fmt.Fprintf(w, "Team setup: %s\n\n", result.Team)
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "  AGENT\tSTATUS\tDETAIL\n")
	for _, report := range result.Agents {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", report.Agent, memberStatus(report), memberDetail(report))
	}
	tw.Flush()

	failed := result.FailedCount()
	switch {
	case len(result.Agents) < total:
		fmt.Fprintf(w, "\n%d of %d member(s) ran before the invocation stopped; %d failed.\n",
			len(result.Agents), total, failed)
	case failed > 0:
		fmt.Fprintf(w, "\n%d of %d member(s) failed. Fix the agent-level errors above and rerun; completed members are skipped over by the idempotent steps.\n",
			failed, total)
	default:
		fmt.Fprintf(w, "\nAll %d member(s) provisioned.\n", total)
	}
}

func memberStatus(report libsetup.AgentReport) string {
	if report.Succeeded {
		return "ok"
	}
	return "FAILED"
}

func memberDetail(report libsetup.AgentReport) string {
	if !report.Succeeded {
		return report.Error
	}
	if report.Result != nil && len(report.Result.Errors) > 0 {
		return fmt.Sprintf("%d advisory error(s)", len(report.Result.Errors))
	}
	if report.Result != nil && len(report.Result.Warnings) > 0 {
		return fmt.Sprintf("%d warning(s)", len(report.Result.Warnings))
	}
	return ""
}

// stepStatus renders a find-or-create step's disposition.
func stepStatus(done, alreadyExisted bool, doneLabel string) string {
	switch {
	case alreadyExisted:
		return "already existed"
	case done:
		return doneLabel
	default:
		return "not done"
	}
}

// doneStatus renders a step that has no already-existed distinction.
func doneStatus(done bool, doneLabel string) string {
	if done {
		return doneLabel
	}
	return "not done"
}
