// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cadreworks/cadre/lib/agentconfig"
)

func testTeam(t *testing.T) *agentconfig.TeamConfig {
	t.Helper()
	return &agentconfig.TeamConfig{
		Name: "research",
		SharedResources: &agentconfig.SharedResources{
			TenantID:       "11111111-2222-3333-4444-555555555555",
			SubscriptionID: "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			ResourceGroup:  "rg-research",
			Region:         "westus2",
			PlanName:       "plan-research",
			PlanSKU:        "S1",
			EndpointSuffix: "agentsvc.net",
		},
		Agents: []agentconfig.TeamAgentConfig{
			{Name: "collector", DisplayName: "Collector Agent", UserPrincipalName: "collector@contoso.example", DeployPath: t.TempDir()},
			{Name: "analyst", DisplayName: "Analyst Agent", UserPrincipalName: "analyst@contoso.example", DeployPath: t.TempDir()},
			{Name: "reporter", DisplayName: "Reporter Agent", UserPrincipalName: "reporter@contoso.example", DeployPath: t.TempDir()},
		},
	}
}

// memberRun records what one RunAgent invocation saw.
type memberRun struct {
	slug    string
	options Options
	config  *agentconfig.AgentConfig
}

// recordAgentRuns returns an AgentRunFunc that loads the materialized
// config, records the invocation, and fails members listed in fail.
// Successful members report created infrastructure unless it was
// marked shared already.
func recordAgentRuns(t *testing.T, runs *[]memberRun, fail map[string]error) AgentRunFunc {
	return func(ctx context.Context, store agentconfig.Store, options Options) (*Result, error) {
		config, err := store.Load()
		if err != nil {
			t.Errorf("loading materialized config: %v", err)
			return nil, err
		}
		slug := config.Slug()
		*runs = append(*runs, memberRun{slug: slug, options: options, config: config})

		if err := fail[slug]; err != nil {
			return nil, err
		}
		result := &Result{}
		if options.SharedInfrastructureReady {
			result.InfrastructureAlreadyExisted = true
		} else if !options.SkipInfrastructure {
			result.InfrastructureCreated = true
		}
		return result, nil
	}
}

func TestTeamRunProvisionsAllMembersInOrder(t *testing.T) {
	t.Parallel()

	var runs []memberRun
	orchestrator := &TeamOrchestrator{
		Team:     testTeam(t),
		WorkDir:  t.TempDir(),
		Logger:   quietLogger(),
		RunAgent: recordAgentRuns(t, &runs, nil),
	}

	result, err := orchestrator.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.OK() || result.FailedCount() != 0 {
		t.Fatalf("result = %+v, want all members succeeded", result)
	}
	if len(result.Agents) != 3 {
		t.Fatalf("got %d reports, want 3", len(result.Agents))
	}

	wantOrder := []string{"collector", "analyst", "reporter"}
	for i, want := range wantOrder {
		if runs[i].slug != want {
			t.Errorf("runs[%d] = %q, want %q (declaration order)", i, runs[i].slug, want)
		}
		if result.Agents[i].Agent != want {
			t.Errorf("reports[%d] = %q, want %q", i, result.Agents[i].Agent, want)
		}
	}

	// Member configs carry the merged shared resources and the derived
	// endpoint address.
	for _, run := range runs {
		if run.config.TenantID != "11111111-2222-3333-4444-555555555555" {
			t.Errorf("%s: tenant not merged: %q", run.slug, run.config.TenantID)
		}
		wantAddress := "https://plan-research-" + run.slug + ".westus2.agentsvc.net/messages"
		if run.config.EndpointAddress != wantAddress {
			t.Errorf("%s: endpoint address = %q, want %q", run.slug, run.config.EndpointAddress, wantAddress)
		}
	}
}

func TestTeamRunMaterializesIsolatedStores(t *testing.T) {
	t.Parallel()

	var runs []memberRun
	workDir := t.TempDir()
	orchestrator := &TeamOrchestrator{
		Team:     testTeam(t),
		WorkDir:  workDir,
		Logger:   quietLogger(),
		RunAgent: recordAgentRuns(t, &runs, nil),
	}

	if _, err := orchestrator.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, member := range []string{"collector", "analyst", "reporter"} {
		path := filepath.Join(workDir, "research", member, "agent.json")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("materialized config for %s missing: %v", member, err)
			continue
		}
		config, err := agentconfig.LoadAgent(path)
		if err != nil {
			t.Errorf("loading %s: %v", path, err)
			continue
		}
		if config.ResourceGroup != "rg-research" {
			t.Errorf("%s: shared resources not merged into the materialized config", member)
		}
	}
}

func TestTeamRunSharesInfrastructureAfterFirstAttempt(t *testing.T) {
	t.Parallel()

	var runs []memberRun
	orchestrator := &TeamOrchestrator{
		Team:     testTeam(t),
		WorkDir:  t.TempDir(),
		Logger:   quietLogger(),
		RunAgent: recordAgentRuns(t, &runs, nil),
	}

	if _, err := orchestrator.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if runs[0].options.SharedInfrastructureReady {
		t.Error("first member was told the infrastructure is ready before anyone provisioned it")
	}
	for _, run := range runs[1:] {
		if !run.options.SharedInfrastructureReady {
			t.Errorf("%s did not inherit the shared-infrastructure flag", run.slug)
		}
	}
}

func TestTeamRunInfraFlagRequiresAnActualAttempt(t *testing.T) {
	t.Parallel()

	var runs []memberRun
	// The first member fails before reporting any infrastructure
	// disposition, so the second member must still provision it.
	fail := map[string]error{"collector": errors.New("directory unreachable")}
	orchestrator := &TeamOrchestrator{
		Team:     testTeam(t),
		WorkDir:  t.TempDir(),
		Logger:   quietLogger(),
		RunAgent: recordAgentRuns(t, &runs, fail),
	}

	result, err := orchestrator.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runs[1].options.SharedInfrastructureReady {
		t.Error("second member skipped infrastructure although the first member never provisioned it")
	}
	if !runs[2].options.SharedInfrastructureReady {
		t.Error("third member did not inherit the flag from the second member's attempt")
	}
	if result.FailedCount() != 1 {
		t.Errorf("FailedCount = %d, want 1", result.FailedCount())
	}
}

func TestTeamRunIsolatesMemberFailures(t *testing.T) {
	t.Parallel()

	var runs []memberRun
	fail := map[string]error{"analyst": errors.New("blueprint_failed: directory returned 500")}
	orchestrator := &TeamOrchestrator{
		Team:     testTeam(t),
		WorkDir:  t.TempDir(),
		Logger:   quietLogger(),
		RunAgent: recordAgentRuns(t, &runs, fail),
	}

	result, err := orchestrator.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Agents) != 3 {
		t.Fatalf("got %d reports, want 3 (the failure must not stop the loop)", len(result.Agents))
	}

	if !result.Agents[0].Succeeded || !result.Agents[2].Succeeded {
		t.Error("healthy members were dragged down by the failing one")
	}
	failed := result.Agents[1]
	if failed.Succeeded {
		t.Error("failing member reported as succeeded")
	}
	if !strings.Contains(failed.Error, "blueprint_failed") {
		t.Errorf("failure message lost: %q", failed.Error)
	}
	if result.OK() {
		t.Error("OK() = true with a failed member")
	}
}

func TestTeamRunIsolatesPanics(t *testing.T) {
	t.Parallel()

	calls := 0
	orchestrator := &TeamOrchestrator{
		Team:    testTeam(t),
		WorkDir: t.TempDir(),
		Logger:  quietLogger(),
		RunAgent: func(ctx context.Context, store agentconfig.Store, options Options) (*Result, error) {
			calls++
			if calls == 2 {
				panic("nil map write in a provisioner")
			}
			return &Result{}, nil
		},
	}

	result, err := orchestrator.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 3 {
		t.Errorf("ran %d members, want 3", calls)
	}
	if result.FailedCount() != 1 {
		t.Errorf("FailedCount = %d, want 1", result.FailedCount())
	}
	if !strings.Contains(result.Agents[1].Error, "panicked") {
		t.Errorf("panic not converted to a failure report: %q", result.Agents[1].Error)
	}
}

func TestTeamRunValidationAbortsBeforeProvisioning(t *testing.T) {
	t.Parallel()

	team := testTeam(t)
	team.Agents[1].Name = "collector" // duplicate
	team.Agents[2].UserPrincipalName = "not-an-address"

	calls := 0
	orchestrator := &TeamOrchestrator{
		Team:    team,
		WorkDir: t.TempDir(),
		Logger:  quietLogger(),
		RunAgent: func(ctx context.Context, store agentconfig.Store, options Options) (*Result, error) {
			calls++
			return &Result{}, nil
		},
	}

	_, err := orchestrator.Run(context.Background())
	if err == nil {
		t.Fatal("Run accepted an invalid team config")
	}
	if KindOf(err) != KindValidation {
		t.Errorf("error kind = %q, want %q", KindOf(err), KindValidation)
	}

	var classified *Error
	if !errors.As(err, &classified) {
		t.Fatalf("error %v is not a classified setup error", err)
	}
	if len(classified.Details) != 2 {
		t.Errorf("details = %v, want both problems listed", classified.Details)
	}
	combined := strings.Join(classified.Details, "\n")
	if !strings.Contains(combined, "duplicate agent name") {
		t.Errorf("duplicate name not reported: %q", combined)
	}

	if calls != 0 {
		t.Errorf("RunAgent called %d times despite validation failing", calls)
	}
}

func TestTeamRunStopsBetweenMembersOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	orchestrator := &TeamOrchestrator{
		Team:    testTeam(t),
		WorkDir: t.TempDir(),
		Logger:  quietLogger(),
		RunAgent: func(ctx context.Context, store agentconfig.Store, options Options) (*Result, error) {
			cancel() // operator interrupt during the first member
			return &Result{}, nil
		},
	}

	result, err := orchestrator.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(result.Agents) != 1 {
		t.Errorf("got %d reports after cancellation, want 1", len(result.Agents))
	}
}
