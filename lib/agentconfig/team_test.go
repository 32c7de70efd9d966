// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package agentconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testTeam returns a team config that passes validation. Deploy paths
// point into dir, which the caller creates with t.TempDir.
func testTeam(t *testing.T, dir string) *TeamConfig {
	t.Helper()

	for _, sub := range []string{"research", "triage"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	shared := testShared()
	return &TeamConfig{
		Name:         "support-crew",
		DisplayName:  "Support Crew",
		ManagerEmail: "lead@contoso.example",
		SharedResources: &shared,
		Agents: []TeamAgentConfig{
			{
				Name:              "research",
				DisplayName:       "Research Agent",
				UserPrincipalName: "research@contoso.example",
				DeployPath:        filepath.Join(dir, "research"),
			},
			{
				Name:              "triage",
				DisplayName:       "Triage Agent",
				UserPrincipalName: "triage@contoso.example",
				DeployPath:        filepath.Join(dir, "triage"),
			},
		},
	}
}

func TestValidateAcceptsCleanTeam(t *testing.T) {
	t.Parallel()

	team := testTeam(t, t.TempDir())
	if problems := team.Validate(); len(problems) != 0 {
		t.Errorf("Validate() = %v, want none", problems)
	}
}

func TestValidateDuplicateNamesCaseInsensitive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	team := testTeam(t, dir)
	entry := func(name string) TeamAgentConfig {
		return TeamAgentConfig{
			Name:              name,
			DisplayName:       "Agent " + name,
			UserPrincipalName: name + "@contoso.example",
			DeployPath:        filepath.Join(dir, "research"),
		}
	}
	team.Agents = []TeamAgentConfig{entry("a"), entry("b"), entry("B")}

	problems := team.Validate()
	if len(problems) == 0 {
		t.Fatal("expected a validation problem for the duplicate name")
	}

	var found bool
	for _, problem := range problems {
		lower := strings.ToLower(problem)
		if !strings.Contains(lower, "duplicate") || !strings.Contains(lower, `"b"`) {
			continue
		}
		// The message must point at both the clashing entry and the
		// first use so the operator can find them in a long list.
		if !strings.Contains(problem, "agents[2]") || !strings.Contains(problem, "agents[1]") {
			t.Errorf("duplicate message %q should name both indexes", problem)
		}
		found = true
	}
	if !found {
		t.Errorf("no duplicate-name problem in %v", problems)
	}
}

func TestValidateMissingSharedResources(t *testing.T) {
	t.Parallel()

	team := testTeam(t, t.TempDir())
	team.SharedResources = nil

	problems := team.Validate()
	if len(problems) == 0 {
		t.Fatal("expected a problem for missing sharedResources")
	}

	var found bool
	for _, problem := range problems {
		if strings.Contains(problem, "sharedResources") && strings.Contains(problem, "missing") {
			found = true
		}
	}
	if !found {
		t.Errorf("no sharedResources problem in %v", problems)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()

	// One broken field per layer: team, shared, and two agents. The
	// full list must come back in a single pass.
	team := &TeamConfig{
		SharedResources: &SharedResources{
			TenantID:       "not-a-guid",
			SubscriptionID: "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			ResourceGroup:  "rg-agents",
			Region:         "",
			PlanName:       "plan-agents",
		},
		Agents: []TeamAgentConfig{
			{
				Name:              "research",
				DisplayName:       "Research Agent",
				UserPrincipalName: "not-an-address",
				DeployPath:        "/does/not/exist",
			},
			{
				Name:        "triage",
				DisplayName: "",
			},
		},
	}

	problems := team.Validate()

	wantSubstrings := []string{
		"team name is required",
		`tenantId "not-a-guid" is not a GUID`,
		"sharedResources.region is required",
		`agents[0].userPrincipalName "not-an-address"`,
		`agents[0].deployPath "/does/not/exist" does not exist`,
		"agents[1].displayName is required",
		"agents[1].userPrincipalName is required",
		"agents[1].deployPath is required",
	}
	for _, want := range wantSubstrings {
		var found bool
		for _, problem := range problems {
			if strings.Contains(problem, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no problem containing %q in %v", want, problems)
		}
	}
}

func TestValidateFieldRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*testing.T, *TeamConfig)
		want   string
	}{
		{
			name:   "no agents",
			mutate: func(t *testing.T, tc *TeamConfig) { tc.Agents = nil },
			want:   "team has no agents",
		},
		{
			name: "subscription id missing",
			mutate: func(t *testing.T, tc *TeamConfig) {
				tc.SharedResources.SubscriptionID = ""
			},
			want: "sharedResources.subscriptionId is required",
		},
		{
			name: "subscription id malformed",
			mutate: func(t *testing.T, tc *TeamConfig) {
				tc.SharedResources.SubscriptionID = "1234"
			},
			want: "is not a GUID",
		},
		{
			name: "plan name missing",
			mutate: func(t *testing.T, tc *TeamConfig) {
				tc.SharedResources.PlanName = ""
			},
			want: "sharedResources.planName is required",
		},
		{
			name: "deploy path is a file",
			mutate: func(t *testing.T, tc *TeamConfig) {
				path := filepath.Join(t.TempDir(), "file.txt")
				if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
					t.Fatal(err)
				}
				tc.Agents[0].DeployPath = path
			},
			want: "is not a directory",
		},
		{
			name: "external hosting without address",
			mutate: func(t *testing.T, tc *TeamConfig) {
				tc.Agents[0].ExternalHosting = true
			},
			want: "endpointAddress is required when externalHosting is set",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			team := testTeam(t, t.TempDir())
			tt.mutate(t, team)

			problems := team.Validate()
			var found bool
			for _, problem := range problems {
				if strings.Contains(problem, tt.want) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("no problem containing %q in %v", tt.want, problems)
			}
		})
	}
}

func TestParseTeamToleratesJSONC(t *testing.T) {
	t.Parallel()

	input := `{
		// Two-agent support crew.
		"name": "support-crew",
		"sharedResources": {
			"tenantId": "11111111-2222-3333-4444-555555555555",
			"subscriptionId": "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			"resourceGroup": "rg-agents",
			"region": "westus2",
			"planName": "plan-agents",
			"planSku": "S1",
		},
		"agents": [
			{"name": "research", "displayName": "Research Agent"},
		],
	}`

	team, err := ParseTeam([]byte(input))
	if err != nil {
		t.Fatalf("ParseTeam: %v", err)
	}
	if team.Name != "support-crew" {
		t.Errorf("Name = %q", team.Name)
	}
	if team.SharedResources == nil {
		t.Fatal("SharedResources not parsed")
	}
	if team.SharedResources.Region != "westus2" {
		t.Errorf("Region = %q", team.SharedResources.Region)
	}
	if len(team.Agents) != 1 || team.Agents[0].Name != "research" {
		t.Errorf("Agents = %+v", team.Agents)
	}
}

func TestLoadTeamMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadTeam(filepath.Join(t.TempDir(), "absent.jsonc"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestIsGUID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{"11111111-2222-3333-4444-555555555555", true},
		{"AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE", true},
		{"not-a-guid", false},
		{"", false},
		{"11111111222233334444555555555555", false},
		{"{11111111-2222-3333-4444-555555555555}", false},
		{"11111111-2222-3333-4444-55555555555g", false},
	}

	for _, tt := range tests {
		if got := IsGUID(tt.input); got != tt.want {
			t.Errorf("IsGUID(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
