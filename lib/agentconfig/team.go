// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package agentconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/jsonc"
)

// SharedResources holds the cloud context every agent on a team
// inherits. Merge copies these into each member's AgentConfig, so a
// team file declares tenancy and hosting exactly once.
type SharedResources struct {
	TenantID       string `json:"tenantId"`
	SubscriptionID string `json:"subscriptionId"`
	ResourceGroup  string `json:"resourceGroup"`
	Region         string `json:"region"`
	PlanName       string `json:"planName"`
	PlanSKU        string `json:"planSku"`
	Environment    string `json:"environment,omitempty"`

	// EndpointSuffix is the DNS suffix for derived endpoint addresses
	// (e.g., "agentsvc.net"). Optional; the CLI falls back to its
	// settings when unset.
	EndpointSuffix string `json:"endpointSuffix,omitempty"`
}

// TeamAgentConfig is one member entry in a team file: the per-agent
// identity fields, plus optional overrides for the shared hosting
// fields. An override set here wins over the SharedResources value at
// merge time; everything left empty inherits from the team.
type TeamAgentConfig struct {
	// Name is the member's unique key within the team. Used for the
	// per-agent working directory, so it must be filesystem-safe.
	Name string `json:"name"`

	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
	DeployPath        string `json:"deployPath"`

	// Per-agent overrides of the shared hosting fields. A member that
	// needs a bigger plan or a different region declares it here
	// without forking the team file.
	Region      string `json:"region,omitempty"`
	PlanName    string `json:"planName,omitempty"`
	PlanSKU     string `json:"planSku,omitempty"`
	Environment string `json:"environment,omitempty"`

	// ExternalHosting marks members hosted outside the shared plan.
	ExternalHosting bool `json:"externalHosting,omitempty"`

	// EndpointAddress overrides the derived endpoint address.
	// Required for externally hosted members.
	EndpointAddress string `json:"endpointAddress,omitempty"`
}

// TeamConfig declares a group of agents provisioned together: shared
// cloud resources plus a member list. SharedResources is a pointer so
// a file that omits the section entirely is distinguishable from one
// with empty fields.
type TeamConfig struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName,omitempty"`
	Description  string `json:"description,omitempty"`
	ManagerEmail string `json:"managerEmail,omitempty"`

	SharedResources *SharedResources  `json:"sharedResources"`
	Agents          []TeamAgentConfig `json:"agents"`
}

// ParseTeam strips JSONC comments and trailing commas from data, then
// unmarshals the result into a TeamConfig.
func ParseTeam(data []byte) (*TeamConfig, error) {
	stripped := jsonc.ToJSON(data)

	var config TeamConfig
	if err := json.Unmarshal(stripped, &config); err != nil {
		return nil, fmt.Errorf("parsing team config: %w", err)
	}
	return &config, nil
}

// LoadTeam reads a JSONC team config file from disk.
func LoadTeam(path string) (*TeamConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	config, err := ParseTeam(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Validate checks the team config for structural problems and returns
// one message per problem. It never stops at the first failure: the
// caller gets the complete list so a bad file can be fixed in one
// pass. An empty slice means the config is ready for provisioning.
func (t *TeamConfig) Validate() []string {
	var problems []string

	if t.Name == "" {
		problems = append(problems, "team name is required")
	}

	if t.SharedResources == nil {
		problems = append(problems, "sharedResources section is missing")
	} else {
		problems = append(problems, t.SharedResources.validate()...)
	}

	if len(t.Agents) == 0 {
		problems = append(problems, "team has no agents")
	}

	seen := make(map[string]int, len(t.Agents))
	for i, agent := range t.Agents {
		problems = append(problems, agent.validate(i)...)

		if agent.Name == "" {
			continue
		}
		key := strings.ToLower(agent.Name)
		if first, dup := seen[key]; dup {
			problems = append(problems, fmt.Sprintf(
				"agents[%d]: duplicate agent name %q (first used by agents[%d])", i, agent.Name, first))
			continue
		}
		seen[key] = i
	}

	return problems
}

func (s *SharedResources) validate() []string {
	var problems []string

	if s.TenantID == "" {
		problems = append(problems, "sharedResources.tenantId is required")
	} else if !IsGUID(s.TenantID) {
		problems = append(problems, fmt.Sprintf("sharedResources.tenantId %q is not a GUID", s.TenantID))
	}

	if s.SubscriptionID == "" {
		problems = append(problems, "sharedResources.subscriptionId is required")
	} else if !IsGUID(s.SubscriptionID) {
		problems = append(problems, fmt.Sprintf("sharedResources.subscriptionId %q is not a GUID", s.SubscriptionID))
	}

	if s.ResourceGroup == "" {
		problems = append(problems, "sharedResources.resourceGroup is required")
	}
	if s.Region == "" {
		problems = append(problems, "sharedResources.region is required")
	}
	if s.PlanName == "" {
		problems = append(problems, "sharedResources.planName is required")
	}

	return problems
}

func (a *TeamAgentConfig) validate(index int) []string {
	var problems []string
	field := func(name string) string { return fmt.Sprintf("agents[%d].%s", index, name) }

	if a.Name == "" {
		problems = append(problems, field("name")+" is required")
	}
	if a.DisplayName == "" {
		problems = append(problems, field("displayName")+" is required")
	}

	if a.UserPrincipalName == "" {
		problems = append(problems, field("userPrincipalName")+" is required")
	} else if !strings.Contains(a.UserPrincipalName, "@") {
		problems = append(problems, fmt.Sprintf(
			"%s %q is not of the form user@domain", field("userPrincipalName"), a.UserPrincipalName))
	}

	if a.DeployPath == "" {
		problems = append(problems, field("deployPath")+" is required")
	} else if info, err := os.Stat(a.DeployPath); err != nil {
		problems = append(problems, fmt.Sprintf(
			"%s %q does not exist", field("deployPath"), a.DeployPath))
	} else if !info.IsDir() {
		problems = append(problems, fmt.Sprintf(
			"%s %q is not a directory", field("deployPath"), a.DeployPath))
	}

	if a.ExternalHosting && a.EndpointAddress == "" {
		problems = append(problems, field("endpointAddress")+" is required when externalHosting is set")
	}

	return problems
}

// IsGUID reports whether s is a canonical 8-4-4-4-12 hex GUID. The
// directory and the hosting provider both reject anything else, so
// validation catches the mistake before any network call.
func IsGUID(s string) bool {
	if len(s) != 36 || strings.Count(s, "-") != 4 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
