// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentconfig defines the provisioning records the cadre CLI
// operates on: the per-agent configuration that setup steps read and
// progressively fill in, and the team configuration that declares a
// group of agents sharing infrastructure.
//
// Records are stored as JSON and authored as JSONC (JSON extended with
// comments and trailing commas); parsing handles both. Written files
// are always plain JSON.
//
// The typical flow:
//
//  1. LoadAgent / LoadTeam: JSONC bytes → record
//  2. TeamConfig.Validate: structural checks, full error list
//  3. Merge: shared team resources + one member → AgentConfig
//  4. Store: persist the AgentConfig between provisioning steps
package agentconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
)

// AgentConfig is one agent's full provisioning context. Fields are
// populated progressively as setup steps complete: AppID and
// BlueprintID are empty until the blueprint step assigns them, then
// persisted so a rerun resumes instead of re-creating.
type AgentConfig struct {
	// TenantID is the cloud directory tenant, GUID-shaped.
	TenantID string `json:"tenantId"`

	// SubscriptionID is the hosting subscription, GUID-shaped.
	SubscriptionID string `json:"subscriptionId"`

	// ResourceGroup is the hosting resource group name.
	ResourceGroup string `json:"resourceGroup"`

	// Region is the hosting region (e.g., "westus2").
	Region string `json:"region"`

	// PlanName and PlanSKU describe the hosting plan the agent's
	// endpoint runs on.
	PlanName string `json:"planName"`
	PlanSKU  string `json:"planSku"`

	// AppID is the blueprint's client application ID. Empty until the
	// blueprint step runs.
	AppID string `json:"appId,omitempty"`

	// BlueprintID is the blueprint's directory object ID. Empty until
	// the blueprint step runs.
	BlueprintID string `json:"blueprintId,omitempty"`

	// DisplayName is the agent's human-readable identity name.
	DisplayName string `json:"displayName"`

	// UserPrincipalName is the agent's directory principal name
	// (e.g., "research-agent@contoso.example").
	UserPrincipalName string `json:"userPrincipalName"`

	// DeployPath is the local directory holding the agent's code.
	DeployPath string `json:"deployPath"`

	// Environment tags the deployment (development, staging,
	// production).
	Environment string `json:"environment,omitempty"`

	// NeedsDeployment marks that the agent's code has changed since
	// the last deploy. Set by "cadre package", cleared by the deploy
	// pipeline.
	NeedsDeployment bool `json:"needsDeployment,omitempty"`

	// PackageDigest is the digest of the last deployment package built
	// from DeployPath. "cadre package" compares a fresh build against
	// it to decide whether NeedsDeployment flips.
	PackageDigest string `json:"packageDigest,omitempty"`

	// ExternalHosting marks agents hosted outside the managed plan.
	// Setup skips the infrastructure and endpoint steps for them.
	ExternalHosting bool `json:"externalHosting,omitempty"`

	// EndpointAddress overrides the computed messaging endpoint
	// address. Leave empty to derive it from plan, region, and the
	// configured endpoint suffix.
	EndpointAddress string `json:"endpointAddress,omitempty"`
}

// Slug returns the agent's short machine name: the local part of the
// user principal name, or the lowercased display name with spaces
// collapsed to hyphens when no principal name is set. Used in endpoint
// hostnames and per-agent working directories.
func (c *AgentConfig) Slug() string {
	if local, _, found := strings.Cut(c.UserPrincipalName, "@"); found && local != "" {
		return strings.ToLower(local)
	}
	return strings.ToLower(strings.Join(strings.Fields(c.DisplayName), "-"))
}

// ComputedEndpointAddress returns the HTTPS address where the hosted
// agent receives platform messages. An explicit EndpointAddress wins;
// otherwise the address is derived as
// https://<plan>-<slug>.<region>.<suffix>/messages.
func (c *AgentConfig) ComputedEndpointAddress(suffix string) string {
	if c.EndpointAddress != "" {
		return c.EndpointAddress
	}
	if c.PlanName == "" || c.Region == "" || suffix == "" {
		return ""
	}
	return fmt.Sprintf("https://%s-%s.%s.%s/messages", c.PlanName, c.Slug(), c.Region, suffix)
}

// ParseAgent strips JSONC comments and trailing commas from data, then
// unmarshals the result into an AgentConfig.
func ParseAgent(data []byte) (*AgentConfig, error) {
	stripped := jsonc.ToJSON(data)

	var config AgentConfig
	if err := json.Unmarshal(stripped, &config); err != nil {
		return nil, fmt.Errorf("parsing agent config: %w", err)
	}
	return &config, nil
}

// LoadAgent reads a JSONC agent config file from disk.
func LoadAgent(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	config, err := ParseAgent(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}
