// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package requirement

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/cadreworks/cadre/directory"
	"github.com/cadreworks/cadre/lib/agentconfig"
	"github.com/cadreworks/cadre/lib/cloudcli"
)

// StandardChecksConfig carries the collaborators the built-in checks
// probe against.
type StandardChecksConfig struct {
	// Runner executes the provider CLI.
	Runner cloudcli.Runner

	// ProviderCLI is the provider CLI binary name (e.g., "cloud").
	ProviderCLI string

	// Directory is the directory service client. The reachability
	// check uses its unauthenticated metadata endpoint; the token
	// check uses its authenticated identity endpoint.
	Directory directory.Service
}

// StandardChecks returns the built-in checklist in its fixed run order:
// tooling first, then connectivity and authentication, then the purely
// local configuration checks, then the unverifiable enrollment warning.
func StandardChecks(config StandardChecksConfig) []Check {
	return []Check{
		&ProviderCLICheck{Runner: config.Runner, CLI: config.ProviderCLI},
		&DirectoryEndpointCheck{Directory: config.Directory},
		&DirectoryTokenCheck{Directory: config.Directory, CLI: config.ProviderCLI},
		&IdentifierFormatCheck{},
		&DeployPathCheck{},
		&HostingPlanCheck{},
		&EnrollmentCheck{},
	}
}

// ProviderCLICheck verifies the cloud provider CLI is installed and
// runnable. Everything downstream (token acquisition, infrastructure
// provisioning) shells out to it.
type ProviderCLICheck struct {
	Runner cloudcli.Runner
	CLI    string
}

func (c *ProviderCLICheck) Name() string     { return "provider-cli" }
func (c *ProviderCLICheck) Category() string { return "tooling" }
func (c *ProviderCLICheck) Description() string {
	return "The cloud provider CLI is installed and runnable."
}

func (c *ProviderCLICheck) Run(ctx context.Context, _ *agentconfig.AgentConfig) Result {
	args := []string{"version", "--output", "json"}
	output, err := c.Runner.Run(ctx, c.CLI, args...)
	if err != nil {
		return Fail(
			fmt.Sprintf("provider CLI %q is not runnable: %v", c.CLI, err),
			fmt.Sprintf("Install the provider CLI and make sure %q is in PATH.", c.CLI),
		)
	}
	if output.ExitCode != 0 {
		return Fail(
			fmt.Sprintf("provider CLI %q failed: %v", c.CLI, cloudcli.CommandError(c.CLI, args, output)),
			fmt.Sprintf("Run '%s version' manually and fix the reported problem.", c.CLI),
		)
	}
	return Pass(fmt.Sprintf("provider CLI %q is available", c.CLI))
}

// DirectoryEndpointCheck verifies the directory service answers its
// unauthenticated metadata endpoint.
type DirectoryEndpointCheck struct {
	Directory directory.Service
}

func (c *DirectoryEndpointCheck) Name() string     { return "directory-endpoint" }
func (c *DirectoryEndpointCheck) Category() string { return "connectivity" }
func (c *DirectoryEndpointCheck) Description() string {
	return "The cloud directory service is reachable."
}

func (c *DirectoryEndpointCheck) Run(ctx context.Context, _ *agentconfig.AgentConfig) Result {
	metadata, err := c.Directory.Metadata(ctx)
	if err != nil {
		return Fail(
			fmt.Sprintf("directory service is unreachable: %v", err),
			"Check the directory URL (--directory-url or the settings file) and your network connectivity.",
		)
	}
	return Pass(fmt.Sprintf("directory service %s %s is reachable", metadata.Service, metadata.Version))
}

// DirectoryTokenCheck verifies that token acquisition works end to end
// by asking the directory who the caller is.
type DirectoryTokenCheck struct {
	Directory directory.Service
	CLI       string
}

func (c *DirectoryTokenCheck) Name() string     { return "directory-token" }
func (c *DirectoryTokenCheck) Category() string { return "authentication" }
func (c *DirectoryTokenCheck) Description() string {
	return "An access token for the directory service can be acquired."
}

func (c *DirectoryTokenCheck) Run(ctx context.Context, _ *agentconfig.AgentConfig) Result {
	principal, err := c.Directory.Me(ctx)
	if err != nil {
		return Fail(
			fmt.Sprintf("cannot authenticate to the directory: %v", err),
			fmt.Sprintf("Sign in with the provider CLI ('%s login') and retry.", c.CLI),
		)
	}

	identity := principal.PrincipalName
	if identity == "" {
		identity = principal.DisplayName
	}
	return Pass(fmt.Sprintf("authenticated to the directory as %s", identity))
}

// IdentifierFormatCheck verifies that every identifier the config
// carries is GUID-shaped. The directory and hosting provider both
// reject malformed identifiers with opaque errors, so this catches the
// typo before any network call.
type IdentifierFormatCheck struct{}

func (c *IdentifierFormatCheck) Name() string     { return "identifier-format" }
func (c *IdentifierFormatCheck) Category() string { return "configuration" }
func (c *IdentifierFormatCheck) Description() string {
	return "Tenant, subscription, and identity identifiers are well-formed GUIDs."
}

func (c *IdentifierFormatCheck) Run(_ context.Context, config *agentconfig.AgentConfig) Result {
	// AppID and BlueprintID are legitimately empty before the blueprint
	// step; they are only checked once present.
	fields := map[string]string{
		"tenantId":       config.TenantID,
		"subscriptionId": config.SubscriptionID,
	}
	if config.AppID != "" {
		fields["appId"] = config.AppID
	}
	if config.BlueprintID != "" {
		fields["blueprintId"] = config.BlueprintID
	}

	var bad []string
	for name, value := range fields {
		if value == "" {
			bad = append(bad, fmt.Sprintf("%s is empty", name))
			continue
		}
		if !agentconfig.IsGUID(value) {
			bad = append(bad, fmt.Sprintf("%s %q is not a GUID", name, value))
		}
	}
	sort.Strings(bad)

	if len(bad) > 0 {
		return Fail(
			fmt.Sprintf("%d identifier field(s) are malformed", len(bad)),
			"Fix the listed fields in the agent config; identifiers must be canonical 8-4-4-4-12 GUIDs.",
		).WithDetails(bad...)
	}
	return Pass("all identifier fields are well-formed")
}

// DeployPathCheck verifies the agent's deployment path exists and is a
// directory.
type DeployPathCheck struct{}

func (c *DeployPathCheck) Name() string     { return "deployment-path" }
func (c *DeployPathCheck) Category() string { return "configuration" }
func (c *DeployPathCheck) Description() string {
	return "The agent's deployment path exists."
}

func (c *DeployPathCheck) Run(_ context.Context, config *agentconfig.AgentConfig) Result {
	if config.DeployPath == "" {
		return Fail(
			"deployPath is not set",
			"Set deployPath in the agent config to the directory holding the agent's code.",
		)
	}

	info, err := os.Stat(config.DeployPath)
	if err != nil {
		return Fail(
			fmt.Sprintf("deployment path %q does not exist", config.DeployPath),
			"Create the directory or correct deployPath in the agent config.",
		)
	}
	if !info.IsDir() {
		return Fail(
			fmt.Sprintf("deployment path %q is not a directory", config.DeployPath),
			"deployPath must point at a directory, not a file.",
		)
	}
	return Pass(fmt.Sprintf("deployment path %q exists", config.DeployPath))
}

// knownPlanSKUs are the hosting plan sizes the platform accepts.
var knownPlanSKUs = []string{"B1", "B2", "B3", "S1", "S2", "S3", "P1v3", "P2v3", "P3v3"}

// HostingPlanCheck verifies the hosting plan fields. An unknown SKU is
// a warning rather than a failure: providers add sizes faster than
// this list is updated.
type HostingPlanCheck struct{}

func (c *HostingPlanCheck) Name() string     { return "hosting-plan" }
func (c *HostingPlanCheck) Category() string { return "configuration" }
func (c *HostingPlanCheck) Description() string {
	return "The hosting plan name and SKU are plausible."
}

func (c *HostingPlanCheck) Run(_ context.Context, config *agentconfig.AgentConfig) Result {
	if config.ExternalHosting {
		return Skip("externally hosted, no hosting plan required")
	}

	if config.PlanName == "" {
		return Fail(
			"planName is not set",
			"Set planName in the agent config, or set externalHosting for agents hosted elsewhere.",
		)
	}
	if config.PlanSKU == "" {
		return Fail(
			"planSku is not set",
			fmt.Sprintf("Set planSku in the agent config. Known SKUs: %s.", strings.Join(knownPlanSKUs, ", ")),
		)
	}

	for _, sku := range knownPlanSKUs {
		if strings.EqualFold(config.PlanSKU, sku) {
			return Pass(fmt.Sprintf("hosting plan %q (%s)", config.PlanName, config.PlanSKU))
		}
	}
	return Warn(
		fmt.Sprintf("plan SKU %q is not a known size", config.PlanSKU),
		fmt.Sprintf("Known SKUs: %s. Provisioning will proceed; the provider rejects the SKU if it is invalid.", strings.Join(knownPlanSKUs, ", ")),
	)
}

// EnrollmentCheck covers the one requirement that has no API to probe:
// tenant enrollment in the agent hosting program. There is nothing to
// query, so the result is always a warning, never a failure — failing
// here would block operators who are enrolled.
type EnrollmentCheck struct{}

func (c *EnrollmentCheck) Name() string     { return "agent-program-enrollment" }
func (c *EnrollmentCheck) Category() string { return "enrollment" }
func (c *EnrollmentCheck) Description() string {
	return "The tenant is enrolled in the agent hosting program (not verifiable programmatically)."
}

func (c *EnrollmentCheck) Run(_ context.Context, _ *agentconfig.AgentConfig) Result {
	return Warn(
		"tenant enrollment in the agent hosting program cannot be verified programmatically",
		"Confirm enrollment in the provider portal; blueprint creation fails with a permission error for unenrolled tenants.",
	)
}
