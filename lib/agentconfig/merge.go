// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package agentconfig

// Merge combines a team's shared resources with one member entry to
// produce that member's standalone AgentConfig. Agent-level values
// always win over shared ones; Merge is pure and touches neither
// input.
//
// The endpoint address is resolved here when possible: an explicit
// member override is copied through, otherwise a team-level
// EndpointSuffix derives the address. When neither is set the field
// stays empty and the caller derives it from its own settings.
func Merge(shared SharedResources, agent TeamAgentConfig) AgentConfig {
	merged := AgentConfig{
		TenantID:       shared.TenantID,
		SubscriptionID: shared.SubscriptionID,
		ResourceGroup:  shared.ResourceGroup,
		Region:         firstOf(agent.Region, shared.Region),
		PlanName:       firstOf(agent.PlanName, shared.PlanName),
		PlanSKU:        firstOf(agent.PlanSKU, shared.PlanSKU),
		Environment:    firstOf(agent.Environment, shared.Environment),

		DisplayName:       agent.DisplayName,
		UserPrincipalName: agent.UserPrincipalName,
		DeployPath:        agent.DeployPath,
		ExternalHosting:   agent.ExternalHosting,
		EndpointAddress:   agent.EndpointAddress,
	}

	if merged.EndpointAddress == "" && !merged.ExternalHosting && shared.EndpointSuffix != "" {
		merged.EndpointAddress = merged.ComputedEndpointAddress(shared.EndpointSuffix)
	}

	return merged
}

// firstOf returns the agent-level value when set, the shared value
// otherwise.
func firstOf(agent, shared string) string {
	if agent != "" {
		return agent
	}
	return shared
}
