// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"fmt"
	"path/filepath"

	"github.com/cadreworks/cadre/lib/agentconfig"
	"github.com/cadreworks/cadre/lib/deploypack"
	"github.com/cadreworks/cadre/lib/federation"
	"github.com/cadreworks/cadre/lib/grant"
	"github.com/cadreworks/cadre/lib/settings"
)

// Plan returns the ordered step descriptions Run would execute for
// config. It touches no external system; dry runs print it and stop.
func Plan(config *agentconfig.AgentConfig, current *settings.Settings, options Options) []string {
	var steps []string

	if options.SkipRequirements {
		steps = append(steps, "requirement checks: skipped (--skip-requirements)")
	} else {
		steps = append(steps, "requirement checks: provider CLI, directory reachability and token, identifiers, deploy path, hosting plan")
	}

	switch {
	case config.ExternalHosting:
		steps = append(steps, "infrastructure: skipped (externally hosted)")
	case options.SkipInfrastructure:
		steps = append(steps, "infrastructure: skipped (--skip-infrastructure)")
	case options.SharedInfrastructureReady:
		steps = append(steps, "infrastructure: already provisioned by an earlier team member")
	default:
		steps = append(steps, fmt.Sprintf("infrastructure: resource group %s, hosting plan %s (%s) in %s",
			config.ResourceGroup, config.PlanName, config.PlanSKU, config.Region))
	}

	identity := fmt.Sprintf("%q", config.DisplayName)
	if config.AppID != "" {
		identity = "app " + config.AppID
	}
	steps = append(steps, fmt.Sprintf("blueprint: ensure %s, persist assigned identifiers", identity))

	if config.ExternalHosting {
		steps = append(steps, "workload credential: skipped (externally hosted)")
	} else {
		steps = append(steps, "workload credential: subject "+federation.WorkloadSubject(config))
	}

	steps = append(steps,
		fmt.Sprintf("tool platform permissions: grant %q on %s, declare inheritable",
			grant.NormalizeScope(ToolPlatformScopes), current.Resources.ToolPlatformAppID),
		fmt.Sprintf("messaging permissions: grant %q on %s",
			grant.NormalizeScope(MessagingScopes), current.Resources.MessagingAppID))

	if config.ExternalHosting {
		steps = append(steps, "messaging endpoint: skipped (externally hosted)")
	} else if address := config.ComputedEndpointAddress(current.Resources.EndpointSuffix); address != "" {
		steps = append(steps, "messaging endpoint: register "+address)
	} else {
		steps = append(steps, "messaging endpoint: no derivable address (set planName and region, or endpointAddress)")
	}

	steps = append(steps, "project sync: write "+filepath.Join(config.DeployPath, deploypack.MetaDir, EnvFileName))

	return steps
}
