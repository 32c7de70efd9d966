// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package infra provisions the hosting infrastructure an agent team
// runs on: the resource group and the hosting plan, both through the
// cloud provider's CLI.
//
// The provider CLI is the only sanctioned write path to hosting
// resources here; Cadre does not speak the hosting control plane's
// wire API directly. Each resource follows the same idempotent shape
// as the directory provisioners: show, create on a miss, and treat an
// already-exists failure as success. The CLI has no structured error
// output, so classification matches on stable stderr substrings.
package infra

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cadreworks/cadre/lib/agentconfig"
	"github.com/cadreworks/cadre/lib/cloudcli"
	"github.com/cadreworks/cadre/lib/ensure"
)

// Provisioner ensures hosting resources exist via the provider CLI.
type Provisioner struct {
	Runner cloudcli.Runner

	// CLI is the provider binary name, from settings.
	CLI string

	// Logger receives step-level progress. Nil means slog.Default().
	Logger *slog.Logger
}

// Outcome reports the disposition of each hosting resource.
type Outcome struct {
	ResourceGroupCreated        bool
	ResourceGroupAlreadyExisted bool
	PlanCreated                 bool
	PlanAlreadyExisted          bool
}

// Created reports whether any resource was newly created.
func (o *Outcome) Created() bool {
	return o.ResourceGroupCreated || o.PlanCreated
}

// AlreadyExisted reports whether everything was already in place.
func (o *Outcome) AlreadyExisted() bool {
	return !o.Created()
}

// Ensure provisions the resource group and hosting plan for config.
// Both resources are team-level singletons: every member of a team
// shares them, so a team run calls Ensure once and skips it for the
// remaining members.
func (p *Provisioner) Ensure(ctx context.Context, config *agentconfig.AgentConfig) (*Outcome, error) {
	if config.ResourceGroup == "" || config.SubscriptionID == "" {
		return nil, fmt.Errorf("infrastructure: resource group and subscription ID are required")
	}
	if config.PlanName == "" || config.Region == "" {
		return nil, fmt.Errorf("infrastructure: hosting plan name and region are required")
	}

	outcome := &Outcome{}

	group, err := p.ensureResource(ctx, "resource group",
		[]string{"group", "show",
			"--name", config.ResourceGroup,
			"--subscription", config.SubscriptionID,
			"--output", "json"},
		[]string{"group", "create",
			"--name", config.ResourceGroup,
			"--location", config.Region,
			"--subscription", config.SubscriptionID,
			"--output", "json"})
	if err != nil {
		return nil, err
	}
	outcome.ResourceGroupCreated = !group.AlreadyExisted
	outcome.ResourceGroupAlreadyExisted = group.AlreadyExisted

	sku := config.PlanSKU
	if sku == "" {
		sku = "B1"
	}
	plan, err := p.ensureResource(ctx, "hosting plan",
		[]string{"plan", "show",
			"--name", config.PlanName,
			"--resource-group", config.ResourceGroup,
			"--subscription", config.SubscriptionID,
			"--output", "json"},
		[]string{"plan", "create",
			"--name", config.PlanName,
			"--resource-group", config.ResourceGroup,
			"--subscription", config.SubscriptionID,
			"--location", config.Region,
			"--sku", sku,
			"--output", "json"})
	if err != nil {
		return nil, err
	}
	outcome.PlanCreated = !plan.AlreadyExisted
	outcome.PlanAlreadyExisted = plan.AlreadyExisted

	p.logger().Info("hosting infrastructure ensured",
		"resource_group", config.ResourceGroup,
		"plan", config.PlanName,
		"created", outcome.Created())

	return outcome, nil
}

// ensureResource runs one show/create pair through the ensure step
// machinery, classifying CLI failures by exit code and stderr text.
func (p *Provisioner) ensureResource(ctx context.Context, kind string, showArgs, createArgs []string) (ensure.Outcome[string], error) {
	return ensure.Resource(ctx, ensure.Steps[string]{
		Resource: kind,
		Find: func(ctx context.Context) (string, bool, error) {
			output, err := p.Runner.Run(ctx, p.CLI, showArgs...)
			if err != nil {
				return "", false, err
			}
			if output.ExitCode == 0 {
				return output.Stdout, true, nil
			}
			if isNotFoundOutput(output.Stderr) {
				return "", false, nil
			}
			return "", false, cloudcli.CommandError(p.CLI, showArgs, output)
		},
		Create: func(ctx context.Context) (string, error) {
			output, err := p.Runner.Run(ctx, p.CLI, createArgs...)
			if err != nil {
				return "", err
			}
			if output.ExitCode != 0 {
				return "", cloudcli.CommandError(p.CLI, createArgs, output)
			}
			p.logger().Info("created "+kind, "command", strings.Join(createArgs[:2], " "))
			return output.Stdout, nil
		},
		IsConflict: IsConflictError,
	})
}

// Substrings the provider CLI emits for the two failure classes the
// ensure flow branches on. These have been stable across CLI releases;
// anything unmatched is treated as a real failure.
var (
	notFoundMarkers = []string{
		"could not be found",
		"does not exist",
		"ResourceNotFound",
		"ResourceGroupNotFound",
		"NotFound",
	}
	conflictMarkers = []string{
		"already exists",
		"AlreadyExists",
		"Conflict",
	}
)

func isNotFoundOutput(stderr string) bool {
	return containsAny(stderr, notFoundMarkers)
}

// IsConflictError reports whether a provider CLI failure means the
// resource already exists.
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), conflictMarkers)
}

func containsAny(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, marker := range markers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func (p *Provisioner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
