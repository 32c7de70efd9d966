// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package blueprint provisions an agent's cloud identity: the
// application blueprint that every other setup step hangs off, and the
// messaging endpoint registered against it.
//
// Ensure is idempotent. It looks the blueprint up by application ID
// when the config already carries one, by display name otherwise, and
// creates only on a confirmed miss. A creation conflict means a
// concurrent creator won and is treated as success.
//
// Directory reads lag writes. A blueprint created milliseconds ago is
// often not yet observable on the query path that the permission and
// credential steps depend on, so Ensure polls until a read sees the
// blueprint (bounded by PollTimeout) before returning.
package blueprint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cadreworks/cadre/directory"
	"github.com/cadreworks/cadre/lib/agentconfig"
	"github.com/cadreworks/cadre/lib/ensure"
)

// Visibility poll bounds. The interval matches how quickly directory
// read replicas typically catch up; the timeout is generous enough for
// a slow tenant without stalling a broken one forever.
const (
	DefaultPollInterval = 1 * time.Second
	DefaultPollTimeout  = 15 * time.Second
)

// SignInAudience requested for every agent blueprint. Agents
// authenticate within their own tenant only.
const SignInAudience = "SingleTenant"

// Provisioner ensures blueprints and their messaging endpoints exist.
type Provisioner struct {
	Directory directory.Service

	// Logger receives step-level progress. Nil means slog.Default().
	Logger *slog.Logger

	// PollInterval and PollTimeout bound the read-after-write
	// visibility poll. Zero values use the package defaults.
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Outcome reports how Ensure reached the desired state.
type Outcome struct {
	// Blueprint is the existing or newly created blueprint, with the
	// directory-assigned identifiers populated.
	Blueprint *directory.Blueprint

	// AlreadyExisted is true when the blueprint was found up front or
	// when creation conflicted with a concurrent creator.
	AlreadyExisted bool
}

// EndpointOutcome reports how EnsureEndpoint reached the desired state.
type EndpointOutcome struct {
	Endpoint       *directory.MessagingEndpoint
	AlreadyExisted bool
}

// Ensure finds or creates the blueprint for config and waits until the
// directory's read path observes it. The returned blueprint always has
// ID and AppID set; callers persist those before running any dependent
// step.
func (p *Provisioner) Ensure(ctx context.Context, config *agentconfig.AgentConfig) (*Outcome, error) {
	if config.AppID == "" && config.DisplayName == "" {
		return nil, fmt.Errorf("blueprint: config has neither an app ID nor a display name to identify the blueprint")
	}

	find := func(ctx context.Context) (*directory.Blueprint, bool, error) {
		if config.AppID != "" {
			return p.Directory.FindBlueprintByAppID(ctx, config.AppID)
		}
		return p.Directory.FindBlueprintByDisplayName(ctx, config.DisplayName)
	}

	result, err := ensure.Resource(ctx, ensure.Steps[*directory.Blueprint]{
		Resource: "blueprint",
		Find:     find,
		Create: func(ctx context.Context) (*directory.Blueprint, error) {
			return p.Directory.CreateBlueprint(ctx, directory.BlueprintRequest{
				DisplayName:    config.DisplayName,
				PrincipalName:  config.UserPrincipalName,
				SignInAudience: SignInAudience,
			})
		},
		IsConflict: directory.IsConflict,
	})
	if err != nil {
		return nil, err
	}

	blueprint := result.Value
	switch {
	case blueprint == nil || blueprint.ID == "":
		// Creation conflicted and the immediate re-query missed: the
		// winner's write has not propagated. Poll the same lookup
		// until it lands; the identifiers are required downstream.
		blueprint, err = p.waitVisible(ctx, find)
		if err != nil {
			return nil, err
		}
	case !result.AlreadyExisted:
		// Fresh create. The response carries the identifiers, but the
		// query path the later steps use may not see the blueprint
		// yet. Wait here so a dependent step never races propagation.
		appID := blueprint.AppID
		blueprint, err = p.waitVisible(ctx, func(ctx context.Context) (*directory.Blueprint, bool, error) {
			return p.Directory.FindBlueprintByAppID(ctx, appID)
		})
		if err != nil {
			return nil, err
		}
	}

	p.logger().Info("blueprint ensured",
		"display_name", blueprint.DisplayName,
		"app_id", blueprint.AppID,
		"blueprint_id", blueprint.ID,
		"already_existed", result.AlreadyExisted)

	return &Outcome{Blueprint: blueprint, AlreadyExisted: result.AlreadyExisted}, nil
}

// EnsureEndpoint registers the agent's messaging endpoint address with
// the directory. An endpoint already registered for the application ID
// is left untouched, even when its address differs; replacing a live
// routing entry is an operator decision, not a setup side effect.
func (p *Provisioner) EnsureEndpoint(ctx context.Context, appID, address, environment string) (*EndpointOutcome, error) {
	if appID == "" {
		return nil, fmt.Errorf("messaging endpoint: application ID is empty; run the blueprint step first")
	}
	if address == "" {
		return nil, fmt.Errorf("messaging endpoint: no address to register")
	}

	result, err := ensure.Resource(ctx, ensure.Steps[*directory.MessagingEndpoint]{
		Resource: "messaging endpoint",
		Find: func(ctx context.Context) (*directory.MessagingEndpoint, bool, error) {
			return p.Directory.FindMessagingEndpoint(ctx, appID)
		},
		Create: func(ctx context.Context) (*directory.MessagingEndpoint, error) {
			return p.Directory.CreateMessagingEndpoint(ctx, directory.MessagingEndpoint{
				AppID:       appID,
				Address:     address,
				Environment: environment,
			})
		},
		IsConflict: directory.IsConflict,
	})
	if err != nil {
		return nil, err
	}

	if existing := result.Value; result.AlreadyExisted && existing != nil && existing.Address != address {
		p.logger().Warn("registered endpoint address differs from the configured one",
			"app_id", appID,
			"registered", existing.Address,
			"configured", address)
	}

	return &EndpointOutcome{Endpoint: result.Value, AlreadyExisted: result.AlreadyExisted}, nil
}

// waitVisible polls find until it observes the blueprint, bounded by
// PollTimeout. The first attempt is immediate so the common case (read
// path already caught up) costs one query and no sleep.
func (p *Provisioner) waitVisible(ctx context.Context, find func(context.Context) (*directory.Blueprint, bool, error)) (*directory.Blueprint, error) {
	interval := p.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := p.PollTimeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		blueprint, found, err := find(ctx)
		if err != nil {
			return nil, fmt.Errorf("blueprint visibility poll: %w", err)
		}
		if found {
			if attempts > 1 {
				p.logger().Debug("blueprint became visible", "attempts", attempts)
			}
			return blueprint, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("blueprint not visible after %s (%d attempts): directory propagation did not complete", timeout, attempts)
		case <-ticker.C:
		}
	}
}

func (p *Provisioner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
