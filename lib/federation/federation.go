// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package federation provisions federated workload credentials: the
// keyless trust binding that lets an agent's hosted compute exchange
// its platform token for the blueprint's identity, with no client
// secret to rotate or leak.
//
// A credential's identity is its (subject, issuer) pair, compared
// case-insensitively; the name and audience list are presentation.
// Ensure lists the blueprint's credentials, matches on that pair, and
// creates only on a miss. Directories that reject the blueprint-scoped
// route get one fallback attempt through the workload endpoint, which
// addresses the blueprint by application ID instead of object ID.
package federation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cadreworks/cadre/directory"
	"github.com/cadreworks/cadre/lib/agentconfig"
	"github.com/cadreworks/cadre/lib/ensure"
)

// DefaultAudience is the token-exchange audience stamped on workload
// credentials. The token service only honors exchanges bound to it.
const DefaultAudience = "api://CadreTokenExchange"

// Provisioner ensures federated credentials exist on blueprints.
type Provisioner struct {
	Directory directory.Service

	// Logger receives step-level progress. Nil means slog.Default().
	Logger *slog.Logger
}

// Outcome reports how Ensure reached the desired state.
type Outcome struct {
	// Credential is the existing or newly created credential. After a
	// creation conflict whose re-query missed it may be nil.
	Credential *directory.FederatedCredential

	// AlreadyExisted is true when a matching credential was found up
	// front or when creation conflicted with a concurrent creator.
	AlreadyExisted bool

	// UsedFallback is true when the credential was created through the
	// workload endpoint.
	UsedFallback bool
}

// Matches reports whether two credentials describe the same trust
// binding. Subject and issuer compare case-insensitively; directories
// normalize their casing unpredictably.
func Matches(a, b directory.FederatedCredential) bool {
	return strings.EqualFold(a.Subject, b.Subject) && strings.EqualFold(a.Issuer, b.Issuer)
}

// WorkloadSubject returns the subject claim the hosting platform
// presents when running the agent: host:<plan>:<slug>.
func WorkloadSubject(config *agentconfig.AgentConfig) string {
	return fmt.Sprintf("host:%s:%s", config.PlanName, config.Slug())
}

// WorkloadIssuer returns the token issuer for the hosting platform in
// the given tenant.
func WorkloadIssuer(endpointSuffix, tenantID string) string {
	return fmt.Sprintf("https://tokens.%s/%s", endpointSuffix, tenantID)
}

// WorkloadCredential builds the credential binding config's hosted
// compute to its blueprint.
func WorkloadCredential(config *agentconfig.AgentConfig, endpointSuffix string) directory.FederatedCredential {
	return directory.FederatedCredential{
		Name:      "workload-" + config.Slug(),
		Issuer:    WorkloadIssuer(endpointSuffix, config.TenantID),
		Subject:   WorkloadSubject(config),
		Audiences: []string{DefaultAudience},
	}
}

// Ensure finds or creates credential on the blueprint. appID enables
// the workload-endpoint fallback; pass it empty to disable the
// fallback (the blueprint-scoped route is then the only attempt).
func (p *Provisioner) Ensure(ctx context.Context, blueprintID, appID string, credential directory.FederatedCredential) (*Outcome, error) {
	if blueprintID == "" {
		return nil, fmt.Errorf("federated credential: blueprint ID is empty; run the blueprint step first")
	}
	if credential.Subject == "" || credential.Issuer == "" {
		return nil, fmt.Errorf("federated credential: subject and issuer are required")
	}

	steps := ensure.Steps[*directory.FederatedCredential]{
		Resource: "federated credential",
		Find: func(ctx context.Context) (*directory.FederatedCredential, bool, error) {
			existing, err := p.Directory.ListFederatedCredentials(ctx, blueprintID)
			if err != nil {
				return nil, false, err
			}
			for i := range existing {
				if Matches(existing[i], credential) {
					return &existing[i], true, nil
				}
			}
			return nil, false, nil
		},
		Create: func(ctx context.Context) (*directory.FederatedCredential, error) {
			return p.Directory.CreateFederatedCredential(ctx, blueprintID, credential)
		},
		IsConflict: directory.IsConflict,
	}
	if appID != "" {
		steps.Fallback = func(ctx context.Context) (*directory.FederatedCredential, error) {
			return p.Directory.CreateWorkloadCredential(ctx, appID, credential)
		}
	}

	result, err := ensure.Resource(ctx, steps)
	if err != nil {
		return nil, err
	}

	p.logger().Info("federated credential ensured",
		"subject", credential.Subject,
		"already_existed", result.AlreadyExisted,
		"used_fallback", result.UsedFallback)

	return &Outcome{
		Credential:     result.Value,
		AlreadyExisted: result.AlreadyExisted,
		UsedFallback:   result.UsedFallback,
	}, nil
}

func (p *Provisioner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
