// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package grant provisions delegated permissions: the OAuth2 grants
// between an agent's service principal and the platform resource
// applications, and the inheritable instance permissions declared on
// the blueprint itself.
//
// Grants use replace semantics. The directory does not merge scope
// strings, so a grant whose scopes drifted from the desired set is
// overwritten with the full set, never appended to.
package grant

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cadreworks/cadre/directory"
	"github.com/cadreworks/cadre/lib/ensure"
)

// ElevatedScopes are the delegated scopes the caller's own token must
// carry to write inheritable instance permissions. Ordinary directory
// write access is not enough; the directory returns 403 without them.
var ElevatedScopes = []string{
	"Blueprints.Manage.All",
	"InstancePermissions.ReadWrite.All",
}

// Provisioner ensures service principals, permission grants, and
// instance permissions.
type Provisioner struct {
	Directory directory.Service

	// Logger receives step-level progress. Nil means slog.Default().
	Logger *slog.Logger
}

// GrantResult reports how ReplaceGrant reached the desired state.
// Exactly one of Created, Updated, and AlreadyConfigured is true.
type GrantResult struct {
	// Grant is the grant carrying the desired scope set. Nil only when
	// a creation conflict's re-query missed (the winner's write had
	// not propagated).
	Grant *directory.PermissionGrant

	// Created: no grant existed; one was created with the full set.
	Created bool

	// Updated: a grant existed with a different scope set; its scope
	// string was replaced.
	Updated bool

	// AlreadyConfigured: a grant existed and already carried exactly
	// the desired set.
	AlreadyConfigured bool
}

// ElevatedScopeError reports a 403 from the instance-permission
// endpoint: the operation itself is valid, but the caller's token
// lacks the elevated scopes. Callers surface the required scopes so
// the operator knows what consent to request, rather than a bare
// "forbidden".
type ElevatedScopeError struct {
	BlueprintID   string
	ResourceAppID string
	Required      []string
	Err           error
}

func (e *ElevatedScopeError) Error() string {
	return fmt.Sprintf("setting instance permissions on blueprint %s for resource %s: caller token lacks elevated scopes (need %s)",
		e.BlueprintID, e.ResourceAppID, strings.Join(e.Required, ", "))
}

func (e *ElevatedScopeError) Unwrap() error { return e.Err }

// EnsureServicePrincipal finds or instantiates the service principal
// for an application ID.
func (p *Provisioner) EnsureServicePrincipal(ctx context.Context, appID string) (*directory.ServicePrincipal, bool, error) {
	if appID == "" {
		return nil, false, fmt.Errorf("service principal: application ID is empty")
	}

	result, err := ensure.Resource(ctx, ensure.Steps[*directory.ServicePrincipal]{
		Resource: "service principal",
		Find: func(ctx context.Context) (*directory.ServicePrincipal, bool, error) {
			return p.Directory.FindServicePrincipalByAppID(ctx, appID)
		},
		Create: func(ctx context.Context) (*directory.ServicePrincipal, error) {
			return p.Directory.CreateServicePrincipal(ctx, appID)
		},
		IsConflict: directory.IsConflict,
	})
	if err != nil {
		return nil, false, err
	}
	if result.Value == nil || result.Value.ID == "" {
		// Conflict whose re-query missed. Grant writes need the
		// principal's object ID, so this run cannot proceed; the next
		// run will find the principal immediately.
		return nil, false, fmt.Errorf("service principal for %s exists but is not readable yet; rerun setup", appID)
	}
	return result.Value, result.AlreadyExisted, nil
}

// ReplaceGrant ensures the delegated grant from clientID (the agent's
// service principal) to resourceID (the resource's service principal)
// carries exactly scopes. Scope comparison is order-insensitive; the
// written scope string is always the normalized full set.
func (p *Provisioner) ReplaceGrant(ctx context.Context, clientID, resourceID string, scopes []string) (*GrantResult, error) {
	if clientID == "" || resourceID == "" {
		return nil, fmt.Errorf("permission grant: client and resource service principal IDs are required")
	}
	want := NormalizeScope(scopes)
	if want == "" {
		return nil, fmt.Errorf("permission grant: no scopes to grant")
	}

	existing, found, err := p.Directory.FindPermissionGrant(ctx, clientID, resourceID)
	if err != nil {
		return nil, fmt.Errorf("permission grant: query existing: %w", err)
	}
	if found {
		return p.reconcileGrant(ctx, existing, want)
	}

	created, err := p.Directory.CreatePermissionGrant(ctx, directory.PermissionGrant{
		ClientID:   clientID,
		ResourceID: resourceID,
		Scope:      want,
	})
	if err == nil {
		p.logger().Info("permission grant created", "client_id", clientID, "resource_id", resourceID, "scope", want)
		return &GrantResult{Grant: created, Created: true}, nil
	}
	if !directory.IsConflict(err) {
		return nil, fmt.Errorf("permission grant: create: %w", err)
	}

	// A concurrent creator won. Its scope set is not necessarily ours,
	// so re-read and reconcile rather than assume.
	winner, found, findErr := p.Directory.FindPermissionGrant(ctx, clientID, resourceID)
	if findErr != nil || !found {
		// The winner's write has not propagated. The grant exists;
		// report it as configured and let a rerun reconcile the scope.
		return &GrantResult{AlreadyConfigured: true}, nil
	}
	return p.reconcileGrant(ctx, winner, want)
}

// reconcileGrant brings an existing grant to the desired scope string.
func (p *Provisioner) reconcileGrant(ctx context.Context, existing *directory.PermissionGrant, want string) (*GrantResult, error) {
	if ScopeEqual(existing.Scope, want) {
		return &GrantResult{Grant: existing, AlreadyConfigured: true}, nil
	}

	if err := p.Directory.UpdatePermissionGrantScope(ctx, existing.ID, want); err != nil {
		return nil, fmt.Errorf("permission grant: replace scope: %w", err)
	}
	p.logger().Info("permission grant scope replaced",
		"grant_id", existing.ID,
		"previous", existing.Scope,
		"scope", want)

	updated := *existing
	updated.Scope = want
	return &GrantResult{Grant: &updated, Updated: true}, nil
}

// EnsureInstancePermissions ensures the blueprint declares exactly
// scopes against resourceAppID. It reads first and writes only on
// drift, so alreadyConfigured distinguishes "nothing to do" from
// "applied". A 403 comes back as *ElevatedScopeError.
func (p *Provisioner) EnsureInstancePermissions(ctx context.Context, blueprintID, resourceAppID string, scopes []string) (alreadyConfigured bool, err error) {
	if blueprintID == "" {
		return false, fmt.Errorf("instance permissions: blueprint ID is empty; run the blueprint step first")
	}
	want := NormalizeScopes(scopes)
	if len(want) == 0 {
		return false, fmt.Errorf("instance permissions: no scopes to declare")
	}

	current, err := p.Directory.GetInstancePermissions(ctx, blueprintID)
	if err != nil && !directory.IsNotFound(err) {
		return false, fmt.Errorf("instance permissions: read current: %w", err)
	}
	for _, permission := range current {
		if permission.ResourceAppID == resourceAppID && scopeSetEqual(permission.Scopes, want) {
			return true, nil
		}
	}

	if err := p.Directory.SetInstancePermissions(ctx, blueprintID, resourceAppID, want); err != nil {
		if directory.IsForbidden(err) {
			return false, &ElevatedScopeError{
				BlueprintID:   blueprintID,
				ResourceAppID: resourceAppID,
				Required:      append([]string(nil), ElevatedScopes...),
				Err:           err,
			}
		}
		return false, fmt.Errorf("instance permissions: %w", err)
	}

	p.logger().Info("instance permissions declared",
		"blueprint_id", blueprintID,
		"resource_app_id", resourceAppID,
		"scopes", strings.Join(want, " "))
	return false, nil
}

// NormalizeScopes returns scopes sorted, deduplicated, and with empty
// entries dropped.
func NormalizeScopes(scopes []string) []string {
	set := make(map[string]bool, len(scopes))
	normalized := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" || set[scope] {
			continue
		}
		set[scope] = true
		normalized = append(normalized, scope)
	}
	sort.Strings(normalized)
	return normalized
}

// NormalizeScope returns the canonical space-separated scope string
// for a scope set.
func NormalizeScope(scopes []string) string {
	return strings.Join(NormalizeScopes(scopes), " ")
}

// ScopeEqual reports whether a grant's space-separated scope string
// carries exactly the normalized scope string want, ignoring order and
// duplicates.
func ScopeEqual(scope, want string) bool {
	return NormalizeScope(strings.Fields(scope)) == want
}

func scopeSetEqual(a, b []string) bool {
	normalizedA := NormalizeScopes(a)
	normalizedB := NormalizeScopes(b)
	if len(normalizedA) != len(normalizedB) {
		return false
	}
	for i := range normalizedA {
		if normalizedA[i] != normalizedB[i] {
			return false
		}
	}
	return true
}

func (p *Provisioner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
