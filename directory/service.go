// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import "context"

// Service is the interface for directory operations that the setup
// pipeline and requirement checks perform. *Client is the production
// implementation; tests substitute in-memory fakes.
//
// Client-only methods (CloseIdleConnections) are not part of this
// interface. Code that needs them should type-assert to *Client.
type Service interface {
	// Metadata returns the directory service descriptor. Unauthenticated.
	Metadata(ctx context.Context) (*Metadata, error)

	// Me returns the authenticated caller's identity.
	Me(ctx context.Context) (*Principal, error)

	// FindBlueprintByAppID looks up a blueprint by its application ID.
	// Returns found=false when no blueprint matches.
	FindBlueprintByAppID(ctx context.Context, appID string) (*Blueprint, bool, error)

	// FindBlueprintByDisplayName looks up a blueprint by display name.
	// Returns found=false when no blueprint matches.
	FindBlueprintByDisplayName(ctx context.Context, displayName string) (*Blueprint, bool, error)

	// GetBlueprint fetches a blueprint by its object ID.
	GetBlueprint(ctx context.Context, blueprintID string) (*Blueprint, error)

	// CreateBlueprint registers a new blueprint in the directory.
	CreateBlueprint(ctx context.Context, request BlueprintRequest) (*Blueprint, error)

	// SetInstancePermissions replaces the requested permission scopes a
	// blueprint declares against a resource application.
	SetInstancePermissions(ctx context.Context, blueprintID, resourceAppID string, scopes []string) error

	// GetInstancePermissions returns the permission scopes a blueprint
	// declares, grouped by resource application.
	GetInstancePermissions(ctx context.Context, blueprintID string) ([]InstancePermission, error)

	// FindServicePrincipalByAppID looks up the service principal backing
	// an application ID. Returns found=false when none exists.
	FindServicePrincipalByAppID(ctx context.Context, appID string) (*ServicePrincipal, bool, error)

	// CreateServicePrincipal instantiates a service principal for an
	// application ID.
	CreateServicePrincipal(ctx context.Context, appID string) (*ServicePrincipal, error)

	// FindPermissionGrant looks up the delegated grant from a client
	// service principal to a resource service principal. Returns
	// found=false when no grant exists.
	FindPermissionGrant(ctx context.Context, clientID, resourceID string) (*PermissionGrant, bool, error)

	// CreatePermissionGrant records a new delegated permission grant.
	CreatePermissionGrant(ctx context.Context, grant PermissionGrant) (*PermissionGrant, error)

	// UpdatePermissionGrantScope replaces the scope string of an existing
	// grant. The full desired scope must be supplied; the directory does
	// not merge.
	UpdatePermissionGrantScope(ctx context.Context, grantID, scope string) error

	// ListFederatedCredentials returns the federated credentials attached
	// to a blueprint. Returns an empty list (not an error) when the
	// blueprint has none.
	ListFederatedCredentials(ctx context.Context, blueprintID string) ([]FederatedCredential, error)

	// CreateFederatedCredential attaches a federated credential to a
	// blueprint.
	CreateFederatedCredential(ctx context.Context, blueprintID string, credential FederatedCredential) (*FederatedCredential, error)

	// CreateWorkloadCredential attaches a federated credential through the
	// workload endpoint, which addresses the blueprint by application ID
	// rather than object ID. Fallback for directories that reject the
	// blueprint-scoped route.
	CreateWorkloadCredential(ctx context.Context, appID string, credential FederatedCredential) (*FederatedCredential, error)

	// FindMessagingEndpoint looks up the messaging endpoint registered
	// for an application ID. Returns found=false when none exists.
	FindMessagingEndpoint(ctx context.Context, appID string) (*MessagingEndpoint, bool, error)

	// CreateMessagingEndpoint registers a messaging endpoint address.
	CreateMessagingEndpoint(ctx context.Context, endpoint MessagingEndpoint) (*MessagingEndpoint, error)
}

// Compile-time check that *Client satisfies Service.
var _ Service = (*Client)(nil)
