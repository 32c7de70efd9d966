// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package directory

// Metadata describes the directory service. Returned by the
// unauthenticated /v1/metadata endpoint, used for reachability checks.
type Metadata struct {
	Service     string   `json:"service"`
	Version     string   `json:"version"`
	APIVersions []string `json:"apiVersions"`
}

// Principal identifies the authenticated caller. Returned by /v1/me.
type Principal struct {
	ID            string `json:"id"`
	DisplayName   string `json:"displayName"`
	PrincipalName string `json:"principalName"`
	TenantID      string `json:"tenantId"`
}

// Blueprint is an application identity registered in the directory. It
// carries two identifiers: ID is the directory object ID, AppID is the
// client application ID used by external systems.
type Blueprint struct {
	ID             string `json:"id"`
	AppID          string `json:"appId"`
	DisplayName    string `json:"displayName"`
	PrincipalName  string `json:"principalName,omitempty"`
	SignInAudience string `json:"signInAudience,omitempty"`
}

// BlueprintRequest is the creation payload for a blueprint.
type BlueprintRequest struct {
	DisplayName    string `json:"displayName"`
	PrincipalName  string `json:"principalName,omitempty"`
	SignInAudience string `json:"signInAudience,omitempty"`
}

// ServicePrincipal is the tenant-local instantiation of an application.
// Permission grants reference service principal object IDs, not app IDs.
type ServicePrincipal struct {
	ID          string `json:"id"`
	AppID       string `json:"appId"`
	DisplayName string `json:"displayName,omitempty"`
}

// PermissionGrant is a delegated OAuth2 permission grant from a client
// service principal to a resource service principal. Scope is a
// space-separated list of scope names; the directory treats the grant's
// scope string as the complete set (replace semantics, not append).
type PermissionGrant struct {
	ID          string `json:"id,omitempty"`
	ClientID    string `json:"clientId"`
	ResourceID  string `json:"resourceId"`
	ConsentType string `json:"consentType,omitempty"`
	Scope       string `json:"scope"`
}

// InstancePermission is an inheritable permission set configured on a
// blueprint: every agent instance created from the blueprint inherits
// access to the named resource with the listed scopes.
type InstancePermission struct {
	ResourceAppID string   `json:"resourceAppId"`
	Scopes        []string `json:"scopes"`
}

// FederatedCredential is a keyless credential on a blueprint: workloads
// presenting a token from Issuer with the matching Subject authenticate
// as the blueprint without any stored secret.
type FederatedCredential struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	Issuer    string   `json:"issuer"`
	Subject   string   `json:"subject"`
	Audiences []string `json:"audiences,omitempty"`
}

// MessagingEndpoint is the registered HTTPS address where an agent
// receives platform messages.
type MessagingEndpoint struct {
	ID          string `json:"id,omitempty"`
	AppID       string `json:"appId"`
	Address     string `json:"address"`
	Environment string `json:"environment,omitempty"`
}

// collection is the wire shape of directory list responses.
type collection[T any] struct {
	Value []T `json:"value"`
}
