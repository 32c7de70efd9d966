// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package directorytest provides an in-memory directory.Service for
// provisioner and orchestrator tests.
//
// [Fake] keeps all directory state in plain slices and maps, counts
// every call by method name, and offers two failure knobs: ForceError
// makes a method fail persistently, ConflictNext makes the next create
// call return HTTP 409 while still materializing the resource (the
// "concurrent creator won" situation the provisioners must treat as
// success).
//
// All helpers are safe for sequential use only, matching the pipeline
// they exist to test.
package directorytest

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cadreworks/cadre/directory"
)

// Fake is an in-memory directory.Service.
type Fake struct {
	// Identity returned by Me. Defaults to a generic operator.
	Identity directory.Principal

	// Blueprints, ServicePrincipals, Grants, and Endpoints hold the
	// directory's object state. Tests may pre-seed them.
	Blueprints        []directory.Blueprint
	ServicePrincipals []directory.ServicePrincipal
	Grants            []directory.PermissionGrant
	Endpoints         []directory.MessagingEndpoint

	// InstancePermissions maps blueprint ID to its inheritable
	// permission sets.
	InstancePermissions map[string][]directory.InstancePermission

	// Credentials maps blueprint ID to its federated credentials.
	Credentials map[string][]directory.FederatedCredential

	// Calls counts invocations by method name.
	Calls map[string]int

	// BlueprintVisibleAfterReads simulates read-after-write eventual
	// consistency: a blueprint created through CreateBlueprint stays
	// invisible to Get and Find for this many read attempts.
	BlueprintVisibleAfterReads int

	hiddenReads map[string]int
	errors      map[string]error
	conflictOn  map[string]bool
	sequence    int
}

// New returns an empty fake directory.
func New() *Fake {
	return &Fake{
		Identity: directory.Principal{
			ID:            "00000000-0000-0000-0000-000000000001",
			DisplayName:   "Test Operator",
			PrincipalName: "operator@contoso.example",
			TenantID:      "11111111-2222-3333-4444-555555555555",
		},
		InstancePermissions: make(map[string][]directory.InstancePermission),
		Credentials:         make(map[string][]directory.FederatedCredential),
		Calls:               make(map[string]int),
		hiddenReads:         make(map[string]int),
		errors:              make(map[string]error),
		conflictOn:          make(map[string]bool),
	}
}

var _ directory.Service = (*Fake)(nil)

// ForceError makes the named method return err on every call.
func (f *Fake) ForceError(method string, err error) {
	f.errors[method] = err
}

// ForceStatus makes the named method return a directory error with the
// given HTTP status on every call.
func (f *Fake) ForceStatus(method string, status int) {
	f.errors[method] = &directory.Error{
		Code:       fmt.Sprintf("Forced%d", status),
		Message:    fmt.Sprintf("forced %d from %s", status, method),
		StatusCode: status,
	}
}

// ConflictNext makes the next call to the named create method return
// HTTP 409 while still recording the resource, simulating a concurrent
// creator that won the race.
func (f *Fake) ConflictNext(method string) {
	f.conflictOn[method] = true
}

// MutatingCalls returns the total number of create/update/set calls
// made, for idempotency assertions ("second run performs zero writes").
func (f *Fake) MutatingCalls() int {
	total := 0
	for method, count := range f.Calls {
		if strings.HasPrefix(method, "Create") ||
			strings.HasPrefix(method, "Update") ||
			strings.HasPrefix(method, "Set") {
			total += count
		}
	}
	return total
}

func (f *Fake) record(method string) error {
	if f.Calls == nil {
		f.Calls = make(map[string]int)
	}
	f.Calls[method]++
	return f.errors[method]
}

// takeConflict reports whether the named create call should fail with
// 409 this time, consuming the one-shot flag.
func (f *Fake) takeConflict(method string) bool {
	if f.conflictOn[method] {
		delete(f.conflictOn, method)
		return true
	}
	return false
}

func conflictError(method string) error {
	return &directory.Error{
		Code:       directory.ErrCodeConflict,
		Message:    fmt.Sprintf("%s: resource already exists", method),
		StatusCode: http.StatusConflict,
	}
}

func notFoundError(kind, id string) error {
	return &directory.Error{
		Code:       directory.ErrCodeNotFound,
		Message:    fmt.Sprintf("%s %s not found", kind, id),
		StatusCode: http.StatusNotFound,
	}
}

func (f *Fake) nextID(prefix string) string {
	f.sequence++
	return fmt.Sprintf("%s-%04d", prefix, f.sequence)
}

// Metadata implements directory.Service.
func (f *Fake) Metadata(ctx context.Context) (*directory.Metadata, error) {
	if err := f.record("Metadata"); err != nil {
		return nil, err
	}
	return &directory.Metadata{Service: "cadre-directory", Version: "1.0.0", APIVersions: []string{"v1"}}, nil
}

// Me implements directory.Service.
func (f *Fake) Me(ctx context.Context) (*directory.Principal, error) {
	if err := f.record("Me"); err != nil {
		return nil, err
	}
	identity := f.Identity
	return &identity, nil
}

// blueprintVisible reports whether reads may observe the blueprint yet,
// consuming one hidden read if not.
func (f *Fake) blueprintVisible(id string) bool {
	if remaining, hidden := f.hiddenReads[id]; hidden && remaining > 0 {
		f.hiddenReads[id] = remaining - 1
		return false
	}
	return true
}

// FindBlueprintByAppID implements directory.Service.
func (f *Fake) FindBlueprintByAppID(ctx context.Context, appID string) (*directory.Blueprint, bool, error) {
	if err := f.record("FindBlueprintByAppID"); err != nil {
		return nil, false, err
	}
	for i := range f.Blueprints {
		if f.Blueprints[i].AppID == appID {
			if !f.blueprintVisible(f.Blueprints[i].ID) {
				return nil, false, nil
			}
			blueprint := f.Blueprints[i]
			return &blueprint, true, nil
		}
	}
	return nil, false, nil
}

// FindBlueprintByDisplayName implements directory.Service.
func (f *Fake) FindBlueprintByDisplayName(ctx context.Context, displayName string) (*directory.Blueprint, bool, error) {
	if err := f.record("FindBlueprintByDisplayName"); err != nil {
		return nil, false, err
	}
	for i := range f.Blueprints {
		if f.Blueprints[i].DisplayName == displayName {
			if !f.blueprintVisible(f.Blueprints[i].ID) {
				return nil, false, nil
			}
			blueprint := f.Blueprints[i]
			return &blueprint, true, nil
		}
	}
	return nil, false, nil
}

// GetBlueprint implements directory.Service.
func (f *Fake) GetBlueprint(ctx context.Context, blueprintID string) (*directory.Blueprint, error) {
	if err := f.record("GetBlueprint"); err != nil {
		return nil, err
	}
	for i := range f.Blueprints {
		if f.Blueprints[i].ID == blueprintID {
			if !f.blueprintVisible(blueprintID) {
				return nil, notFoundError("blueprint", blueprintID)
			}
			blueprint := f.Blueprints[i]
			return &blueprint, nil
		}
	}
	return nil, notFoundError("blueprint", blueprintID)
}

// CreateBlueprint implements directory.Service.
func (f *Fake) CreateBlueprint(ctx context.Context, request directory.BlueprintRequest) (*directory.Blueprint, error) {
	if err := f.record("CreateBlueprint"); err != nil {
		return nil, err
	}

	conflicted := f.takeConflict("CreateBlueprint")

	blueprint := directory.Blueprint{
		ID:             f.nextID("bp"),
		AppID:          f.nextID("app"),
		DisplayName:    request.DisplayName,
		PrincipalName:  request.PrincipalName,
		SignInAudience: request.SignInAudience,
	}
	f.Blueprints = append(f.Blueprints, blueprint)
	if f.BlueprintVisibleAfterReads > 0 {
		f.hiddenReads[blueprint.ID] = f.BlueprintVisibleAfterReads
	}

	if conflicted {
		return nil, conflictError("CreateBlueprint")
	}
	return &blueprint, nil
}

// SetInstancePermissions implements directory.Service.
func (f *Fake) SetInstancePermissions(ctx context.Context, blueprintID, resourceAppID string, scopes []string) error {
	if err := f.record("SetInstancePermissions"); err != nil {
		return err
	}

	replaced := false
	permissions := f.InstancePermissions[blueprintID]
	for i := range permissions {
		if permissions[i].ResourceAppID == resourceAppID {
			permissions[i].Scopes = append([]string(nil), scopes...)
			replaced = true
		}
	}
	if !replaced {
		permissions = append(permissions, directory.InstancePermission{
			ResourceAppID: resourceAppID,
			Scopes:        append([]string(nil), scopes...),
		})
	}
	f.InstancePermissions[blueprintID] = permissions
	return nil
}

// GetInstancePermissions implements directory.Service.
func (f *Fake) GetInstancePermissions(ctx context.Context, blueprintID string) ([]directory.InstancePermission, error) {
	if err := f.record("GetInstancePermissions"); err != nil {
		return nil, err
	}
	return append([]directory.InstancePermission(nil), f.InstancePermissions[blueprintID]...), nil
}

// FindServicePrincipalByAppID implements directory.Service.
func (f *Fake) FindServicePrincipalByAppID(ctx context.Context, appID string) (*directory.ServicePrincipal, bool, error) {
	if err := f.record("FindServicePrincipalByAppID"); err != nil {
		return nil, false, err
	}
	for i := range f.ServicePrincipals {
		if f.ServicePrincipals[i].AppID == appID {
			principal := f.ServicePrincipals[i]
			return &principal, true, nil
		}
	}
	return nil, false, nil
}

// CreateServicePrincipal implements directory.Service.
func (f *Fake) CreateServicePrincipal(ctx context.Context, appID string) (*directory.ServicePrincipal, error) {
	if err := f.record("CreateServicePrincipal"); err != nil {
		return nil, err
	}

	conflicted := f.takeConflict("CreateServicePrincipal")

	principal := directory.ServicePrincipal{
		ID:          f.nextID("sp"),
		AppID:       appID,
		DisplayName: "principal for " + appID,
	}
	f.ServicePrincipals = append(f.ServicePrincipals, principal)

	if conflicted {
		return nil, conflictError("CreateServicePrincipal")
	}
	return &principal, nil
}

// FindPermissionGrant implements directory.Service.
func (f *Fake) FindPermissionGrant(ctx context.Context, clientID, resourceID string) (*directory.PermissionGrant, bool, error) {
	if err := f.record("FindPermissionGrant"); err != nil {
		return nil, false, err
	}
	for i := range f.Grants {
		if f.Grants[i].ClientID == clientID && f.Grants[i].ResourceID == resourceID {
			grant := f.Grants[i]
			return &grant, true, nil
		}
	}
	return nil, false, nil
}

// CreatePermissionGrant implements directory.Service.
func (f *Fake) CreatePermissionGrant(ctx context.Context, grant directory.PermissionGrant) (*directory.PermissionGrant, error) {
	if err := f.record("CreatePermissionGrant"); err != nil {
		return nil, err
	}

	conflicted := f.takeConflict("CreatePermissionGrant")

	grant.ID = f.nextID("grant")
	f.Grants = append(f.Grants, grant)

	if conflicted {
		return nil, conflictError("CreatePermissionGrant")
	}
	return &grant, nil
}

// UpdatePermissionGrantScope implements directory.Service.
func (f *Fake) UpdatePermissionGrantScope(ctx context.Context, grantID, scope string) error {
	if err := f.record("UpdatePermissionGrantScope"); err != nil {
		return err
	}
	for i := range f.Grants {
		if f.Grants[i].ID == grantID {
			f.Grants[i].Scope = scope
			return nil
		}
	}
	return notFoundError("grant", grantID)
}

// ListFederatedCredentials implements directory.Service.
func (f *Fake) ListFederatedCredentials(ctx context.Context, blueprintID string) ([]directory.FederatedCredential, error) {
	if err := f.record("ListFederatedCredentials"); err != nil {
		return nil, err
	}
	return append([]directory.FederatedCredential(nil), f.Credentials[blueprintID]...), nil
}

// CreateFederatedCredential implements directory.Service.
func (f *Fake) CreateFederatedCredential(ctx context.Context, blueprintID string, credential directory.FederatedCredential) (*directory.FederatedCredential, error) {
	if err := f.record("CreateFederatedCredential"); err != nil {
		return nil, err
	}

	conflicted := f.takeConflict("CreateFederatedCredential")

	credential.ID = f.nextID("fc")
	f.Credentials[blueprintID] = append(f.Credentials[blueprintID], credential)

	if conflicted {
		return nil, conflictError("CreateFederatedCredential")
	}
	return &credential, nil
}

// CreateWorkloadCredential implements directory.Service.
func (f *Fake) CreateWorkloadCredential(ctx context.Context, appID string, credential directory.FederatedCredential) (*directory.FederatedCredential, error) {
	if err := f.record("CreateWorkloadCredential"); err != nil {
		return nil, err
	}

	for i := range f.Blueprints {
		if f.Blueprints[i].AppID == appID {
			credential.ID = f.nextID("fc")
			blueprintID := f.Blueprints[i].ID
			f.Credentials[blueprintID] = append(f.Credentials[blueprintID], credential)
			return &credential, nil
		}
	}
	return nil, notFoundError("blueprint with app id", appID)
}

// FindMessagingEndpoint implements directory.Service.
func (f *Fake) FindMessagingEndpoint(ctx context.Context, appID string) (*directory.MessagingEndpoint, bool, error) {
	if err := f.record("FindMessagingEndpoint"); err != nil {
		return nil, false, err
	}
	for i := range f.Endpoints {
		if f.Endpoints[i].AppID == appID {
			endpoint := f.Endpoints[i]
			return &endpoint, true, nil
		}
	}
	return nil, false, nil
}

// CreateMessagingEndpoint implements directory.Service.
func (f *Fake) CreateMessagingEndpoint(ctx context.Context, endpoint directory.MessagingEndpoint) (*directory.MessagingEndpoint, error) {
	if err := f.record("CreateMessagingEndpoint"); err != nil {
		return nil, err
	}

	conflicted := f.takeConflict("CreateMessagingEndpoint")

	endpoint.ID = f.nextID("ep")
	f.Endpoints = append(f.Endpoints, endpoint)

	if conflicted {
		return nil, conflictError("CreateMessagingEndpoint")
	}
	return &endpoint, nil
}
