// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// FindPermissionGrant looks up the delegated grant from a client
// service principal to a resource service principal. The directory
// keeps at most one grant per (client, resource) pair.
func (c *Client) FindPermissionGrant(ctx context.Context, clientID, resourceID string) (*PermissionGrant, bool, error) {
	query := url.Values{
		"clientId":   []string{clientID},
		"resourceId": []string{resourceID},
	}
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/permissionGrants", true, nil, query)
	if err != nil {
		return nil, false, fmt.Errorf("directory: permission grant lookup failed: %w", err)
	}

	var result collection[PermissionGrant]
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, false, fmt.Errorf("directory: failed to parse permission grant collection: %w", err)
	}
	if len(result.Value) == 0 {
		return nil, false, nil
	}
	return &result.Value[0], true, nil
}

// CreatePermissionGrant creates a delegated grant with the full scope
// string. A concurrent duplicate surfaces as a *Error with status 409.
func (c *Client) CreatePermissionGrant(ctx context.Context, grant PermissionGrant) (*PermissionGrant, error) {
	if grant.ClientID == "" || grant.ResourceID == "" {
		return nil, fmt.Errorf("directory: client and resource IDs are required to create a grant")
	}
	if grant.ConsentType == "" {
		grant.ConsentType = "AllPrincipals"
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/v1/permissionGrants", true, grant)
	if err != nil {
		return nil, fmt.Errorf("directory: create permission grant failed: %w", err)
	}

	var created PermissionGrant
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("directory: failed to parse permission grant response: %w", err)
	}

	c.logger.Info("created permission grant",
		"client_id", created.ClientID,
		"resource_id", created.ResourceID,
		"scope", created.Scope,
	)

	return &created, nil
}

// UpdatePermissionGrantScope replaces the scope string of an existing
// grant. The directory treats the new string as the complete scope set;
// scopes missing from it are revoked.
func (c *Client) UpdatePermissionGrantScope(ctx context.Context, grantID, scope string) error {
	path := "/v1/permissionGrants/" + url.PathEscape(grantID)
	payload := struct {
		Scope string `json:"scope"`
	}{Scope: scope}

	if _, err := c.doRequest(ctx, http.MethodPatch, path, true, payload); err != nil {
		return fmt.Errorf("directory: update permission grant %q failed: %w", grantID, err)
	}

	c.logger.Info("replaced permission grant scope",
		"grant_id", grantID,
		"scope", scope,
	)
	return nil
}
