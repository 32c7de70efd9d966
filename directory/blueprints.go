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

// FindBlueprintByAppID looks up a blueprint by its client application
// ID. Returns found=false when the directory has no match; an empty
// collection is not an error.
func (c *Client) FindBlueprintByAppID(ctx context.Context, appID string) (*Blueprint, bool, error) {
	query := url.Values{"appId": []string{appID}}
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/blueprints", true, nil, query)
	if err != nil {
		return nil, false, fmt.Errorf("directory: blueprint lookup by app ID failed: %w", err)
	}

	var result collection[Blueprint]
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, false, fmt.Errorf("directory: failed to parse blueprint collection: %w", err)
	}
	if len(result.Value) == 0 {
		return nil, false, nil
	}
	return &result.Value[0], true, nil
}

// FindBlueprintByDisplayName looks up a blueprint by display name.
// Display names are not unique in the directory; the first match wins,
// which is why provisioning prefers app-ID lookup once an ID is known.
func (c *Client) FindBlueprintByDisplayName(ctx context.Context, displayName string) (*Blueprint, bool, error) {
	query := url.Values{"displayName": []string{displayName}}
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/blueprints", true, nil, query)
	if err != nil {
		return nil, false, fmt.Errorf("directory: blueprint lookup by display name failed: %w", err)
	}

	var result collection[Blueprint]
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, false, fmt.Errorf("directory: failed to parse blueprint collection: %w", err)
	}
	if len(result.Value) == 0 {
		return nil, false, nil
	}
	return &result.Value[0], true, nil
}

// GetBlueprint fetches a blueprint by directory object ID. A missing
// blueprint surfaces as a *Error with status 404.
func (c *Client) GetBlueprint(ctx context.Context, blueprintID string) (*Blueprint, error) {
	path := "/v1/blueprints/" + url.PathEscape(blueprintID)
	body, err := c.doRequest(ctx, http.MethodGet, path, true, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: get blueprint %q failed: %w", blueprintID, err)
	}

	var blueprint Blueprint
	if err := json.Unmarshal(body, &blueprint); err != nil {
		return nil, fmt.Errorf("directory: failed to parse blueprint response: %w", err)
	}
	return &blueprint, nil
}

// CreateBlueprint registers a new application blueprint. A duplicate
// registration surfaces as a *Error with status 409.
func (c *Client) CreateBlueprint(ctx context.Context, request BlueprintRequest) (*Blueprint, error) {
	if request.DisplayName == "" {
		return nil, fmt.Errorf("directory: display name is required to create a blueprint")
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/v1/blueprints", true, request)
	if err != nil {
		return nil, fmt.Errorf("directory: create blueprint %q failed: %w", request.DisplayName, err)
	}

	var blueprint Blueprint
	if err := json.Unmarshal(body, &blueprint); err != nil {
		return nil, fmt.Errorf("directory: failed to parse blueprint response: %w", err)
	}

	c.logger.Info("created blueprint",
		"display_name", blueprint.DisplayName,
		"app_id", blueprint.AppID,
		"blueprint_id", blueprint.ID,
	)

	return &blueprint, nil
}

// SetInstancePermissions configures the inheritable permission set for
// one resource on a blueprint. The scopes replace any existing set for
// that resource. A caller without directory-administration privileges
// receives a *Error with status 403.
func (c *Client) SetInstancePermissions(ctx context.Context, blueprintID, resourceAppID string, scopes []string) error {
	path := "/v1/blueprints/" + url.PathEscape(blueprintID) + "/instancePermissions/" + url.PathEscape(resourceAppID)
	payload := InstancePermission{ResourceAppID: resourceAppID, Scopes: scopes}
	if _, err := c.doRequest(ctx, http.MethodPut, path, true, payload); err != nil {
		return fmt.Errorf("directory: set instance permissions on %q failed: %w", blueprintID, err)
	}
	return nil
}

// GetInstancePermissions returns the inheritable permission sets
// configured on a blueprint.
func (c *Client) GetInstancePermissions(ctx context.Context, blueprintID string) ([]InstancePermission, error) {
	path := "/v1/blueprints/" + url.PathEscape(blueprintID) + "/instancePermissions"
	body, err := c.doRequest(ctx, http.MethodGet, path, true, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: get instance permissions of %q failed: %w", blueprintID, err)
	}

	var result collection[InstancePermission]
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("directory: failed to parse instance permission collection: %w", err)
	}
	return result.Value, nil
}
