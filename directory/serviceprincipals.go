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

// FindServicePrincipalByAppID looks up the tenant-local service
// principal for an application. Returns found=false when the
// application has not been instantiated in this tenant yet.
func (c *Client) FindServicePrincipalByAppID(ctx context.Context, appID string) (*ServicePrincipal, bool, error) {
	query := url.Values{"appId": []string{appID}}
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/servicePrincipals", true, nil, query)
	if err != nil {
		return nil, false, fmt.Errorf("directory: service principal lookup failed: %w", err)
	}

	var result collection[ServicePrincipal]
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, false, fmt.Errorf("directory: failed to parse service principal collection: %w", err)
	}
	if len(result.Value) == 0 {
		return nil, false, nil
	}
	return &result.Value[0], true, nil
}

// CreateServicePrincipal instantiates an application in the tenant. A
// duplicate instantiation surfaces as a *Error with status 409.
func (c *Client) CreateServicePrincipal(ctx context.Context, appID string) (*ServicePrincipal, error) {
	if appID == "" {
		return nil, fmt.Errorf("directory: app ID is required to create a service principal")
	}

	payload := struct {
		AppID string `json:"appId"`
	}{AppID: appID}

	body, err := c.doRequest(ctx, http.MethodPost, "/v1/servicePrincipals", true, payload)
	if err != nil {
		return nil, fmt.Errorf("directory: create service principal for %q failed: %w", appID, err)
	}

	var principal ServicePrincipal
	if err := json.Unmarshal(body, &principal); err != nil {
		return nil, fmt.Errorf("directory: failed to parse service principal response: %w", err)
	}

	c.logger.Info("created service principal",
		"app_id", principal.AppID,
		"principal_id", principal.ID,
	)

	return &principal, nil
}
