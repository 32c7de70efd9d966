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

// FindMessagingEndpoint looks up the messaging endpoint registration
// for an application. Returns found=false when none is registered.
func (c *Client) FindMessagingEndpoint(ctx context.Context, appID string) (*MessagingEndpoint, bool, error) {
	query := url.Values{"appId": []string{appID}}
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/messagingEndpoints", true, nil, query)
	if err != nil {
		return nil, false, fmt.Errorf("directory: messaging endpoint lookup failed: %w", err)
	}

	var result collection[MessagingEndpoint]
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, false, fmt.Errorf("directory: failed to parse messaging endpoint collection: %w", err)
	}
	if len(result.Value) == 0 {
		return nil, false, nil
	}
	return &result.Value[0], true, nil
}

// CreateMessagingEndpoint registers the HTTPS address where an agent
// receives platform messages. A duplicate registration for the same app
// surfaces as a *Error with status 409.
func (c *Client) CreateMessagingEndpoint(ctx context.Context, endpoint MessagingEndpoint) (*MessagingEndpoint, error) {
	if endpoint.AppID == "" || endpoint.Address == "" {
		return nil, fmt.Errorf("directory: app ID and address are required to register an endpoint")
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/v1/messagingEndpoints", true, endpoint)
	if err != nil {
		return nil, fmt.Errorf("directory: register messaging endpoint for %q failed: %w", endpoint.AppID, err)
	}

	var created MessagingEndpoint
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("directory: failed to parse messaging endpoint response: %w", err)
	}

	c.logger.Info("registered messaging endpoint",
		"app_id", created.AppID,
		"address", created.Address,
	)

	return &created, nil
}
