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

// ListFederatedCredentials returns the federated credentials configured
// on a blueprint. A 404 on the collection (blueprint visible but
// sub-resource not yet materialized, which happens shortly after
// creation) is treated as an empty list, not an error.
func (c *Client) ListFederatedCredentials(ctx context.Context, blueprintID string) ([]FederatedCredential, error) {
	path := "/v1/blueprints/" + url.PathEscape(blueprintID) + "/federatedCredentials"
	body, err := c.doRequest(ctx, http.MethodGet, path, true, nil)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("directory: list federated credentials of %q failed: %w", blueprintID, err)
	}

	var result collection[FederatedCredential]
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("directory: failed to parse federated credential collection: %w", err)
	}
	return result.Value, nil
}

// CreateFederatedCredential adds a federated credential to a blueprint.
// A credential with the same (subject, issuer) pair surfaces as a
// *Error with status 409.
func (c *Client) CreateFederatedCredential(ctx context.Context, blueprintID string, credential FederatedCredential) (*FederatedCredential, error) {
	if credential.Issuer == "" || credential.Subject == "" {
		return nil, fmt.Errorf("directory: issuer and subject are required for a federated credential")
	}

	path := "/v1/blueprints/" + url.PathEscape(blueprintID) + "/federatedCredentials"
	body, err := c.doRequest(ctx, http.MethodPost, path, true, credential)
	if err != nil {
		return nil, fmt.Errorf("directory: create federated credential on %q failed: %w", blueprintID, err)
	}

	var created FederatedCredential
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("directory: failed to parse federated credential response: %w", err)
	}

	c.logger.Info("created federated credential",
		"blueprint_id", blueprintID,
		"name", created.Name,
		"subject", created.Subject,
	)

	return &created, nil
}

// CreateWorkloadCredential adds a federated credential through the
// workload credential endpoint, which addresses the blueprint by app ID
// instead of object ID. Used as the fallback when the blueprint-scoped
// endpoint rejects a freshly created blueprint that has not finished
// propagating.
func (c *Client) CreateWorkloadCredential(ctx context.Context, appID string, credential FederatedCredential) (*FederatedCredential, error) {
	if appID == "" {
		return nil, fmt.Errorf("directory: app ID is required for a workload credential")
	}

	payload := struct {
		AppID string `json:"appId"`
		FederatedCredential
	}{AppID: appID, FederatedCredential: credential}

	body, err := c.doRequest(ctx, http.MethodPost, "/v1/workloadCredentials", true, payload)
	if err != nil {
		return nil, fmt.Errorf("directory: create workload credential for %q failed: %w", appID, err)
	}

	var created FederatedCredential
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("directory: failed to parse workload credential response: %w", err)
	}

	c.logger.Info("created workload credential",
		"app_id", appID,
		"name", created.Name,
		"subject", created.Subject,
	)

	return &created, nil
}
