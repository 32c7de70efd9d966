// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package cloudcli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// expiryMargin is subtracted from a token's expiry when deciding whether
// the cached token is still usable. A token about to expire mid-request
// is worse than a fresh fetch.
const expiryMargin = 2 * time.Minute

// accessTokenResponse is the JSON the provider CLI prints for
// "account get-access-token".
type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresOn   string `json:"expiresOn"`
}

// TokenSource acquires directory access tokens by shelling out to the
// provider CLI ("<cli> account get-access-token --resource <resource>").
// Tokens are cached until shortly before their expiry, so a full
// provisioning run performs one CLI invocation rather than one per
// request.
type TokenSource struct {
	runner   Runner
	cli      string
	resource string
	logger   *slog.Logger

	// now is replaceable for expiry tests.
	now func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// TokenSourceConfig holds configuration for creating a TokenSource.
type TokenSourceConfig struct {
	// Runner executes the provider CLI. Required.
	Runner Runner
	// CLI is the provider CLI binary name (e.g., "cloud").
	CLI string
	// Resource is the token audience, usually the directory base URL.
	Resource string
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// NewTokenSource creates a provider-CLI-backed token source.
func NewTokenSource(config TokenSourceConfig) (*TokenSource, error) {
	if config.Runner == nil {
		return nil, fmt.Errorf("cloudcli: Runner is required")
	}
	if config.CLI == "" {
		return nil, fmt.Errorf("cloudcli: CLI is required")
	}
	if config.Resource == "" {
		return nil, fmt.Errorf("cloudcli: Resource is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TokenSource{
		runner:   config.Runner,
		cli:      config.CLI,
		resource: config.Resource,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Token returns a directory access token, fetching a fresh one through
// the provider CLI when none is cached or the cached token is within
// the expiry margin.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiry.Add(-expiryMargin)) {
		return s.token, nil
	}

	args := []string{"account", "get-access-token", "--resource", s.resource, "--output", "json"}
	output, err := s.runner.Run(ctx, s.cli, args...)
	if err != nil {
		return "", fmt.Errorf("cloudcli: token acquisition failed: %w", err)
	}
	if output.ExitCode != 0 {
		return "", fmt.Errorf("cloudcli: token acquisition failed: %w", CommandError(s.cli, args, output))
	}

	var response accessTokenResponse
	if err := json.Unmarshal([]byte(output.Stdout), &response); err != nil {
		return "", fmt.Errorf("cloudcli: failed to parse get-access-token output: %w", err)
	}
	if response.AccessToken == "" {
		return "", fmt.Errorf("cloudcli: get-access-token returned no accessToken")
	}

	s.token = response.AccessToken
	s.expiry = parseExpiry(response.ExpiresOn, s.now())
	s.logger.Debug("acquired directory access token",
		"resource", s.resource, "expires", s.expiry)

	return s.token, nil
}

// parseExpiry parses the CLI's expiresOn field. The provider CLI has
// emitted two formats over its releases: RFC 3339, and a local-time
// "2006-01-02 15:04:05" form without zone. An unparseable or missing
// value yields now (the token is used once and refetched next call).
func parseExpiry(value string, now time.Time) time.Time {
	if value == "" {
		return now
	}
	if expiry, err := time.Parse(time.RFC3339, value); err == nil {
		return expiry
	}
	if expiry, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.Local); err == nil {
		return expiry
	}
	return now
}
