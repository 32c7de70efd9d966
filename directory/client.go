// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/cadreworks/cadre/lib/netutil"
)

// TokenSource supplies bearer tokens for directory requests. The
// provider-CLI-backed implementation lives in lib/cloudcli; tests use
// [StaticToken].
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token returns the static token.
func (s StaticToken) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the base URL of the directory service
	// (e.g., "http://localhost:7200").
	BaseURL string
	// Tokens supplies bearer tokens for authenticated endpoints.
	// Required for everything except Metadata.
	Tokens TokenSource
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client talks to the cloud directory service. It is safe for use from
// a single goroutine per operation; the setup pipeline is sequential.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a directory client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("directory: BaseURL is required")
	}

	// Validate the URL structure. We store the string form (with trailing
	// slash stripped) and build request URLs by direct concatenation. This
	// avoids double-encoding issues with Go's url.URL.String(), which
	// re-encodes Path even when RawPath is set if it doesn't consider
	// RawPath a valid encoding of Path.
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("directory: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		tokens:     config.Tokens,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a network disruption to
// force subsequent requests to establish fresh TCP connections instead
// of reusing a poisoned pooled connection.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Metadata returns the directory service descriptor. This is an
// unauthenticated endpoint, useful for checking whether the service is
// reachable and which API versions it supports.
func (c *Client) Metadata(ctx context.Context) (*Metadata, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/metadata", false, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: metadata request failed: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("directory: failed to parse metadata response: %w", err)
	}
	return &metadata, nil
}

// Me returns the authenticated caller's identity. Used by requirement
// checks to verify that the token source produces a usable token.
func (c *Client) Me(ctx context.Context) (*Principal, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/me", true, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: whoami failed: %w", err)
	}

	var principal Principal
	if err := json.Unmarshal(body, &principal); err != nil {
		return nil, fmt.Errorf("directory: failed to parse whoami response: %w", err)
	}
	return &principal, nil
}

// errorEnvelope is the wire shape of directory error responses.
type errorEnvelope struct {
	Error Error `json:"error"`
}

// doRequest performs an HTTP request against the directory service and
// returns the response body. On 2xx, returns the body. On 4xx/5xx,
// returns the body alongside a *Error. authenticated=false skips token
// acquisition for the few public endpoints.
// query may be nil for endpoints without query parameters.
func (c *Client) doRequest(ctx context.Context, method, path string, authenticated bool, requestBody any, query ...url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 && query[0] != nil {
		requestURL += "?" + query[0].Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("directory: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("directory: failed to create request: %w", err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		if c.tokens == nil {
			return nil, fmt.Errorf("directory: no token source configured for %s %s", method, path)
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("directory: acquiring access token: %w", err)
		}
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("directory: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("directory: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All directory error responses use the same envelope shape.
	var envelope errorEnvelope
	if jsonErr := json.Unmarshal(responseBody, &envelope); jsonErr != nil || envelope.Error.Code == "" {
		// Server returned non-JSON or unstructured error. Keep the
		// status code machine-readable so status-class helpers still
		// work, and carry the raw body in the message.
		return responseBody, &Error{
			Code:       ErrCodeUnknown,
			Message:    string(responseBody),
			StatusCode: response.StatusCode,
		}
	}
	dirErr := envelope.Error
	dirErr.StatusCode = response.StatusCode

	return responseBody, &dirErr
}
