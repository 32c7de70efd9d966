// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"log/slog"

	"github.com/cadreworks/cadre/directory"
	"github.com/cadreworks/cadre/lib/cloudcli"
	"github.com/cadreworks/cadre/lib/requirement"
	"github.com/cadreworks/cadre/lib/settings"
)

// Connection bundles the live collaborators a provisioning command
// needs: the provider CLI runner, the authenticated directory client,
// and the standard requirement checklist wired to both.
type Connection struct {
	Runner    cloudcli.Runner
	Directory *directory.Client
	Checks    []requirement.Check
}

// Connect builds a provider-CLI-backed directory client and the
// standard requirement checks from resolved settings. Nothing talks to
// the network here; the first authenticated request triggers token
// acquisition through the provider CLI.
func Connect(resolved *settings.Settings, logger *slog.Logger) (*Connection, error) {
	if err := resolved.Validate(); err != nil {
		return nil, err
	}

	runner := cloudcli.ExecRunner{}
	tokens, err := cloudcli.NewTokenSource(cloudcli.TokenSourceConfig{
		Runner:   runner,
		CLI:      resolved.Provider.CLI,
		Resource: resolved.TokenResource(),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("token source: %w", err)
	}

	client, err := directory.NewClient(directory.ClientConfig{
		BaseURL: resolved.Directory.BaseURL,
		Tokens:  tokens,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("directory client: %w", err)
	}

	return &Connection{
		Runner:    runner,
		Directory: client,
		Checks: requirement.StandardChecks(requirement.StandardChecksConfig{
			Runner:      runner,
			ProviderCLI: resolved.Provider.CLI,
			Directory:   client,
		}),
	}, nil
}

// Close releases pooled HTTP connections. Safe to call on a nil
// receiver so commands can defer it unconditionally.
func (c *Connection) Close() {
	if c == nil || c.Directory == nil {
		return
	}
	c.Directory.CloseIdleConnections()
}
