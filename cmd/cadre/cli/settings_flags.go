// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/cadreworks/cadre/lib/settings"
)

// SettingsFlags holds the shared flags for resolving tool settings. Used
// by CLI commands that talk to the directory service or the provider CLI
// (setup, requirements, team validate).
//
// Resolution order: --settings path if given, else the CADRE_SETTINGS
// environment variable, else built-in development defaults. The
// --directory-url and --provider-cli flags override the resolved file
// values for one invocation.
//
// Usage pattern:
//
//	type setupParams struct {
//	    cli.SettingsFlags
//	    Config string `flag:"config" desc:"agent config path"`
//	}
//
//	// In Run:
//	cfg, err := params.ResolveSettings()
type SettingsFlags struct {
	SettingsPath string
	DirectoryURL string
	ProviderCLI  string
}

// AddFlags registers --settings, --directory-url, and --provider-cli on
// the given flag set. Satisfies [FlagBinder], so embedding SettingsFlags
// in a params struct wires these flags automatically.
func (s *SettingsFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&s.SettingsPath, "settings", "", "path to cadre settings file (overrides CADRE_SETTINGS)")
	flagSet.StringVar(&s.DirectoryURL, "directory-url", "", "directory service base URL (overrides settings)")
	flagSet.StringVar(&s.ProviderCLI, "provider-cli", "", "cloud provider CLI binary (overrides settings)")
}

// ResolveSettings loads the settings file and applies any flag overrides.
func (s *SettingsFlags) ResolveSettings() (*settings.Settings, error) {
	var resolved *settings.Settings
	var err error

	if s.SettingsPath != "" {
		resolved, err = settings.LoadFile(s.SettingsPath)
	} else {
		resolved, err = settings.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if s.DirectoryURL != "" {
		resolved.Directory.BaseURL = s.DirectoryURL
	}
	if s.ProviderCLI != "" {
		resolved.Provider.CLI = s.ProviderCLI
	}

	return resolved, nil
}
