// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package settings provides tool-level configuration for the cadre CLI.
//
// Settings are loaded from a single YAML file specified by:
//   - CADRE_SETTINGS environment variable, or
//   - --settings flag passed to the command
//
// When neither is set, built-in development defaults apply. Unlike agent
// and team config records (which describe what to provision), settings
// describe how to reach the cloud: directory service URL, provider CLI
// binary, well-known resource application IDs.
//
// The settings file may contain environment-specific sections
// (development, staging, production) that override base values when the
// environment matches.
package settings

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Well-known application IDs of platform services that agent blueprints
// are granted access to. Overridable in the settings file for sovereign
// or emulated clouds.
const (
	// DefaultToolPlatformAppID identifies the shared tool platform API.
	DefaultToolPlatformAppID = "a6c6f1d0-3e7a-44e5-9d42-6a9f0c2b7b68"

	// DefaultMessagingAppID identifies the agent messaging API.
	DefaultMessagingAppID = "1fd3b2a4-8c0e-4b9a-b6d7-3f2e9c5a1d20"
)

// Settings is the master configuration for the cadre CLI.
type Settings struct {
	// Environment identifies the deployment type (development, staging,
	// production).
	Environment Environment `yaml:"environment"`

	// Directory configures the cloud directory service connection.
	Directory DirectorySettings `yaml:"directory"`

	// Provider configures the cloud provider CLI used for token
	// acquisition and infrastructure provisioning.
	Provider ProviderSettings `yaml:"provider"`

	// Resources configures well-known platform resource identities.
	Resources ResourceSettings `yaml:"resources"`

	// Per-environment overrides, applied after the base settings load.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains fields that can be overridden per environment.
type Overrides struct {
	Directory *DirectorySettings `yaml:"directory,omitempty"`
	Provider  *ProviderSettings  `yaml:"provider,omitempty"`
	Resources *ResourceSettings  `yaml:"resources,omitempty"`
}

// DirectorySettings configures the cloud directory service connection.
type DirectorySettings struct {
	// BaseURL is the directory service endpoint.
	// Default: http://localhost:7200 (development emulator)
	BaseURL string `yaml:"base_url"`

	// TokenResource is the resource identifier passed to the provider
	// CLI when acquiring an access token. Defaults to BaseURL.
	TokenResource string `yaml:"token_resource"`
}

// ProviderSettings configures the cloud provider CLI.
type ProviderSettings struct {
	// CLI is the provider CLI binary name or path.
	// Default: cloud
	CLI string `yaml:"cli"`
}

// ResourceSettings configures well-known platform resource identities
// and hosting conventions.
type ResourceSettings struct {
	// ToolPlatformAppID is the application ID of the shared tool
	// platform API that agents call through delegated grants.
	ToolPlatformAppID string `yaml:"tool_platform_app_id"`

	// MessagingAppID is the application ID of the agent messaging API.
	MessagingAppID string `yaml:"messaging_app_id"`

	// EndpointSuffix is the DNS suffix under which hosted agent
	// endpoints are published (https://<plan>-<agent>.<region>.<suffix>).
	EndpointSuffix string `yaml:"endpoint_suffix"`
}

// Default returns the built-in development defaults. These make the CLI
// usable on a fresh workstation against a local directory emulator;
// real deployments point CADRE_SETTINGS at an explicit file.
func Default() *Settings {
	return &Settings{
		Environment: Development,
		Directory: DirectorySettings{
			BaseURL: "http://localhost:7200",
		},
		Provider: ProviderSettings{
			CLI: "cloud",
		},
		Resources: ResourceSettings{
			ToolPlatformAppID: DefaultToolPlatformAppID,
			MessagingAppID:    DefaultMessagingAppID,
			EndpointSuffix:    "agentsvc.net",
		},
	}
}

// Load loads settings from the CADRE_SETTINGS environment variable, or
// returns [Default] when it is unset. Commands pass an explicit path
// from --settings through [LoadFile] instead.
func Load() (*Settings, error) {
	path := os.Getenv("CADRE_SETTINGS")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads settings from a specific file path, layered over the
// defaults. The file is the single source of truth; environment
// variables do not override individual values.
func LoadFile(path string) (*Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}

	s.applyEnvironmentOverrides()

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (s *Settings) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch s.Environment {
	case Development:
		overrides = s.Development
	case Staging:
		overrides = s.Staging
	case Production:
		overrides = s.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Directory != nil {
		if overrides.Directory.BaseURL != "" {
			s.Directory.BaseURL = overrides.Directory.BaseURL
		}
		if overrides.Directory.TokenResource != "" {
			s.Directory.TokenResource = overrides.Directory.TokenResource
		}
	}

	if overrides.Provider != nil {
		if overrides.Provider.CLI != "" {
			s.Provider.CLI = overrides.Provider.CLI
		}
	}

	if overrides.Resources != nil {
		if overrides.Resources.ToolPlatformAppID != "" {
			s.Resources.ToolPlatformAppID = overrides.Resources.ToolPlatformAppID
		}
		if overrides.Resources.MessagingAppID != "" {
			s.Resources.MessagingAppID = overrides.Resources.MessagingAppID
		}
		if overrides.Resources.EndpointSuffix != "" {
			s.Resources.EndpointSuffix = overrides.Resources.EndpointSuffix
		}
	}
}

// TokenResource returns the resource identifier for access token
// acquisition, falling back to the directory base URL.
func (s *Settings) TokenResource() string {
	if s.Directory.TokenResource != "" {
		return s.Directory.TokenResource
	}
	return s.Directory.BaseURL
}

// Validate checks the settings for errors.
func (s *Settings) Validate() error {
	var errs []error

	if s.Environment != Development && s.Environment != Staging && s.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", s.Environment))
	}

	if s.Directory.BaseURL == "" {
		errs = append(errs, fmt.Errorf("directory.base_url is required"))
	} else if _, err := url.Parse(s.Directory.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("directory.base_url: %w", err))
	}

	if s.Provider.CLI == "" {
		errs = append(errs, fmt.Errorf("provider.cli is required"))
	}

	if s.Resources.ToolPlatformAppID == "" {
		errs = append(errs, fmt.Errorf("resources.tool_platform_app_id is required"))
	}
	if s.Resources.MessagingAppID == "" {
		errs = append(errs, fmt.Errorf("resources.messaging_app_id is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
