// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the cadre CLI.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a [pflag.FlagSet] factory, and a
// Run function. Commands are assembled into a tree in cmd/cadre/commands
// and dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing, and structured help output with examples.
//
// When a user types an unknown subcommand or flag, the framework computes
// Levenshtein edit distance against all known names and suggests the
// closest match (threshold: distance <= 3). This is implemented in
// suggest.go.
//
// Flag definitions usually come from a tagged params struct via
// [FlagsFromParams]; see params.go for the tag grammar. Commands that
// talk to the directory service embed [SettingsFlags], which layers
// command-line overrides over the settings file resolved from
// CADRE_SETTINGS.
//
// Errors returned by Run functions are classified with [ToolError]
// categories so scripted callers can distinguish bad input from
// transient failures, and [ExitError] carries a non-zero exit code for
// outcomes that are not errors (a failed requirements checklist, a
// partially failed team run).
package cli
