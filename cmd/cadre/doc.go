// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Cadre is the CLI for provisioning cloud-hosted AI agents. It
// provides subcommands for preflight environment checks
// (requirements), end-to-end provisioning of single agents and teams
// (setup), team file validation (team validate), and deployment
// archive builds (package).
package main
