// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package requirement implements the pre-provisioning checklist that
// runs before any setup step touches external state.
//
// A [Check] is a read-only probe: it inspects the environment (provider
// CLI, directory service, agent configuration) and reports a [Result],
// never mutating anything. Checks run in a fixed registration order for
// deterministic output, but are independent of each other.
//
// The tri-state outcome model matters for pipeline control flow: a
// failing check blocks provisioning, a warning does not. Checks that
// cannot be verified programmatically (tenant enrollment in the hosting
// program) must warn rather than fail, so they never block an operator
// who is actually enrolled.
package requirement

import (
	"context"

	"github.com/cadreworks/cadre/lib/agentconfig"
)

// Status is the outcome of a single requirement check.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Result is the outcome a check returns: a status, a human-readable
// message, and for non-passing outcomes the remediation guidance an
// operator needs to unblock themselves.
type Result struct {
	Status  Status
	Message string

	// Guidance tells the operator how to fix a failure or act on a
	// warning. Empty for passing results.
	Guidance string

	// Details itemizes a compound result, one line per finding (e.g.,
	// each malformed identifier field).
	Details []string
}

// Pass creates a passing result.
func Pass(message string) Result {
	return Result{Status: StatusPass, Message: message}
}

// Warn creates a warning result. Warnings never block provisioning.
func Warn(message, guidance string) Result {
	return Result{Status: StatusWarn, Message: message, Guidance: guidance}
}

// Fail creates a failing result. Any failing check blocks the whole
// pipeline before the first provisioning step.
func Fail(message, guidance string) Result {
	return Result{Status: StatusFail, Message: message, Guidance: guidance}
}

// Skip creates a skipped result, for checks that do not apply to the
// given configuration (e.g., hosting plan checks for an externally
// hosted agent).
func Skip(message string) Result {
	return Result{Status: StatusSkip, Message: message}
}

// WithDetails attaches itemized findings to the result.
func (r Result) WithDetails(details ...string) Result {
	r.Details = append(r.Details, details...)
	return r
}

// Check is a single read-only requirement probe.
type Check interface {
	// Name is the stable machine-readable check name (e.g.,
	// "directory-token").
	Name() string

	// Category groups related checks in output (e.g., "tooling",
	// "configuration").
	Category() string

	// Description explains what the check verifies, for help output.
	Description() string

	// Run probes the environment and reports the outcome. Run must not
	// mutate configuration or external state.
	Run(ctx context.Context, config *agentconfig.AgentConfig) Result
}

// CheckResult is one row of a checklist report: the check's identity
// stamped onto its result.
type CheckResult struct {
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Status   Status   `json:"status"`
	Message  string   `json:"message"`
	Guidance string   `json:"guidance,omitempty"`
	Details  []string `json:"details,omitempty"`
}

// Report is the outcome of a full checklist run.
type Report struct {
	Checks []CheckResult `json:"checks"`

	// OK is true when no check failed. Warnings and skips do not
	// affect it.
	OK bool `json:"ok"`
}

// Failures returns the failing check results.
func (r *Report) Failures() []CheckResult {
	var failures []CheckResult
	for _, check := range r.Checks {
		if check.Status == StatusFail {
			failures = append(failures, check)
		}
	}
	return failures
}

// Warnings returns the warning check results.
func (r *Report) Warnings() []CheckResult {
	var warnings []CheckResult
	for _, check := range r.Checks {
		if check.Status == StatusWarn {
			warnings = append(warnings, check)
		}
	}
	return warnings
}
