// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies pipeline errors into the closed set the
// orchestrators branch on. The classification is asymmetric on
// purpose: an agent without a blueprint is not provisioned at all,
// while an agent missing a permission grant is provisioned but
// degraded, which an operator can finish by rerunning setup.
type ErrorKind string

const (
	// KindFatal stops the agent's pipeline: failed requirement checks
	// or a blueprint that could not be ensured. Nothing downstream can
	// succeed without the identity.
	KindFatal ErrorKind = "fatal_setup"

	// KindAdvisory is recorded on the result without stopping the
	// pipeline: permission grants, federated credentials, endpoint
	// registration, infrastructure. Reruns converge the missing piece.
	KindAdvisory ErrorKind = "advisory_permission"

	// KindValidation is a structural configuration problem found
	// before any provisioning starts. Details carries the full list.
	KindValidation ErrorKind = "validation"

	// KindIntegrity is a configuration-integrity failure: an external
	// call succeeded but the follow-on state it implies is missing,
	// such as a persisted blueprint ID that a re-read does not
	// observe. Continuing would provision against identifiers the
	// next run cannot see, so it is fatal.
	KindIntegrity ErrorKind = "configuration_integrity"
)

// Error is a classified pipeline error.
type Error struct {
	Kind ErrorKind

	// Code is a stable machine-readable identifier for the failure
	// site ("blueprint_failed", "requirements_failed").
	Code string

	// Guidance tells the operator how to fix it, when there is a
	// better answer than "rerun setup".
	Guidance string

	// Details itemizes findings for validation errors.
	Details []string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", e.Code)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Details) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Details, "; "))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// WithGuidance attaches operator remediation text.
func (e *Error) WithGuidance(guidance string) *Error {
	e.Guidance = guidance
	return e
}

// Fatal wraps err as a pipeline-stopping failure.
func Fatal(code string, err error) *Error {
	return &Error{Kind: KindFatal, Code: code, Err: err}
}

// Advisory wraps err as a recorded-but-nonfatal failure.
func Advisory(code string, err error) *Error {
	return &Error{Kind: KindAdvisory, Code: code, Err: err}
}

// Integrity wraps err as a configuration-integrity failure.
func Integrity(code string, err error) *Error {
	return &Error{Kind: KindIntegrity, Code: code, Err: err}
}

// Validation builds a structural-configuration failure carrying the
// full problem list.
func Validation(code string, problems []string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    code,
		Details: append([]string(nil), problems...),
		Err:     fmt.Errorf("%d problem(s) found", len(problems)),
	}
}

// KindOf returns err's classification, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}

// GuidanceOf returns the operator guidance attached to err, if any.
func GuidanceOf(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Guidance
	}
	return ""
}
