// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package ensure implements the find-or-create step every Cadre
// provisioner is built on.
//
// Cloud directory writes are eventually consistent: a resource that a
// query just reported absent can still collide on creation because a
// parallel run (or the directory's own replication) got there first.
// The directory reports that collision as a conflict, and for an
// idempotent provisioner a conflict is proof the desired state already
// holds — so [Resource] treats it as success, not failure.
//
// The flow:
//
//  1. Find the resource by its natural identity key. Found means done,
//     with AlreadyExisted set and no write issued.
//  2. Otherwise create it.
//  3. A conflict from creation is success with AlreadyExisted set; the
//     resource is re-queried best-effort so the caller still learns the
//     winner's identifiers.
//  4. Any other creation error fails the step as-is. Retrying transient
//     failures is the transport's job, not this package's.
//  5. When a Fallback is configured, it is attempted exactly once after
//     a non-conflict creation failure. Some resource subtypes have a
//     documented alternate creation endpoint; this is an escalation to
//     that endpoint, not a backoff loop.
package ensure

import (
	"context"
	"errors"
	"fmt"
)

// Steps describes one idempotent ensure operation. Find, Create, and
// IsConflict are required; Fallback is optional.
type Steps[T any] struct {
	// Resource names what is being ensured ("blueprint", "permission
	// grant") for error messages.
	Resource string

	// Find queries for an existing resource by its natural identity
	// key. found=false with a nil error means the resource is absent
	// and creation should proceed.
	Find func(ctx context.Context) (value T, found bool, err error)

	// Create attempts to create the resource.
	Create func(ctx context.Context) (T, error)

	// IsConflict classifies a creation error as "the resource already
	// exists". For directory resources this is directory.IsConflict;
	// provider-CLI resources match on the CLI's error text.
	IsConflict func(error) bool

	// Fallback, when set, is attempted once after Create fails with a
	// non-conflict error. A conflict from the fallback is also treated
	// as success.
	Fallback func(ctx context.Context) (T, error)
}

// Outcome is the result of a successful ensure.
type Outcome[T any] struct {
	// Value is the existing or newly created resource. After a
	// conflict it is populated by re-running Find; if that re-query
	// also misses (the write has not propagated yet), Value is the
	// zero value and AlreadyExisted is still true.
	Value T

	// AlreadyExisted is true when the resource was found up front or
	// when creation conflicted with a concurrent creator.
	AlreadyExisted bool

	// UsedFallback is true when the resource was created through the
	// fallback endpoint.
	UsedFallback bool
}

// Resource runs one find-or-create step and reports how the desired
// state was reached. Rerunning with the same inputs against a fully
// provisioned system finds the resource up front and issues no writes.
func Resource[T any](ctx context.Context, steps Steps[T]) (Outcome[T], error) {
	var outcome Outcome[T]

	if steps.Find == nil || steps.Create == nil || steps.IsConflict == nil {
		return outcome, fmt.Errorf("ensure %s: Find, Create, and IsConflict are required", steps.Resource)
	}

	existing, found, err := steps.Find(ctx)
	if err != nil {
		return outcome, fmt.Errorf("%s: query existing: %w", steps.Resource, err)
	}
	if found {
		outcome.Value = existing
		outcome.AlreadyExisted = true
		return outcome, nil
	}

	created, createErr := steps.Create(ctx)
	if createErr == nil {
		outcome.Value = created
		return outcome, nil
	}
	if steps.IsConflict(createErr) {
		return conflictOutcome(ctx, steps, false), nil
	}

	if steps.Fallback == nil {
		return outcome, fmt.Errorf("%s: %w", steps.Resource, createErr)
	}

	fromFallback, fallbackErr := steps.Fallback(ctx)
	if fallbackErr == nil {
		outcome.Value = fromFallback
		outcome.UsedFallback = true
		return outcome, nil
	}
	if steps.IsConflict(fallbackErr) {
		return conflictOutcome(ctx, steps, true), nil
	}

	// Both endpoints refused. The primary error is the canonical
	// failure; the fallback error stays inspectable in the chain.
	return outcome, fmt.Errorf("%s: %w", steps.Resource, errors.Join(createErr, fallbackErr))
}

// conflictOutcome builds the conflict-as-success outcome, re-running
// Find so the caller learns the identifiers of whichever writer won.
// The re-query is best effort: right after a conflict the directory
// may still return an empty read, and that must not turn a successful
// ensure into a failure.
func conflictOutcome[T any](ctx context.Context, steps Steps[T], usedFallback bool) Outcome[T] {
	outcome := Outcome[T]{AlreadyExisted: true, UsedFallback: usedFallback}
	if value, found, err := steps.Find(ctx); err == nil && found {
		outcome.Value = value
	}
	return outcome
}
