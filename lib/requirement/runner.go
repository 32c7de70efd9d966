// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package requirement

import (
	"context"
	"log/slog"

	"github.com/cadreworks/cadre/lib/agentconfig"
)

// Runner executes an ordered list of checks and aggregates their
// results into a Report.
type Runner struct {
	checks []Check
	logger *slog.Logger
}

// NewRunner creates a runner over the given checks. Checks run in the
// order given, every time.
func NewRunner(logger *slog.Logger, checks ...Check) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{checks: checks, logger: logger}
}

// Run executes every check against the configuration. Checks are never
// short-circuited on failure: the operator gets the complete picture in
// one run. The only early exit is context cancellation.
func (r *Runner) Run(ctx context.Context, config *agentconfig.AgentConfig) (*Report, error) {
	report := &Report{OK: true}

	for _, check := range r.checks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := check.Run(ctx, config)
		record := CheckResult{
			Name:     check.Name(),
			Category: check.Category(),
			Status:   result.Status,
			Message:  result.Message,
			Guidance: result.Guidance,
			Details:  result.Details,
		}
		report.Checks = append(report.Checks, record)

		if result.Status == StatusFail {
			report.OK = false
		}

		r.logger.Debug("requirement check complete",
			"check", check.Name(),
			"status", result.Status,
		)
	}

	return report, nil
}
