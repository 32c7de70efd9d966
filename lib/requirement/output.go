// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package requirement

import (
	"fmt"
	"io"
	"strings"
)

// PrintChecklist writes the report as a human-readable checklist: one
// status row per check, guidance indented under anything that needs
// operator attention, and a one-line verdict at the end.
func PrintChecklist(w io.Writer, report *Report) {
	for _, check := range report.Checks {
		prefix := strings.ToUpper(string(check.Status))
		fmt.Fprintf(w, "[%-5s]  %-26s  %s\n", prefix, check.Name, check.Message)

		for _, detail := range check.Details {
			fmt.Fprintf(w, "         %-26s  - %s\n", "", detail)
		}
		if check.Guidance != "" && check.Status != StatusPass {
			fmt.Fprintf(w, "         %-26s  %s\n", "", check.Guidance)
		}
	}

	fmt.Fprintln(w)

	failures := report.Failures()
	warnings := report.Warnings()
	switch {
	case len(failures) > 0:
		fmt.Fprintf(w, "%d requirement check(s) failed. Fix them before running setup.\n", len(failures))
	case len(warnings) > 0:
		fmt.Fprintf(w, "All requirement checks passed (%d warning(s)).\n", len(warnings))
	default:
		fmt.Fprintln(w, "All requirement checks passed.")
	}
}
