// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package cloudcli runs the cloud provider's command-line tool and
// exposes the pieces of it Cadre needs: raw command execution with
// captured output, and access-token acquisition for the directory
// service.
//
// The provider CLI binary name comes from settings (default "cloud").
// All execution goes through the [Runner] interface so provisioning
// code and the token source can be tested against a fake without a
// provider CLI installed.
package cloudcli

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Output holds the result of one CLI invocation. A non-zero exit code
// is not an error from Run: callers decide whether a given exit code is
// a failure for their operation.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes a command and returns its captured output. The
// production implementation is [ExecRunner]; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Output, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// Run executes the named binary with the given arguments, capturing
// stdout and stderr. It returns an error only when the process could
// not be started (binary missing, context cancelled); a started process
// that exits non-zero is reported through Output.ExitCode.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (*Output, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, name, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	err := command.Run()
	output := &Output{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			output.ExitCode = exitErr.ExitCode()
			return output, nil
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}

	return output, nil
}

// CommandError formats a failed CLI invocation for error messages,
// preferring stderr (where provider CLIs write their diagnostics) over
// the bare exit code.
func CommandError(name string, args []string, output *Output) error {
	commandString := name + " " + strings.Join(args, " ")
	stderrText := strings.TrimSpace(output.Stderr)
	if stderrText != "" {
		return fmt.Errorf("%s: exit %d: %s", commandString, output.ExitCode, stderrText)
	}
	return fmt.Errorf("%s: exit %d", commandString, output.ExitCode)
}
