// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "cadre",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "setup",
				Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
					called = "setup"
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"setup"}, testLogger()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "setup" {
		t.Errorf("dispatched to %q, want %q", called, "setup")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "cadre",
		Subcommands: []*Command{
			{
				Name: "team",
				Subcommands: []*Command{
					{
						Name: "validate",
						Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
							called = "team validate"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"team", "validate", "team.json"}, testLogger()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "team validate" {
		t.Errorf("dispatched to %q, want %q", called, "team validate")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "team.json" {
		t.Errorf("args = %v, want [team.json]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var configPath string
	var target string

	command := &Command{
		Name: "setup",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("setup", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "agent.json", "agent config path")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--config", "custom.json", "extra"}, testLogger()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if configPath != "custom.json" {
		t.Errorf("configPath = %q, want %q", configPath, "custom.json")
	}
	if target != "extra" {
		t.Errorf("target = %q, want %q", target, "extra")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "setup",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("setup", pflag.ContinueOnError)
			flagSet.Bool("dry-run", false, "print planned steps without executing")
			flagSet.String("config", "agent.json", "agent config path")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--dry-rnu"}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --dry-run") {
		t.Errorf("error = %q, want suggestion for '--dry-run'", errStr)
	}
	// Suggestion should be on the same line as the error, not buried.
	if !strings.Contains(errStr, "dry-rnu") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	// Should include a pointer to --help.
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "setup",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("setup", pflag.ContinueOnError)
			flagSet.Bool("dry-run", false, "print planned steps without executing")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--zzzzzzzzz"}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "cadre",
		Subcommands: []*Command{
			{Name: "setup"},
			{Name: "requirements"},
			{Name: "version"},
		},
	}

	err := root.Execute(context.Background(), []string{"setpu"}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"setup\"") {
		t.Errorf("error = %q, want suggestion for 'setup'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "cadre",
		Subcommands: []*Command{
			{Name: "setup"},
			{Name: "requirements"},
		},
	}

	err := root.Execute(context.Background(), []string{"zzzzzzz"}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "cadre",
				Summary: "Agent identity and hosting provisioner",
				Subcommands: []*Command{
					{Name: "setup", Summary: "Provision an agent"},
				},
			}

			err := root.Execute(context.Background(), []string{helpArg}, testLogger())
			if err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "cadre",
		Subcommands: []*Command{
			{Name: "setup", Summary: "Provision an agent"},
		},
	}

	err := root.Execute(context.Background(), []string{}, testLogger())
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "cadre",
		Description: "Cloud identity and hosting provisioner for agent workloads.",
		Subcommands: []*Command{
			{Name: "setup", Summary: "Provision identity, permissions, and hosting"},
			{Name: "requirements", Summary: "Check setup prerequisites"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{
				Description: "Provision a single agent",
				Command:     "cadre setup --config triage-agent.json",
			},
			{
				Description: "Provision a whole team",
				Command:     "cadre setup --team team.json",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	// Verify structural elements are present.
	for _, want := range []string{
		"Cloud identity and hosting provisioner for agent workloads.",
		"Usage:",
		"cadre <command> [flags]",
		"Commands:",
		"setup",
		"Provision identity, permissions, and hosting",
		"requirements",
		"Check setup prerequisites",
		"Examples:",
		"cadre setup --config triage-agent.json",
		"cadre setup --team team.json",
		"Run 'cadre <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "setup",
		Summary: "Provision identity, permissions, and hosting",
		Usage:   "cadre setup [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("setup", pflag.ContinueOnError)
			flagSet.String("config", "agent.json", "agent config path")
			flagSet.Bool("dry-run", false, "print planned steps without executing")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"cadre setup [flags]",
		"Flags:",
		"config",
		"dry-run",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "cadre"}
	team := &Command{Name: "team", parent: root}
	validate := &Command{Name: "validate", parent: team}

	if got := root.fullName(); got != "cadre" {
		t.Errorf("root.fullName() = %q, want %q", got, "cadre")
	}
	if got := team.fullName(); got != "cadre team" {
		t.Errorf("team.fullName() = %q, want %q", got, "cadre team")
	}
	if got := validate.fullName(); got != "cadre team validate" {
		t.Errorf("validate.fullName() = %q, want %q", got, "cadre team validate")
	}
}
