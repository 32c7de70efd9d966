// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package envfile reads and writes key=value environment files.
//
// Cadre writes one such file per agent during project sync
// (<deployPath>/.cadre/agent.env) so the agent's runtime and its
// deployment tooling can pick up the provisioned identity without
// parsing JSON. The format is the common dotenv subset: one KEY=VALUE
// per line, "#" comments, blank lines ignored, no quoting or variable
// expansion.
package envfile

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Read parses a key=value file. Lines starting with "#" are comments.
// Empty lines are ignored. A line without "=" is a format error that
// names the offending line number.
func Read(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("line %d: expected KEY=VALUE, got %q", lineNumber, line)
		}
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}

	return values, nil
}

// Write writes values as a key=value file with a comment header, keys
// sorted for stable diffs. The file is created with mode 0600: agent
// env files carry identifiers rather than secrets, but they live inside
// project trees where a tighter mode costs nothing.
func Write(path, header string, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	if header != "" {
		for _, line := range strings.Split(header, "\n") {
			fmt.Fprintf(&builder, "# %s\n", line)
		}
	}
	for _, key := range keys {
		if strings.ContainsAny(key, "=\n") {
			return fmt.Errorf("invalid key %q: keys must not contain '=' or newlines", key)
		}
		if strings.Contains(values[key], "\n") {
			return fmt.Errorf("invalid value for %q: values must not contain newlines", key)
		}
		fmt.Fprintf(&builder, "%s=%s\n", key, values[key])
	}

	return os.WriteFile(path, []byte(builder.String()), 0600)
}
