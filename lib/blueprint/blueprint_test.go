// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package blueprint

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cadreworks/cadre/directory"
	"github.com/cadreworks/cadre/directory/directorytest"
	"github.com/cadreworks/cadre/lib/agentconfig"
)

func testProvisioner(fake *directorytest.Fake) *Provisioner {
	return &Provisioner{
		Directory:    fake,
		PollInterval: time.Millisecond,
		PollTimeout:  50 * time.Millisecond,
	}
}

func testConfig() *agentconfig.AgentConfig {
	return &agentconfig.AgentConfig{
		DisplayName:       "Research Agent",
		UserPrincipalName: "research@contoso.example",
	}
}

func TestEnsureCreatesWhenMissing(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	outcome, err := testProvisioner(fake).Ensure(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if outcome.AlreadyExisted {
		t.Error("AlreadyExisted = true for a fresh create")
	}
	if outcome.Blueprint.ID == "" || outcome.Blueprint.AppID == "" {
		t.Errorf("blueprint identifiers not populated: %+v", outcome.Blueprint)
	}
	if outcome.Blueprint.SignInAudience != SignInAudience {
		t.Errorf("SignInAudience = %q, want %q", outcome.Blueprint.SignInAudience, SignInAudience)
	}
	if fake.Calls["CreateBlueprint"] != 1 {
		t.Errorf("CreateBlueprint called %d times, want 1", fake.Calls["CreateBlueprint"])
	}
}

func TestEnsureFindsByAppID(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	fake.Blueprints = append(fake.Blueprints, directory.Blueprint{
		ID:          "bp-existing",
		AppID:       "app-existing",
		DisplayName: "Old Name",
	})

	config := testConfig()
	config.AppID = "app-existing"

	outcome, err := testProvisioner(fake).Ensure(context.Background(), config)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !outcome.AlreadyExisted {
		t.Error("AlreadyExisted = false for a pre-existing blueprint")
	}
	if outcome.Blueprint.ID != "bp-existing" {
		t.Errorf("Blueprint.ID = %q, want bp-existing", outcome.Blueprint.ID)
	}
	if fake.MutatingCalls() != 0 {
		t.Errorf("made %d mutating calls, want 0", fake.MutatingCalls())
	}
	// A config with an app ID must never fall back to the display-name
	// lookup: display names are not unique.
	if fake.Calls["FindBlueprintByDisplayName"] != 0 {
		t.Error("looked up by display name despite a configured app ID")
	}
}

func TestEnsureConflictIsSuccess(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	fake.ConflictNext("CreateBlueprint")

	outcome, err := testProvisioner(fake).Ensure(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Ensure after conflict: %v", err)
	}
	if !outcome.AlreadyExisted {
		t.Error("AlreadyExisted = false after a creation conflict")
	}
	if outcome.Blueprint == nil || outcome.Blueprint.ID == "" {
		t.Fatalf("conflict recovery did not resolve the winner: %+v", outcome.Blueprint)
	}
}

func TestEnsurePollsUntilVisible(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	fake.BlueprintVisibleAfterReads = 3

	outcome, err := testProvisioner(fake).Ensure(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Ensure with lagging reads: %v", err)
	}
	if outcome.Blueprint.ID == "" {
		t.Error("blueprint ID empty after visibility poll")
	}
	// One up-front miss plus at least three hidden reads.
	if fake.Calls["FindBlueprintByAppID"] < 3 {
		t.Errorf("FindBlueprintByAppID called %d times, want at least 3", fake.Calls["FindBlueprintByAppID"])
	}
}

func TestEnsureVisibilityTimeout(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	fake.BlueprintVisibleAfterReads = 1000 // never catches up within the test bounds

	_, err := testProvisioner(fake).Ensure(context.Background(), testConfig())
	if err == nil {
		t.Fatal("Ensure succeeded despite the blueprint never becoming visible")
	}
	if !strings.Contains(err.Error(), "not visible") {
		t.Errorf("error %q does not mention visibility", err)
	}
}

func TestEnsureCreateFailure(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	fake.ForceStatus("CreateBlueprint", http.StatusBadRequest)

	_, err := testProvisioner(fake).Ensure(context.Background(), testConfig())
	if err == nil {
		t.Fatal("Ensure succeeded despite creation failing")
	}
	var directoryErr *directory.Error
	if !errors.As(err, &directoryErr) {
		t.Errorf("error chain does not expose the directory error: %v", err)
	}
}

func TestEnsureRejectsEmptyIdentity(t *testing.T) {
	t.Parallel()

	_, err := testProvisioner(directorytest.New()).Ensure(context.Background(), &agentconfig.AgentConfig{})
	if err == nil {
		t.Fatal("Ensure accepted a config with no identity fields")
	}
}

func TestEnsureEndpoint(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	provisioner := testProvisioner(fake)

	outcome, err := provisioner.EnsureEndpoint(context.Background(), "app-1", "https://plan-research.westus2.agentsvc.net/messages", "production")
	if err != nil {
		t.Fatalf("EnsureEndpoint: %v", err)
	}
	if outcome.AlreadyExisted {
		t.Error("AlreadyExisted = true for a fresh registration")
	}
	if outcome.Endpoint.Address != "https://plan-research.westus2.agentsvc.net/messages" {
		t.Errorf("registered address = %q", outcome.Endpoint.Address)
	}

	// Second registration finds the endpoint and writes nothing.
	again, err := provisioner.EnsureEndpoint(context.Background(), "app-1", "https://plan-research.westus2.agentsvc.net/messages", "production")
	if err != nil {
		t.Fatalf("EnsureEndpoint rerun: %v", err)
	}
	if !again.AlreadyExisted {
		t.Error("rerun did not report AlreadyExisted")
	}
	if fake.Calls["CreateMessagingEndpoint"] != 1 {
		t.Errorf("CreateMessagingEndpoint called %d times, want 1", fake.Calls["CreateMessagingEndpoint"])
	}
}

func TestEnsureEndpointRequiresAppID(t *testing.T) {
	t.Parallel()

	_, err := testProvisioner(directorytest.New()).EnsureEndpoint(context.Background(), "", "https://x.example/messages", "")
	if err == nil {
		t.Fatal("EnsureEndpoint accepted an empty app ID")
	}
}
