// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cadreworks/cadre/directory/directorytest"
	"github.com/cadreworks/cadre/lib/agentconfig"
	"github.com/cadreworks/cadre/lib/cloudcli"
	"github.com/cadreworks/cadre/lib/envfile"
	"github.com/cadreworks/cadre/lib/requirement"
	"github.com/cadreworks/cadre/lib/settings"
)

// memStore keeps the agent config in memory, cloning on both paths the
// way a real file store round-trips through JSON.
type memStore struct {
	config *agentconfig.AgentConfig
	saves  int
}

func (s *memStore) Load() (*agentconfig.AgentConfig, error) {
	if s.config == nil {
		return nil, errors.New("store is empty")
	}
	clone := *s.config
	return &clone, nil
}

func (s *memStore) Save(config *agentconfig.AgentConfig) error {
	s.saves++
	clone := *config
	s.config = &clone
	return nil
}

// amnesiacStore accepts saves but silently drops the identifiers a
// rerun would need, simulating a persistence layer that lies about
// writes.
type amnesiacStore struct {
	memStore
}

func (s *amnesiacStore) Save(config *agentconfig.AgentConfig) error {
	clone := *config
	clone.AppID = ""
	clone.BlueprintID = ""
	s.config = &clone
	return nil
}

// recordingRunner succeeds at everything and remembers the calls.
type recordingRunner struct {
	calls [][]string
}

func (r *recordingRunner) Run(ctx context.Context, name string, args ...string) (*cloudcli.Output, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	return &cloudcli.Output{ExitCode: 0, Stdout: "{}"}, nil
}

func (r *recordingRunner) sawVerb(verb string) bool {
	for _, call := range r.calls {
		if len(call) > 1 && call[1] == verb {
			return true
		}
	}
	return false
}

// stubCheck returns a fixed result.
type stubCheck struct {
	name   string
	result requirement.Result
}

func (c stubCheck) Name() string        { return c.name }
func (c stubCheck) Category() string    { return "test" }
func (c stubCheck) Description() string { return "canned result" }
func (c stubCheck) Run(context.Context, *agentconfig.AgentConfig) requirement.Result {
	return c.result
}

func passingChecks() []requirement.Check {
	return []requirement.Check{stubCheck{name: "environment", result: requirement.Pass("ready")}}
}

func testConfig(t *testing.T) *agentconfig.AgentConfig {
	t.Helper()
	return &agentconfig.AgentConfig{
		TenantID:          "11111111-2222-3333-4444-555555555555",
		SubscriptionID:    "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		ResourceGroup:     "rg-agents",
		Region:            "westus2",
		PlanName:          "plan-agents",
		PlanSKU:           "S1",
		DisplayName:       "Research Agent",
		UserPrincipalName: "research@contoso.example",
		DeployPath:        t.TempDir(),
		Environment:       "production",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOrchestrator(t *testing.T, fake *directorytest.Fake, store agentconfig.Store, runner cloudcli.Runner, options Options, checks []requirement.Check) *Orchestrator {
	t.Helper()
	if checks == nil {
		checks = passingChecks()
	}
	orchestrator, err := NewOrchestrator(OrchestratorConfig{
		Store:     store,
		Directory: fake,
		Runner:    runner,
		Settings:  settings.Default(),
		Logger:    quietLogger(),
		Options:   options,
		Checks:    checks,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	orchestrator.blueprints.PollInterval = time.Millisecond
	orchestrator.blueprints.PollTimeout = 100 * time.Millisecond
	return orchestrator
}

func TestRunProvisionsEverything(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	config := testConfig(t)
	store := &memStore{config: config}
	runner := &recordingRunner{}

	result, err := testOrchestrator(t, fake, store, runner, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Clean() {
		t.Fatalf("advisory errors on a clean run: %v", result.Errors)
	}

	if !result.BlueprintCreated || result.BlueprintAlreadyExisted {
		t.Errorf("blueprint disposition = created %v / existed %v", result.BlueprintCreated, result.BlueprintAlreadyExisted)
	}
	if !result.WorkloadCredentialConfigured {
		t.Error("workload credential not configured")
	}
	if !result.ToolPermissionsConfigured || !result.InheritablePermissionsConfigured {
		t.Error("tool platform permissions not configured")
	}
	if !result.MessagingPermissionsConfigured {
		t.Error("messaging permissions not configured")
	}
	if !result.EndpointRegistered {
		t.Error("endpoint not registered")
	}
	if !result.ProjectSynced {
		t.Error("project not synced")
	}
	if !result.InfrastructureAlreadyExisted {
		t.Error("infrastructure not reported as existing (runner answers every show)")
	}

	// Identifiers must have been persisted.
	saved, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if saved.AppID == "" || saved.BlueprintID == "" {
		t.Errorf("identifiers not persisted: appID=%q blueprintID=%q", saved.AppID, saved.BlueprintID)
	}
	wantAddress := "https://plan-agents-research.westus2.agentsvc.net/messages"
	if saved.EndpointAddress != wantAddress {
		t.Errorf("persisted endpoint address = %q, want %q", saved.EndpointAddress, wantAddress)
	}

	// Directory state: one blueprint, one credential, two grants, one
	// endpoint.
	if len(fake.Blueprints) != 1 || len(fake.Grants) != 2 || len(fake.Endpoints) != 1 {
		t.Errorf("directory state: %d blueprints, %d grants, %d endpoints",
			len(fake.Blueprints), len(fake.Grants), len(fake.Endpoints))
	}
	if got := fake.Endpoints[0].Address; got != wantAddress {
		t.Errorf("registered endpoint address = %q, want %q", got, wantAddress)
	}

	// Project sync wrote the identity file.
	values, err := envfile.Read(filepath.Join(config.DeployPath, ".cadre", EnvFileName))
	if err != nil {
		t.Fatalf("reading synced env file: %v", err)
	}
	if values["CADRE_APP_ID"] != saved.AppID {
		t.Errorf("synced CADRE_APP_ID = %q, want %q", values["CADRE_APP_ID"], saved.AppID)
	}
	if values["CADRE_ENDPOINT_ADDRESS"] != wantAddress {
		t.Errorf("synced CADRE_ENDPOINT_ADDRESS = %q", values["CADRE_ENDPOINT_ADDRESS"])
	}
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	store := &memStore{config: testConfig(t)}
	runner := &recordingRunner{}

	if _, err := testOrchestrator(t, fake, store, runner, Options{}, nil).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	writesAfterFirst := fake.MutatingCalls()

	result, err := testOrchestrator(t, fake, store, runner, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if fake.MutatingCalls() != writesAfterFirst {
		t.Errorf("second run issued %d new writes, want 0", fake.MutatingCalls()-writesAfterFirst)
	}
	if !result.BlueprintAlreadyExisted || result.BlueprintCreated {
		t.Error("second run did not report the blueprint as existing")
	}
	if !result.EndpointAlreadyExisted {
		t.Error("second run did not report the endpoint as existing")
	}
	if !result.WorkloadCredentialAlreadyExisted {
		t.Error("second run did not report the credential as existing")
	}
	if !result.Clean() {
		t.Errorf("second run recorded errors: %v", result.Errors)
	}
}

func TestRunBlueprintConflictIsSuccess(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	fake.ConflictNext("CreateBlueprint")
	store := &memStore{config: testConfig(t)}

	result, err := testOrchestrator(t, fake, store, &recordingRunner{}, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run with creation conflict: %v", err)
	}
	if !result.BlueprintAlreadyExisted || result.BlueprintCreated {
		t.Error("conflict not reported as already-existed")
	}
	if !result.ProjectSynced {
		t.Error("pipeline did not continue past the conflict")
	}
}

func TestRunBlueprintFailureIsFatal(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	fake.ForceStatus("CreateBlueprint", http.StatusInternalServerError)
	store := &memStore{config: testConfig(t)}

	result, err := testOrchestrator(t, fake, store, &recordingRunner{}, Options{}, nil).Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded despite blueprint creation failing")
	}
	if KindOf(err) != KindFatal {
		t.Errorf("error kind = %q, want %q", KindOf(err), KindFatal)
	}
	if result.BlueprintCreated || result.BlueprintAlreadyExisted {
		t.Error("result claims a blueprint disposition despite the failure")
	}

	// Nothing downstream of the identity may have been attempted.
	for _, method := range []string{"CreateServicePrincipal", "ListFederatedCredentials", "CreateMessagingEndpoint", "GetInstancePermissions"} {
		if fake.Calls[method] != 0 {
			t.Errorf("%s called %d times after a fatal blueprint failure", method, fake.Calls[method])
		}
	}
}

func TestRunGrantFailureIsAdvisory(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	fake.ForceStatus("CreatePermissionGrant", http.StatusInternalServerError)
	store := &memStore{config: testConfig(t)}

	result, err := testOrchestrator(t, fake, store, &recordingRunner{}, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned a fatal error for a grant failure: %v", err)
	}
	if result.Clean() {
		t.Fatal("grant failures were not recorded")
	}
	if result.ToolPermissionsConfigured || result.MessagingPermissionsConfigured {
		t.Error("result claims grants were configured")
	}
	// The blueprint step preceded the failures and the endpoint step
	// followed them; both must be intact.
	if !result.BlueprintCreated {
		t.Error("blueprint disposition lost")
	}
	if !result.EndpointRegistered {
		t.Error("endpoint step did not run after the advisory failures")
	}
	if !result.InheritablePermissionsConfigured {
		t.Error("instance permissions should be unaffected by grant failures")
	}
}

func TestRunForbiddenInheritablePermissions(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	fake.ForceStatus("SetInstancePermissions", http.StatusForbidden)
	store := &memStore{config: testConfig(t)}

	result, err := testOrchestrator(t, fake, store, &recordingRunner{}, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.InheritablePermissionsConfigured {
		t.Error("result claims inheritable permissions despite the 403")
	}

	combined := strings.Join(result.Errors, "\n")
	if !strings.Contains(combined, "admin consent") {
		t.Errorf("errors do not tell the operator to request consent: %q", combined)
	}
	if !strings.Contains(combined, "Blueprints.Manage.All") {
		t.Errorf("errors do not name the required elevated scopes: %q", combined)
	}
}

func TestRunSkipInfrastructure(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	store := &memStore{config: testConfig(t)}
	runner := &recordingRunner{}

	result, err := testOrchestrator(t, fake, store, runner, Options{SkipInfrastructure: true}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runner.sawVerb("group") || runner.sawVerb("plan") {
		t.Errorf("provider CLI saw infrastructure calls despite the skip: %v", runner.calls)
	}
	if result.InfrastructureCreated || result.InfrastructureAlreadyExisted {
		t.Error("skipped infrastructure must leave both dispositions false")
	}
	if !result.BlueprintCreated || !result.ProjectSynced {
		t.Error("identity steps did not run with infrastructure skipped")
	}
}

func TestRunSharedInfrastructureReady(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	store := &memStore{config: testConfig(t)}
	runner := &recordingRunner{}

	result, err := testOrchestrator(t, fake, store, runner, Options{SharedInfrastructureReady: true}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runner.sawVerb("group") || runner.sawVerb("plan") {
		t.Errorf("provider CLI was queried despite shared infrastructure being ready: %v", runner.calls)
	}
	if !result.InfrastructureAlreadyExisted {
		t.Error("shared infrastructure not recorded as already existing")
	}
}

func TestRunExternalHosting(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	config := testConfig(t)
	config.ExternalHosting = true
	config.EndpointAddress = "https://agents.partner.example/hooks"
	store := &memStore{config: config}
	runner := &recordingRunner{}

	result, err := testOrchestrator(t, fake, store, runner, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("provider CLI invoked for an externally hosted agent: %v", runner.calls)
	}
	if fake.Calls["CreateMessagingEndpoint"] != 0 || fake.Calls["FindMessagingEndpoint"] != 0 {
		t.Error("endpoint registration attempted for an externally hosted agent")
	}
	if fake.Calls["ListFederatedCredentials"] != 0 {
		t.Error("workload credential attempted for an externally hosted agent")
	}
	if !result.ToolPermissionsConfigured || !result.MessagingPermissionsConfigured {
		t.Error("permission steps must still run for externally hosted agents")
	}
	if !result.ProjectSynced {
		t.Error("project sync must still run for externally hosted agents")
	}
}

func TestRunPersistenceLossIsIntegrityFailure(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	store := &amnesiacStore{memStore{config: testConfig(t)}}

	_, err := testOrchestrator(t, fake, store, &recordingRunner{}, Options{}, nil).Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded despite the store dropping the identifiers")
	}
	if KindOf(err) != KindIntegrity {
		t.Errorf("error kind = %q, want %q", KindOf(err), KindIntegrity)
	}
	// The blueprint exists in the directory, but nothing else may have
	// been provisioned against unpersisted identifiers.
	if fake.Calls["CreateServicePrincipal"] != 0 {
		t.Error("provisioning continued past the integrity failure")
	}
}

func TestRunRequirementFailureIsFatal(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	store := &memStore{config: testConfig(t)}
	runner := &recordingRunner{}
	checks := []requirement.Check{
		stubCheck{name: "provider-cli", result: requirement.Fail("provider CLI not found", "Install the provider CLI.")},
		stubCheck{name: "deployment-path", result: requirement.Pass("exists")},
	}

	_, err := testOrchestrator(t, fake, store, runner, Options{}, checks).Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded despite a failed requirement check")
	}
	if KindOf(err) != KindFatal {
		t.Errorf("error kind = %q, want %q", KindOf(err), KindFatal)
	}

	var classified *Error
	if !errors.As(err, &classified) {
		t.Fatalf("error %v is not a classified setup error", err)
	}
	if len(classified.Details) != 1 || !strings.Contains(classified.Details[0], "provider-cli") {
		t.Errorf("details = %v, want the failing check named", classified.Details)
	}

	if fake.MutatingCalls() != 0 {
		t.Error("directory writes happened despite failed requirements")
	}
	if len(runner.calls) != 0 {
		t.Error("provider CLI invoked despite failed requirements")
	}
}

func TestRunRequirementWarningsAreRecorded(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	store := &memStore{config: testConfig(t)}
	checks := []requirement.Check{
		stubCheck{name: "agent-program-enrollment", result: requirement.Warn("enrollment not verifiable", "Confirm the tenant is enrolled.")},
	}

	result, err := testOrchestrator(t, fake, store, &recordingRunner{}, Options{}, checks).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "agent-program-enrollment") {
		t.Errorf("Warnings = %v", result.Warnings)
	}
	if !result.ProjectSynced {
		t.Error("warnings stopped the pipeline")
	}
}

func TestRunSkipRequirements(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	store := &memStore{config: testConfig(t)}
	checks := []requirement.Check{
		stubCheck{name: "provider-cli", result: requirement.Fail("would fail", "")},
	}

	result, err := testOrchestrator(t, fake, store, &recordingRunner{}, Options{SkipRequirements: true}, checks).Run(context.Background())
	if err != nil {
		t.Fatalf("Run with skipped requirements: %v", err)
	}
	if !result.BlueprintCreated {
		t.Error("pipeline did not run")
	}
}

func TestRunWaitsForBlueprintVisibility(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	fake.BlueprintVisibleAfterReads = 2
	store := &memStore{config: testConfig(t)}

	result, err := testOrchestrator(t, fake, store, &recordingRunner{}, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run with lagging directory reads: %v", err)
	}
	if !result.BlueprintCreated {
		t.Error("blueprint not reported as created")
	}
	saved, _ := store.Load()
	if saved.BlueprintID == "" {
		t.Error("identifiers not persisted after the visibility wait")
	}
}

func TestRunEndpointAddressOverride(t *testing.T) {
	t.Parallel()

	fake := directorytest.New()
	config := testConfig(t)
	config.EndpointAddress = "https://custom.contoso.example/messages"
	store := &memStore{config: config}

	if _, err := testOrchestrator(t, fake, store, &recordingRunner{}, Options{}, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fake.Endpoints) != 1 || fake.Endpoints[0].Address != "https://custom.contoso.example/messages" {
		t.Errorf("registered endpoints = %+v, want the explicit override", fake.Endpoints)
	}
}
