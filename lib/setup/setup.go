// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package setup orchestrates agent provisioning end to end: requirement
// checks, hosting infrastructure, the blueprint identity, delegated
// permissions, the federated workload credential, endpoint
// registration, and the local project sync. Team fan-out over the same
// pipeline lives here too.
//
// The pipeline is sequential and resumable. Every step is idempotent,
// so a rerun skips what already exists and converges whatever a
// previous run left unfinished. Failures are classified asymmetrically
// (see [ErrorKind]): only missing preconditions and a missing identity
// stop the run, everything else is recorded on the [Result] and the
// pipeline keeps going.
//
// The config store is the source of truth between steps. The blueprint
// step persists the directory-assigned identifiers and reads them back
// before any dependent step runs; a re-read that comes back without
// them means the persistence layer is lying about writes, and the run
// stops rather than provision against identifiers the next run will
// not see.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cadreworks/cadre/directory"
	"github.com/cadreworks/cadre/lib/agentconfig"
	"github.com/cadreworks/cadre/lib/blueprint"
	"github.com/cadreworks/cadre/lib/cloudcli"
	"github.com/cadreworks/cadre/lib/deploypack"
	"github.com/cadreworks/cadre/lib/envfile"
	"github.com/cadreworks/cadre/lib/federation"
	"github.com/cadreworks/cadre/lib/grant"
	"github.com/cadreworks/cadre/lib/infra"
	"github.com/cadreworks/cadre/lib/requirement"
	"github.com/cadreworks/cadre/lib/settings"
)

// Delegated scopes granted to every agent blueprint.
var (
	// ToolPlatformScopes let the agent discover and invoke shared
	// platform tools.
	ToolPlatformScopes = []string{"Tools.Invoke", "ToolCatalog.Read"}

	// MessagingScopes let the agent send and receive platform messages
	// on its registered endpoint.
	MessagingScopes = []string{"Messages.Send", "Conversations.ReadWrite"}
)

// EnvFileName is the identity file the project-sync step writes under
// the deploy path's meta directory. Agent runtimes read it to learn
// who they are.
const EnvFileName = "agent.env"

// Options tune a single agent run.
type Options struct {
	// SkipInfrastructure skips the resource group and hosting plan
	// step entirely.
	SkipInfrastructure bool

	// SkipRequirements skips the pre-flight requirement checks.
	SkipRequirements bool

	// SharedInfrastructureReady marks that an earlier team member
	// already provisioned the shared resource group and hosting plan.
	// The step records them as already existing without a query.
	SharedInfrastructureReady bool
}

// OrchestratorConfig carries the orchestrator's collaborators.
type OrchestratorConfig struct {
	// Store loads and persists the agent's config between steps.
	Store agentconfig.Store

	// Directory is the cloud directory client.
	Directory directory.Service

	// Runner executes the provider CLI.
	Runner cloudcli.Runner

	// Settings supply platform resource IDs, the endpoint suffix, and
	// the provider CLI name.
	Settings *settings.Settings

	// Logger receives step-level progress. Nil means slog.Default().
	Logger *slog.Logger

	// Options tune the run.
	Options Options

	// Checks overrides the pre-flight checklist. Nil means the
	// standard checks built from Runner, Settings, and Directory.
	Checks []requirement.Check
}

// Orchestrator runs the provisioning pipeline for one agent.
type Orchestrator struct {
	store    agentconfig.Store
	settings *settings.Settings
	logger   *slog.Logger
	options  Options
	checks   []requirement.Check

	blueprints  *blueprint.Provisioner
	grants      *grant.Provisioner
	credentials *federation.Provisioner
	hosting     *infra.Provisioner
}

// NewOrchestrator wires the provisioners behind a pipeline.
func NewOrchestrator(config OrchestratorConfig) (*Orchestrator, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("setup: config store is required")
	}
	if config.Directory == nil {
		return nil, fmt.Errorf("setup: directory service is required")
	}
	if config.Runner == nil {
		return nil, fmt.Errorf("setup: provider CLI runner is required")
	}
	if config.Settings == nil {
		return nil, fmt.Errorf("setup: settings are required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	checks := config.Checks
	if checks == nil {
		checks = requirement.StandardChecks(requirement.StandardChecksConfig{
			Runner:      config.Runner,
			ProviderCLI: config.Settings.Provider.CLI,
			Directory:   config.Directory,
		})
	}

	return &Orchestrator{
		store:       config.Store,
		settings:    config.Settings,
		logger:      logger,
		options:     config.Options,
		checks:      checks,
		blueprints:  &blueprint.Provisioner{Directory: config.Directory, Logger: logger},
		grants:      &grant.Provisioner{Directory: config.Directory, Logger: logger},
		credentials: &federation.Provisioner{Directory: config.Directory, Logger: logger},
		hosting: &infra.Provisioner{
			Runner: config.Runner,
			CLI:    config.Settings.Provider.CLI,
			Logger: logger,
		},
	}, nil
}

// Run executes the pipeline. The returned Result is populated even
// when err is non-nil, reporting how far the run got. A non-nil error
// is always a *Error; advisory failures never surface here, they are
// recorded on the result.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	config, err := o.store.Load()
	if err != nil {
		return &Result{}, Fatal("config_load_failed", err)
	}
	result := &Result{Agent: config.DisplayName}
	o.logger.Info("starting agent setup", "agent", config.DisplayName)

	if err := o.runRequirements(ctx, config, result); err != nil {
		return result, err
	}
	o.runInfrastructure(ctx, config, result)

	config, err = o.runBlueprint(ctx, config, result)
	if err != nil {
		return result, err
	}

	o.runFederation(ctx, config, result)
	o.runToolPermissions(ctx, config, result)
	o.runMessagingPermissions(ctx, config, result)
	o.runEndpointAndSync(ctx, config, result)

	o.logger.Info("agent setup finished",
		"agent", config.DisplayName,
		"advisory_errors", len(result.Errors))
	return result, nil
}

// runRequirements runs the pre-flight checklist. Any failed check is
// fatal: provisioning against a half-working environment produces
// exactly the partial states the checks exist to prevent.
func (o *Orchestrator) runRequirements(ctx context.Context, config *agentconfig.AgentConfig, result *Result) error {
	if o.options.SkipRequirements {
		o.logger.Warn("skipping requirement checks")
		return nil
	}

	report, err := requirement.NewRunner(o.logger, o.checks...).Run(ctx, config)
	if err != nil {
		return Fatal("requirements_aborted", err)
	}
	for _, warning := range report.Warnings() {
		result.AddWarning(warning.Name + ": " + warning.Message)
	}
	if !report.OK {
		failures := report.Failures()
		details := make([]string, 0, len(failures))
		for _, failure := range failures {
			details = append(details, failure.Name+": "+failure.Message)
		}
		return (&Error{
			Kind:    KindFatal,
			Code:    "requirements_failed",
			Details: details,
			Err:     fmt.Errorf("%d requirement check(s) failed", len(failures)),
		}).WithGuidance("Run 'cadre requirements' for the full checklist and remediation steps.")
	}
	return nil
}

// runInfrastructure ensures the resource group and hosting plan.
// Failures are advisory: the identity steps run against the directory,
// not the hosting control plane, and converge on a rerun once the
// infrastructure problem is fixed.
func (o *Orchestrator) runInfrastructure(ctx context.Context, config *agentconfig.AgentConfig, result *Result) {
	switch {
	case config.ExternalHosting:
		o.logger.Info("skipping infrastructure", "reason", "externally hosted")
		return
	case o.options.SkipInfrastructure:
		o.logger.Info("skipping infrastructure", "reason", "requested")
		return
	case o.options.SharedInfrastructureReady:
		o.logger.Info("shared infrastructure already provisioned by an earlier team member")
		result.InfrastructureAlreadyExisted = true
		return
	}

	outcome, err := o.hosting.Ensure(ctx, config)
	if err != nil {
		result.AddError("infrastructure: " + err.Error())
		return
	}
	result.InfrastructureCreated = outcome.Created()
	result.InfrastructureAlreadyExisted = outcome.AlreadyExisted()
}

// runBlueprint ensures the blueprint, persists the directory-assigned
// identifiers, and verifies the store reads them back. It returns the
// re-read config; every later step works from persisted state, never
// from memory the store has not confirmed.
func (o *Orchestrator) runBlueprint(ctx context.Context, config *agentconfig.AgentConfig, result *Result) (*agentconfig.AgentConfig, error) {
	outcome, err := o.blueprints.Ensure(ctx, config)
	if err != nil {
		return nil, Fatal("blueprint_failed", err).
			WithGuidance("The agent has no identity; nothing else can be provisioned. Fix the failure and rerun setup.")
	}
	result.BlueprintCreated = !outcome.AlreadyExisted
	result.BlueprintAlreadyExisted = outcome.AlreadyExisted

	config.AppID = outcome.Blueprint.AppID
	config.BlueprintID = outcome.Blueprint.ID
	if err := o.store.Save(config); err != nil {
		return nil, Integrity("config_persist_failed", err)
	}

	reread, err := o.store.Load()
	if err != nil {
		return nil, Integrity("config_reread_failed", err)
	}
	if reread.AppID == "" || reread.BlueprintID == "" {
		return nil, Integrity("blueprint_id_not_persisted",
			fmt.Errorf("blueprint identifiers missing after save: the directory call succeeded but the config store did not observe the write")).
			WithGuidance("Check that the config file is writable and not being reverted by another process, then rerun setup.")
	}
	return reread, nil
}

// runFederation ensures the workload federated credential. Externally
// hosted agents bring their own credentials, so the step is skipped
// for them.
func (o *Orchestrator) runFederation(ctx context.Context, config *agentconfig.AgentConfig, result *Result) {
	if config.ExternalHosting {
		o.logger.Info("skipping workload credential", "reason", "externally hosted")
		return
	}

	credential := federation.WorkloadCredential(config, o.settings.Resources.EndpointSuffix)
	outcome, err := o.credentials.Ensure(ctx, config.BlueprintID, config.AppID, credential)
	if err != nil {
		result.AddError("workload credential: " + err.Error())
		return
	}
	result.WorkloadCredentialConfigured = true
	result.WorkloadCredentialAlreadyExisted = outcome.AlreadyExisted
}

// runToolPermissions grants the agent the delegated tool platform
// scopes and declares them as inheritable instance permissions on the
// blueprint. All failures are advisory.
func (o *Orchestrator) runToolPermissions(ctx context.Context, config *agentconfig.AgentConfig, result *Result) {
	toolAppID := o.settings.Resources.ToolPlatformAppID
	agentPrincipal, resourcePrincipal, err := o.resolvePrincipals(ctx, config.AppID, toolAppID)
	if err != nil {
		result.AddError("tool platform permissions: " + err.Error())
	} else {
		grantResult, err := o.grants.ReplaceGrant(ctx, agentPrincipal.ID, resourcePrincipal.ID, ToolPlatformScopes)
		if err != nil {
			result.AddError("tool platform permissions: " + err.Error())
		} else {
			result.ToolPermissionsConfigured = true
			o.logGrant("tool platform", grantResult)
		}
	}

	alreadyConfigured, err := o.grants.EnsureInstancePermissions(ctx, config.BlueprintID, toolAppID, ToolPlatformScopes)
	if err != nil {
		var elevated *grant.ElevatedScopeError
		if errors.As(err, &elevated) {
			result.AddError(fmt.Sprintf("inheritable permissions: %v; request admin consent for these scopes and rerun setup", err))
		} else {
			result.AddError("inheritable permissions: " + err.Error())
		}
		return
	}
	result.InheritablePermissionsConfigured = true
	if alreadyConfigured {
		o.logger.Info("inheritable permissions already declared", "resource_app_id", toolAppID)
	}
}

// runMessagingPermissions grants the agent the delegated messaging
// scopes. Advisory, like every permission step.
func (o *Orchestrator) runMessagingPermissions(ctx context.Context, config *agentconfig.AgentConfig, result *Result) {
	agentPrincipal, resourcePrincipal, err := o.resolvePrincipals(ctx, config.AppID, o.settings.Resources.MessagingAppID)
	if err != nil {
		result.AddError("messaging permissions: " + err.Error())
		return
	}

	grantResult, err := o.grants.ReplaceGrant(ctx, agentPrincipal.ID, resourcePrincipal.ID, MessagingScopes)
	if err != nil {
		result.AddError("messaging permissions: " + err.Error())
		return
	}
	result.MessagingPermissionsConfigured = true
	o.logGrant("messaging", grantResult)
}

// runEndpointAndSync registers the messaging endpoint (unless an
// earlier attempt in this run already did) and writes the agent's
// identity file into the project tree.
func (o *Orchestrator) runEndpointAndSync(ctx context.Context, config *agentconfig.AgentConfig, result *Result) {
	if !config.ExternalHosting && !result.endpointEnsured() {
		o.ensureEndpoint(ctx, config, result)
	}

	if err := o.syncProject(config); err != nil {
		result.AddError("project sync: " + err.Error())
	} else {
		result.ProjectSynced = true
	}

	// Persist fields derived during the run (endpoint address).
	if err := o.store.Save(config); err != nil {
		result.AddError("persisting config: " + err.Error())
	}
}

// ensureEndpoint registers the agent's messaging endpoint address,
// derived from plan, region, and suffix unless the config overrides
// it. Advisory on failure.
func (o *Orchestrator) ensureEndpoint(ctx context.Context, config *agentconfig.AgentConfig, result *Result) {
	address := config.ComputedEndpointAddress(o.settings.Resources.EndpointSuffix)
	if address == "" {
		result.AddError("endpoint registration: no address; set planName and region (or endpointAddress) in the agent config")
		return
	}

	outcome, err := o.blueprints.EnsureEndpoint(ctx, config.AppID, address, config.Environment)
	if err != nil {
		result.AddError("endpoint registration: " + err.Error())
		return
	}
	result.EndpointRegistered = !outcome.AlreadyExisted
	result.EndpointAlreadyExisted = outcome.AlreadyExisted
	config.EndpointAddress = address
}

// syncProject writes the identity env file the agent runtime loads at
// startup.
func (o *Orchestrator) syncProject(config *agentconfig.AgentConfig) error {
	if config.DeployPath == "" {
		return fmt.Errorf("no deploy path configured")
	}
	metaDir := filepath.Join(config.DeployPath, deploypack.MetaDir)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", metaDir, err)
	}

	values := map[string]string{
		"CADRE_TENANT_ID":        config.TenantID,
		"CADRE_SUBSCRIPTION_ID":  config.SubscriptionID,
		"CADRE_APP_ID":           config.AppID,
		"CADRE_BLUEPRINT_ID":     config.BlueprintID,
		"CADRE_ENVIRONMENT":      config.Environment,
		"CADRE_ENDPOINT_ADDRESS": config.EndpointAddress,
	}
	header := "Agent identity written by cadre setup.\nRegenerate with 'cadre setup'; do not edit by hand."
	return envfile.Write(filepath.Join(metaDir, EnvFileName), header, values)
}

// resolvePrincipals ensures the service principals on both ends of a
// grant and returns them (agent first).
func (o *Orchestrator) resolvePrincipals(ctx context.Context, agentAppID, resourceAppID string) (*directory.ServicePrincipal, *directory.ServicePrincipal, error) {
	if resourceAppID == "" {
		return nil, nil, fmt.Errorf("resource application ID is not configured")
	}
	agentPrincipal, _, err := o.grants.EnsureServicePrincipal(ctx, agentAppID)
	if err != nil {
		return nil, nil, fmt.Errorf("agent service principal: %w", err)
	}
	resourcePrincipal, _, err := o.grants.EnsureServicePrincipal(ctx, resourceAppID)
	if err != nil {
		return nil, nil, fmt.Errorf("resource service principal: %w", err)
	}
	return agentPrincipal, resourcePrincipal, nil
}

func (o *Orchestrator) logGrant(name string, result *grant.GrantResult) {
	switch {
	case result.Created:
		o.logger.Info(name+" grant created", "scope", result.Grant.Scope)
	case result.Updated:
		o.logger.Info(name+" grant scope replaced", "scope", result.Grant.Scope)
	default:
		o.logger.Info(name + " grant already configured")
	}
}
