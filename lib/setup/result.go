// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package setup

// Result accumulates per-step dispositions for one agent's run. The
// created/already-existed pairs are deliberately separate booleans
// rather than a tri-state: a step that was skipped (external hosting,
// --skip-infrastructure) leaves both false, and summaries render that
// distinction.
type Result struct {
	// Agent is the agent's display name.
	Agent string `json:"agent"`

	InfrastructureCreated        bool `json:"infrastructureCreated"`
	InfrastructureAlreadyExisted bool `json:"infrastructureAlreadyExisted"`

	BlueprintCreated        bool `json:"blueprintCreated"`
	BlueprintAlreadyExisted bool `json:"blueprintAlreadyExisted"`

	// WorkloadCredential* report the federated credential binding the
	// hosted compute to the blueprint.
	WorkloadCredentialConfigured     bool `json:"workloadCredentialConfigured"`
	WorkloadCredentialAlreadyExisted bool `json:"workloadCredentialAlreadyExisted"`

	// ToolPermissionsConfigured reports the delegated grant on the
	// tool platform API; InheritablePermissionsConfigured the
	// instance-permission declaration on the blueprint itself.
	ToolPermissionsConfigured        bool `json:"toolPermissionsConfigured"`
	InheritablePermissionsConfigured bool `json:"inheritablePermissionsConfigured"`

	MessagingPermissionsConfigured bool `json:"messagingPermissionsConfigured"`

	EndpointRegistered     bool `json:"endpointRegistered"`
	EndpointAlreadyExisted bool `json:"endpointAlreadyExisted"`
	ProjectSynced          bool `json:"projectSynced"`

	// Errors are advisory failures recorded along the way; the run
	// itself still counts as successful when only these are present.
	Errors []string `json:"errors"`

	// Warnings are requirement-check warnings and other non-failure
	// observations.
	Warnings []string `json:"warnings"`
}

// AddError records an advisory failure.
func (r *Result) AddError(message string) {
	r.Errors = append(r.Errors, message)
}

// AddWarning records a non-failure observation.
func (r *Result) AddWarning(message string) {
	r.Warnings = append(r.Warnings, message)
}

// Clean reports whether the run completed without recording any
// advisory errors.
func (r *Result) Clean() bool {
	return len(r.Errors) == 0
}

// endpointEnsured reports whether a messaging endpoint registration
// already succeeded during this run.
func (r *Result) endpointEnsured() bool {
	return r.EndpointRegistered || r.EndpointAlreadyExisted
}
