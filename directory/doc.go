// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory wraps the cloud directory API that Cadre provisions
// agent identities against.
//
// [Client] is the production implementation: it holds the directory base
// URL, an HTTP transport, and a [TokenSource] that supplies bearer tokens
// per request (the provider-CLI-backed source lives in lib/cloudcli;
// tests use [StaticToken]). [Service] is the interface the setup pipeline
// and requirement checks program against, so tests can substitute
// in-memory fakes.
//
// The API surface covers the five resource families the setup pipeline
// touches: blueprints (the application registration an agent runs as),
// instance permissions (the scopes a blueprint requests from resource
// applications), service principals, delegated permission grants, and
// federated credentials, plus messaging endpoint registration. Lookup
// methods follow a find-shaped contract: they return (value, found,
// error) and report an empty result as found=false rather than
// synthesizing a not-found error, because the callers' first question
// is always "does this already exist".
//
// All API errors are returned as [*Error] with the directory's error
// code (ResourceNotFound, ResourceConflict, etc.) and the HTTP status
// code. [IsNotFound], [IsConflict], and [IsForbidden] test the status
// class, which is more reliable than code strings across directory
// versions. Request URLs are built by string concatenation rather than
// url.URL to avoid double-encoding of path segments.
package directory
