// Copyright 2026 The Cadre Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a structured error response from the directory
// service. Callers can use errors.As to extract the structured
// information:
//
//	var dirErr *directory.Error
//	if errors.As(err, &dirErr) {
//	    if dirErr.StatusCode == http.StatusConflict { ... }
//	}
//
// The helpers [IsNotFound], [IsConflict], and [IsForbidden] cover the
// status classes provisioning code branches on.
type Error struct {
	// Code is the directory error code (e.g., "ResourceNotFound",
	// "InsufficientPrivileges").
	Code string `json:"code"`
	// Message is the human-readable error description from the server.
	Message string `json:"message"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("directory: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Standard directory error codes.
const (
	ErrCodeNotFound     = "ResourceNotFound"
	ErrCodeConflict     = "ResourceConflict"
	ErrCodeForbidden    = "InsufficientPrivileges"
	ErrCodeInvalid      = "InvalidRequest"
	ErrCodeUnauthorized = "InvalidAuthenticationToken"
	ErrCodeThrottled    = "TooManyRequests"
	ErrCodeUnknown      = "UnknownError"
)

// IsDirectoryError checks whether err is a *Error with the given error code.
func IsDirectoryError(err error, code string) bool {
	var dirErr *Error
	if errors.As(err, &dirErr) {
		return dirErr.Code == code
	}
	return false
}

// IsNotFound reports whether err is a directory error with HTTP status
// 404. Provisioning treats this as "resource absent, safe to create".
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsConflict reports whether err is a directory error with HTTP status
// 409. Provisioning treats this as "resource already exists" and
// reports success rather than failure.
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// IsForbidden reports whether err is a directory error with HTTP status
// 403, meaning the caller's token lacks the privileges for the
// operation (as opposed to the operation being invalid).
func IsForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}

func hasStatus(err error, status int) bool {
	var dirErr *Error
	if errors.As(err, &dirErr) {
		return dirErr.StatusCode == status
	}
	return false
}
