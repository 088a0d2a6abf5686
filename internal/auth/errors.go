// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when creating an entity that collides with an existing one.
var ErrAlreadyExists = errors.New("already exists")

// Error codes surfaced to collaborators.
const (
	CodeMissingCredential  = "AUTH_MISSING_CREDENTIAL"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeForbidden          = "AUTH_FORBIDDEN"
	CodeAccountNotVerified = "AUTH_ACCOUNT_NOT_VERIFIED"
	CodeSigningFailed      = "AUTH_SIGNING_FAILED"
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeAccountExists      = "AUTH_ACCOUNT_EXISTS"
)

// Code returns the oops error code carried by err, or "" if there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil {
		return ""
	}
	return fmt.Sprint(code)
}

// errInvalidCredentials is the single externally visible failure for bad
// passwords and bad tokens. The reason only travels in the error context.
func errInvalidCredentials(reason string) error {
	return oops.Code(CodeInvalidCredentials).
		With("reason", reason).
		Errorf("invalid credentials")
}

func errMissingCredential() error {
	return oops.Code(CodeMissingCredential).Errorf("missing credential")
}
