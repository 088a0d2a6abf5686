// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package errutil

import (
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err is an oops error with the given code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err, "expected error with code %s", code)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, oopsErr.Code())
}

// AssertErrorContext asserts that err is an oops error with the given context key/value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	require.Error(t, err, "expected error with context %s", key)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	ctx := oopsErr.Context()
	assert.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}

// AssertProblems asserts that err carries code and a problem list in which
// every entry of want appears as a substring of some problem. It returns
// the full list for further checks.
func AssertProblems(t *testing.T, err error, code string, want ...string) []string {
	t.Helper()
	AssertErrorCode(t, err, code)
	problems := Problems(err)
	require.NotEmpty(t, problems, "expected a problems list on %v", err)
	for _, w := range want {
		found := false
		for _, p := range problems {
			if strings.Contains(p, w) {
				found = true
				break
			}
		}
		assert.True(t, found, "no problem mentions %q in %q", w, problems)
	}
	return problems
}
