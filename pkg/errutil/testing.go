// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails t unless err resolves to code through Code.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equalf(t, code, Code(err), "unexpected code on %q", err.Error())
}

// AssertErrorContext fails t unless the oops chain of err carries key=value.
func AssertErrorContext(t testing.TB, err error, key string, value any) {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.Truef(t, ok, "%q carries no oops context", err.Error())
	got, found := oopsErr.Context()[key]
	require.Truef(t, found, "context key %q missing on %q", key, err.Error())
	assert.Equal(t, value, got)
}
