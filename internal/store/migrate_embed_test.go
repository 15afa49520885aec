// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package store

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		require.True(t, pattern.MatchString(name), "file %s should match NNNNNN_name.(up|down).sql", name)
		if base, ok := strings.CutSuffix(name, ".up.sql"); ok {
			ups[base] = true
		}
		if base, ok := strings.CutSuffix(name, ".down.sql"); ok {
			downs[base] = true
		}
	}

	assert.True(t, ups["000001_permission_engine"])
	assert.Equal(t, ups, downs, "every up migration needs a down migration")
}

func TestMigrationsFS_SchemaShape(t *testing.T) {
	sql, err := fs.ReadFile(migrationsFS, "migrations/000001_permission_engine.up.sql")
	require.NoError(t, err)
	text := string(sql)

	for _, table := range []string{"roles", "role_permissions", "role_inheritance", "user_roles"} {
		assert.Contains(t, text, "CREATE TABLE "+table+" (")
	}
	assert.Contains(t, text, "ON DELETE CASCADE")
	assert.Contains(t, text, "CHECK (role_id <> parent_id)")
}
