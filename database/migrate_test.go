package database

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", migrationURL("postgres://u:p@h:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://u@h/db", migrationURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://u@h/db", migrationURL("pgx5://u@h/db"))
}

func TestMigrateDown_InvalidSteps(t *testing.T) {
	t.Parallel()

	assert.Error(t, MigrateDown("postgres://u@h/db", 0))
}

func TestMigrations(t *testing.T) {
	t.Parallel()

	_, connString := SetupTestDB(t)

	m, err := NewFromConnectionString(connString)
	require.NoError(t, err)
	defer func() {
		_, _ = m.Close()
	}()

	fnames, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, fnames)

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(len(fnames)), version)

	// step all the way down and back up
	require.NoError(t, m.Steps(-len(fnames)))

	version, dirty, err = GetVersion(connString)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Zero(t, version)

	require.NoError(t, MigrateUp(connString))
	version, _, err = GetVersion(connString)
	require.NoError(t, err)
	assert.Equal(t, uint(len(fnames)), version)
}
