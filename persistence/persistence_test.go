package persistence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carely/go-auth/persistence"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	ctx := context.Background()

	db, err := persistence.Open(ctx, persistence.Options{
		Driver: persistence.DriverSQLite,
		DSN:    ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	applied, err := persistence.Migrate(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{"20250301120000"}, applied)

	for _, table := range []string{"users", "roles", "user_roles"} {
		var count int
		err := db.NewRaw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(ctx, &count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, table)
	}

	again, err := persistence.Migrate(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, persistence.Rollback(ctx, db))

	var count int
	err = db.NewRaw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'users'").Scan(ctx, &count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := persistence.Open(context.Background(), persistence.Options{Driver: "oracle"})
	require.Error(t, err)
}
