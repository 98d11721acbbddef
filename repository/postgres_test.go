package repository

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := OpenPostgres(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, Migrate(ctx, db, nil))

	store := NewPostgresStore(db)
	v, err := store.GetMetadata(ctx, "schema_version")
	require.NoError(t, err)
	require.Equal(t, SchemaVersion, v)

	storeContract(t, store)
}
