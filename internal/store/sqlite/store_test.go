package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.bluewillows.net/root/ddnsweaver/internal/credential"
)

func TestStore_PutAndGet(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	want := credential.Record{
		Key:            "abc",
		SecretHash:     credential.Digest("s3cr3t"),
		Domain:         "host.example.com",
		ZoneID:         "Z123",
		LastSetAddress: "1.2.3.3",
	}
	require.NoError(t, store.Put(ctx, want))

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_GetMissing(t *testing.T) {
	store := NewStore(setupTestDB(t))

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, credential.ErrNotFound)
}

func TestStore_PutOverwrites(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	r := credential.Record{Key: "abc", SecretHash: "h", Domain: "host.example.com", ZoneID: "Z123", LastSetAddress: "1.2.3.3"}
	require.NoError(t, store.Put(ctx, r))
	require.NoError(t, store.Put(ctx, r.WithAddress("1.2.3.4")))

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", got.LastSetAddress)
	assert.Equal(t, "Z123", got.ZoneID)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, RunMigrations(db.Writer))
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddnsweaver.db")

	db, err := Open(path)
	require.NoError(t, err)
	store := NewStore(db)
	require.NoError(t, store.Put(context.Background(), credential.Record{Key: "k", Domain: "d"}))
	require.NoError(t, store.Close())

	db, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	got, err := NewStore(db).Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "d", got.Domain)
	assert.NoError(t, NewStore(db).Ping(context.Background()))
}
