package mapping

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/trackport/trackport/model"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	store, err := NewStore(db, config.New(), logger.NOP)
	require.NoError(t, err)
	return store
}

func testKey(externalID string) Key {
	return Key{
		WorkspaceID:    "ws-1",
		ConnectionID:   "conn-1",
		ExternalSource: model.ConnectorJira,
		ExternalID:     externalID,
		EntityType:     model.EntityIssue,
	}
}

func TestStorePutGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	key := testKey("PROJ_10001")

	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Put(ctx, key, "internal-1"))

	id, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "internal-1", id)

	// same internal id again is a no-op
	require.NoError(t, store.Put(ctx, key, "internal-1"))
}

func TestStorePutConflict(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	key := testKey("PROJ_10002")
	require.NoError(t, store.Put(ctx, key, "internal-1"))

	err := store.Put(ctx, key, "internal-2")
	var conflict *ErrConflict
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "internal-1", conflict.Existing)
	require.Equal(t, "internal-2", conflict.Proposed)

	// existing mapping is untouched
	id, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "internal-1", id)
}

func TestStoreScoping(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	keyA := testKey("PROJ_10003")
	keyB := keyA
	keyB.ConnectionID = "conn-2"

	require.NoError(t, store.Put(ctx, keyA, "internal-a"))
	require.NoError(t, store.Put(ctx, keyB, "internal-b"))

	idA, _, err := store.Get(ctx, keyA)
	require.NoError(t, err)
	idB, _, err := store.Get(ctx, keyB)
	require.NoError(t, err)
	require.Equal(t, "internal-a", idA)
	require.Equal(t, "internal-b", idB)
}

func TestStoreTouchThenPut(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	key := testKey("PROJ_10004")
	require.NoError(t, store.Touch(ctx, key))

	// seen but not pushed: no internal id yet
	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Put(ctx, key, "internal-1"))
	id, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "internal-1", id)
}

func TestStoreConcurrentSameKey(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	key := testKey("PROJ_10005")

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Put(ctx, key, "internal-1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	id, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "internal-1", id)
}
