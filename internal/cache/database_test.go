package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/cmsconsole/internal/database/testutil"
	"github.com/charlesng35/cmsconsole/internal/models"
)

func newTestDatabaseStore(t *testing.T) (*DatabaseStore, *gorm.DB, *time.Time) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, db, &now
}

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	store, _, _ := newTestDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "notifications:unread:u1", []byte("3"), time.Minute))

	value, ok, err := store.Get(ctx, "notifications:unread:u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("3"), value)

	require.NoError(t, store.Set(ctx, "notifications:unread:u1", []byte("4"), time.Minute))
	value, ok, err = store.Get(ctx, "notifications:unread:u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("4"), value)

	require.NoError(t, store.Delete(ctx, "notifications:unread:u1", "missing"))
	_, ok, err = store.Get(ctx, "notifications:unread:u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatabaseStoreGetRespectsExpiry(t *testing.T) {
	store, _, now := newTestDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("x"), time.Second))
	require.NoError(t, store.Set(ctx, "forever", []byte("y"), 0))

	*now = now.Add(time.Hour)

	_, ok, err := store.Get(ctx, "short")
	require.NoError(t, err)
	require.False(t, ok)

	value, ok, err := store.Get(ctx, "forever")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("y"), value)
}

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	store, _, now := newTestDatabaseStore(t)
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "rl:1", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)

	*now = now.Add(20 * time.Second)
	count, ttl, err = store.IncrementWithTTL(ctx, "rl:1", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.Equal(t, 40*time.Second, ttl)

	*now = now.Add(time.Minute)
	count, ttl, err = store.IncrementWithTTL(ctx, "rl:1", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	store, db, now := newTestDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, store.Set(ctx, "c", []byte("3"), 0))

	removed, err := store.PurgeExpired(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var remaining int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&remaining).Error)
	require.EqualValues(t, 2, remaining)
}

func TestNilDatabaseStore(t *testing.T) {
	var store *DatabaseStore
	require.Nil(t, NewDatabaseStore(nil))

	_, _, err := store.Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrStoreNotInitialised)
	_, err = store.PurgeExpired(context.Background(), time.Now())
	require.ErrorIs(t, err, ErrStoreNotInitialised)
}
