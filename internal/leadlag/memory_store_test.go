package leadlag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_StoreLoadDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage(nil)
	key := NewGroupKey("site-1", "boilers")

	_, err := store.Load(ctx, key)
	var notFound *GroupNotFoundError
	require.ErrorAs(t, err, &notFound)

	group := newTestGroup(key, []string{"b1", "b2"}, "b1")
	require.NoError(t, store.Store(ctx, group))

	loaded, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "b1", loaded.CurrentLeadID)
	assert.Equal(t, []string{"b1", "b2"}, loaded.Members)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Load(ctx, key)
	require.ErrorAs(t, err, &notFound)
}

func TestMemoryStorage_StoreIsolatesCallerMutation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage(nil)
	key := NewGroupKey("site-1", "boilers")

	group := newTestGroup(key, []string{"b1", "b2"}, "b1")
	require.NoError(t, store.Store(ctx, group))

	group.CurrentLeadID = "b2"

	loaded, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "b1", loaded.CurrentLeadID, "storage must not alias the caller's group")
}

func TestMemoryStorage_ListKeysSizeLoadAll(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage(nil)

	keyA := NewGroupKey("site-1", "boilers")
	keyB := NewGroupKey("site-1", "pumps")
	require.NoError(t, store.Store(ctx, newTestGroup(keyA, []string{"b1"}, "b1")))
	require.NoError(t, store.Store(ctx, newTestGroup(keyB, []string{"p1"}, "p1")))

	size, err := store.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []GroupKey{keyA, keyB}, keys)

	groups, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}

func TestMemoryStorage_Ping(t *testing.T) {
	store := NewMemoryStorage(nil)
	assert.NoError(t, store.Ping(context.Background()))
}
