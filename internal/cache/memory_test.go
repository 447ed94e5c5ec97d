package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreMissForUnknownKey(t *testing.T) {
	store := newTestMemoryStore(t, 4)
	img, ok := store.Get("https://example.com/never.png")
	assert.False(t, ok)
	assert.Nil(t, img)
}

func TestMemoryStoreSetIsIdempotent(t *testing.T) {
	store := newTestMemoryStore(t, 4)
	img := &CachedImage{Key: "k", Format: "png"}

	store.Set("k", img)
	store.Set("k", img)

	got, ok := store.Get("k")
	require.True(t, ok)
	assert.Same(t, img, got)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	store := newTestMemoryStore(t, 2)
	store.Set("a", &CachedImage{Key: "a"})
	store.Set("b", &CachedImage{Key: "b"})
	_, _ = store.Get("a")
	store.Set("c", &CachedImage{Key: "c"})

	_, ok := store.Get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = store.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, int64(1), store.Evictions())
}

func TestMemoryStoreIgnoresNil(t *testing.T) {
	store := newTestMemoryStore(t, 2)
	store.Set("a", nil)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreDefaultCapacity(t *testing.T) {
	store := newTestMemoryStore(t, 0)
	assert.Equal(t, DefaultMemoryEntries, store.Capacity())
}

func TestMemoryStorePurge(t *testing.T) {
	store := newTestMemoryStore(t, 4)
	store.Set("a", &CachedImage{Key: "a"})
	store.Purge()
	_, ok := store.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreConcurrentSetDistinctKeys(t *testing.T) {
	const workers = 50
	store := newTestMemoryStore(t, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("https://example.com/%d.png", i)
			store.Set(key, &CachedImage{Key: key})
			_, _ = store.Get(key)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		key := fmt.Sprintf("https://example.com/%d.png", i)
		img, ok := store.Get(key)
		require.True(t, ok, "missing %s", key)
		assert.Equal(t, key, img.Key)
	}
}
