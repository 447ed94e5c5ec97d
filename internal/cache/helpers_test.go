package cache

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thumbgrid/thumbgrid/internal/logging"
)

// pngBytes encodes a w×h image filled with c.
func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestDiskStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func newTestMemoryStore(t *testing.T, capacity int) *LRUMemoryStore {
	t.Helper()
	store, err := NewMemoryStore(capacity)
	require.NoError(t, err)
	return store
}

// countingDisk records how often each tier operation reaches the wrapped store.
type countingDisk struct {
	DiskStore
	gets atomic.Int64
	puts atomic.Int64
	err  error
}

func (d *countingDisk) Get(ctx context.Context, key string) ([]byte, error) {
	d.gets.Add(1)
	return d.DiskStore.Get(ctx, key)
}

func (d *countingDisk) Put(ctx context.Context, key string, data []byte) (*Entry, error) {
	d.puts.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return d.DiskStore.Put(ctx, key, data)
}

// stubFetcher serves fixed payloads per key and counts calls.
type stubFetcher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	err      error
	release  chan struct{}
	calls    atomic.Int64
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[url], nil
}

type coordinatorFixture struct {
	coord   *Coordinator
	memory  *LRUMemoryStore
	disk    *countingDisk
	fetcher *stubFetcher
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	memory := newTestMemoryStore(t, 64)
	disk := &countingDisk{DiskStore: newTestDiskStore(t)}
	fetcher := &stubFetcher{payloads: map[string][]byte{}}
	coord, err := NewCoordinator(CoordinatorOptions{
		Memory:  memory,
		Disk:    disk,
		Fetcher: fetcher,
		Logger:  logging.NewDiscardLogger(),
	})
	require.NoError(t, err)
	return &coordinatorFixture{coord: coord, memory: memory, disk: disk, fetcher: fetcher}
}
