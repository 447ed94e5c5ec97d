package cache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoryEntries 是未配置容量时内存层可保留的图片数量。
const DefaultMemoryEntries = 512

// LRUMemoryStore 基于 golang-lru 实现 MemoryStore，内部自带锁，可被多个
// fetch 回调与请求 goroutine 并发访问。
type LRUMemoryStore struct {
	entries   *lru.Cache[string, *CachedImage]
	capacity  int
	evictions atomic.Int64
}

// NewMemoryStore 构建容量为 capacity 的内存缓存；capacity <= 0 时使用默认值。
func NewMemoryStore(capacity int) (*LRUMemoryStore, error) {
	if capacity <= 0 {
		capacity = DefaultMemoryEntries
	}
	s := &LRUMemoryStore{capacity: capacity}
	entries, err := lru.NewWithEvict[string, *CachedImage](capacity, func(string, *CachedImage) {
		s.evictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("create memory store: %w", err)
	}
	s.entries = entries
	return s, nil
}

func (s *LRUMemoryStore) Get(key string) (*CachedImage, bool) {
	return s.entries.Get(key)
}

func (s *LRUMemoryStore) Set(key string, img *CachedImage) {
	if img == nil {
		return
	}
	s.entries.Add(key, img)
}

func (s *LRUMemoryStore) Purge() {
	s.entries.Purge()
}

func (s *LRUMemoryStore) Len() int {
	return s.entries.Len()
}

// Capacity 返回最大条目数。
func (s *LRUMemoryStore) Capacity() int {
	return s.capacity
}

// Evictions 返回累计被淘汰（含 Purge）的条目数。
func (s *LRUMemoryStore) Evictions() int64 {
	return s.evictions.Load()
}
