package cache

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/thumbgrid/thumbgrid/internal/logging"
)

// Fetcher 在内存与磁盘均未命中时按 URL 拉取原始字节。
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch makes FetcherFunc satisfy Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// LookupResult 是一次同步查找的命中结果。
type LookupResult struct {
	Image  *CachedImage
	Source Source
}

// LoadResult 是一次异步加载的最终结果。只有回源失败会设置 Err；
// 上游返回无法解码的内容时 Image 为 nil、Source 为 SourceNone，按未命中处理。
type LoadResult struct {
	Image  *CachedImage
	Source Source
	Err    error
}

// CoordinatorOptions 汇总 Coordinator 的依赖。Disk 可为空，此时磁盘层视为永远未命中。
type CoordinatorOptions struct {
	Memory  MemoryStore
	Disk    DiskStore
	Fetcher Fetcher
	Logger  *logrus.Logger
}

// Coordinator 负责 orchestrate “内存 → 磁盘 → 回源写穿透” 的全流程。
// 同一 key 的并发回源通过 singleflight 合并为一次。
type Coordinator struct {
	memory  MemoryStore
	disk    DiskStore
	writer  WriteThrough
	fetcher Fetcher
	logger  *logrus.Logger

	flights  singleflight.Group
	inflight atomic.Int64
}

// NewCoordinator constructs a coordinator; callers create one per presentation
// surface and inject it rather than reaching for a global.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Memory == nil {
		return nil, errors.New("memory store is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator{
		memory:  opts.Memory,
		disk:    opts.Disk,
		writer:  NewWriteThrough(opts.Memory, opts.Disk),
		fetcher: opts.Fetcher,
		logger:  logger,
	}, nil
}

// Lookup 依次查询内存与磁盘。磁盘命中时解码并回填内存。任何磁盘/解码错误
// 都只记录日志并按未命中处理。
func (c *Coordinator) Lookup(ctx context.Context, key string) (LookupResult, bool) {
	if img, ok := c.memory.Get(key); ok {
		return LookupResult{Image: img, Source: SourceMemory}, true
	}
	if c.disk == nil {
		return LookupResult{}, false
	}

	data, err := c.disk.Get(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		return LookupResult{}, false
	default:
		c.logger.WithError(err).
			WithFields(logging.CacheFields(key, SourceDisk.String())).
			Warn("cache_disk_read_failed")
		return LookupResult{}, false
	}

	img, err := Decode(key, data)
	if err != nil {
		c.logger.WithError(err).
			WithFields(logging.CacheFields(key, SourceDisk.String())).
			Warn("cache_decode_failed")
		return LookupResult{}, false
	}
	c.memory.Set(key, img)
	return LookupResult{Image: img, Source: SourceDisk}, true
}

// Store 解码新获取的字节并写穿透到两层缓存。解码失败返回 ErrDecode 且不写入；
// 磁盘写入失败只记录日志。
func (c *Coordinator) Store(ctx context.Context, key string, data []byte) (*CachedImage, error) {
	img, err := Decode(key, data)
	if err != nil {
		c.logger.WithError(err).
			WithFields(logging.CacheFields(key, SourceNetwork.String())).
			Warn("cache_decode_failed")
		return nil, err
	}

	if _, err := c.writer.Put(ctx, img); err != nil && !errors.Is(err, ErrStoreUnavailable) {
		c.logger.WithError(err).
			WithFields(logging.CacheFields(key, SourceDisk.String())).
			Warn("cache_disk_write_failed")
	}
	return img, nil
}

type flightResult struct {
	image  *CachedImage
	source Source
}

// Load 先执行 Lookup，命中时在返回前就把结果写入 channel；否则在后台 goroutine
// 中回源并写入缓存。返回的 channel 恰好收到一个值随后关闭，由接收方决定在哪个
// goroutine 上应用结果。Load 与调用方的取消解耦：已取消的 ctx 既不会跳过磁盘层，
// 也不会中断回源。
func (c *Coordinator) Load(ctx context.Context, key string) <-chan LoadResult {
	out := make(chan LoadResult, 1)
	fetchCtx := context.WithoutCancel(ctx)
	if res, ok := c.Lookup(fetchCtx, key); ok {
		out <- LoadResult{Image: res.Image, Source: res.Source}
		close(out)
		return out
	}

	flight := c.flights.DoChan(key, func() (any, error) {
		c.inflight.Add(1)
		defer c.inflight.Add(-1)

		// 上一轮 flight 可能刚好在 Lookup 之后完成。
		if img, ok := c.memory.Get(key); ok {
			return flightResult{image: img, source: SourceMemory}, nil
		}

		data, err := c.fetcher.Fetch(fetchCtx, key)
		if err != nil {
			c.logger.WithError(err).
				WithFields(logging.CacheFields(key, SourceNetwork.String())).
				Warn("image_fetch_failed")
			return nil, err
		}
		img, err := c.Store(fetchCtx, key, data)
		if errors.Is(err, ErrDecode) {
			// Store 已记录日志；无法解码的响应视为未命中，不作为失败上报。
			return flightResult{source: SourceNone}, nil
		}
		if err != nil {
			return nil, err
		}
		c.logger.WithFields(logging.CacheFields(key, SourceNetwork.String())).
			WithField("size_bytes", len(data)).
			Debug("image_fetched")
		return flightResult{image: img, source: SourceNetwork}, nil
	})

	go func() {
		defer close(out)
		res := <-flight
		if res.Err != nil {
			out <- LoadResult{Err: res.Err}
			return
		}
		fr, _ := res.Val.(flightResult)
		out <- LoadResult{Image: fr.image, Source: fr.source}
	}()
	return out
}

// InFlight 返回当前正在进行的回源数量。
func (c *Coordinator) InFlight() int {
	return int(c.inflight.Load())
}

// DiskEnabled 报告磁盘层是否可用；为 false 时只剩内存缓存。
func (c *Coordinator) DiskEnabled() bool {
	return c.writer.DiskEnabled()
}

// Memory exposes the memory tier for diagnostics and tests.
func (c *Coordinator) Memory() MemoryStore {
	return c.memory
}
