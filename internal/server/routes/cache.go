package routes

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/thumbgrid/thumbgrid/internal/cache"
	"github.com/thumbgrid/thumbgrid/internal/fetcher"
	"github.com/thumbgrid/thumbgrid/internal/logging"
	"github.com/thumbgrid/thumbgrid/internal/server"
)

const maxPrefetchURLs = 500

// Coordinator 是诊断与预取接口依赖的缓存能力子集。
// 命中时 Load 在返回前已写入结果，因此 prefetch 可以非阻塞地读取命中层级。
type Coordinator interface {
	Load(ctx context.Context, key string) <-chan cache.LoadResult
	InFlight() int
	DiskEnabled() bool
	Memory() cache.MemoryStore
}

// RegisterCacheRoutes 暴露 /-/cache 诊断接口与 /-/prefetch 批量预取接口。
func RegisterCacheRoutes(app *fiber.App, coord Coordinator, cacheDir string, logger *logrus.Logger) {
	if app == nil || coord == nil {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app.Get("/-/cache", func(c fiber.Ctx) error {
		return c.JSON(encodeStats(coord, cacheDir))
	})

	app.Post("/-/prefetch", func(c fiber.Ctx) error {
		var req prefetchRequest
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
		}
		if len(req.URLs) > maxPrefetchURLs {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "too_many_urls"})
		}
		results := prefetch(coord, logger, server.RequestID(c), req.URLs)
		return c.JSON(fiber.Map{"results": results})
	})
}

type statsPayload struct {
	MemoryEntries  int    `json:"memory_entries"`
	MemoryCapacity int    `json:"memory_capacity,omitempty"`
	CacheDir       string `json:"cache_dir"`
	DiskEnabled    bool   `json:"disk_enabled"`
	InFlight       int    `json:"inflight"`
}

type prefetchRequest struct {
	URLs []string `json:"urls"`
}

type prefetchResult struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

func encodeStats(coord Coordinator, cacheDir string) statsPayload {
	payload := statsPayload{
		CacheDir:    cacheDir,
		DiskEnabled: coord.DiskEnabled(),
		InFlight:    coord.InFlight(),
	}
	if mem := coord.Memory(); mem != nil {
		payload.MemoryEntries = mem.Len()
		if sized, ok := mem.(interface{ Capacity() int }); ok {
			payload.MemoryCapacity = sized.Capacity()
		}
	}
	return payload
}

// prefetch 对每个 URL 发起一次 Load：内存或磁盘命中直接报告层级，其余在后台回源。
func prefetch(coord Coordinator, logger *logrus.Logger, requestID string, urls []string) []prefetchResult {
	results := make([]prefetchResult, 0, len(urls))
	ctx := context.Background()
	for _, raw := range urls {
		if err := fetcher.ValidateURL(raw); err != nil {
			results = append(results, prefetchResult{URL: raw, Status: "invalid"})
			continue
		}
		pending := coord.Load(ctx, raw)
		select {
		case res := <-pending:
			if res.Image != nil && (res.Source == cache.SourceMemory || res.Source == cache.SourceDisk) {
				results = append(results, prefetchResult{URL: raw, Status: res.Source.String()})
				continue
			}
			logLoadFailure(logger, requestID, raw, res)
		default:
			go drainLoad(logger, requestID, raw, pending)
		}
		results = append(results, prefetchResult{URL: raw, Status: "pending"})
	}
	return results
}

func drainLoad(logger *logrus.Logger, requestID, key string, ch <-chan cache.LoadResult) {
	logLoadFailure(logger, requestID, key, <-ch)
}

func logLoadFailure(logger *logrus.Logger, requestID, key string, res cache.LoadResult) {
	if res.Err != nil {
		logger.WithError(res.Err).
			WithFields(logging.RequestFields(requestID, key, cache.SourceNetwork.String())).
			Warn("prefetch_failed")
	}
}
