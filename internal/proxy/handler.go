// Package proxy answers the grid's image requests from the two-tier cache,
// falling back to a placeholder while the upstream fetch runs.
package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/thumbgrid/thumbgrid/internal/cache"
	"github.com/thumbgrid/thumbgrid/internal/logging"
	"github.com/thumbgrid/thumbgrid/internal/server"
)

const (
	headerCache       = "X-Thumbgrid-Cache"
	defaultWaitBudget = 30 * time.Second
)

// Images 是 Handler 依赖的缓存能力。命中时 Load 在返回前已写入结果。
type Images interface {
	Load(ctx context.Context, key string) <-chan cache.LoadResult
}

// Handler 负责 orchestrate “缓存命中 → 占位图 / 等待回源” 的流程。
type Handler struct {
	images     Images
	logger     *logrus.Logger
	waitBudget time.Duration
}

// NewHandler constructs an image handler around the shared coordinator.
func NewHandler(images Images, logger *logrus.Logger) *Handler {
	return &Handler{
		images:     images,
		logger:     logger,
		waitBudget: defaultWaitBudget,
	}
}

// Handle 通过 Load 查找缓存；命中直接返回图片，未命中时后台回源，并按 Wait
// 决定返回占位图还是等待结果。
func (h *Handler) Handle(c fiber.Ctx, req server.ImageRequest) error {
	started := time.Now()

	// 回源与请求生命周期解耦，客户端离开后仍会写入缓存。
	pending := h.images.Load(context.Background(), req.Key)
	select {
	case res := <-pending:
		return h.serveResult(c, req, res, started)
	default:
	}

	if !req.Wait {
		go h.drain(req, pending)
		h.logResult(req, cache.SourceNone, fiber.StatusAccepted, started, nil)
		return h.servePlaceholder(c)
	}

	timer := time.NewTimer(h.waitBudget)
	defer timer.Stop()

	select {
	case res := <-pending:
		return h.serveResult(c, req, res, started)
	case <-timer.C:
		go h.drain(req, pending)
		h.logResult(req, cache.SourceNone, fiber.StatusAccepted, started, errors.New("wait budget exceeded"))
		return h.servePlaceholder(c)
	}
}

// serveResult 将一次加载结果写回响应：回源失败返回 502，没有图片（上游内容
// 无法解码）时保留占位图。
func (h *Handler) serveResult(c fiber.Ctx, req server.ImageRequest, res cache.LoadResult, started time.Time) error {
	switch {
	case res.Err != nil:
		h.logResult(req, cache.SourceNetwork, fiber.StatusBadGateway, started, res.Err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_failed"})
	case res.Image == nil:
		h.logResult(req, cache.SourceNone, fiber.StatusAccepted, started, nil)
		return h.servePlaceholder(c)
	default:
		h.logResult(req, res.Source, fiber.StatusOK, started, nil)
		return h.serveImage(c, res.Image, res.Source)
	}
}

func (h *Handler) serveImage(c fiber.Ctx, img *cache.CachedImage, source cache.Source) error {
	c.Set(fiber.HeaderContentType, img.ContentType())
	c.Set(headerCache, source.String())
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	return c.Status(fiber.StatusOK).Send(img.Raw)
}

func (h *Handler) servePlaceholder(c fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(headerCache, "pending")
	c.Set(fiber.HeaderRetryAfter, "1")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Status(fiber.StatusAccepted).Send(Placeholder())
}

// drain 等待后台加载完成，只记录失败。
func (h *Handler) drain(req server.ImageRequest, pending <-chan cache.LoadResult) {
	res := <-pending
	if res.Err != nil {
		h.logger.WithError(res.Err).
			WithFields(logging.RequestFields(req.RequestID, req.Key, cache.SourceNetwork.String())).
			Warn("background_load_failed")
	}
}

func (h *Handler) logResult(req server.ImageRequest, source cache.Source, status int, started time.Time, err error) {
	fields := logging.RequestFields(req.RequestID, req.Key, source.String())
	fields["action"] = "image"
	fields["status"] = status
	fields["wait"] = req.Wait
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Warn("image_failed")
		return
	}
	h.logger.WithFields(fields).Debug("image_served")
}
