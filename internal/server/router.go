package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/thumbgrid/thumbgrid/internal/fetcher"
)

// ImageRequest 是路由层解析后的单张图片请求。
type ImageRequest struct {
	// Key 是图片源 URL，即缓存的 ResourceKey。
	Key string
	// Wait 为 true 时，未命中请求会阻塞等待回源完成而不是返回占位图。
	Wait bool
	// RequestID 与响应头 X-Request-ID 一致，便于串联日志。
	RequestID string
}

// ImageHandler describes the component that answers image requests from the
// grid. It allows injecting fake handlers during tests.
type ImageHandler interface {
	Handle(fiber.Ctx, ImageRequest) error
}

// ImageHandlerFunc adapts a function to the ImageHandler interface.
type ImageHandlerFunc func(fiber.Ctx, ImageRequest) error

// Handle makes ImageHandlerFunc satisfy ImageHandler.
func (f ImageHandlerFunc) Handle(c fiber.Ctx, req ImageRequest) error {
	return f(c, req)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Images     ImageHandler
	ListenPort int
}

const contextKeyRequestID = "_thumbgrid_request_id"

// NewApp builds a Fiber application with request-ID middleware and the
// /images endpoint wired to opts.Images.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Images == nil {
		return nil, errors.New("image handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.Get("/images", func(c fiber.Ctx) error {
		req, err := parseImageRequest(c)
		if err != nil {
			return renderInvalidURL(c, opts.Logger, err)
		}
		return opts.Images.Handle(c, req)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID 并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

func parseImageRequest(c fiber.Ctx) (ImageRequest, error) {
	// Query 返回的字符串引用 fasthttp 缓冲区，key 会被后台加载与缓存持有，需复制。
	key := strings.Clone(strings.TrimSpace(c.Query("url")))
	if err := fetcher.ValidateURL(key); err != nil {
		return ImageRequest{}, err
	}
	return ImageRequest{
		Key:       key,
		Wait:      parseBool(c.Query("wait")),
		RequestID: RequestID(c),
	}, nil
}

func parseBool(raw string) bool {
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}

func renderInvalidURL(c fiber.Ctx, logger *logrus.Logger, err error) error {
	logger.WithFields(logrus.Fields{
		"action":     "parse_request",
		"request_id": RequestID(c),
	}).WithError(err).Warn("invalid image url")

	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "invalid_url",
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
