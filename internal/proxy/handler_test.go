package proxy

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thumbgrid/thumbgrid/internal/cache"
	"github.com/thumbgrid/thumbgrid/internal/fetcher"
	"github.com/thumbgrid/thumbgrid/internal/logging"
	"github.com/thumbgrid/thumbgrid/internal/server"
)

func TestHandleWaitFetchesThenServesFromMemory(t *testing.T) {
	env := newHandlerEnv(t)

	resp := env.get(t, "/thumbs/a.png", true)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "network", resp.Header.Get(headerCache))
	assert.Equal(t, "image/png", resp.Header.Get(fiber.HeaderContentType))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, env.payload, body)

	resp = env.get(t, "/thumbs/a.png", false)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "memory", resp.Header.Get(headerCache))
	assert.Equal(t, int64(1), env.upstreamHits.Load())
}

func TestHandlePendingServesPlaceholderAndPopulatesCache(t *testing.T) {
	env := newHandlerEnv(t)

	resp := env.get(t, "/thumbs/b.png", false)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "pending", resp.Header.Get(headerCache))
	assert.Equal(t, "1", resp.Header.Get(fiber.HeaderRetryAfter))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, Placeholder(), body)

	key := env.upstream.URL + "/thumbs/b.png"
	require.Eventually(t, func() bool {
		_, ok := env.memory.Get(key)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	resp = env.get(t, "/thumbs/b.png", false)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "memory", resp.Header.Get(headerCache))
}

func TestHandleServesFromDiskAfterMemoryPurge(t *testing.T) {
	env := newHandlerEnv(t)

	resp := env.get(t, "/thumbs/c.png", true)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	env.memory.Purge()

	resp = env.get(t, "/thumbs/c.png", false)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "disk", resp.Header.Get(headerCache))
	assert.Equal(t, int64(1), env.upstreamHits.Load())
}

func TestHandleUpstreamFailure(t *testing.T) {
	env := newHandlerEnv(t)

	resp := env.get(t, "/status/500", true)
	require.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "upstream_failed", decodeError(t, resp))
}

func TestHandleUndecodableUpstreamKeepsPlaceholder(t *testing.T) {
	env := newHandlerEnv(t)

	resp := env.get(t, "/html", true)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "pending", resp.Header.Get(headerCache))
	assert.Equal(t, "image/png", resp.Header.Get(fiber.HeaderContentType))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, Placeholder(), body)

	_, ok := env.memory.Get(env.upstream.URL + "/html")
	assert.False(t, ok, "undecodable payload must stay uncached")
}

func TestPlaceholderIsValidPNG(t *testing.T) {
	img, err := png.Decode(bytes.NewReader(Placeholder()))
	require.NoError(t, err)
	assert.Equal(t, placeholderSize, img.Bounds().Dx())
}

type handlerEnv struct {
	app          *fiber.App
	upstream     *httptest.Server
	memory       *cache.LRUMemoryStore
	payload      []byte
	upstreamHits atomic.Int64
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	env := &handlerEnv{payload: encodePNG(t)}

	mux := http.NewServeMux()
	mux.HandleFunc("/thumbs/", func(w http.ResponseWriter, r *http.Request) {
		env.upstreamHits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(env.payload)
	})
	mux.HandleFunc("/status/500", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})
	env.upstream = httptest.NewServer(mux)
	t.Cleanup(env.upstream.Close)

	logger := logging.NewDiscardLogger()
	memory, err := cache.NewMemoryStore(16)
	require.NoError(t, err)
	disk, err := cache.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	coord, err := cache.NewCoordinator(cache.CoordinatorOptions{
		Memory:  memory,
		Disk:    disk,
		Fetcher: fetcher.New(fetcher.Options{Client: env.upstream.Client(), Logger: logger}),
		Logger:  logger,
	})
	require.NoError(t, err)
	env.memory = memory

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Images:     NewHandler(coord, logger),
		ListenPort: 8080,
	})
	require.NoError(t, err)
	env.app = app
	return env
}

func (e *handlerEnv) get(t *testing.T, upstreamPath string, wait bool) *http.Response {
	t.Helper()
	target := "/images?url=" + url.QueryEscape(e.upstream.URL+upstreamPath)
	if wait {
		target += "&wait=1"
	}
	resp, err := e.app.Test(httptest.NewRequest("GET", target, nil), 5*time.Second)
	require.NoError(t, err)
	return resp
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0x7f
	}
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload["error"]
}
