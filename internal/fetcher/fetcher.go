package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

const defaultMaxBytes = 20 * 1024 * 1024

// Options 控制 HTTPFetcher 的请求行为。
type Options struct {
	Client    *http.Client
	Logger    *logrus.Logger
	MaxBytes  int64
	UserAgent string
}

// HTTPFetcher 通过共享 http.Client 下载图片原始字节。
type HTTPFetcher struct {
	client    *http.Client
	logger    *logrus.Logger
	maxBytes  int64
	userAgent string
}

// New constructs an HTTPFetcher with the provided options.
func New(opts Options) *HTTPFetcher {
	client := opts.Client
	if client == nil {
		client = NewUpstreamClient(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &HTTPFetcher{
		client:    client,
		logger:    logger,
		maxBytes:  maxBytes,
		userAgent: opts.UserAgent,
	}
}

// Fetch 下载 rawURL 对应的字节，失败时返回 *NetworkError。
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "image/*")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &NetworkError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	if resp.ContentLength > f.maxBytes {
		return nil, &NetworkError{URL: rawURL, Err: ErrTooLarge}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &NetworkError{URL: rawURL, Err: ErrTooLarge}
	}

	f.logger.WithFields(logrus.Fields{
		"action":     "fetch",
		"url":        rawURL,
		"status":     resp.StatusCode,
		"size_bytes": len(body),
	}).Debug("upstream_fetch_completed")
	return body, nil
}

// ValidateURL 只接受带 Host 的 http/https 绝对地址。
func ValidateURL(raw string) error {
	if raw == "" {
		return errors.New("缺少图片地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("图片地址缺少 Host: %s", raw)
	}
	return nil
}
