package fetcher

import (
	"errors"
	"fmt"
)

// ErrTooLarge 表示响应体超过 MaxImageBytes。
var ErrTooLarge = errors.New("image exceeds size limit")

// NetworkError 描述一次失败的回源：传输错误、非 2xx 状态或超限响应。
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err carries a *NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
