package config

import (
	"errors"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError(globalField("ListenPort"), "必须在 1-65535")
	}
	if strings.TrimSpace(g.CacheDir) == "" {
		return newFieldError(globalField("CacheDir"), "不能为空")
	}
	if g.MemoryCacheEntries <= 0 {
		return newFieldError(globalField("MemoryCacheEntries"), "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError(globalField("UpstreamTimeout"), "必须大于 0")
	}
	if g.MaxImageBytes <= 0 {
		return newFieldError(globalField("MaxImageBytes"), "必须大于 0")
	}
	if g.LogMaxSize < 0 || g.LogMaxBackups < 0 || g.LogMaxAgeDays < 0 {
		return newFieldError(globalField("LogMaxSize/LogMaxBackups/LogMaxAgeDays"), "不能为负数")
	}
	return nil
}
