package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fixture 返回 testdata 下的配置样例路径。
func fixture(name string) string {
	return filepath.Join("testdata", name)
}

// writeConfig 将若干 TOML 片段逐行写入临时目录中的 config.toml。
func writeConfig(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	body := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("写入临时配置 %s 失败: %v", path, err)
	}
	return path
}
