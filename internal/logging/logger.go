package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/thumbgrid/thumbgrid/internal/config"
	"github.com/thumbgrid/thumbgrid/internal/version"
)

const serviceName = "thumbgrid"

// InitLogger 根据全局配置初始化 JSON 结构化日志。日志文件不可用时降级到 stdout，
// 并以一条 logger_fallback 告警说明原因，而不是让进程启动失败。
func InitLogger(cfg config.GlobalConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("无法解析日志级别: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	logger.AddHook(serviceHook{version: version.Version})

	var fallbackErr error
	if cfg.LogFilePath == "" {
		logger.SetOutput(os.Stdout)
	} else if writer, err := rotatingWriter(cfg); err != nil {
		fallbackErr = err
		fmt.Fprintf(os.Stderr, "logger_fallback: %v\n", err)
		logger.SetOutput(os.Stdout)
	} else {
		logger.SetOutput(writer)
	}

	// 第三方库经由标准 logger 输出时保持同样的格式与去向。
	logrus.SetFormatter(logger.Formatter)
	logrus.SetOutput(logger.Out)
	logrus.SetLevel(level)

	if fallbackErr != nil {
		logger.WithError(fallbackErr).WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   cfg.LogFilePath,
		}).Warn("日志文件不可用，改为输出到 stdout")
	}
	return logger, nil
}

// NewDiscardLogger 返回丢弃全部输出的 logger，测试与嵌入场景使用。
func NewDiscardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// rotatingWriter 预先创建日志目录，再交给 lumberjack 按大小与天数轮转。
func rotatingWriter(cfg config.GlobalConfig) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0o755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}, nil
}

// serviceHook 为每条日志补充 service 与 version 字段，便于多实例日志汇总后区分来源。
type serviceHook struct {
	version string
}

func (serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h serviceHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["service"]; !ok {
		entry.Data["service"] = serviceName
	}
	entry.Data["version"] = h.version
	return nil
}
