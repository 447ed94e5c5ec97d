package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/thumbgrid/thumbgrid/internal/cache"
	"github.com/thumbgrid/thumbgrid/internal/config"
	"github.com/thumbgrid/thumbgrid/internal/fetcher"
	"github.com/thumbgrid/thumbgrid/internal/logging"
	"github.com/thumbgrid/thumbgrid/internal/proxy"
	"github.com/thumbgrid/thumbgrid/internal/server"
	"github.com/thumbgrid/thumbgrid/internal/server/routes"
	"github.com/thumbgrid/thumbgrid/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["cache_dir"] = cfg.Global.CacheDir
		fields["memory_entries"] = cfg.Global.MemoryCacheEntries
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	coord, err := buildCoordinator(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache_dir"] = cfg.Global.CacheDir
	fields["memory_entries"] = cfg.Global.MemoryCacheEntries
	fields["disk_enabled"] = coord.DiskEnabled()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, coord, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// buildCoordinator 按“内存层 → 磁盘层 → 回源 client”顺序组装唯一的缓存协调器，
// 由 HTTP 层注入使用。磁盘层构建失败时降级为仅内存缓存。
func buildCoordinator(cfg *config.Config, logger *logrus.Logger) (*cache.Coordinator, error) {
	memory, err := cache.NewMemoryStore(cfg.Global.MemoryCacheEntries)
	if err != nil {
		return nil, err
	}

	var disk cache.DiskStore
	if store, err := cache.NewDiskStore(cfg.Global.CacheDir); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"action":    "disk_cache",
			"cache_dir": cfg.Global.CacheDir,
		}).Warn("磁盘缓存不可用，仅使用内存缓存")
	} else {
		disk = store
	}

	upstream := fetcher.New(fetcher.Options{
		Client:    fetcher.NewUpstreamClient(cfg),
		Logger:    logger,
		MaxBytes:  cfg.Global.MaxImageBytes,
		UserAgent: cfg.Global.UserAgent,
	})

	return cache.NewCoordinator(cache.CoordinatorOptions{
		Memory:  memory,
		Disk:    disk,
		Fetcher: upstream,
		Logger:  logger,
	})
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("thumbgrid", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 THUMBGRID_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("THUMBGRID_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, coord *cache.Coordinator, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Images:     proxy.NewHandler(coord, logger),
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterCacheRoutes(app, coord, cfg.Global.CacheDir, logger)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
