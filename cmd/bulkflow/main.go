// =============================================================================
// bulkflow 主入口
// =============================================================================
// 批量文档投递命令行工具
//
// 使用方法:
//
//	bulkflow ship --config bulkflow.yaml < docs.ndjson   # 投递 NDJSON 文档
//	bulkflow ship --file docs.ndjson --index logs        # 从文件读取并指定索引
//	bulkflow setup --config bulkflow.yaml                # 仅初始化启动资源
//	bulkflow replay --config bulkflow.yaml --limit 1000  # 重放故障转移记录
//	bulkflow version                                     # 显示版本信息
// =============================================================================

package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/bulkflow"
	"github.com/BaSui01/bulkflow/config"
	"github.com/BaSui01/bulkflow/failover"
	"github.com/BaSui01/bulkflow/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// maxLineSize 单个 NDJSON 文档的最大字节数
const maxLineSize = 16 * 1024 * 1024

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run 执行子命令并返回退出码
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "ship":
		return runShip(ctx, args[1:], stdin, stdout, stderr)
	case "setup":
		return runSetup(ctx, args[1:], stdout, stderr)
	case "replay":
		return runReplay(ctx, args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

// =============================================================================
// 🚚 ship 命令
// =============================================================================

func runShip(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ship", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	file := fs.String("file", "", "Read documents from file instead of stdin")
	index := fs.String("index", "", "Target index (defaults to destination.index)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, cleanup, code := bootstrap(*configPath, stderr)
	if cfg == nil {
		return code
	}
	defer cleanup()

	input := stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to open input: %v\n", err)
			return 1
		}
		defer f.Close()
		input = f
	}

	p, err := bulkflow.New(ctx, cfg, bulkflow.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stderr, "Failed to start pipeline: %v\n", err)
		return 1
	}

	lines, readErr := shipLines(ctx, p, input, *index)

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	closeErr := p.Close(closeCtx)

	stats := p.Stats()
	fmt.Fprintf(stdout, "documents: %d, batches: %d, accepted: %d, rejected: %d\n",
		lines, stats.Emitter.Batches, stats.Emitter.Accepted, stats.Emitter.Rejected)

	if readErr != nil && !errors.Is(readErr, context.Canceled) {
		fmt.Fprintf(stderr, "Failed to read input: %v\n", readErr)
		return 1
	}
	if closeErr != nil {
		fmt.Fprintf(stderr, "Failed to close pipeline: %v\n", closeErr)
		return 1
	}
	return 0
}

// shipLines 逐行读取文档，空行被忽略
func shipLines(ctx context.Context, p *bulkflow.Pipeline, r io.Reader, index string) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	n := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// Scanner 会复用底层缓冲区
		doc := append([]byte(nil), line...)
		if err := p.AddDocument(ctx, index, "", doc); err != nil {
			return n, err
		}
		n++
	}
	return n, scanner.Err()
}

// =============================================================================
// 🏗️ setup 命令
// =============================================================================

func runSetup(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, cleanup, code := bootstrap(*configPath, stderr)
	if cfg == nil {
		return code
	}
	defer cleanup()

	if cfg.Setup.IsEmpty() {
		fmt.Fprintln(stdout, "nothing to provision")
		return 0
	}

	if err := bulkflow.Provision(ctx, cfg, nil, logger, nil); err != nil {
		fmt.Fprintf(stderr, "Setup failed: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "setup completed")
	return 0
}

// =============================================================================
// 🔁 replay 命令
// =============================================================================

func runReplay(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	limit := fs.Int("limit", 0, "Maximum records to replay (0 = all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, cleanup, code := bootstrap(*configPath, stderr)
	if cfg == nil {
		return code
	}
	defer cleanup()

	if cfg.Failover.Kind != failover.KindRedis {
		fmt.Fprintln(stderr, "replay requires failover.kind=redis")
		return 1
	}

	source, err := failover.NewRedisPolicy(ctx, cfg.Failover.Redis, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to connect failover store: %v\n", err)
		return 1
	}
	defer source.Close()

	// 重放期间再次失败的文档写回同一列表
	p, err := bulkflow.New(ctx, cfg, bulkflow.WithLogger(logger), bulkflow.WithFailoverPolicy(source))
	if err != nil {
		fmt.Fprintf(stderr, "Failed to start pipeline: %v\n", err)
		return 1
	}

	pending, err := source.Len(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to read failover store: %v\n", err)
		_ = p.Close(context.Background())
		return 1
	}
	if *limit <= 0 || int64(*limit) > pending {
		*limit = int(pending)
	}

	replayed, replayErr := source.Replay(ctx, *limit, func(item failover.FailedItem) error {
		return p.Add(ctx, item.ToItem())
	})

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	closeErr := p.Close(closeCtx)

	fmt.Fprintf(stdout, "replayed: %d\n", replayed)
	if replayErr != nil {
		fmt.Fprintf(stderr, "Replay stopped: %v\n", replayErr)
		return 1
	}
	if closeErr != nil {
		fmt.Fprintf(stderr, "Failed to close pipeline: %v\n", closeErr)
		return 1
	}
	return 0
}

// =============================================================================
// 🔧 公共初始化
// =============================================================================

// bootstrap 加载配置、初始化日志与遥测；cfg 为 nil 时 code 为退出码
func bootstrap(configPath string, stderr io.Writer) (*config.Config, *zap.Logger, func(), int) {
	cfg, err := config.NewLoader().
		WithConfigPath(configPath).
		WithValidator((*config.Config).Validate).
		Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return nil, nil, nil, 1
	}

	logger := initLogger(cfg.Log)
	logger.Info("starting bulkflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return cfg, logger, cleanup, 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "bulkflow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `bulkflow - bulk document delivery

Usage:
  bulkflow <command> [options]

Commands:
  ship      Read NDJSON documents and deliver them in batches
  setup     Provision ILM policies, templates, aliases and data streams
  replay    Redeliver documents stored by the redis failover policy
  version   Show version information
  help      Show this help message

Options for 'ship':
  --config <path>   Path to configuration file (YAML)
  --file <path>     Read documents from file instead of stdin
  --index <name>    Target index (defaults to destination.index)

Options for 'replay':
  --config <path>   Path to configuration file (YAML)
  --limit <n>       Maximum records to replay (0 = all pending)

Environment:
  BULKFLOW_<SECTION>_<FIELD> overrides any config value, e.g.
  BULKFLOW_DESTINATION_SERVER_LIST=http://localhost:9200

Examples:
  bulkflow ship --config /etc/bulkflow/bulkflow.yaml < events.ndjson
  bulkflow setup --config /etc/bulkflow/bulkflow.yaml
  bulkflow replay --limit 1000
  bulkflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	// 构建配置
	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
