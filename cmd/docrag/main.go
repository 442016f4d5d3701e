package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/DreamCats/docrag/cmd/docrag/internal"
	"github.com/DreamCats/docrag/internal/config"
	"github.com/DreamCats/docrag/internal/indexer"
)

// main 启动 docrag 命令行工具，解析全局参数并执行对应子命令。
// 若参数无效或缺少子命令则打印用法并退出。
func main() {
	if len(os.Args) < 2 {
		internal.PrintUsage()
		os.Exit(1)
	}

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	configPath := ""
	dbPath := ""
	args := os.Args[1:]

	// Find the subcommand (first non-flag argument that is a valid subcommand)
	validSubcommands := map[string]bool{
		"ingest":  true,
		"search":  true,
		"review":  true,
		"docs":    true,
		"reembed": true,
		"watch":   true,
		"stats":   true,
		"serve":   true,
		"mcp":     true,
	}

	subcommandIndex := -1
	for i, arg := range args {
		if !strings.HasPrefix(arg, "-") && validSubcommands[arg] {
			subcommandIndex = i
			break
		}
	}

	// Global flags are the arguments before the subcommand
	globalFlags := args
	if subcommandIndex >= 0 {
		globalFlags = args[:subcommandIndex]
	}
	for i := 0; i < len(globalFlags); i++ {
		flag := globalFlags[i]
		switch flag {
		case "-config", "--config":
			if i+1 < len(globalFlags) {
				configPath = globalFlags[i+1]
				i++
			}
		case "-db", "--db":
			if i+1 < len(globalFlags) {
				dbPath = globalFlags[i+1]
				i++
			}
		case "-h", "-help", "--help":
			internal.PrintUsage()
			os.Exit(0)
		case "-v", "-version", "--version":
			fmt.Printf("docrag version %s\n", internal.Version)
			os.Exit(0)
		default:
			if strings.HasPrefix(flag, "-") {
				fmt.Fprintf(os.Stderr, "Error: Unknown global flag: %s\n\n", flag)
				internal.PrintUsage()
				os.Exit(1)
			}
		}
	}

	if subcommandIndex == -1 {
		fmt.Fprintf(os.Stderr, "Error: No subcommand specified\n\n")
		internal.PrintUsage()
		os.Exit(1)
	}

	subcommand := args[subcommandIndex]
	subcommandArgs := args[subcommandIndex+1:]

	cfg := loadConfig(configPath, subcommand)
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if _, err := internal.SetupLogging(subcommand); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize log file: %v\n", err)
	}

	switch subcommand {
	case "ingest":
		handleIngest(cfg, subcommandArgs)
	case "search":
		handleSearch(cfg, subcommandArgs)
	case "review":
		handleReview(cfg, subcommandArgs)
	case "docs":
		handleDocs(cfg, subcommandArgs)
	case "reembed":
		handleReembed(cfg, subcommandArgs)
	case "watch":
		handleWatch(cfg, subcommandArgs)
	case "stats":
		handleStats(cfg, subcommandArgs)
	case "serve":
		handleServe(cfg, subcommandArgs)
	case "mcp":
		handleMCP(cfg, subcommandArgs)
	default:
		fmt.Printf("Unknown subcommand: %s\n\n", subcommand)
		internal.PrintUsage()
		os.Exit(1)
	}
}

// loadConfig 读取配置文件。默认位置不存在时退回到纯环境变量配置，
// 首次 ingest 时顺便写出一份模板。显式指定的 -config 不存在则报错退出。
func loadConfig(configPath, subcommand string) *config.Config {
	cfg, err := internal.LoadConfig(configPath)
	if err == nil {
		return cfg
	}

	notFoundErr, ok := err.(*config.ConfigNotFoundError)
	if !ok {
		log.Fatalf("Failed to load config: %v\n", err)
	}
	if configPath != "" {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		internal.PrintConfigExample()
		os.Exit(1)
	}

	if subcommand == "ingest" {
		created, createErr := config.WriteDefaultTemplate(notFoundErr.RequestedPath)
		if createErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create default config at %s: %v\n", notFoundErr.RequestedPath, createErr)
		} else if created {
			fmt.Fprintf(os.Stderr, "Created default config at %s\n", notFoundErr.RequestedPath)
		}
	}

	cfg, err = config.FromEnv()
	if err != nil {
		log.Fatalf("Failed to load config from environment: %v\n", err)
	}
	return cfg
}

// openIndexer 创建 Indexer，并在启用关键词索引时补齐空索引。
func openIndexer(cfg *config.Config) *indexer.Indexer {
	idx, err := indexer.NewIndexer(cfg)
	if err != nil {
		log.Fatalf("Failed to create indexer: %v", err)
	}
	if err := idx.SyncTextIndex(context.Background()); err != nil {
		log.Printf("Warning: failed to sync text index: %v", err)
	}
	return idx
}

// closeIndexer 等待后台 embedding 任务结束（最长 drain）后关闭存储。
func closeIndexer(idx *indexer.Indexer, drain bool) {
	ctx := context.Background()
	if !drain {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		cancel()
	}
	_ = idx.Close(ctx)
}
