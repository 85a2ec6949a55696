package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/board-collector/internal/app"
	"github.com/JakeFAU/board-collector/internal/config"
	"github.com/JakeFAU/board-collector/internal/logging"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	once := flag.String("once", "", "Run a single source and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	if err := run(context.Background(), cfg, logger, *once); err != nil {
		logger.Error("collector exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, once string) error {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	if once == "" {
		return a.Run(ctx)
	}

	defer a.Close()
	record, err := a.RunOnce(ctx, once)
	if err != nil {
		return err
	}
	logger.Info("single run finished",
		zap.String("source", record.Source),
		zap.String("status", string(record.Status)),
		zap.Int("crawled", record.Crawled),
		zap.Int("inserted", record.Inserted),
		zap.Int("updated", record.Updated),
	)
	return nil
}
