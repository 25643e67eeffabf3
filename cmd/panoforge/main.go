package main

import (
	"context"
	"fmt"
	"os"

	"panoforge/internal/cli"
	"panoforge/internal/config"
	"panoforge/internal/logging"
	"panoforge/internal/pipeline"
	"panoforge/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "panoforge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	store, err := storage.New(cfg.Paths.DatabasePath)
	if err != nil {
		log.Warn("run history disabled", "error", err)
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	ctx := context.Background()
	pipe := pipeline.New(ctx, cfg.Processing.ParallelJobs, log, store, cfg)
	defer pipe.Stop()

	return cli.NewRootCmd(cfg, log, store, pipe).Execute()
}
