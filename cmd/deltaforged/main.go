// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/deltaforge/deltaforge/lib/clock"
	"github.com/deltaforge/deltaforge/lib/config"
	"github.com/deltaforge/deltaforge/lib/deltacache"
	"github.com/deltaforge/deltaforge/lib/snapshot"
	"github.com/deltaforge/deltaforge/lib/syncer"
	"github.com/deltaforge/deltaforge/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var showVersion bool

	flagSet := pflag.NewFlagSet("deltaforged", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to deltaforge.yaml (overrides DELTAFORGE_CONFIG)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("deltaforged %s\n", version.Info())
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Log)

	if err := os.MkdirAll(cfg.Paths.Root, 0o755); err != nil {
		return fmt.Errorf("creating root directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.Database), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.Socket), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	store, err := snapshot.Open(snapshot.Config{
		Path:                 cfg.Paths.Database,
		PoolSize:             cfg.Store.PoolSize,
		MaxRetainedSnapshots: cfg.Store.MaxRetainedSnapshots,
		Clock:                clk,
		Logger:               logger,
	})
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer store.Close()

	cache := deltacache.New(deltacache.Config{
		MaxEntries: cfg.Cache.MaxEntries,
		MaxBytes:   cfg.Cache.MaxBytes,
	})

	coordinator, err := syncer.New(syncer.Config{
		Store:  store,
		Cache:  cache,
		Logger: logger,
		Clock:  clk,
	})
	if err != nil {
		return err
	}

	daemon := &Daemon{
		store:       store,
		coordinator: coordinator,
		clock:       clk,
		logger:      logger,
	}

	// Retention pruning runs in the background when bounded. The
	// interval was validated with the rest of the config.
	if cfg.Store.MaxRetainedSnapshots > 0 {
		interval, err := cfg.Store.ParsePruneInterval()
		if err != nil {
			return err
		}
		go daemon.runPruneLoop(ctx, interval)
	}

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- daemon.serve(ctx, cfg.Paths.Socket)
	}()

	logger.Info("deltaforged running",
		"socket", cfg.Paths.Socket,
		"database", cfg.Paths.Database,
		"max_retained_snapshots", cfg.Store.MaxRetainedSnapshots,
		"cache_max_entries", cfg.Cache.MaxEntries,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	// Wait for the socket listener to drain active connections.
	if err := <-socketDone; err != nil {
		logger.Error("socket listener error", "error", err)
	}

	return nil
}

// newLogger builds the daemon logger from the log section of the
// configuration. Validation already rejected unknown levels and
// formats.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, options)
	} else {
		handler = slog.NewTextHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

// runPruneLoop prunes old snapshots on a fixed interval until ctx is
// cancelled. A prune failure is logged and retried on the next tick.
func (d *Daemon) runPruneLoop(ctx context.Context, interval time.Duration) {
	ticker := d.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := d.store.Prune(ctx)
			if err != nil {
				d.logger.Error("snapshot pruning failed", "error", err)
				continue
			}
			if removed > 0 {
				d.logger.Info("snapshots pruned", "removed", removed)
			}
		}
	}
}
