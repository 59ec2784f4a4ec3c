package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nft_market/internal/app"

	"golang.org/x/sync/errgroup"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	pprofAddr := flag.String("pprof", "localhost:6060", "pprof listen address (empty disables)")
	flag.Parse()

	// 1. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Pprof Server (for performance profiling)
	if *pprofAddr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", *pprofAddr))
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 3. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx, *configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 4. Sequencer, Feed & API
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bootstrap.Sequencer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return bootstrap.Feed.Run(gctx)
	})
	g.Go(func() error {
		return bootstrap.Server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return bootstrap.Server.Shutdown(shutdownCtx)
	})

	slog.InfoContext(ctx, "✨ NFT Market fully operational. Press Ctrl+C to exit.",
		slog.String("addr", bootstrap.Config.Server.Addr),
		slog.Uint64("next_seq", bootstrap.Sequencer.NextSeq()))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Shutdown with error", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("👋 Shutting down gracefully...")
}
