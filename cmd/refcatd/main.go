package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/h3-refcat/internal/app"
	"github.com/mohammed-shakir/h3-refcat/internal/core/config"
	"github.com/mohammed-shakir/h3-refcat/internal/core/server"
	"github.com/mohammed-shakir/h3-refcat/internal/logger"
	"github.com/mohammed-shakir/h3-refcat/internal/metrics"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	manifestFlag := flag.String("release", "", "release manifest (overrides RELEASE_MANIFEST)")
	flag.Parse()

	cfg := config.FromEnv()
	if *manifestFlag != "" {
		cfg.ReleaseManifest = strings.TrimSpace(*manifestFlag)
	}

	rel, err := config.LoadRelease(cfg.ReleaseManifest)
	if err != nil {
		log.Printf("refcatd: %v", err)
		return 1
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Release:   rel.Name,
		Component: "refcatd",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	p := metrics.Init(metrics.Config{
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.FromRelease(ctx, cfg, rel, appLog)
	if err != nil {
		appLog.Error("release setup failed", "manifest", cfg.ReleaseManifest, "err", err)
		return 1
	}
	defer func() { _ = a.Close() }()

	appLog.Info("starting refcatd",
		"addr", cfg.Addr,
		"version", Version,
		"manifest", cfg.ReleaseManifest)

	deps := server.Deps{Loader: a.Loader, Ready: a.Registry}
	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr == "" {
		deps.Metrics = p.Handler()
	} else {
		mux := http.NewServeMux()
		mux.Handle("/metrics", p.Handler())
		g.Go(func() error {
			return server.Serve(gctx, server.New(cfg.MetricsAddr, mux), appLog.With("listener", "metrics"))
		})
	}
	g.Go(func() error { return server.Run(gctx, cfg, appLog, deps) })

	if err := g.Wait(); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
