package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pyrohost/pyrod/internal/api"
	"github.com/pyrohost/pyrod/internal/bus"
	"github.com/pyrohost/pyrod/internal/config"
	"github.com/pyrohost/pyrod/internal/console"
	"github.com/pyrohost/pyrod/internal/docker"
	"github.com/pyrohost/pyrod/internal/egg"
	"github.com/pyrohost/pyrod/internal/files"
	"github.com/pyrohost/pyrod/internal/image"
	"github.com/pyrohost/pyrod/internal/instance"
	"github.com/pyrohost/pyrod/internal/logpipe"
	"github.com/pyrohost/pyrod/internal/panel"
	"github.com/pyrohost/pyrod/internal/reaper"
	"github.com/pyrohost/pyrod/internal/sandbox"
	"github.com/pyrohost/pyrod/internal/server"
	"github.com/pyrohost/pyrod/internal/stats"
)

func main() {
	cfgPath := flag.String("config", "", "path to pyrod.yaml")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirs(); err != nil {
		logger.Error("create data dirs", "error", err)
		os.Exit(1)
	}

	engine, err := docker.New()
	if err != nil {
		logger.Error("docker client", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The daemon is useless without the engine; fail fast.
	if err := engine.Ping(ctx); err != nil {
		logger.Error("docker ping failed — is the engine running?", "error", err)
		os.Exit(1)
	}
	logger.Info("docker connection OK")

	eggs, err := egg.NewRegistry(cfg.EggsDir(), logger)
	if err != nil {
		logger.Error("egg registry", "error", err)
		os.Exit(1)
	}

	store, err := instance.NewStore(cfg.ConfigsDir(), cfg.ServersDir(), eggs, logger)
	if err != nil {
		logger.Error("instance store", "error", err)
		os.Exit(1)
	}

	events := bus.New()
	pipe := logpipe.New(cfg.LogsDir(), events, logger)
	paths := sandbox.New(cfg.ServersDir())
	images := image.NewResolver(engine, cfg.Images, cfg.DataDir, logger)
	notifier := panel.New(cfg.PanelURL, logger)

	sup := server.NewSupervisor(cfg, engine, images, store, paths, pipe, events, notifier, logger)
	injector := console.New(engine, sup, pipe)
	sup.SetConsole(injector)

	sampler := stats.New(engine, sup, events,
		time.Duration(cfg.Intervals.StatsSeconds)*time.Second, logger)
	go sampler.Run(ctx)

	rpr := reaper.New(sup, engine, store, sampler, pipe, reaper.Options{
		ReconcileEvery: time.Duration(cfg.Intervals.ReconcileSeconds) * time.Second,
		OrphanEvery:    time.Duration(cfg.Intervals.OrphanSweepMinutes) * time.Minute,
		RetentionEvery: time.Duration(cfg.Intervals.LogRetentionMinutes) * time.Minute,
		LogMaxAge:      time.Duration(cfg.LogMaxAge) * 24 * time.Hour,
	}, logger)
	go rpr.Run(ctx)

	fileService := files.New(paths)
	srv := api.NewServer(eggs, store, sup, injector, sampler, pipe, fileService, events, engine, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // installs stream until the script exits
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		cancel()

		if sig == syscall.SIGINT {
			// Immediate exit: containers stay up under the engine's own
			// restart policy.
			logger.Info("interrupt — exiting, containers left running")
			httpServer.Close()
			return
		}

		logger.Info("terminating — stopping all servers")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer shutdownCancel()
		sup.Shutdown(shutdownCtx)
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
