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

	"github.com/aluiziolira/resale-scout/analyzer"
	"github.com/aluiziolira/resale-scout/config"
	"github.com/aluiziolira/resale-scout/fetcher"
	"github.com/aluiziolira/resale-scout/logging"
	"github.com/aluiziolira/resale-scout/lookup"
	"github.com/aluiziolira/resale-scout/scraper"
	"github.com/aluiziolira/resale-scout/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "", "Optional config file (yaml, json or toml)")
	addr := flag.String("addr", "", "Listen address, overrides config")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *verbose {
		cfg.Verbose = true
	}

	logger, level := logging.New(cfg.Verbose, cfg.LogFormat)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	f := fetcher.New(cfg, fetcher.NewMetrics(registry), logger)
	sites := scraper.Default(scraper.Bounds{Min: cfg.PriceMin, Max: cfg.PriceMax})
	a, err := analyzer.New(cfg, f, sites, analyzer.NewMetrics(registry), logger)
	if err != nil {
		slog.Error("initialising analyzer", slog.Any("error", err))
		os.Exit(1)
	}
	l := lookup.NewService(f, lookup.DefaultSources(cfg.SearchURL), cfg.PriceMin, cfg.PriceMax, logger)
	if cfg.CatalogURL != "" {
		l.WithCatalog(lookup.NewCatalog(f, cfg.CatalogURL))
	}

	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		gatherer = registry
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.New(cfg, a, l, gatherer, logger).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening",
			slog.String("addr", cfg.ListenAddr),
			slog.Any("scrapers", sites.Names()),
			slog.Bool("metrics", cfg.MetricsEnabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("server stopped")
}
