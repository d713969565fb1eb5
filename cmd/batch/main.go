package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/resale-scout/analyzer"
	"github.com/aluiziolira/resale-scout/config"
	"github.com/aluiziolira/resale-scout/fetcher"
	"github.com/aluiziolira/resale-scout/logging"
	"github.com/aluiziolira/resale-scout/models"
	"github.com/aluiziolira/resale-scout/pipeline"
	"github.com/aluiziolira/resale-scout/scraper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "Optional config file (yaml, json or toml)")
	input := flag.String("input", "-", "File with one listing per line (url[,cost,feesPct,shipping,other,manualPrice]); - reads stdin")
	cost := flag.Float64("cost", 0, "Default acquisition cost")
	feesPct := flag.Float64("fees", 0, "Default marketplace fee percentage")
	shipping := flag.Float64("shipping", 0, "Default shipping cost")
	other := flag.Float64("other", 0, "Default other costs")
	outputFile := flag.String("output", "", "Output file path, overrides config")
	outputFormat := flag.String("format", "", "Output format: csv, json, or dual")
	parallelism := flag.Int("parallel", 0, "Number of concurrent analyses, overrides config")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *outputFile, *outputFormat, *parallelism, *verbose)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, level := logging.New(cfg.Verbose, cfg.LogFormat)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	defaults := models.CostInputs{Cost: *cost, FeesPct: *feesPct, Shipping: *shipping, Other: *other}
	reqs, err := readInput(*input, defaults)
	if err != nil {
		slog.Error("reading input", slog.Any("error", err))
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	f := fetcher.New(cfg, fetcher.NewMetrics(registry), logger)
	a, err := analyzer.New(cfg, f, scraper.Default(scraper.Bounds{Min: cfg.PriceMin, Max: cfg.PriceMax}), analyzer.NewMetrics(registry), logger)
	if err != nil {
		slog.Error("initialising analyzer", slog.Any("error", err))
		os.Exit(1)
	}

	writer, err := pipeline.NewOutputWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	var metricsServer *http.Server
	if *metricsAddr != "" && cfg.MetricsEnabled {
		metricsServer = &http.Server{
			Addr:    *metricsAddr,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", *metricsAddr))
	}

	slog.Info("starting batch",
		slog.Int("listings", len(reqs)),
		slog.Int("workers", cfg.Parallelism),
		slog.String("output", cfg.OutputFile),
	)

	p := pipeline.NewPipeline(ctx, a, writer, cfg)
	p.SetLogger(logger)
	p.Start(cfg.Parallelism)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	if err := p.Process(reqs...); err != nil {
		slog.Error("queueing listings", slog.Any("error", err))
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(len(reqs), time.Since(startTime), cfg.OutputFile, p.GetMetrics())
}

func applyFlags(cfg *config.Config, outputFile, outputFormat string, parallelism int, verbose bool) {
	if outputFile != "" {
		cfg.OutputFile = outputFile
	}
	if outputFormat != "" {
		cfg.OutputFormat = strings.ToLower(outputFormat)
	}
	if parallelism > 0 {
		cfg.Parallelism = parallelism
	}
	if verbose {
		cfg.Verbose = true
	}
}

func readInput(path string, defaults models.CostInputs) ([]models.AnalyzeRequest, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		r = file
	}
	return pipeline.ReadRequests(r, defaults)
}

func printSummary(total int, duration time.Duration, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Batch complete")

	processed := int64(0)
	if v, ok := metrics["processed_reports"].(int64); ok {
		processed = v
	}

	fmt.Printf("  Listings:      %d\n", total)
	fmt.Printf("  Reports:       %d\n", processed)
	successRate := 0.0
	if total > 0 {
		successRate = float64(processed) / float64(total) * 100
	}
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	if failures, ok := metrics["analysis_errors"].(map[string]int); ok && len(failures) > 0 {
		fmt.Printf("  Errors:        %v\n", failures)
	}
	if skipped, ok := metrics["skipped"].(map[string]int); ok && len(skipped) > 0 {
		fmt.Printf("  Skipped:       %v\n", skipped)
	}
	perSec := 0.0
	if duration.Seconds() > 0 {
		perSec = float64(processed) / duration.Seconds()
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Reports/sec:   %.2f\n", perSec)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}
