// Package pipeline analyzes many listings concurrently and streams the
// reports to an output writer in batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/resale-scout/analyzer"
	"github.com/aluiziolira/resale-scout/config"
	"github.com/aluiziolira/resale-scout/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for in-flight work.
var drainTimeout = 2 * time.Minute

const queueSize = 512

// Analyzer produces a report for one request.
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.ProfitReport, error)
}

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(reports []*models.ProfitReport) error
	Close() error
	Validate() error
}

// Pipeline coordinates de-duplication, analysis and output writing.
type Pipeline struct {
	ctx       context.Context
	analyzer  Analyzer
	writer    OutputWriter
	reqCh     chan models.AnalyzeRequest
	batchSize int
	logger    *slog.Logger

	wg sync.WaitGroup

	seen *lru.Cache[string, struct{}]

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline configured from cfg. Requests already seen,
// by URL, costs and manual price, are skipped; the memory of seen requests is
// bounded by cfg.DedupeMaxSize.
func NewPipeline(ctx context.Context, a Analyzer, writer OutputWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	dedupeSize := cfg.DedupeMaxSize
	if dedupeSize <= 0 {
		dedupeSize = 1
	}
	seen, _ := lru.New[string, struct{}](dedupeSize)

	return &Pipeline{
		ctx:       ctx,
		analyzer:  a,
		writer:    writer,
		reqCh:     make(chan models.AnalyzeRequest, queueSize),
		batchSize: batchSize,
		logger:    slog.Default(),
		seen:      seen,
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
}

// SetLogger replaces the default logger.
func (p *Pipeline) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues requests for analysis.
func (p *Pipeline) Process(reqs ...models.AnalyzeRequest) error {
	if len(reqs) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, req := range reqs {
		if strings.TrimSpace(req.URL) == "" {
			p.metrics.addSkipped("missing_url")
			continue
		}
		if err := p.enqueue(req); err != nil {
			return err
		}
	}
	return nil
}

// Close stops intake and waits up to drainTimeout for workers to finish.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.reqCh)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return p.Err()
	case <-time.After(drainTimeout):
		return fmt.Errorf("%w after %s", ErrPipelineCloseTimeout, drainTimeout)
	}
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				p.logger.Info("pipeline progress",
					slog.Int64("processed", metrics["processed_reports"].(int64)),
					slog.Any("failures", metrics["analysis_errors"]),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.ProfitReport, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for req := range p.reqCh {
		report := p.analyze(req)
		if report == nil {
			continue
		}
		batch = append(batch, report)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) analyze(req models.AnalyzeRequest) *models.ProfitReport {
	key := analyzer.RequestKey(req)
	if found, _ := p.seen.ContainsOrAdd(key, struct{}{}); found {
		p.metrics.addSkipped("duplicate_request")
		return nil
	}

	report, err := p.analyzer.Analyze(p.ctx, req)
	if err != nil {
		kind := analyzer.KindOf(err).String()
		p.metrics.addFailure(kind)
		p.logger.Warn("analysis failed",
			slog.String("url", req.URL),
			slog.String("kind", kind),
			slog.Any("error", err),
		)
		return nil
	}

	p.metrics.incrementProcessed()
	return report
}

func (p *Pipeline) enqueue(req models.AnalyzeRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.reqCh <- req:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.reqCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu        sync.Mutex
	processed int64
	skipped   map[string]int
	failures  map[string]int
}

func newMetrics() metrics {
	return metrics{
		skipped:  make(map[string]int),
		failures: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addSkipped(kind string) {
	m.mu.Lock()
	m.skipped[kind]++
	m.mu.Unlock()
}

func (m *metrics) addFailure(kind string) {
	m.mu.Lock()
	m.failures[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]interface{}{
		"processed_reports": m.processed,
		"skipped":           copyCounts(m.skipped),
		"analysis_errors":   copyCounts(m.failures),
	}
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
