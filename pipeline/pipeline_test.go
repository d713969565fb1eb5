package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/resale-scout/analyzer"
	"github.com/aluiziolira/resale-scout/config"
	"github.com/aluiziolira/resale-scout/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.ProfitReport
	closed      bool
	validateErr error
}

func (mw *mockWriter) Write(reports []*models.ProfitReport) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	copyBatch := make([]*models.ProfitReport, len(reports))
	copy(copyBatch, reports)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

type blockingWriter struct {
	blockCh chan struct{}
}

func (bw *blockingWriter) Write(reports []*models.ProfitReport) error {
	<-bw.blockCh
	return nil
}

func (bw *blockingWriter) Close() error {
	return nil
}

func (bw *blockingWriter) Validate() error {
	return nil
}

// stubAnalyzer fails for URLs listed in failures and reports everything else
// with a fixed price.
type stubAnalyzer struct {
	mu       sync.Mutex
	calls    int
	failures map[string]error
}

func (s *stubAnalyzer) Analyze(_ context.Context, req models.AnalyzeRequest) (*models.ProfitReport, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if err, ok := s.failures[req.URL]; ok {
		return nil, err
	}
	price := 10.0
	return &models.ProfitReport{URL: req.URL, Title: "Item", Price: "$10.00", PriceNum: &price}, nil
}

func (s *stubAnalyzer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestPipelineProcessFailuresAndDedup(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	stub := &stubAnalyzer{failures: map[string]error{
		"http://example.test/item/2": &analyzer.AnalysisError{Kind: analyzer.KindFetch, Reason: "fetch failed"},
	}}
	p := NewPipeline(context.Background(), stub, writer, cfg)
	p.Start(1)

	err := p.Process(
		models.AnalyzeRequest{URL: "http://example.test/item/1"},
		models.AnalyzeRequest{URL: "http://example.test/item/2"},
		models.AnalyzeRequest{URL: "http://example.test/item/1"},
		models.AnalyzeRequest{URL: "  "},
	)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written reports = %d, want 1", got)
	}
	if got := stub.callCount(); got != 2 {
		t.Fatalf("analyzer calls = %d, want 2", got)
	}

	metrics := p.GetMetrics()
	skipped, ok := metrics["skipped"].(map[string]int)
	if !ok {
		t.Fatalf("expected skipped map")
	}
	if skipped["duplicate_request"] != 1 || skipped["missing_url"] != 1 {
		t.Fatalf("unexpected skipped counts: %v", skipped)
	}
	failures := metrics["analysis_errors"].(map[string]int)
	if failures["fetch"] != 1 {
		t.Fatalf("expected one fetch failure, got %v", failures)
	}
	if processed := metrics["processed_reports"].(int64); processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}
}

func TestPipelineDedupeIsBounded(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DedupeMaxSize = 1
	writer := &mockWriter{}
	stub := &stubAnalyzer{}
	p := NewPipeline(context.Background(), stub, writer, cfg)
	p.Start(1)

	for _, u := range []string{"http://a.test/1", "http://a.test/2", "http://a.test/1"} {
		if err := p.Process(models.AnalyzeRequest{URL: u}); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 3 {
		t.Fatalf("written reports = %d, want 3 once the first URL was evicted", got)
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 64
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), &stubAnalyzer{}, writer, cfg)
	p.Start(1)

	for i := 0; i < 65; i++ {
		req := models.AnalyzeRequest{URL: "http://example.test/item/" + strconv.Itoa(i)}
		if err := p.Process(req); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), &stubAnalyzer{}, writer, cfg)
	p.Start(2)

	for i := 0; i < 100; i++ {
		req := models.AnalyzeRequest{URL: "http://example.test/item/" + strconv.Itoa(i+200)}
		if err := p.Process(req); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written reports = %d, want 100", got)
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p := NewPipeline(context.Background(), &stubAnalyzer{}, &mockWriter{}, config.DefaultConfig())
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := p.Process(models.AnalyzeRequest{URL: "http://example.test/late"}); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func TestPipelineCloseTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1

	writer := &blockingWriter{blockCh: make(chan struct{})}
	p := NewPipeline(context.Background(), &stubAnalyzer{}, writer, cfg)
	p.Start(1)

	if err := p.Process(models.AnalyzeRequest{URL: "http://example.test/item/blocked"}); err != nil {
		t.Fatalf("process: %v", err)
	}

	previousTimeout := drainTimeout
	drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		drainTimeout = previousTimeout
		close(writer.blockCh)
	})

	if err := p.Close(); err == nil || !errors.Is(err, ErrPipelineCloseTimeout) {
		t.Fatalf("expected close timeout error, got %v", err)
	}
}

func TestPipelineKeepsRowsThatDifferInCosts(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	stub := &stubAnalyzer{}
	p := NewPipeline(context.Background(), stub, writer, cfg)
	p.Start(1)

	manual := 12.0
	err := p.Process(
		models.AnalyzeRequest{URL: "https://shop.example/item", Costs: models.CostInputs{Cost: 5}},
		models.AnalyzeRequest{URL: "https://shop.example/item", Costs: models.CostInputs{Cost: 20}},
		models.AnalyzeRequest{URL: "https://shop.example/item", Costs: models.CostInputs{Cost: 5}, ManualPrice: &manual},
		models.AnalyzeRequest{URL: "https://shop.example/item", Costs: models.CostInputs{Cost: 20}},
	)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 3 {
		t.Fatalf("written reports = %d, want 3", got)
	}
	if got := stub.callCount(); got != 3 {
		t.Fatalf("analyzer calls = %d, want 3", got)
	}
	skipped := p.GetMetrics()["skipped"].(map[string]int)
	if skipped["duplicate_request"] != 1 {
		t.Fatalf("unexpected skipped counts: %v", skipped)
	}
}
