// Package analyzer turns a listing URL and seller costs into a profit report:
// fetch, scrape, fall back on identifier search or a manual price, then score.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/resale-scout/cache"
	"github.com/aluiziolira/resale-scout/config"
	"github.com/aluiziolira/resale-scout/models"
	"github.com/aluiziolira/resale-scout/parser"
	"github.com/aluiziolira/resale-scout/profit"
	"github.com/aluiziolira/resale-scout/ratelimit"
	"github.com/aluiziolira/resale-scout/scraper"
	"golang.org/x/sync/singleflight"
)

// Fetcher retrieves page HTML and search-engine results.
type Fetcher interface {
	Fetch(ctx context.Context, target string, avoidReader bool) (string, error)
	Search(ctx context.Context, query string) (string, error)
}

// Analyzer is safe for concurrent use.
type Analyzer struct {
	fetcher  Fetcher
	registry *scraper.Registry
	limiter  *ratelimit.HostLimiter
	cache    *cache.Cache[models.ProfitReport]
	cacheTTL time.Duration
	bounds   scraper.Bounds
	group    singleflight.Group
	metrics  *Metrics
	logger   *slog.Logger
}

// New wires an Analyzer from cfg. metrics and logger may be nil.
func New(cfg *config.Config, f Fetcher, registry *scraper.Registry, metrics *Metrics, logger *slog.Logger) (*Analyzer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	results, err := cache.New[models.ProfitReport](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		fetcher:  f,
		registry: registry,
		limiter:  ratelimit.NewHostLimiter(cfg.HostGap),
		cache:    results,
		cacheTTL: cfg.CacheTTL,
		bounds:   scraper.Bounds{Min: cfg.PriceMin, Max: cfg.PriceMax},
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// CacheLen reports the number of cached reports.
func (a *Analyzer) CacheLen() int {
	return a.cache.Len()
}

// Analyze produces the report for req. Identical requests within the cache
// TTL are answered from the cache; concurrent identical misses share one
// fetch. The shared work is detached from ctx so a caller that goes away
// still leaves a cached result behind.
func (a *Analyzer) Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.ProfitReport, error) {
	target, err := validate(req)
	if err != nil {
		a.metrics.IncAnalysis(KindValidation.String())
		return nil, err
	}

	key := RequestKey(req)
	if cached, ok := a.cache.Get(key); ok {
		a.metrics.IncCache(true)
		a.metrics.IncAnalysis("cached")
		report := cached.Clone()
		return &report, nil
	}
	a.metrics.IncCache(false)

	ch := a.group.DoChan(key, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &AnalysisError{Kind: KindInternal, Reason: "internal error", Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		report, err := a.analyze(context.WithoutCancel(ctx), target, req)
		if err != nil {
			return nil, err
		}
		a.cache.Set(key, report.Clone(), a.cacheTTL)
		return *report, nil
	})

	select {
	case <-ctx.Done():
		a.metrics.IncAnalysis("cancelled")
		return nil, &AnalysisError{Kind: KindFetch, Reason: "request cancelled", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			a.metrics.IncAnalysis(KindOf(res.Err).String())
			return nil, res.Err
		}
		a.metrics.IncAnalysis("ok")
		report := res.Val.(models.ProfitReport).Clone()
		return &report, nil
	}
}

func (a *Analyzer) analyze(ctx context.Context, target *url.URL, req models.AnalyzeRequest) (*models.ProfitReport, error) {
	host := target.Hostname()
	if err := a.limiter.Wait(ctx, host); err != nil {
		return nil, &AnalysisError{Kind: KindFetch, Reason: "rate limit wait", Err: err}
	}

	s := a.registry.Find(target)
	html, err := a.fetcher.Fetch(ctx, target.String(), scraper.AvoidReader(s))
	if err != nil {
		a.logger.Warn("fetch failed", slog.String("url", target.String()), slog.Any("error", err))
		return nil, &AnalysisError{Kind: KindFetch, Reason: "fetch failed", Err: err}
	}
	if strings.TrimSpace(html) == "" {
		return nil, &AnalysisError{Kind: KindEmptyContent, Reason: "empty response from target (or proxy)"}
	}

	ext, err := a.registry.Extract(html, target)
	if err != nil {
		return nil, &AnalysisError{Kind: KindInternal, Reason: "parse failed", Err: err}
	}

	if ext.Price == nil && ext.Identifier != "" {
		if v, ok := a.identifierPrice(ctx, ext.Identifier); ok {
			ext.SetPrice(v, models.PriceFromIdentifierSearch)
		}
	}

	manualUsed := false
	if ext.Price == nil && req.ManualPrice != nil {
		manualUsed = ext.SetPrice(*req.ManualPrice, models.PriceFromManual)
	}

	report := buildReport(target, ext, req.Costs)
	report.ManualPriceUsed = manualUsed
	a.metrics.IncPriceSource(ext.PriceSource)

	a.logger.Debug("analysis complete",
		slog.String("url", report.URL),
		slog.String("scraper", ext.Source),
		slog.String("price", report.Price),
		slog.String("price_source", string(report.PriceSource)),
		slog.Int("score", report.Score),
	)
	return report, nil
}

// identifierPrice searches for the identifier and keeps the smallest
// plausible amount in the results.
func (a *Analyzer) identifierPrice(ctx context.Context, id string) (float64, bool) {
	text, err := a.fetcher.Search(ctx, "isbn "+id+" price")
	if err != nil {
		a.logger.Debug("identifier search failed", slog.String("identifier", id), slog.Any("error", err))
		return 0, false
	}
	return parser.Smallest(parser.Plausible(parser.AllAmounts(text), a.bounds.Min, a.bounds.Max))
}

func buildReport(target *url.URL, ext models.ProductExtraction, costs models.CostInputs) *models.ProfitReport {
	report := &models.ProfitReport{
		URL:         target.String(),
		Site:        strings.TrimPrefix(strings.ToLower(target.Hostname()), "www."),
		Title:       ext.Title,
		Image:       ext.Image,
		Price:       DisplayPrice(ext.Price),
		PriceNum:    ext.Price,
		Identifier:  ext.Identifier,
		Source:      ext.Source,
		PriceSource: ext.PriceSource,
	}
	if report.Title == "" {
		report.Title = models.NoTitle
	}
	if ext.Price != nil {
		report.LowConfidence = ext.PriceSource.LowConfidence()
		if res, ok := profit.Compute(*ext.Price, costs); ok {
			net, margin := res.NetProfit, res.MarginPct
			report.NetProfit = &net
			report.MarginPct = &margin
			report.Score = res.Score
		}
	}
	return report
}

// DisplayPrice formats a price as "$X.XX", or "N/A" when there is none.
func DisplayPrice(price *float64) string {
	if price == nil || !parser.IsFinite(*price) {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f", *price)
}

func validate(req models.AnalyzeRequest) (*url.URL, error) {
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return nil, validationError("missing URL")
	}
	target, err := url.Parse(raw)
	if err != nil {
		return nil, &AnalysisError{Kind: KindValidation, Reason: "invalid URL", Err: err}
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, validationError("URL scheme must be http or https")
	}
	if target.Hostname() == "" {
		return nil, validationError("URL must include a host")
	}

	c := req.Costs
	for _, field := range []struct {
		name  string
		value float64
	}{
		{"cost", c.Cost},
		{"feesPct", c.FeesPct},
		{"shipping", c.Shipping},
		{"other", c.Other},
	} {
		if !parser.IsFinite(field.value) || field.value < 0 {
			return nil, validationError(field.name + " must be a non-negative number")
		}
	}
	if req.ManualPrice != nil && (!parser.IsFinite(*req.ManualPrice) || *req.ManualPrice < 0) {
		return nil, validationError("manualPrice must be a non-negative number")
	}
	return target, nil
}

// RequestKey identifies a request by its URL, cost inputs and manual price.
// Requests with equal keys produce the same report.
func RequestKey(req models.AnalyzeRequest) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.URL))
	for _, v := range []float64{req.Costs.Cost, req.Costs.FeesPct, req.Costs.Shipping, req.Costs.Other} {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte('|')
	if req.ManualPrice != nil {
		b.WriteString(strconv.FormatFloat(*req.ManualPrice, 'g', -1, 64))
	}
	return b.String()
}
