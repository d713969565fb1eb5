// Package fetcher resolves a URL to raw HTML through an ordered chain of
// retrieval strategies.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DataHenHQ/useragent"
	"github.com/aluiziolira/resale-scout/config"
	"github.com/gocolly/colly/v2"
)

// Strategy names.
const (
	Direct = "direct"
	Relay  = "relay"
	Reader = "reader"
)

// Strategy retrieves the body behind target or fails.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, target string) (string, error)
}

// Fetcher runs strategies in host-dependent order with per-strategy retry.
type Fetcher struct {
	getter      *getter
	strategies  map[string]Strategy
	readerFirst []string
	searchURL   string
	maxAttempts int
	retryPause  time.Duration
	metrics     *Metrics
	logger      *slog.Logger
}

// New builds a Fetcher configured from cfg. metrics and logger may be nil.
func New(cfg *config.Config, metrics *Metrics, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}

	g := &getter{
		timeout:        cfg.Timeout,
		userAgent:      cfg.UserAgent,
		randomUA:       cfg.RandomUserAgent,
		acceptLanguage: cfg.AcceptLanguage,
		transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	f := &Fetcher{
		getter:      g,
		readerFirst: normalizePatterns(cfg.ReaderFirstHosts),
		searchURL:   cfg.SearchURL,
		maxAttempts: cfg.MaxAttempts,
		retryPause:  cfg.RetryPause,
		metrics:     metrics,
		logger:      logger,
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = 1
	}
	f.strategies = map[string]Strategy{
		Direct: directStrategy{get: g},
		Relay:  relayStrategy{base: cfg.RelayBaseURL, get: g},
		Reader: readerStrategy{base: cfg.ReaderBaseURL, get: g},
	}
	return f
}

// WithTransport replaces the round tripper used by every strategy.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.getter.transport = rt
}

// Fetch returns the HTML for target. Hosts listed as reader-first try the
// reader proxy before direct and relay; all others try it last. avoidReader
// drops the reader from the chain entirely.
func (f *Fetcher) Fetch(ctx context.Context, target string, avoidReader bool) (string, error) {
	order := f.Order(hostOf(target), avoidReader)
	return f.run(ctx, target, order)
}

// Read fetches target through the reader proxy only.
func (f *Fetcher) Read(ctx context.Context, target string) (string, error) {
	return f.run(ctx, target, []Strategy{f.strategies[Reader]})
}

// Search fetches search-engine results for query through the reader proxy.
func (f *Fetcher) Search(ctx context.Context, query string) (string, error) {
	return f.Read(ctx, f.searchURL+"?q="+url.QueryEscape(query))
}

// Order returns the strategy chain for host.
func (f *Fetcher) Order(host string, avoidReader bool) []Strategy {
	var names []string
	switch {
	case avoidReader:
		names = []string{Direct, Relay}
	case f.prefersReader(host):
		names = []string{Reader, Direct, Relay}
	default:
		names = []string{Direct, Relay, Reader}
	}
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		out = append(out, f.strategies[name])
	}
	return out
}

func (f *Fetcher) prefersReader(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if host == "" {
		return false
	}
	for _, pattern := range f.readerFirst {
		if strings.HasSuffix(pattern, ".") {
			// "ebay." matches ebay.com, ebay.co.uk and so on.
			if strings.HasPrefix(host, pattern) || strings.Contains(host, "."+pattern) {
				return true
			}
			continue
		}
		if host == pattern || strings.HasSuffix(host, "."+pattern) {
			return true
		}
	}
	return false
}

func (f *Fetcher) run(ctx context.Context, target string, order []Strategy) (string, error) {
	var last error
	attempts := 0

	for _, strategy := range order {
		for attempt := 1; attempt <= f.maxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return "", &FetchFailure{URL: target, Attempts: attempts, Last: err}
			}
			if attempt > 1 {
				f.metrics.IncRetries()
				if err := sleep(ctx, f.retryPause); err != nil {
					return "", &FetchFailure{URL: target, Attempts: attempts, Last: err}
				}
			}

			attempts++
			body, err := f.attempt(ctx, strategy, target)
			if err == nil {
				return body, nil
			}
			last = err
		}
	}

	if last == nil {
		last = ErrAllStrategiesFailed
	}
	return "", &FetchFailure{URL: target, Attempts: attempts, Last: last}
}

func (f *Fetcher) attempt(ctx context.Context, strategy Strategy, target string) (string, error) {
	name := strategy.Name()
	start := time.Now()
	body, err := strategy.Fetch(ctx, target)
	f.metrics.ObserveDuration(name, time.Since(start))

	if err != nil {
		category := errorTypeLabel(err)
		f.metrics.IncRequest(name, "error")
		f.metrics.IncError(category)
		f.logger.Debug("fetch strategy failed",
			slog.String("strategy", name),
			slog.String("url", target),
			slog.String("category", category),
			slog.Any("error", err),
		)
		return "", fmt.Errorf("%s: %w", name, err)
	}

	f.metrics.IncRequest(name, "ok")
	return body, nil
}

type directStrategy struct {
	get *getter
}

func (s directStrategy) Name() string { return Direct }

func (s directStrategy) Fetch(ctx context.Context, target string) (string, error) {
	return s.get.get(ctx, target, true)
}

type relayStrategy struct {
	base string
	get  *getter
}

func (s relayStrategy) Name() string { return Relay }

func (s relayStrategy) Fetch(ctx context.Context, target string) (string, error) {
	return s.get.get(ctx, RelayURL(s.base, target), false)
}

type readerStrategy struct {
	base string
	get  *getter
}

func (s readerStrategy) Name() string { return Reader }

func (s readerStrategy) Fetch(ctx context.Context, target string) (string, error) {
	return s.get.get(ctx, ReaderURL(s.base, target), false)
}

// RelayURL wraps target for the CORS relay.
func RelayURL(base, target string) string {
	return base + "?url=" + url.QueryEscape(target)
}

// ReaderURL wraps target for the reader proxy, which takes the address
// without its scheme.
func ReaderURL(base, target string) string {
	stripped := target
	if i := strings.Index(stripped, "://"); i >= 0 {
		if scheme := strings.ToLower(stripped[:i]); scheme == "http" || scheme == "https" {
			stripped = stripped[i+3:]
		}
	}
	return strings.TrimRight(base, "/") + "/http/" + stripped
}

// getter issues a single GET with a fresh collector.
type getter struct {
	timeout        time.Duration
	userAgent      string
	randomUA       bool
	acceptLanguage string
	transport      http.RoundTripper
}

func (g *getter) get(ctx context.Context, target string, browserHeaders bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ua := g.userAgent
	if g.randomUA && browserHeaders {
		if random, err := useragent.Desktop(); err == nil && random != "" {
			ua = random
		}
	}

	c := colly.NewCollector(
		colly.UserAgent(ua),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(g.timeout)
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.WithTransport(g.transport)

	if browserHeaders && g.acceptLanguage != "" {
		c.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Accept-Language", g.acceptLanguage)
		})
	}

	var (
		status int
		body   string
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = string(r.Body)
	})

	if err := c.Visit(target); err != nil {
		return "", classifyError(err, status)
	}
	if status >= http.StatusBadRequest {
		return "", classifyError(nil, status)
	}
	return body, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func hostOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

func normalizePatterns(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "www.")
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}
