// Package lookup estimates a market price for a scanned barcode or ISBN by
// scraping public search pages through the reader proxy, optionally enriched
// with a UPC database record.
package lookup

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/aluiziolira/resale-scout/parser"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidCode is returned for codes that do not look like a UPC, EAN or
// ISBN.
var ErrInvalidCode = errors.New("invalid or missing barcode")

// Note accompanies every result.
const Note = "Heuristic prices from public pages; for reliable Amazon/eBay fees use official APIs."

const maxSamples = 10

var codeShape = regexp.MustCompile(`^[0-9Xx\-]{8,14}$`)

// Reader fetches a page through the reader proxy.
type Reader interface {
	Read(ctx context.Context, target string) (string, error)
}

// Result is the outcome of a lookup.
type Result struct {
	Code         string    `json:"code"`
	Title        string    `json:"title,omitempty"`
	Brand        string    `json:"brand,omitempty"`
	BestPrice    *float64  `json:"bestPrice,omitempty"`
	SamplePrices []float64 `json:"samplePrices"`
	Note         string    `json:"note"`
}

// Source builds the page address to search for a code.
type Source struct {
	Name string
	URL  func(code string) string
}

// DefaultSources are a site-restricted web search plus the walmart.ca and
// ebay.ca search pages.
func DefaultSources(searchURL string) []Source {
	return []Source{
		{
			Name: "web",
			URL: func(code string) string {
				q := `site:walmart.ca OR site:walmart.com OR site:indigo.ca OR site:ebay.ca OR site:ebay.com "` + code + `"`
				return searchURL + "?q=" + url.QueryEscape(q)
			},
		},
		{
			Name: "walmart",
			URL: func(code string) string {
				return "https://www.walmart.ca/search?q=" + url.QueryEscape(code)
			},
		},
		{
			Name: "ebay",
			URL: func(code string) string {
				return "https://www.ebay.ca/sch/i.html?_nkw=" + url.QueryEscape(code)
			},
		},
	}
}

// Service queries every source concurrently.
type Service struct {
	reader  Reader
	sources []Source
	catalog *Catalog
	min     float64
	max     float64
	logger  *slog.Logger
}

// NewService creates a lookup service. Amounts outside [min, max] are
// discarded.
func NewService(reader Reader, sources []Source, min, max float64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reader: reader, sources: sources, min: min, max: max, logger: logger}
}

// WithCatalog adds a product database queried alongside the sources. Its
// title and brand are reported and its lowest recorded price joins the
// samples.
func (s *Service) WithCatalog(c *Catalog) *Service {
	s.catalog = c
	return s
}

// ValidCode reports whether code, ignoring whitespace, has a barcode shape.
func ValidCode(code string) bool {
	return codeShape.MatchString(stripSpace(code))
}

// Lookup collects plausible prices for code from all sources. A failing
// source contributes nothing; the lookup itself only fails on an invalid
// code or a cancelled context.
func (s *Service) Lookup(ctx context.Context, code string) (*Result, error) {
	code = strings.TrimSpace(code)
	if code == "" || !ValidCode(code) {
		return nil, ErrInvalidCode
	}

	batches := make([][]float64, len(s.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		g.Go(func() error {
			text, err := s.reader.Read(gctx, src.URL(code))
			if err != nil {
				s.logger.Debug("lookup source failed",
					slog.String("source", src.Name),
					slog.String("code", code),
					slog.Any("error", err),
				)
				return nil
			}
			batches[i] = parser.Plausible(parser.AllAmounts(text), s.min, s.max)
			return nil
		})
	}
	var item CatalogItem
	if s.catalog != nil {
		g.Go(func() error {
			found, err := s.catalog.Lookup(gctx, stripSpace(code))
			if err != nil {
				s.logger.Debug("catalog lookup failed", slog.String("code", code), slog.Any("error", err))
				return nil
			}
			item = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []float64
	for _, batch := range batches {
		all = append(all, batch...)
	}
	if item.LowestPrice != nil {
		all = append(all, parser.Plausible([]float64{*item.LowestPrice}, s.min, s.max)...)
	}
	sort.Float64s(all)

	res := &Result{Code: code, Title: item.Title, Brand: item.Brand, SamplePrices: []float64{}, Note: Note}
	if len(all) > 0 {
		best := all[0]
		res.BestPrice = &best
		n := len(all)
		if n > maxSamples {
			n = maxSamples
		}
		res.SamplePrices = append(res.SamplePrices, all[:n]...)
	}
	return res, nil
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
