// Package scraper selects a site-specific extractor for a product page and
// pulls title, image, price and identifier out of its markup.
package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/resale-scout/models"
)

// Scraper extracts product data from one family of sites.
type Scraper interface {
	Name() string
	Match(u *url.URL) bool
	Scrape(doc *goquery.Document, u *url.URL) models.ProductExtraction
}

// ReaderAverse is implemented by scrapers whose pages carry structured data
// that the reader proxy would strip.
type ReaderAverse interface {
	AvoidReader() bool
}

// AvoidReader reports whether s asks for the reader proxy to be skipped.
func AvoidReader(s Scraper) bool {
	ra, ok := s.(ReaderAverse)
	return ok && ra.AvoidReader()
}

// HostMatcher matches a hostname against a list of domains. A host matches
// when it equals a domain or is a subdomain of it. Case is ignored and a
// leading "www." is stripped.
type HostMatcher []string

// Match reports whether u belongs to one of the domains.
func (m HostMatcher) Match(u *url.URL) bool {
	if u == nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return false
	}
	for _, domain := range m {
		domain = strings.ToLower(domain)
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// Bounds is the plausible price range used when scanning free text.
type Bounds struct {
	Min float64
	Max float64
}

// DefaultBounds accepts amounts from 0.50 to 50,000.
var DefaultBounds = Bounds{Min: 0.5, Max: 50000}

// Registry dispatches a URL to the first matching site scraper, or to the
// fallback when none match.
type Registry struct {
	sites    []Scraper
	fallback Scraper
}

// NewRegistry creates a registry that tries sites in the given order.
func NewRegistry(fallback Scraper, sites ...Scraper) *Registry {
	return &Registry{sites: sites, fallback: fallback}
}

// Default returns the built-in registry: bookoutlet, newegg, ebay, walmart
// and indigo, then the generic scraper.
func Default(b Bounds) *Registry {
	return NewRegistry(
		Generic(b),
		Bookoutlet(b),
		Newegg(),
		Ebay(),
		Walmart(),
		Indigo(),
	)
}

// Find returns the scraper for u. It never returns nil when the registry
// has a fallback.
func (r *Registry) Find(u *url.URL) Scraper {
	for _, s := range r.sites {
		if s.Match(u) {
			return s
		}
	}
	return r.fallback
}

// Names lists the registered scrapers in dispatch order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.sites)+1)
	for _, s := range r.sites {
		out = append(out, s.Name())
	}
	if r.fallback != nil {
		out = append(out, r.fallback.Name())
	}
	return out
}

// Extract parses html once and runs the scraper selected for u.
func (r *Registry) Extract(html string, u *url.URL) (models.ProductExtraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.ProductExtraction{}, fmt.Errorf("parse html: %w", err)
	}
	s := r.Find(u)
	if s == nil {
		return models.ProductExtraction{}, fmt.Errorf("no scraper for %s", u)
	}
	return s.Scrape(doc, u), nil
}
