package scraper

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/resale-scout/models"
	"github.com/aluiziolira/resale-scout/parser"
	"github.com/tidwall/gjson"
)

// page wraps a parsed document and lazily computes its visible text.
type page struct {
	doc  *goquery.Document
	url  *url.URL
	text *string
}

// visibleText is the document text with script, style and noscript content
// removed and whitespace collapsed.
func (p *page) visibleText() string {
	if p.text != nil {
		return *p.text
	}
	clone := p.doc.Selection.Clone()
	clone.Find("script, style, noscript, template").Remove()
	text := parser.CollapseSpace(clone.Text())
	p.text = &text
	return text
}

// textExtractor returns a candidate value or "" when it finds nothing.
type textExtractor func(p *page) string

// priceExtractor returns a candidate amount; ok is false when it finds
// nothing usable.
type priceExtractor struct {
	source models.PriceSource
	find   func(p *page) (float64, bool)
}

func firstText(p *page, extractors []textExtractor) string {
	for _, extract := range extractors {
		if v := strings.TrimSpace(extract(p)); v != "" {
			return v
		}
	}
	return ""
}

func metaContent(selector string) textExtractor {
	return attrOf(selector, "content")
}

func attrOf(selector, attr string) textExtractor {
	return func(p *page) string {
		return p.doc.Find(selector).First().AttrOr(attr, "")
	}
}

func textOf(selector string) textExtractor {
	return func(p *page) string {
		return strings.TrimSpace(p.doc.Find(selector).First().Text())
	}
}

// ownTextOf returns the element's text without the text of its children.
func ownTextOf(selector string) textExtractor {
	return func(p *page) string {
		sel := p.doc.Find(selector).First()
		if sel.Length() == 0 {
			return ""
		}
		return strings.TrimSpace(sel.Clone().Children().Remove().End().Text())
	}
}

// amounts builds a price step that parses the first candidate text that
// yields a finite amount.
func amounts(source models.PriceSource, candidates ...textExtractor) priceExtractor {
	return priceExtractor{
		source: source,
		find: func(p *page) (float64, bool) {
			for _, candidate := range candidates {
				raw := strings.TrimSpace(candidate(p))
				if raw == "" {
					continue
				}
				if v := parser.FirstAmount(raw); parser.IsFinite(v) {
					return v, true
				}
			}
			return 0, false
		},
	}
}

// standardMeta covers the itemprop and Open Graph price tags.
func standardMeta() priceExtractor {
	return amounts(models.PriceFromMeta,
		metaContent(`meta[property="product:price:amount"]`),
		metaContent(`meta[property="og:price:amount"]`),
		metaContent(`meta[itemprop="price"]`),
		metaContent(`[itemprop="price"]`),
	)
}

// jsonLD reads schema.org offers from application/ld+json blocks. Each block
// may be an object, an array of objects or an object with an @graph list.
func jsonLD() priceExtractor {
	return priceExtractor{
		source: models.PriceFromJSONLD,
		find: func(p *page) (float64, bool) {
			var (
				price float64
				found bool
			)
			p.doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				raw := strings.TrimSpace(s.Text())
				if raw == "" || !gjson.Valid(raw) {
					return true
				}
				for _, node := range ldNodes(gjson.Parse(raw)) {
					if v, ok := ldPrice(node); ok {
						price, found = v, true
						return false
					}
				}
				return true
			})
			return price, found
		},
	}
}

func ldNodes(doc gjson.Result) []gjson.Result {
	var nodes []gjson.Result
	var walk func(r gjson.Result)
	walk = func(r gjson.Result) {
		switch {
		case r.IsArray():
			for _, item := range r.Array() {
				walk(item)
			}
		case r.IsObject():
			nodes = append(nodes, r)
			if graph := r.Get("@graph"); graph.IsArray() {
				walk(graph)
			}
		}
	}
	walk(doc)
	return nodes
}

func ldPrice(node gjson.Result) (float64, bool) {
	offers := node.Get("offers")
	if offers.IsArray() {
		offers = offers.Get("0")
	}

	var value gjson.Result
	for _, candidate := range []gjson.Result{
		offers.Get("price"),
		offers.Get("lowPrice"),
		node.Get("price"),
	} {
		if candidate.Exists() && candidate.Type != gjson.Null {
			value = candidate
			break
		}
	}

	switch value.Type {
	case gjson.Number:
		return value.Float(), true
	case gjson.String:
		if v := parser.FirstAmount(value.Str); parser.IsFinite(v) {
			return v, true
		}
	}
	return 0, false
}

// pageText scans the visible page text and keeps the smallest amount inside
// the bounds.
func pageText(b Bounds) priceExtractor {
	return priceExtractor{
		source: models.PriceFromPageText,
		find: func(p *page) (float64, bool) {
			return parser.Smallest(parser.Plausible(parser.AllAmounts(p.visibleText()), b.Min, b.Max))
		},
	}
}

func labeledISBN(p *page) string {
	return parser.LabeledISBN(p.visibleText())
}

func pageISBN(p *page) string {
	return parser.FindISBN(p.visibleText())
}

// absoluteURL resolves ref against base. Unresolvable references are
// dropped.
func absoluteURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		if parsed.IsAbs() {
			return parsed.String()
		}
		return ""
	}
	return base.ResolveReference(parsed).String()
}

// siteScraper is a Scraper assembled from ordered extractor lists.
type siteScraper struct {
	name        string
	hosts       HostMatcher
	matchAll    bool
	avoidReader bool

	titles      []textExtractor
	images      []textExtractor
	prices      []priceExtractor
	identifiers []textExtractor
}

func (s *siteScraper) Name() string { return s.name }

func (s *siteScraper) Match(u *url.URL) bool {
	if s.matchAll {
		return true
	}
	return s.hosts.Match(u)
}

func (s *siteScraper) AvoidReader() bool { return s.avoidReader }

func (s *siteScraper) Scrape(doc *goquery.Document, u *url.URL) models.ProductExtraction {
	p := &page{doc: doc, url: u}
	out := models.ProductExtraction{Source: s.name}

	out.Title = firstText(p, s.titles)
	if out.Title == "" {
		out.Title = models.NoTitle
	}
	out.Image = absoluteURL(u, firstText(p, s.images))

	for _, step := range s.prices {
		if v, ok := step.find(p); ok && out.SetPrice(v, step.source) {
			break
		}
	}

	out.Identifier = firstText(p, s.identifiers)
	return out
}
