package lookup

import (
	"context"
	"errors"
	"net/url"

	"github.com/aluiziolira/resale-scout/parser"
	"github.com/tidwall/gjson"
)

// ErrNoCatalogMatch is returned when the product database has no record for
// a code.
var ErrNoCatalogMatch = errors.New("no catalog match")

// Getter fetches a URL without the reader proxy.
type Getter interface {
	Fetch(ctx context.Context, target string, avoidReader bool) (string, error)
}

// CatalogItem is the product record for a code.
type CatalogItem struct {
	Title       string
	Brand       string
	LowestPrice *float64
}

// Catalog queries a UPC database with the upcitemdb response shape.
type Catalog struct {
	getter  Getter
	baseURL string
}

// NewCatalog creates a Catalog querying baseURL?upc=<code>.
func NewCatalog(g Getter, baseURL string) *Catalog {
	return &Catalog{getter: g, baseURL: baseURL}
}

// Lookup returns the first catalog record for code.
func (c *Catalog) Lookup(ctx context.Context, code string) (CatalogItem, error) {
	body, err := c.getter.Fetch(ctx, c.baseURL+"?upc="+url.QueryEscape(code), true)
	if err != nil {
		return CatalogItem{}, err
	}
	if !gjson.Valid(body) {
		return CatalogItem{}, errors.New("catalog response is not JSON")
	}
	if gjson.Get(body, "code").String() != "OK" {
		return CatalogItem{}, ErrNoCatalogMatch
	}
	item := gjson.Get(body, "items.0")
	if !item.Exists() {
		return CatalogItem{}, ErrNoCatalogMatch
	}

	out := CatalogItem{
		Title: parser.CollapseSpace(item.Get("title").String()),
		Brand: parser.CollapseSpace(item.Get("brand").String()),
	}
	if p := item.Get("lowest_recorded_price"); p.Type == gjson.Number && parser.IsFinite(p.Float()) && p.Float() >= 0 {
		v := p.Float()
		out.LowestPrice = &v
	}
	return out, nil
}
