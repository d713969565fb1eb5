package scraper

import (
	"net/url"
	"testing"

	"github.com/aluiziolira/resale-scout/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRegistryFind(t *testing.T) {
	reg := Default(DefaultBounds)

	tests := []struct {
		url  string
		want string
	}{
		{url: "https://www.newegg.com/p/N82E1", want: "newegg"},
		{url: "https://NEWEGG.com/p/N82E1", want: "newegg"},
		{url: "https://www.bookoutlet.ca/products/x", want: "bookoutlet"},
		{url: "https://www.ebay.co.uk/itm/1", want: "ebay"},
		{url: "https://m.ebay.com/itm/1", want: "ebay"},
		{url: "https://www.walmart.ca/ip/1", want: "walmart"},
		{url: "https://shop.indigo.ca/en-ca/x", want: "indigo"},
		{url: "https://notnewegg.com/p/1", want: "generic"},
		{url: "https://books.toscrape.com/catalogue/x.html", want: "generic"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, reg.Find(mustURL(t, tt.url)).Name())
		})
	}
}

func TestRegistryGenericIsLast(t *testing.T) {
	names := Default(DefaultBounds).Names()
	require.NotEmpty(t, names)
	assert.Equal(t, []string{"bookoutlet", "newegg", "ebay", "walmart", "indigo", "generic"}, names)
}

func TestAvoidReader(t *testing.T) {
	assert.True(t, AvoidReader(Bookoutlet(DefaultBounds)))
	assert.False(t, AvoidReader(Generic(DefaultBounds)))
	assert.False(t, AvoidReader(Walmart()))
}

func TestGenericMinimalPage(t *testing.T) {
	html := `<html><head><meta property="og:title" content="Widget"><meta property="og:title" content="Widget"></head><body><div class="price">$25.00</div></body></html>`

	out, err := Default(DefaultBounds).Extract(html, mustURL(t, "https://unknown.example/item"))
	require.NoError(t, err)
	assert.Equal(t, "Widget", out.Title)
	require.NotNil(t, out.Price)
	assert.InDelta(t, 25.00, *out.Price, 1e-9)
	assert.Equal(t, models.PriceFromSelector, out.PriceSource)
	assert.Equal(t, "generic", out.Source)
}

func TestGenericTitleCascade(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{name: "twitter", html: `<meta name="twitter:title" content="Tweet title"><h1>Heading</h1>`, want: "Tweet title"},
		{name: "heading", html: `<title>Doc</title><h1> Heading </h1>`, want: "Heading"},
		{name: "document title", html: `<title>Doc</title>`, want: "Doc"},
		{name: "sentinel", html: `<p>nothing</p>`, want: models.NoTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Default(DefaultBounds).Extract(tt.html, mustURL(t, "https://x.example/"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Title)
		})
	}
}

func TestGenericImageResolvedAgainstPage(t *testing.T) {
	html := `<html><body><img src="../media/cover.jpg"></body></html>`
	out, err := Default(DefaultBounds).Extract(html, mustURL(t, "https://books.example/catalogue/item/index.html"))
	require.NoError(t, err)
	assert.Equal(t, "https://books.example/catalogue/media/cover.jpg", out.Image)
}

func TestGenericPricePrecedence(t *testing.T) {
	tests := []struct {
		name   string
		html   string
		want   float64
		source models.PriceSource
	}{
		{
			name:   "meta beats selectors",
			html:   `<meta property="product:price:amount" content="19.99"><span class="price">$5.00</span>`,
			want:   19.99,
			source: models.PriceFromMeta,
		},
		{
			name:   "itemprop content",
			html:   `<span itemprop="price" content="1,299.00">$1,299</span>`,
			want:   1299,
			source: models.PriceFromMeta,
		},
		{
			name:   "json-ld offers object",
			html:   `<script type="application/ld+json">{"@type":"Product","offers":{"price":"34.50","priceCurrency":"CAD"}}</script>`,
			want:   34.50,
			source: models.PriceFromJSONLD,
		},
		{
			name:   "json-ld offers array numeric",
			html:   `<script type="application/ld+json">[{"@type":"Product","offers":[{"price":12.5},{"price":99}]}]</script>`,
			want:   12.5,
			source: models.PriceFromJSONLD,
		},
		{
			name:   "json-ld graph low price",
			html:   `<script type="application/ld+json">{"@graph":[{"@type":"WebPage"},{"@type":"Product","offers":{"lowPrice":"€8,99"}}]}</script>`,
			want:   8.99,
			source: models.PriceFromJSONLD,
		},
		{
			name:   "invalid json-ld skipped",
			html:   `<script type="application/ld+json">{not json</script><p class="price_color">£51.77</p>`,
			want:   51.77,
			source: models.PriceFromSelector,
		},
		{
			name:   "page text smallest plausible",
			html:   `<p>Ships for $0.10. Was $120.00, now $89.99. Save $30.01</p><script>var p = "$0.75";</script>`,
			want:   30.01,
			source: models.PriceFromPageText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Default(DefaultBounds).Extract(tt.html, mustURL(t, "https://x.example/p"))
			require.NoError(t, err)
			require.NotNil(t, out.Price)
			assert.InDelta(t, tt.want, *out.Price, 1e-9)
			assert.Equal(t, tt.source, out.PriceSource)
		})
	}
}

func TestGenericNoPrice(t *testing.T) {
	out, err := Default(DefaultBounds).Extract(`<h1>Nothing for sale</h1>`, mustURL(t, "https://x.example/"))
	require.NoError(t, err)
	assert.Nil(t, out.Price)
	assert.Empty(t, out.PriceSource)
}

func TestGenericIdentifier(t *testing.T) {
	out, err := Default(DefaultBounds).Extract(`<p>Code 9780306406157 in stock</p>`, mustURL(t, "https://x.example/"))
	require.NoError(t, err)
	assert.Equal(t, "9780306406157", out.Identifier)
}

func TestBookoutlet(t *testing.T) {
	html := `<html><head>
<meta property="og:image" content="/img/cover.jpg">
</head><body>
<h1>The Pragmatic Programmer</h1>
<div class="details">ISBN: 978-0-13-595705-9</div>
<p>Shipping $4,999.00 or $1,500.00 bundle or $7.99</p>
</body></html>`

	out, err := Default(DefaultBounds).Extract(html, mustURL(t, "https://bookoutlet.ca/products/pragmatic"))
	require.NoError(t, err)
	assert.Equal(t, "bookoutlet", out.Source)
	assert.Equal(t, "The Pragmatic Programmer", out.Title)
	assert.Equal(t, "https://bookoutlet.ca/img/cover.jpg", out.Image)
	assert.Equal(t, "9780135957059", out.Identifier)
	require.NotNil(t, out.Price)
	assert.InDelta(t, 7.99, *out.Price, 1e-9)
}

func TestBookoutletTextBoundCapped(t *testing.T) {
	html := `<h1>Atlas</h1><p>Sale ends soon. Only $1,200.00</p>`
	out, err := Default(DefaultBounds).Extract(html, mustURL(t, "https://bookoutlet.ca/products/atlas"))
	require.NoError(t, err)
	assert.Nil(t, out.Price)
}

func TestNewegg(t *testing.T) {
	html := `<html><head><meta property="og:title" content="GPU 16GB"></head><body>
<img class="product-view-img-original" src="https://c1.neweggimages.com/gpu.jpg">
<li class="price-current">$<strong>1,049</strong><sup>.99</sup></li>
</body></html>`

	out, err := Default(DefaultBounds).Extract(html, mustURL(t, "https://www.newegg.com/p/N82E168"))
	require.NoError(t, err)
	assert.Equal(t, "GPU 16GB", out.Title)
	assert.Equal(t, "https://c1.neweggimages.com/gpu.jpg", out.Image)
	require.NotNil(t, out.Price)
	assert.InDelta(t, 1049.99, *out.Price, 1e-9)
	assert.Empty(t, out.Identifier)
}

func TestEbay(t *testing.T) {
	html := `<html><body>
<h1 id="itemTitle"><span class="g-hdn">Details about</span>Vintage Camera</h1>
<img id="icImg" src="https://i.ebayimg.com/cam.jpg">
<span id="prcIsum" content="149.5">C $149.50</span>
</body></html>`

	out, err := Default(DefaultBounds).Extract(html, mustURL(t, "https://www.ebay.ca/itm/123"))
	require.NoError(t, err)
	assert.Equal(t, "Vintage Camera", out.Title)
	assert.Equal(t, "https://i.ebayimg.com/cam.jpg", out.Image)
	require.NotNil(t, out.Price)
	assert.InDelta(t, 149.5, *out.Price, 1e-9)
	assert.Equal(t, models.PriceFromMeta, out.PriceSource)
}

func TestEbayModernLayout(t *testing.T) {
	html := `<h1 class="x-item-title__mainTitle">Lens 50mm</h1>
<div class="x-price-primary"><span class="ux-textspans">US $89.00</span></div>`

	out, err := Default(DefaultBounds).Extract(html, mustURL(t, "https://www.ebay.com/itm/9"))
	require.NoError(t, err)
	assert.Equal(t, "Lens 50mm", out.Title)
	require.NotNil(t, out.Price)
	assert.InDelta(t, 89.0, *out.Price, 1e-9)
	assert.Equal(t, models.PriceFromSelector, out.PriceSource)
}

func TestWalmart(t *testing.T) {
	html := `<html><head><meta property="og:title" content="Kettle"></head><body>
<span data-automation-id="product-price">Now $24.97</span>
</body></html>`

	out, err := Default(DefaultBounds).Extract(html, mustURL(t, "https://www.walmart.com/ip/kettle/1"))
	require.NoError(t, err)
	assert.Equal(t, "walmart", out.Source)
	assert.Equal(t, "Kettle", out.Title)
	require.NotNil(t, out.Price)
	assert.InDelta(t, 24.97, *out.Price, 1e-9)
}

func TestIndigo(t *testing.T) {
	html := `<html><head><meta name="twitter:title" content="Dune"></head><body>
<div class="product-price">$12,99</div>
<p>EAN 9780441172719</p>
</body></html>`

	out, err := Default(DefaultBounds).Extract(html, mustURL(t, "https://www.indigo.ca/en-ca/dune"))
	require.NoError(t, err)
	assert.Equal(t, "Dune", out.Title)
	require.NotNil(t, out.Price)
	assert.InDelta(t, 12.99, *out.Price, 1e-9)
	assert.Equal(t, "9780441172719", out.Identifier)
}

func TestHostMatcher(t *testing.T) {
	m := HostMatcher{"walmart.com"}
	assert.True(t, m.Match(mustURL(t, "https://WWW.Walmart.com/ip/1")))
	assert.True(t, m.Match(mustURL(t, "https://grocery.walmart.com/")))
	assert.False(t, m.Match(mustURL(t, "https://walmart.com.evil.example/")))
	assert.False(t, m.Match(nil))
}
