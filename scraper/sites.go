package scraper

import (
	"github.com/aluiziolira/resale-scout/models"
)

var (
	ogTitle      = metaContent(`meta[property="og:title"]`)
	twitterTitle = metaContent(`meta[name="twitter:title"]`)
	firstHeading = textOf("h1")
	docTitle     = textOf("title")

	ogImage      = metaContent(`meta[property="og:image"]`)
	twitterImage = metaContent(`meta[name="twitter:image"]`)
	firstImage   = attrOf("img[src]", "src")
)

// bookoutletMaxPrice caps free-text prices on a discount book store.
const bookoutletMaxPrice = 1000

// Bookoutlet handles bookoutlet.ca. Its pages carry reliable meta and JSON-LD
// prices, so the reader proxy is skipped.
func Bookoutlet(b Bounds) Scraper {
	textBounds := b
	if textBounds.Max > bookoutletMaxPrice {
		textBounds.Max = bookoutletMaxPrice
	}
	return &siteScraper{
		name:        "bookoutlet",
		hosts:       HostMatcher{"bookoutlet.ca", "bookoutlet.com"},
		avoidReader: true,
		titles:      []textExtractor{firstHeading, ogTitle, docTitle},
		images:      []textExtractor{ogImage, firstImage},
		prices: []priceExtractor{
			standardMeta(),
			jsonLD(),
			amounts(models.PriceFromSelector,
				textOf(".product__price"),
				textOf(".current-price"),
				textOf(".sale-price"),
				textOf(".price"),
				textOf(".price_color"),
				textOf(`div:contains("Our Price")`),
				textOf(`div:contains("Price")`),
			),
			pageText(textBounds),
		},
		identifiers: []textExtractor{labeledISBN, pageISBN},
	}
}

// Newegg handles newegg.com.
func Newegg() Scraper {
	return &siteScraper{
		name:   "newegg",
		hosts:  HostMatcher{"newegg.com"},
		titles: []textExtractor{ogTitle, firstHeading, docTitle},
		images: []textExtractor{
			ogImage,
			attrOf(".product-view-img-original", "src"),
			firstImage,
		},
		prices: []priceExtractor{
			amounts(models.PriceFromSelector,
				textOf(".price-current"),
				textOf(".price-current *"),
			),
		},
	}
}

// Ebay handles the regional eBay storefronts.
func Ebay() Scraper {
	return &siteScraper{
		name:  "ebay",
		hosts: HostMatcher{"ebay.com", "ebay.ca", "ebay.co.uk", "ebay.de", "ebay.fr", "ebay.it", "ebay.es", "ebay.com.au"},
		titles: []textExtractor{
			ownTextOf("#itemTitle"),
			textOf("h1.x-item-title__mainTitle"),
			ogTitle,
			docTitle,
		},
		images: []textExtractor{ogImage, attrOf("#icImg", "src"), firstImage},
		prices: []priceExtractor{
			amounts(models.PriceFromMeta, metaContent("#prcIsum")),
			amounts(models.PriceFromSelector,
				textOf("#prcIsum"),
				textOf("#mm-saleDscPrc"),
				textOf(".x-price-primary .ux-textspans"),
			),
			amounts(models.PriceFromMeta, metaContent("[itemprop=price]")),
			amounts(models.PriceFromSelector,
				textOf(".display-price"),
				textOf(".mainPrice"),
			),
		},
	}
}

// Walmart handles walmart.com and walmart.ca.
func Walmart() Scraper {
	return &siteScraper{
		name:   "walmart",
		hosts:  HostMatcher{"walmart.com", "walmart.ca"},
		titles: []textExtractor{ogTitle, firstHeading, docTitle},
		images: []textExtractor{ogImage, firstImage},
		prices: []priceExtractor{
			amounts(models.PriceFromMeta,
				metaContent("meta[itemprop=price]"),
				metaContent("[itemprop=price]"),
				metaContent(`meta[property="product:price:amount"]`),
				metaContent(`meta[property="og:price:amount"]`),
			),
			amounts(models.PriceFromSelector,
				textOf("[data-automation-id*=price]"),
				metaContent(".price-characteristic"),
			),
		},
	}
}

// Indigo handles indigo.ca.
func Indigo() Scraper {
	return &siteScraper{
		name:   "indigo",
		hosts:  HostMatcher{"indigo.ca"},
		titles: []textExtractor{ogTitle, twitterTitle, firstHeading, docTitle},
		images: []textExtractor{ogImage, twitterImage, firstImage},
		prices: []priceExtractor{
			amounts(models.PriceFromMeta,
				metaContent("meta[itemprop=price]"),
				metaContent("[itemprop=price]"),
				metaContent(`meta[property="product:price:amount"]`),
				metaContent(`meta[property="og:price:amount"]`),
			),
			amounts(models.PriceFromSelector,
				textOf(".price, .product__price, .price__value, .product-price, .price-current, [data-testid*=price]"),
			),
			// Whatever element first mentions "Price"; usually a large container.
			amounts(models.PriceFromPageText, textOf(`*:contains("Price")`)),
		},
		identifiers: []textExtractor{pageISBN},
	}
}

// Generic matches every URL and applies the broad heuristics: structured
// metadata, JSON-LD, common price containers and finally the smallest
// plausible amount in the visible text. The last step can pick a shipping
// fee or add-on price, so it is reported as page-text.
func Generic(b Bounds) Scraper {
	return &siteScraper{
		name:     "generic",
		matchAll: true,
		titles:   []textExtractor{ogTitle, twitterTitle, firstHeading, docTitle},
		images:   []textExtractor{ogImage, twitterImage, firstImage},
		prices: []priceExtractor{
			standardMeta(),
			jsonLD(),
			amounts(models.PriceFromSelector,
				textOf(".price_color"),
				textOf(".price-current"),
				textOf(".product-price"),
				textOf(".current-price"),
				textOf(".sale-price"),
				textOf(".our-price"),
				textOf(".price"),
				textOf(`div:contains("Price")`),
				textOf(`div:contains("List price")`),
			),
			pageText(b),
		},
		identifiers: []textExtractor{pageISBN},
	}
}
