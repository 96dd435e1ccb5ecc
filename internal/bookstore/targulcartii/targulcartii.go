// Package targulcartii scrapes the Targul Cartii second-hand bookstore.
package targulcartii

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bookscout/bookscout/internal/books"
	"github.com/bookscout/bookscout/internal/bookstore"
	"github.com/bookscout/bookscout/internal/fetch"
	"github.com/bookscout/bookscout/internal/logger"
)

const (
	name      = "targulcartii"
	baseURL   = "https://www.targulcartii.ro/"
	pageQuery = "noutati?limit=20&page=%d"

	// outOfStockMarker appears on delisted detail pages.
	outOfStockMarker = "STOC EPUIZAT!"

	// seenCacheSize bounds the discovery dedup cache. Listings repeat
	// across paginated result pages.
	seenCacheSize = 65536
)

// categoryTable maps the site's breadcrumb vocabulary onto the shared
// category enum. Unlisted breadcrumbs fall through to None.
var categoryTable = map[string]books.Category{
	"Literatura":           books.CategoryLiterature,
	"Beletristica":         books.CategoryLiterature,
	"Istorie":              books.CategoryHistory,
	"Stiinta":              books.CategoryScience,
	"Arta":                 books.CategoryArts,
	"Spiritualitate":       books.CategorySpirituality,
	"Religie":              books.CategorySpirituality,
	"Hobby si timp liber":  books.CategoryHobbies,
	"Dezvoltare personala": books.CategoryPersonalDev,
	"Afaceri si economie":  books.CategoryBusiness,
	"Carti pentru copii":   books.CategoryKidsYA,
	"Diverse":              books.CategoryOther,
}

func init() {
	bookstore.Register(name, func() bookstore.Extractor {
		return &Extractor{mapper: books.NewCategoryMapper(categoryTable)}
	})
}

// Extractor implements bookstore.Extractor for targulcartii.ro.
type Extractor struct {
	mapper *books.CategoryMapper
}

func (e *Extractor) Name() string { return name }

// UseCategoryMapper replaces the built-in category table with one loaded
// from configuration.
func (e *Extractor) UseCategoryMapper(m *books.CategoryMapper) { e.mapper = m }

func pageURL(page int) string {
	return baseURL + fmt.Sprintf(pageQuery, page)
}

// DiscoverUnitsOfWork walks the paginated new-arrivals listing and
// collects detail-page URLs. A failed listing fetch aborts the walk and
// returns what was gathered so far.
func (e *Extractor) DiscoverUnitsOfWork(ctx context.Context, f fetch.Fetcher) ([]string, error) {
	maxPages, err := e.maxPages(ctx, f)
	if err != nil {
		return nil, err
	}

	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, err
	}

	var urls []string
	for page := 1; page < maxPages; page++ {
		logger.Debug("listing page", "store", name, "page", page)
		content := f.Fetch(ctx, pageURL(page), fetch.Options{MinContentLength: 200})
		if content == "" {
			logger.Warn("listing fetch failed, stopping discovery", "store", name, "page", page)
			break
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err != nil {
			logger.Warn("listing page parse failed", "store", name, "page", page, "error", err)
			continue
		}

		doc.Find("div.detalii_btn a").Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok || href == "" {
				return
			}
			if seen.Contains(href) {
				return
			}
			seen.Add(href, struct{}{})
			urls = append(urls, href)
		})
	}

	logger.Info("discovery complete", "store", name, "urls", len(urls))
	return urls, nil
}

// maxPages reads the pagination total from the first listing page.
func (e *Extractor) maxPages(ctx context.Context, f fetch.Fetcher) (int, error) {
	content := f.Fetch(ctx, pageURL(0), fetch.Options{MinContentLength: 200})
	if content == "" {
		return 0, fmt.Errorf("%s: initial listing page unreachable", name)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(doc.Find("span.pagination_total_pages").First().Text())
	pages, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%s: pagination total %q: %w", name, text, err)
	}
	return pages, nil
}

// ExtractRecords parses one detail page into a single book with one
// offer. Out-of-stock pages yield nothing.
func (e *Extractor) ExtractRecords(content, url string) ([]*books.Book, error) {
	if strings.Contains(content, outOfStockMarker) {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find(`h1[itemprop="name"]`).First().Text())
	if title == "" {
		return nil, fmt.Errorf("title element absent at %s", url)
	}
	author := strings.TrimSpace(doc.Find(`span[itemprop="author"]`).First().Text())
	isbn := strings.ReplaceAll(strings.TrimSpace(doc.Find(`span[itemprop="isbn"]`).First().Text()), "-", "")

	price, err := parsePrice(doc.Find("span.price-new").First().Text())
	if err != nil {
		return nil, fmt.Errorf("price at %s: %w", url, err)
	}

	category := e.mapper.Map(breadcrumbCategory(doc))

	book, err := books.New(title, author, isbn, category, books.NewOffer(name, url, price))
	if err != nil {
		return nil, err
	}
	return []*books.Book{book}, nil
}

// breadcrumbCategory takes the second-to-last breadcrumb entry, the most
// specific category the site exposes on a detail page.
func breadcrumbCategory(doc *goquery.Document) string {
	crumbs := doc.Find(`div.product-info span[itemprop="itemListElement"]`)
	if crumbs.Length() < 2 {
		return ""
	}
	return strings.TrimSpace(crumbs.Eq(crumbs.Length() - 2).Find("a span").First().Text())
}

// parsePrice handles the site's "24,00 LEI" format.
func parsePrice(raw string) (float64, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "LEI", ""))
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return 0, fmt.Errorf("price element absent")
	}
	price, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable price %q", raw)
	}
	return price, nil
}
