// Package bookstore defines the narrow interface a site-specific
// extractor implements and a registry the CLI resolves store names
// against. Extractors own all site knowledge (URL shapes, selectors,
// category vocabulary); the core hands them page content and persists
// whatever they produce.
package bookstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bookscout/bookscout/internal/books"
	"github.com/bookscout/bookscout/internal/fetch"
)

// Extractor is the contract between a site scraper and the core. Both
// methods must isolate their own failures: a page that fails to parse is
// skipped, not propagated.
type Extractor interface {
	// Name is the registry key and the store name written to records.
	Name() string

	// DiscoverUnitsOfWork walks the site's listing pages and returns
	// detail-page URLs, deduplicated, in discovery order.
	DiscoverUnitsOfWork(ctx context.Context, f fetch.Fetcher) ([]string, error)

	// ExtractRecords parses one fetched detail page into records. A nil
	// slice with nil error means the page holds nothing worth keeping.
	ExtractRecords(content, url string) ([]*books.Book, error)
}

// CategoryConfigurable is implemented by extractors whose category table
// can be replaced with one loaded from configuration, so per-site
// mappings stay data rather than code.
type CategoryConfigurable interface {
	UseCategoryMapper(*books.CategoryMapper)
}

// Factory builds a fresh extractor instance.
type Factory func() Extractor

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes an extractor available by name. Called from the
// extractor package's init, in the manner of database/sql drivers.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("bookstore: Register called twice for " + name)
	}
	registry[name] = f
}

// New returns a fresh extractor for the named store.
func New(name string) (Extractor, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown store %q (known: %v)", name, Names())
	}
	return f(), nil
}

// Names lists the registered store names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
