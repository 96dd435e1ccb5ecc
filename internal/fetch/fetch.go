// Package fetch implements the resilient page-fetch engine: rate-limited,
// retried page loads with rotating stealth fingerprints, selectable between
// a full browser session and a lightweight HTTP client.
package fetch

import (
	"context"
	"time"
)

// Strategy selects how a page is fetched.
type Strategy int

const (
	// StrategyHTTP performs a direct HTTP request impersonating a real
	// browser. Faster, used when JS rendering is unnecessary.
	StrategyHTTP Strategy = iota
	// StrategyBrowser renders the page in a headless browser session and
	// supports CSS-selector wait conditions.
	StrategyBrowser
)

// Options constrains a single fetch.
type Options struct {
	// Strategy selects the fetch path. Defaults to StrategyHTTP.
	Strategy Strategy
	// RequiredContent lists substrings that must appear in the page for it
	// to count as loaded.
	RequiredContent []string
	// MinContentLength rejects pages shorter than this many bytes. Zero
	// falls back to the engine default.
	MinContentLength int
	// WaitSelector is a CSS selector the browser strategy waits for.
	WaitSelector string
	// SettleTime is extra time to wait after the page loads.
	SettleTime time.Duration
}

// Fetcher returns page content for a URL, hiding network unreliability and
// anti-bot defenses. Exhausted retries yield empty content, not an error:
// the caller treats an empty result as "skip this unit of work".
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) string
}

// Session is a per-worker Fetcher owning its own browser/HTTP resources.
// Sessions must never be shared across workers.
type Session interface {
	Fetcher
	// Close releases the session's resources. Safe to call more than once.
	Close()
}
