package fetch

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bookscout/bookscout/internal/logger"
)

// Config controls the engine's retry, throttle, and session behavior.
type Config struct {
	// MaxRetries is the number of attempts per fetch.
	MaxRetries int
	// MinRequestDelay is the global minimum interval between any two
	// network attempts across all workers. Zero disables throttling.
	MinRequestDelay time.Duration
	// MinContentLength is the default minimum page size in bytes.
	MinContentLength int
	// DetectionKeywords mark block pages, CAPTCHAs, and partial renders.
	DetectionKeywords []string
	// RecycleAfter is the number of page loads before a browser session is
	// torn down and recreated with a fresh fingerprint.
	RecycleAfter int
	// Headless runs the browser without a display.
	Headless bool
	// Timeout bounds a single network attempt.
	Timeout time.Duration
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       3,
		MinContentLength: 1000,
		RecycleAfter:     5,
		Headless:         true,
		Timeout:          60 * time.Second,
	}
}

// Engine is the shared fetch context: one retry policy, one stealth
// provider, one global rate limiter, one metrics registry. Workers obtain
// private Sessions from it; the limiter is the only mutable state they
// share on the fetch path.
type Engine struct {
	cfg     Config
	policy  *Policy
	stealth *StealthProvider
	limiter *rate.Limiter
	metrics *Metrics
}

// NewEngine builds an Engine from config.
func NewEngine(cfg Config) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = DefaultConfig().MinContentLength
	}
	if cfg.RecycleAfter <= 0 {
		cfg.RecycleAfter = DefaultConfig().RecycleAfter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	limit := rate.Inf
	if cfg.MinRequestDelay > 0 {
		limit = rate.Every(cfg.MinRequestDelay)
	}

	return &Engine{
		cfg:     cfg,
		policy:  NewPolicy(cfg.MaxRetries, cfg.DetectionKeywords),
		stealth: NewStealthProvider(),
		limiter: rate.NewLimiter(limit, 1),
		metrics: NewMetrics(),
	}
}

// Policy exposes the retry policy, read-only.
func (e *Engine) Policy() *Policy { return e.policy }

// Metrics exposes the engine's metrics registry for scraping.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// NewSession creates a per-worker session. Sessions own their browser and
// HTTP resources and must not be shared across workers.
func (e *Engine) NewSession() Session {
	return &workerSession{engine: e}
}

type workerSession struct {
	engine  *Engine
	browser *browserSession
	http    *httpSession
}

// Fetch returns the page content for url, or empty content after all
// retries are exhausted. Errors never escape a fetch: every network or
// render failure is just a failed attempt.
func (s *workerSession) Fetch(ctx context.Context, url string, opts Options) string {
	switch opts.Strategy {
	case StrategyBrowser:
		if s.browser == nil {
			s.browser = &browserSession{engine: s.engine}
		}
		return s.engine.fetchWithRetry(ctx, url, opts, "browser", func() (string, int, error) {
			return s.browser.navigate(ctx, url, opts)
		})
	default:
		if s.http == nil {
			s.http = newHTTPSession(s.engine)
		}
		return s.engine.fetchWithRetry(ctx, url, opts, "http", func() (string, int, error) {
			return s.http.get(ctx, url)
		})
	}
}

// Close releases the session's browser.
func (s *workerSession) Close() {
	if s.browser != nil {
		s.browser.close()
	}
}

// fetchWithRetry runs the shared attempt loop around a strategy's single
// network attempt.
func (e *Engine) fetchWithRetry(ctx context.Context, url string, opts Options, strategy string, attemptFn func() (string, int, error)) string {
	minLen := opts.MinContentLength
	if minLen <= 0 {
		minLen = e.cfg.MinContentLength
	}

	rateLimited := false
	for attempt := 0; attempt < e.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := e.policy.BackoffDelay(attempt, e.cfg.MinRequestDelay, rateLimited)
			logger.Debug("retrying fetch",
				"url", url, "attempt", attempt+1,
				"of", e.policy.MaxRetries, "wait", wait)
			e.metrics.RetriesTotal.Inc()
			if !sleepCtx(ctx, wait) {
				break
			}
			rateLimited = false
		}

		// Global throttle shared by every worker: bounds the aggregate
		// request rate regardless of concurrency.
		if err := e.limiter.Wait(ctx); err != nil {
			break
		}

		e.metrics.RequestsTotal.WithLabelValues(strategy).Inc()
		content, status, err := attemptFn()
		if err != nil {
			logger.Warn("fetch attempt failed", "url", url, "error", err)
			continue
		}

		if status == 429 {
			logger.Warn("rate limited by server", "url", url)
			rateLimited = true
			continue
		}
		if status >= 400 {
			logger.Warn("http error", "url", url, "status", status)
			continue
		}
		if missing := missingContent(content, opts.RequiredContent); missing != "" {
			logger.Warn("required content absent", "url", url, "missing", missing)
			continue
		}
		if blocked, reason := e.policy.Blocked(content, minLen); blocked {
			logger.Warn("page blocked or incomplete", "url", url, "reason", reason)
			e.metrics.BlockedTotal.Inc()
			continue
		}

		return content
	}

	e.metrics.FailuresTotal.Inc()
	logger.Error("fetch exhausted all retries", "url", url)
	return ""
}

func missingContent(content string, required []string) string {
	for _, want := range required {
		if !strings.Contains(content, want) {
			return want
		}
	}
	return ""
}

// sleepCtx sleeps for d unless the context ends first, reporting whether
// the full sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
