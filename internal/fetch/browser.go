package fetch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/bookscout/bookscout/internal/logger"
)

// documentStatus captures the first document response status. The
// listener callback runs on chromedp's event goroutine and can still fire
// around Run returning, while the navigating goroutine reads the value,
// so access is atomic.
type documentStatus struct {
	v atomic.Int64
}

func (d *documentStatus) record(ev any) {
	if res, ok := ev.(*network.EventResponseReceived); ok {
		if res.Type == network.ResourceTypeDocument {
			d.v.CompareAndSwap(0, res.Response.Status)
		}
	}
}

// get returns the recorded status, 0 when the browser reported none.
func (d *documentStatus) get() int {
	return int(d.v.Load())
}

// sessionState tracks the browser resource lifecycle. Transitions:
// Uninitialized -> Active -> (Recycling -> Active | Destroyed).
type sessionState int

const (
	stateUninitialized sessionState = iota
	stateActive
	stateRecycling
	stateDestroyed
)

// browserSession owns one headless browser for one worker. The browser is
// created lazily on first use, torn down and recreated with a fresh
// fingerprint after recycleAfter page loads, and destroyed on Close. Not
// safe for concurrent use: one session per worker.
type browserSession struct {
	engine *Engine

	state       sessionState
	profileID   int
	profile     Profile
	userAgent   string
	allocCtx    context.Context
	allocCancel context.CancelFunc
	pageLoads   int
}

// acquire ensures an active browser, recycling it first when the page-load
// threshold has been reached.
func (b *browserSession) acquire() error {
	if b.state == stateDestroyed {
		return fmt.Errorf("browser session already destroyed")
	}
	if b.state == stateActive && b.pageLoads >= b.engine.cfg.RecycleAfter {
		b.state = stateRecycling
		logger.Info("recycling browser session",
			"profile", b.profileID, "page_loads", b.pageLoads)
		b.teardown()
	}
	if b.state == stateActive {
		return nil
	}

	b.profileID, b.profile = b.engine.stealth.NextProfile()
	b.userAgent = b.engine.stealth.UserAgent()

	opts := append(allocatorOptions(b.profile, b.engine.cfg.Headless),
		chromedp.UserAgent(b.userAgent))
	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.pageLoads = 0
	b.state = stateActive

	logger.Debug("browser session started",
		"profile", b.profileID, "platform", b.profile.Platform)
	return nil
}

// teardown releases the browser but keeps the session reusable.
func (b *browserSession) teardown() {
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCancel = nil
	}
	b.pageLoads = 0
	if b.state != stateDestroyed {
		b.state = stateUninitialized
	}
}

// close destroys the session permanently.
func (b *browserSession) close() {
	b.teardown()
	b.state = stateDestroyed
}

// navigate performs one page load and returns the rendered HTML and the
// document response status (0 when the browser did not report one).
func (b *browserSession) navigate(ctx context.Context, targetURL string, opts Options) (string, int, error) {
	if err := b.acquire(); err != nil {
		return "", 0, err
	}
	b.pageLoads++

	tabCtx, cancelTab := chromedp.NewContext(b.allocCtx)
	defer cancelTab()

	timeoutCtx, cancelTimeout := context.WithTimeout(tabCtx, b.engine.cfg.Timeout)
	defer cancelTimeout()
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		timeoutCtx, cancel = context.WithDeadline(timeoutCtx, deadline)
		defer cancel()
	}

	// The document response status arrives as a CDP network event; chromedp
	// does not surface it from Navigate.
	var status documentStatus
	chromedp.ListenTarget(timeoutCtx, status.record)

	actions := []chromedp.Action{
		network.Enable(),
		injectEvasionScript(b.engine.stealth.EvasionScript(b.profile)),
		chromedp.Navigate(targetURL),
	}
	if opts.WaitSelector != "" {
		actions = append(actions, chromedp.WaitReady(opts.WaitSelector))
	} else {
		actions = append(actions, chromedp.WaitReady("body"))
	}
	if opts.SettleTime > 0 {
		actions = append(actions, chromedp.Sleep(opts.SettleTime))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html))

	start := time.Now()
	if err := chromedp.Run(timeoutCtx, actions...); err != nil {
		return "", status.get(), fmt.Errorf("browser navigation failed: %w", err)
	}
	logger.Debug("page rendered",
		"url", targetURL, "status", status.get(),
		"html_size", len(html), "elapsed", time.Since(start))

	return html, status.get(), nil
}
