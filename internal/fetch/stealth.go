package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	browser "github.com/EDDYCJY/fake-useragent"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Profile is a fixed bundle of browser fingerprint attributes rotated across
// worker sessions to reduce bot detection.
type Profile struct {
	Platform     string
	Vendor       string
	ScreenWidth  int
	ScreenHeight int
	Timezone     string
	Locale       string
}

// profilePool is the fixed set of fingerprints handed out round-robin.
var profilePool = []Profile{
	{Platform: "Win32", Vendor: "Google Inc.", ScreenWidth: 1920, ScreenHeight: 1080, Timezone: "America/New_York", Locale: "en-US"},
	{Platform: "MacIntel", Vendor: "Apple Computer, Inc.", ScreenWidth: 1440, ScreenHeight: 900, Timezone: "America/Los_Angeles", Locale: "en-US"},
	{Platform: "Win32", Vendor: "Google Inc.", ScreenWidth: 2560, ScreenHeight: 1440, Timezone: "America/Chicago", Locale: "en-US"},
	{Platform: "X11", Vendor: "Google Inc.", ScreenWidth: 1920, ScreenHeight: 1080, Timezone: "Europe/London", Locale: "en-GB"},
	{Platform: "Win32", Vendor: "Google Inc.", ScreenWidth: 1366, ScreenHeight: 768, Timezone: "America/Denver", Locale: "en-US"},
	{Platform: "MacIntel", Vendor: "Apple Computer, Inc.", ScreenWidth: 1680, ScreenHeight: 1050, Timezone: "America/Phoenix", Locale: "en-US"},
}

// fallbackUserAgents covers the case where the fake-useragent cache is
// unavailable (offline CI).
var fallbackUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-US,en;q=0.9,es;q=0.8",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.8",
}

// StealthProvider hands out rotating fingerprint profiles and stealth
// request headers. Safe for concurrent use.
type StealthProvider struct {
	mu      sync.Mutex
	counter int
	rng     *rand.Rand
}

// NewStealthProvider creates a provider starting at the first profile.
func NewStealthProvider() *StealthProvider {
	return &StealthProvider{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NextProfile returns the next profile in round-robin order along with its
// ordinal, used as a session tag in logs.
func (s *StealthProvider) NextProfile() (int, Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.counter
	s.counter++
	return id, profilePool[id%len(profilePool)]
}

// UserAgent returns a desktop browser user agent.
func (s *StealthProvider) UserAgent() string {
	if ua := browser.Chrome(); ua != "" {
		return ua
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fallbackUserAgents[s.rng.Intn(len(fallbackUserAgents))]
}

// Headers generates a browser-like header set for direct HTTP requests.
// targetURL, when parseable, contributes a same-origin Referer.
func (s *StealthProvider) Headers(userAgent, targetURL string) map[string]string {
	s.mu.Lock()
	lang := acceptLanguages[s.rng.Intn(len(acceptLanguages))]
	s.mu.Unlock()

	headers := map[string]string{
		"User-Agent":                userAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           lang,
		"Accept-Encoding":           "gzip, deflate, br",
		"DNT":                       "1",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Cache-Control":             "max-age=0",
	}
	if u, err := url.Parse(targetURL); err == nil && u.Host != "" {
		headers["Referer"] = fmt.Sprintf("%s://%s/", u.Scheme, u.Host)
	}
	return headers
}

// EvasionScript generates the fingerprint-spoofing script for a profile.
// The canvas seed and hardware values vary per session so long-lived
// fingerprint tracking cannot tie two sessions together.
func (s *StealthProvider) EvasionScript(p Profile) string {
	s.mu.Lock()
	canvasSeed := 1000 + s.rng.Intn(9000)
	pluginCount := 3 + s.rng.Intn(4)
	cores := []int{4, 6, 8, 12, 16}[s.rng.Intn(5)]
	memory := []int{4, 8, 16}[s.rng.Intn(3)]
	webglVendor := []string{"Intel Inc.", "Google Inc. (NVIDIA)", "Google Inc. (AMD)"}[s.rng.Intn(3)]
	webglRenderer := []string{"Intel Iris OpenGL Engine", "ANGLE (NVIDIA GeForce GTX 1050 Ti)", "ANGLE (AMD Radeon)"}[s.rng.Intn(3)]
	s.mu.Unlock()

	lang := p.Locale
	langShort := lang
	if len(lang) > 2 {
		langShort = lang[:2]
	}

	return fmt.Sprintf(`
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'platform', { get: () => '%s' });
Object.defineProperty(navigator, 'vendor', { get: () => '%s' });
Object.defineProperty(navigator, 'plugins', { get: () => new Array(%d).fill(null) });
Object.defineProperty(navigator, 'languages', { get: () => ['%s', '%s'] });
window.chrome = { runtime: {}, loadTimes: function() {}, csi: function() {} };

const canvasSeed = %d;
const originalGetImageData = CanvasRenderingContext2D.prototype.getImageData;
CanvasRenderingContext2D.prototype.getImageData = function() {
    const imageData = originalGetImageData.apply(this, arguments);
    for (let i = 0; i < imageData.data.length; i += 4) {
        imageData.data[i] = imageData.data[i] ^ (canvasSeed %% 256);
    }
    return imageData;
};

const getParameter = WebGLRenderingContext.prototype.getParameter;
WebGLRenderingContext.prototype.getParameter = function(parameter) {
    if (parameter === 37445) return '%s';
    if (parameter === 37446) return '%s';
    return getParameter.call(this, parameter);
};

Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d });
Object.defineProperty(navigator, 'deviceMemory', { get: () => %d });
Object.defineProperty(screen, 'width', { get: () => %d });
Object.defineProperty(screen, 'height', { get: () => %d });
`, p.Platform, p.Vendor, pluginCount, lang, langShort, canvasSeed,
		webglVendor, webglRenderer, cores, memory, p.ScreenWidth, p.ScreenHeight)
}

// allocatorOptions returns Chrome flags for a stealth browser sized to the
// profile's screen.
func allocatorOptions(p Profile, headless bool) []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("lang", p.Locale),
		chromedp.WindowSize(p.ScreenWidth, p.ScreenHeight),
	)
}

// injectEvasionScript registers the evasion script to run before any page
// scripts on every navigation in the session.
func injectEvasionScript(script string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	})
}
