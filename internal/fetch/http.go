package fetch

import (
	"context"
	"net/http/cookiejar"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

// httpSession is the lightweight fetch path: a direct HTTP client that
// impersonates a real browser's TLS/HTTP fingerprint. Much faster than the
// browser session, used whenever JS rendering is unnecessary.
type httpSession struct {
	engine *Engine
	client *resty.Client
}

func newHTTPSession(engine *Engine) *httpSession {
	client := resty.New()
	client.SetTimeout(engine.cfg.Timeout)

	if jar, err := cookiejar.New(nil); err == nil {
		client.SetCookieJar(jar)
	}
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	return &httpSession{engine: engine, client: client}
}

// get performs one request with stealth headers and returns the body and
// status code.
func (h *httpSession) get(ctx context.Context, targetURL string) (string, int, error) {
	headers := h.engine.stealth.Headers(h.engine.stealth.UserAgent(), targetURL)

	res, err := h.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(targetURL)
	if err != nil {
		return "", 0, err
	}
	return string(res.Body()), res.StatusCode(), nil
}
