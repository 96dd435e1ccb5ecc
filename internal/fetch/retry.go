package fetch

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Policy decides when a fetched page is unusable and how long to back off
// between attempts. Stateless apart from its jitter source.
type Policy struct {
	// MaxRetries is the number of attempts per fetch.
	MaxRetries int
	// DetectionKeywords are substrings indicating a block page, CAPTCHA,
	// or incomplete render.
	DetectionKeywords []string

	// rng supplies jitter. Injectable so tests can pin it to zero. One
	// policy is shared by every worker session and *rand.Rand is not
	// safe for concurrent use, so all access goes through rngMu.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewPolicy builds a retry policy with a time-seeded jitter source.
func NewPolicy(maxRetries int, detectionKeywords []string) *Policy {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Policy{
		MaxRetries:        maxRetries,
		DetectionKeywords: detectionKeywords,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand replaces the jitter source. Test hook.
func (p *Policy) WithRand(rng *rand.Rand) *Policy {
	p.rngMu.Lock()
	p.rng = rng
	p.rngMu.Unlock()
	return p
}

// Blocked reports whether content is absent, too short, or contains a
// detection keyword, together with a human-readable reason.
func (p *Policy) Blocked(content string, minLength int) (bool, string) {
	if len(content) < minLength || content == "" {
		return true, "empty or too short content"
	}
	for _, kw := range p.DetectionKeywords {
		if strings.Contains(content, kw) {
			return true, fmt.Sprintf("detection keyword found: %q", kw)
		}
	}
	return false, ""
}

// BackoffDelay computes the wait before the given attempt (0-indexed).
// Attempt 0 waits minWait plus a small jitter; later attempts grow
// exponentially (minWait * 1.5^attempt) with up to 2s of jitter. A rate
// limited response triples the wait.
func (p *Policy) BackoffDelay(attempt int, minWait time.Duration, rateLimited bool) time.Duration {
	if attempt == 0 {
		return minWait + p.jitter(500*time.Millisecond)
	}

	backoff := time.Duration(float64(minWait) * math.Pow(1.5, float64(attempt)))
	wait := backoff + p.jitter(2*time.Second)
	if rateLimited {
		wait *= 3
	}
	return wait
}

func (p *Policy) jitter(max time.Duration) time.Duration {
	p.rngMu.Lock()
	f := p.rng.Float64()
	p.rngMu.Unlock()
	return time.Duration(f * float64(max))
}
