// Package similarity decides whether two free-text names (book titles or
// author names) denote the same entity, tolerant of diacritics, punctuation,
// word reordering, and transliteration noise.
package similarity

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Weights controls the contribution of each sub-score to the hybrid score.
// They should sum to 1.0 for the hybrid score to stay within [0,100].
type Weights struct {
	Token     float64 `mapstructure:"token" yaml:"token"`
	Substring float64 `mapstructure:"substr" yaml:"substr"`
	Phonetic  float64 `mapstructure:"phonetic" yaml:"phonetic"`
	Ratio     float64 `mapstructure:"ratio" yaml:"ratio"`
}

// DefaultWeights returns the tuned defaults.
func DefaultWeights() Weights {
	return Weights{Token: 0.5, Substring: 0.1, Phonetic: 0.1, Ratio: 0.3}
}

// Engine scores string pairs. Read-only after construction, safe for
// concurrent use.
type Engine struct {
	weights   Weights
	threshold float64
}

// New creates an Engine. Zero weights fall back to defaults; a zero
// threshold falls back to 65.
func New(w Weights, threshold float64) *Engine {
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	if threshold == 0 {
		threshold = 65
	}
	return &Engine{weights: w, threshold: threshold}
}

// stripMarks removes combining marks left over after NFD decomposition,
// turning "Război" into "Razboi".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

var punctReplacer = strings.NewReplacer("(", "", ")", "", ",", "", ".", "", "`", "")

// Normalize lowercases, removes diacritics and a fixed punctuation set, and
// collapses whitespace. Idempotent.
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	out = punctReplacer.Replace(out)
	out = strings.Join(strings.Fields(out), " ")
	return strings.ToLower(out)
}

// TokenSetScore is the order-insensitive common-token ratio: the share of
// shared tokens relative to the smaller token set, so a full subset scores
// 100 regardless of extra words on the other side.
func TokenSetScore(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	common := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			common++
		}
	}
	smaller := len(ta)
	if len(tb) < smaller {
		smaller = len(tb)
	}
	return 100 * float64(common) / float64(smaller)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

// SubstringScore is 100 when any token of a appears verbatim inside b.
// Deliberately asymmetric: it measures whether a is contained in b.
func SubstringScore(a, b string) float64 {
	for _, tok := range strings.Fields(a) {
		if strings.Contains(b, tok) {
			return 100
		}
	}
	return 0
}

// PhoneticScore is 100 when the Soundex codes of the first tokens match.
func PhoneticScore(a, b string) float64 {
	if matchr.Soundex(firstToken(a)) == matchr.Soundex(firstToken(b)) {
		return 100
	}
	return 0
}

func firstToken(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// RatioScore is the Levenshtein-based edit similarity of the two full
// strings, scaled to [0,100].
func RatioScore(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	longer := len([]rune(a))
	if l := len([]rune(b)); l > longer {
		longer = l
	}
	dist := matchr.Levenshtein(a, b)
	return 100 * (1 - float64(dist)/float64(longer))
}

// HybridScore computes the weighted sum of the four sub-scores over
// already-normalized inputs.
func (e *Engine) HybridScore(a, b string) float64 {
	return e.weights.Token*TokenSetScore(a, b) +
		e.weights.Substring*SubstringScore(a, b) +
		e.weights.Phonetic*PhoneticScore(a, b) +
		e.weights.Ratio*RatioScore(a, b)
}

// Similar reports whether the hybrid score of the normalized inputs exceeds
// the threshold.
func (e *Engine) Similar(a, b string) bool {
	return e.HybridScore(Normalize(a), Normalize(b)) > e.threshold
}
