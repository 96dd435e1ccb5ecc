// Package rating resolves popularity scores for scraped books against the
// Goodreads catalog using fuzzy title/author matching.
package rating

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bookscout/bookscout/internal/books"
	"github.com/bookscout/bookscout/internal/fetch"
	"github.com/bookscout/bookscout/internal/logger"
	"github.com/bookscout/bookscout/internal/similarity"
)

const (
	// DefaultBaseURL is the reference catalog root.
	DefaultBaseURL = "https://www.goodreads.com"

	// notFoundIndicator appears (case-insensitively) on the catalog's
	// empty search result page.
	notFoundIndicator = "looking for a book?"
)

// rejectedTitles are candidate titles that never denote the actual book.
var rejectedTitles = []string{"summary"}

var (
	ratingCountRe = regexp.MustCompile(`\d{1,3}(?:,\d{3})*`)
	avgRatingRe   = regexp.MustCompile(`(\d+\.\d+)`)
	miniCountRe   = regexp.MustCompile(`(\d{1,3}(?:,\d{3})*) ratings?`)
)

// Result is a resolved popularity score. Score is average_rating times
// ratings_count, deliberately unnormalized: the dashboard sorts on this
// scale.
type Result struct {
	Score        float64
	ReferenceURL string
	Found        bool
}

// Resolver looks up one book at a time. It owns no session: each worker
// pairs its private fetch session with one shared read-only similarity
// engine.
type Resolver struct {
	session fetch.Fetcher
	sim     *similarity.Engine
	baseURL string
}

// New builds a resolver on a worker's fetch session.
func New(session fetch.Fetcher, sim *similarity.Engine) *Resolver {
	return &Resolver{session: session, sim: sim, baseURL: DefaultBaseURL}
}

// WithBaseURL points the resolver at a different catalog root. Test hook.
func (r *Resolver) WithBaseURL(base string) *Resolver {
	r.baseURL = strings.TrimSuffix(base, "/")
	return r
}

func (r *Resolver) searchURL(query string) string {
	return r.baseURL + "/search?q=" + strings.ReplaceAll(query, " ", "%20")
}

// Resolve finds the best catalog match for a rating task. Strict order,
// first hit wins: ISBN direct search, then "author title", then "title".
// Every parse failure is logged and skipped; only full exhaustion yields
// Found=false.
func (r *Resolver) Resolve(ctx context.Context, task books.RatingTask) Result {
	logger.Info("resolving rating", "title", task.Title, "row", task.RowID)

	if task.ISBN != "" {
		if res, ok := r.resolveByISBN(ctx, task.ISBN); ok {
			return res
		}
	}

	var queries []string
	if task.Author != "" {
		queries = append(queries, task.Author+" "+task.Title)
	}
	queries = append(queries, task.Title)

	for _, q := range queries {
		if res, ok := r.resolveBySearch(ctx, task, q); ok {
			return res
		}
	}

	logger.Info("no catalog match", "title", task.Title)
	return Result{}
}

// resolveByISBN hits the ISBN search endpoint, which lands directly on a
// book detail page when the ISBN is known.
func (r *Resolver) resolveByISBN(ctx context.Context, isbn string) (Result, bool) {
	searchURL := r.searchURL(isbn)
	content := r.session.Fetch(ctx, searchURL, fetch.Options{MinContentLength: 100})
	if content == "" || strings.Contains(strings.ToLower(content), notFoundIndicator) {
		return Result{}, false
	}

	score, err := parseDetailPage(content)
	if err != nil {
		logger.Warn("isbn detail page parse failed", "isbn", isbn, "error", err)
		return Result{}, false
	}
	logger.Info("isbn hit", "isbn", isbn, "score", score)
	return Result{Score: score, ReferenceURL: searchURL, Found: true}, true
}

// parseDetailPage extracts rating * ratings_count from a book detail page.
func parseDetailPage(content string) (float64, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return 0, err
	}

	ratingText := strings.TrimSpace(doc.Find("div.RatingStatistics__rating").First().Text())
	if ratingText == "" {
		return 0, fmt.Errorf("rating element absent")
	}
	avg, err := strconv.ParseFloat(ratingText, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rating %q: %w", ratingText, err)
	}

	countText := strings.TrimSpace(doc.Find(`span[data-testid="ratingsCount"]`).First().Text())
	countMatch := ratingCountRe.FindString(countText)
	if countMatch == "" {
		return 0, fmt.Errorf("ratings count absent in %q", countText)
	}
	count, err := strconv.ParseFloat(strings.ReplaceAll(countMatch, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ratings count %q: %w", countMatch, err)
	}

	return avg * count, nil
}

// resolveBySearch runs one free-text query over the catalog's result list
// and returns the first candidate row passing the similarity gate.
func (r *Resolver) resolveBySearch(ctx context.Context, task books.RatingTask, query string) (Result, bool) {
	content := r.session.Fetch(ctx, r.searchURL(query), fetch.Options{MinContentLength: 100})
	if content == "" || strings.Contains(strings.ToLower(content), notFoundIndicator) {
		return Result{}, false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		logger.Warn("search page parse failed", "query", query, "error", err)
		return Result{}, false
	}

	var result Result
	doc.Find(`tr[itemtype="http://schema.org/Book"]`).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		candidate, err := parseCandidate(row)
		if err != nil {
			logger.Warn("candidate row parse failed", "query", query, "error", err)
			return true
		}

		if isRejectedTitle(candidate.title) {
			return true
		}
		if !r.sim.Similar(task.Title, candidate.title) {
			return true
		}
		if task.Author != "" && candidate.author != "" && !r.sim.Similar(task.Author, candidate.author) {
			return true
		}

		logger.Info("catalog hit", "title", task.Title, "matched", candidate.title)
		result = Result{
			Score:        candidate.score,
			ReferenceURL: r.baseURL + candidate.href,
			Found:        true,
		}
		return false
	})

	return result, result.Found
}

type candidateRow struct {
	title  string
	author string
	score  float64
	href   string
}

// parseCandidate extracts one result-list row: title, author, the compact
// "X.XX avg rating — N ratings" blob, and the detail link.
func parseCandidate(row *goquery.Selection) (candidateRow, error) {
	title := strings.TrimSpace(row.Find(`a.bookTitle span[itemprop="name"]`).First().Text())
	if title == "" {
		return candidateRow{}, fmt.Errorf("candidate title absent")
	}
	author := strings.TrimSpace(row.Find(`a.authorName span[itemprop="name"]`).First().Text())

	mini := strings.TrimSpace(row.Find("span.minirating").First().Text())
	avgMatch := avgRatingRe.FindStringSubmatch(mini)
	countMatch := miniCountRe.FindStringSubmatch(mini)
	if avgMatch == nil || countMatch == nil {
		return candidateRow{}, fmt.Errorf("minirating blob unparseable: %q", mini)
	}
	avg, err := strconv.ParseFloat(avgMatch[1], 64)
	if err != nil {
		return candidateRow{}, err
	}
	count, err := strconv.ParseFloat(strings.ReplaceAll(countMatch[1], ",", ""), 64)
	if err != nil {
		return candidateRow{}, err
	}

	href, ok := row.Find("a").First().Attr("href")
	if !ok {
		return candidateRow{}, fmt.Errorf("candidate link absent")
	}

	return candidateRow{title: title, author: author, score: avg * count, href: href}, nil
}

func isRejectedTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, rejected := range rejectedTitles {
		if lower == rejected {
			return true
		}
	}
	return false
}
