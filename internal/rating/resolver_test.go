package rating

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/bookscout/bookscout/internal/books"
	"github.com/bookscout/bookscout/internal/fetch"
	"github.com/bookscout/bookscout/internal/similarity"
)

type fetcherFunc func(url string) string

func (f fetcherFunc) Fetch(_ context.Context, url string, _ fetch.Options) string {
	return f(url)
}

func newResolver(f fetcherFunc) *Resolver {
	return New(f, similarity.New(similarity.DefaultWeights(), 65)).
		WithBaseURL("https://www.goodreads.com")
}

// padding keeps fixtures above the resolver's minimum content length.
var padding = strings.Repeat("<!-- filler -->", 20)

// scoreNear compares popularity scores within a floating tolerance:
// the parsed rating is a decimal string, so the product is not exact.
func scoreNear(got, want float64) bool {
	return math.Abs(got-want) < 1e-6
}

func detailPage(rating, count string) string {
	return fmt.Sprintf(`<html><body>%s
		<div class="RatingStatistics__rating">%s</div>
		<span data-testid="ratingsCount">%s ratings</span>
	</body></html>`, padding, rating, count)
}

func candidateHTML(title, author, minirating, href string) string {
	return fmt.Sprintf(`<tr itemtype="http://schema.org/Book">
		<td><a href=%q><span itemprop="name">%s</span></a></td>
		<td>
			<a class="bookTitle" href=%q><span itemprop="name">%s</span></a>
			<a class="authorName" href="#"><span itemprop="name">%s</span></a>
			<span class="minirating">%s</span>
		</td>
	</tr>`, href, title, href, title, author, minirating)
}

func searchPage(rows ...string) string {
	return "<html><body>" + padding + "<table>" + strings.Join(rows, "\n") + "</table></body></html>"
}

const notFoundPage = `<html><body>Looking for a book? We could not find it.
<!-- long enough filler to pass minimum content checks, repeated a few times
to be safe: filler filler filler filler filler filler filler filler -->
</body></html>`

func TestResolve_ISBNDirectHit(t *testing.T) {
	var fetched []string
	r := newResolver(func(url string) string {
		fetched = append(fetched, url)
		return detailPage("4.35", "12,345")
	})

	res := r.Resolve(context.Background(), books.RatingTask{
		RowID: 1, Title: "Război și Pace", ISBN: "9731234567",
	})

	if !res.Found {
		t.Fatal("expected a direct ISBN hit")
	}
	if !scoreNear(res.Score, 53700.75) {
		t.Errorf("score = %v, want 4.35*12345 = 53700.75", res.Score)
	}
	wantURL := "https://www.goodreads.com/search?q=9731234567"
	if res.ReferenceURL != wantURL {
		t.Errorf("reference URL = %q, want %q", res.ReferenceURL, wantURL)
	}
	if len(fetched) != 1 {
		t.Errorf("first hit must win: %d fetches, want 1", len(fetched))
	}
}

func TestResolve_ISBNNotFound_FallsBackToSearch(t *testing.T) {
	var fetched []string
	r := newResolver(func(url string) string {
		fetched = append(fetched, url)
		if strings.Contains(url, "9999999999") {
			return notFoundPage
		}
		return searchPage(candidateHTML("Război și Pace", "Lev Tolstoi",
			"4.12 avg rating — 900 ratings", "/book/show/656"))
	})

	res := r.Resolve(context.Background(), books.RatingTask{
		Title: "Război și Pace", ISBN: "9999999999",
	})

	if !res.Found {
		t.Fatal("expected a search hit after ISBN miss")
	}
	if !scoreNear(res.Score, 4.12*900) {
		t.Errorf("score = %v, want %v", res.Score, 4.12*900)
	}
	if res.ReferenceURL != "https://www.goodreads.com/book/show/656" {
		t.Errorf("reference URL = %q", res.ReferenceURL)
	}
	if len(fetched) != 2 {
		t.Errorf("expected isbn then title query, got %v", fetched)
	}
}

func TestResolve_SelectsSecondCandidate(t *testing.T) {
	page := searchPage(
		candidateHTML("Summary", "Someone Else", "4.99 avg rating — 10 ratings", "/book/show/1"),
		candidateHTML("Razboi si Pace", "Lev Tolstoi", "4.35 avg rating — 12,345 ratings", "/book/show/2"),
		candidateHTML("An Unrelated Gardening Manual", "A. Gardener", "4.80 avg rating — 5,000 ratings", "/book/show/3"),
	)
	r := newResolver(func(string) string { return page })

	res := r.Resolve(context.Background(), books.RatingTask{Title: "Război și Pace"})

	if !res.Found {
		t.Fatal("expected the second candidate to match")
	}
	if !scoreNear(res.Score, 53700.75) {
		t.Errorf("score = %v, want the second candidate's 53700.75", res.Score)
	}
	if res.ReferenceURL != "https://www.goodreads.com/book/show/2" {
		t.Errorf("reference URL = %q, want the second candidate's", res.ReferenceURL)
	}
}

func TestResolve_AuthorGate(t *testing.T) {
	page := searchPage(
		candidateHTML("Amintiri din copilarie", "Complete Stranger", "4.00 avg rating — 100 ratings", "/book/show/1"),
		candidateHTML("Amintiri din copilarie", "Ion Creanga", "4.20 avg rating — 2,000 ratings", "/book/show/2"),
	)
	r := newResolver(func(string) string { return page })

	res := r.Resolve(context.Background(), books.RatingTask{
		Title: "Amintiri din copilărie", Author: "Ion Creangă",
	})

	if !res.Found {
		t.Fatal("expected the author-matching candidate")
	}
	if res.ReferenceURL != "https://www.goodreads.com/book/show/2" {
		t.Errorf("selected %q, want the candidate whose author matches", res.ReferenceURL)
	}
}

func TestResolve_TitleOnlyFallbackQuery(t *testing.T) {
	var fetched []string
	r := newResolver(func(url string) string {
		fetched = append(fetched, url)
		if strings.Contains(url, "Tolstoi") {
			return notFoundPage
		}
		return searchPage(candidateHTML("Razboi si Pace", "Lev Tolstoi",
			"4.35 avg rating — 100 ratings", "/book/show/2"))
	})

	res := r.Resolve(context.Background(), books.RatingTask{
		Title: "Razboi si Pace", Author: "Lev Tolstoi",
	})

	if !res.Found {
		t.Fatal("expected the title-only query to hit")
	}
	if len(fetched) != 2 {
		t.Fatalf("expected 2 queries, got %v", fetched)
	}
	if !strings.Contains(fetched[0], "Tolstoi%20Razboi%20si%20Pace") {
		t.Errorf("first query should combine author and title: %q", fetched[0])
	}
	if strings.Contains(fetched[1], "Tolstoi") {
		t.Errorf("second query should be title only: %q", fetched[1])
	}
}

func TestResolve_NothingFound(t *testing.T) {
	r := newResolver(func(string) string { return notFoundPage })

	res := r.Resolve(context.Background(), books.RatingTask{Title: "Carte Inexistentă"})
	if res.Found {
		t.Error("expected no result")
	}
	if res.Score != 0 || res.ReferenceURL != "" {
		t.Errorf("empty result must be zero-valued, got %+v", res)
	}
}

func TestResolve_MalformedCandidateSkipped(t *testing.T) {
	page := searchPage(
		// Broken row: no minirating blob.
		`<tr itemtype="http://schema.org/Book"><td>
			<a class="bookTitle" href="/book/show/1"><span itemprop="name">Razboi si Pace</span></a>
		</td></tr>`,
		candidateHTML("Razboi si Pace", "Lev Tolstoi", "4.35 avg rating — 50 ratings", "/book/show/2"),
	)
	r := newResolver(func(string) string { return page })

	res := r.Resolve(context.Background(), books.RatingTask{Title: "Razboi si Pace"})
	if !res.Found {
		t.Fatal("a malformed row must not abort resolution")
	}
	if res.ReferenceURL != "https://www.goodreads.com/book/show/2" {
		t.Errorf("selected %q, want the intact candidate", res.ReferenceURL)
	}
}

func TestResolve_EmptyFetchReturnsNotFound(t *testing.T) {
	r := newResolver(func(string) string { return "" })

	if res := r.Resolve(context.Background(), books.RatingTask{Title: "X"}); res.Found {
		t.Error("exhausted fetches must resolve to not-found")
	}
}
