// Package books defines the data model shared by the crawl, rating, and
// merge phases.
package books

import (
	"fmt"
	"regexp"
	"strings"
)

// Category classifies a listing into one of the dashboard's buckets.
type Category string

const (
	CategoryLiterature   Category = "Literature"
	CategoryHistory      Category = "History"
	CategoryScience      Category = "Science"
	CategoryArts         Category = "Arts"
	CategorySpirituality Category = "Spirituality"
	CategoryHobbies      Category = "Hobbies"
	CategoryPersonalDev  Category = "Personal Development"
	CategoryBusiness     Category = "Business"
	CategoryKidsYA       Category = "Kids & Young Adult"
	CategoryOther        Category = "Other"
	CategoryNone         Category = "None"
)

// Categories lists every known category value.
var Categories = []Category{
	CategoryLiterature, CategoryHistory, CategoryScience, CategoryArts,
	CategorySpirituality, CategoryHobbies, CategoryPersonalDev,
	CategoryBusiness, CategoryKidsYA, CategoryOther, CategoryNone,
}

// ParseCategory maps a stored string back to a Category. Unknown values
// collapse to CategoryNone.
func ParseCategory(s string) Category {
	for _, c := range Categories {
		if string(c) == s {
			return c
		}
	}
	return CategoryNone
}

// Offer is one store's listing (price + URL) for a book. Immutable once
// created.
type Offer struct {
	Store string
	URL   string
	Price float64
}

// NewOffer builds an Offer with a percent-escaped URL.
func NewOffer(store, url string, price float64) Offer {
	return Offer{
		Store: store,
		URL:   strings.ReplaceAll(url, " ", "%20"),
		Price: price,
	}
}

// Book is a scraped record with at least one offer. Author and ISBN are
// frequently absent on used-book sites; Rating and ReferenceURL are filled
// in by the rating pass and are either both set or both empty.
type Book struct {
	Title        string
	Author       string
	ISBN         string
	Category     Category
	Offers       []Offer
	Rating       float64
	HasRating    bool
	ReferenceURL string
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// CleanText collapses all whitespace runs to single spaces and trims.
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// New builds a Book with sanitized fields. Title must be non-empty after
// normalization and at least one offer is required.
func New(title, author, isbn string, category Category, offers ...Offer) (*Book, error) {
	title = CleanText(title)
	if title == "" {
		return nil, fmt.Errorf("book title is empty")
	}
	if len(offers) == 0 {
		return nil, fmt.Errorf("book %q has no offers", title)
	}
	for _, o := range offers {
		if o.Price < 0 {
			return nil, fmt.Errorf("book %q has a negative price", title)
		}
	}
	if category == "" {
		category = CategoryNone
	}
	return &Book{
		Title:    title,
		Author:   CleanText(author),
		ISBN:     CleanText(isbn),
		Category: category,
		Offers:   offers,
	}, nil
}

// AddOffer appends another store's offer for the same book.
func (b *Book) AddOffer(o Offer) {
	b.Offers = append(b.Offers, o)
}

// SetRating attaches the popularity score and its reference URL. Both must
// be present; partial updates are ignored.
func (b *Book) SetRating(rating float64, referenceURL string) {
	if referenceURL == "" {
		return
	}
	b.Rating = rating
	b.HasRating = true
	b.ReferenceURL = strings.ReplaceAll(CleanText(referenceURL), " ", "%20")
}

// RatingTask is the minimal projection of a stored row handed to the rating
// pass. RowID identifies the row in the record store.
type RatingTask struct {
	RowID  int64  `json:"row_id"`
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	ISBN   string `json:"isbn,omitempty"`
}
