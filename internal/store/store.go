// Package store persists scraped offer rows in SQLite: append-only writes
// during the crawl, point rating updates, and batch consolidation of shard
// stores into one deduplicated dataset.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/bookscout/bookscout/internal/books"
)

const schema = `
CREATE TABLE IF NOT EXISTS books (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	isbn          TEXT,
	title         TEXT NOT NULL,
	author        TEXT,
	category      TEXT NOT NULL DEFAULT 'None',
	rating        REAL,
	reference_url TEXT,
	store         TEXT NOT NULL,
	url           TEXT NOT NULL,
	price         REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS ratings (
	row_id        INTEGER PRIMARY KEY,
	rating        REAL NOT NULL,
	reference_url TEXT NOT NULL
);
`

// Row is one denormalized store-offer row, the flat snapshot schema the
// dashboard reads. Category may hold a comma-joined union after merge.
type Row struct {
	ID           int64
	ISBN         string
	Title        string
	Author       string
	Category     string
	Rating       float64
	HasRating    bool
	ReferenceURL string
	Store        string
	URL          string
	Price        float64
}

// Store is a SQLite-backed record store. A single mutex serializes all
// access to the shared handle: one writer at a time, readers queue behind
// the same lock.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open creates or opens a store at path, enabling WAL mode and applying
// the schema. A failure here is fatal to the run.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// AddBook appends one row per offer. All rows of one book commit in a
// single transaction so a crash never leaves a partial book.
func (s *Store) AddBook(b *books.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin add book: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO books
		(isbn, title, author, category, rating, reference_url, store, url, price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare add book: %w", err)
	}
	defer stmt.Close()

	for _, offer := range b.Offers {
		_, err := stmt.Exec(
			nullable(b.ISBN), b.Title, nullable(b.Author), string(b.Category),
			nullableFloat(b.Rating, b.HasRating), nullable(b.ReferenceURL),
			offer.Store, offer.URL, offer.Price,
		)
		if err != nil {
			return fmt.Errorf("insert offer for %q: %w", b.Title, err)
		}
	}
	return tx.Commit()
}

// UpdateRating sets the rating and reference URL of one row. A call with an
// empty reference URL is a no-op: rating and reference are only ever
// written together.
func (s *Store) UpdateRating(rowID int64, rating float64, referenceURL string) error {
	if referenceURL == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE books SET rating = ?, reference_url = ? WHERE id = ?`,
		rating, referenceURL, rowID)
	if err != nil {
		return fmt.Errorf("update rating row %d: %w", rowID, err)
	}
	return nil
}

// FetchUnrated returns the rating tasks for every row whose rating is
// missing or zero.
func (s *Store) FetchUnrated() ([]books.RatingTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, title, COALESCE(author, ''), COALESCE(isbn, '')
		 FROM books WHERE rating IS NULL OR rating = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("fetch unrated: %w", err)
	}
	defer rows.Close()

	var tasks []books.RatingTask
	for rows.Next() {
		var t books.RatingTask
		if err := rows.Scan(&t.RowID, &t.Title, &t.Author, &t.ISBN); err != nil {
			return nil, fmt.Errorf("scan unrated row: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// AddRatingResult records one resolved rating in the shard-local ratings
// table, folded into the consolidated store later by ApplyRatingShards.
func (s *Store) AddRatingResult(rowID int64, rating float64, referenceURL string) error {
	if referenceURL == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO ratings (row_id, rating, reference_url) VALUES (?, ?, ?)`,
		rowID, rating, referenceURL)
	if err != nil {
		return fmt.Errorf("add rating result row %d: %w", rowID, err)
	}
	return nil
}

// RatingResult is one entry of a rating shard's result table.
type RatingResult struct {
	RowID        int64
	Rating       float64
	ReferenceURL string
}

// RatingResults returns all shard-local rating results in row order.
func (s *Store) RatingResults() ([]RatingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT row_id, rating, reference_url FROM ratings ORDER BY row_id`)
	if err != nil {
		return nil, fmt.Errorf("fetch rating results: %w", err)
	}
	defer rows.Close()

	var results []RatingResult
	for rows.Next() {
		var r RatingResult
		if err := rows.Scan(&r.RowID, &r.Rating, &r.ReferenceURL); err != nil {
			return nil, fmt.Errorf("scan rating result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Rows returns every offer row in insertion order.
func (s *Store) Rows() ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rowsLocked()
}

func (s *Store) rowsLocked() ([]Row, error) {
	rows, err := s.db.Query(
		`SELECT id, COALESCE(isbn, ''), title, COALESCE(author, ''), category,
		        rating, COALESCE(reference_url, ''), store, url, price
		 FROM books ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("fetch rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var rating sql.NullFloat64
		err := rows.Scan(&r.ID, &r.ISBN, &r.Title, &r.Author, &r.Category,
			&rating, &r.ReferenceURL, &r.Store, &r.URL, &r.Price)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if rating.Valid {
			r.Rating = rating.Float64
			r.HasRating = true
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of offer rows.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM books`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableFloat(f float64, valid bool) any {
	if !valid {
		return nil
	}
	return f
}
