package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bookscout/bookscout/internal/logger"
)

// Merge unions the rows of every shard store into one consolidated store at
// outPath, collapsing duplicate listings by URL. Collapse policy per group:
// first non-empty ISBN/title/author win, category becomes the comma-joined
// union of distinct values in encounter order (the same physical listing
// shows up in multiple category crawls), rating and reference URL take the
// maximum non-null value, price the minimum observed. Running Merge over
// already-merged output is a no-op up to row order.
func Merge(shardPaths []string, outPath string) (*Store, error) {
	var all []Row
	for _, path := range shardPaths {
		shard, err := Open(path)
		if err != nil {
			return nil, fmt.Errorf("open shard: %w", err)
		}
		rows, err := shard.Rows()
		shard.Close()
		if err != nil {
			return nil, fmt.Errorf("read shard %s: %w", path, err)
		}
		all = append(all, rows...)
	}

	merged := collapseByURL(all)
	logger.Info("merged shards",
		"shards", len(shardPaths), "rows_in", len(all), "rows_out", len(merged))

	out, err := Open(outPath)
	if err != nil {
		return nil, err
	}
	if err := out.replaceAll(merged); err != nil {
		out.Close()
		return nil, err
	}
	return out, nil
}

// MergeDir merges every *.db file found directly under dir.
func MergeDir(dir, outPath string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read shard dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".db" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no shard stores in %s", dir)
	}
	return Merge(paths, outPath)
}

func collapseByURL(rows []Row) []Row {
	index := make(map[string]int)
	var out []Row
	for _, r := range rows {
		i, seen := index[r.URL]
		if !seen {
			index[r.URL] = len(out)
			r.ID = 0
			out = append(out, r)
			continue
		}
		g := &out[i]
		if g.ISBN == "" {
			g.ISBN = r.ISBN
		}
		if g.Author == "" {
			g.Author = r.Author
		}
		g.Category = unionCategories(g.Category, r.Category)
		if r.HasRating && (!g.HasRating || r.Rating > g.Rating) {
			g.Rating = r.Rating
			g.HasRating = true
			g.ReferenceURL = r.ReferenceURL
		}
		if r.Price < g.Price {
			g.Price = r.Price
		}
	}
	return out
}

// unionCategories joins distinct category values in encounter order.
func unionCategories(existing, incoming string) string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range append(strings.Split(existing, ","), strings.Split(incoming, ",")...) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, dup := seen[part]; dup {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return strings.Join(out, ",")
}

// replaceAll swaps the store's contents for the given rows and enforces the
// one-row-per-listing invariant with a unique URL index.
func (s *Store) replaceAll(rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin merge write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM books`); err != nil {
		return fmt.Errorf("clear consolidated store: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO books
		(isbn, title, author, category, rating, reference_url, store, url, price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare merge write: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.Exec(
			nullable(r.ISBN), r.Title, nullable(r.Author), r.Category,
			nullableFloat(r.Rating, r.HasRating), nullable(r.ReferenceURL),
			r.Store, r.URL, r.Price)
		if err != nil {
			return fmt.Errorf("write merged row %q: %w", r.URL, err)
		}
	}

	if _, err := tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_books_url ON books(url)`); err != nil {
		return fmt.Errorf("create url index: %w", err)
	}
	return tx.Commit()
}

// ApplyRatingShards folds independently computed rating shards back into
// the consolidated store: each shard's ratings table updates the matching
// row where it exists. Results without a matching row are skipped.
func ApplyRatingShards(consolidated *Store, shardPaths []string) error {
	for _, path := range shardPaths {
		shard, err := Open(path)
		if err != nil {
			return fmt.Errorf("open rating shard: %w", err)
		}
		results, err := shard.RatingResults()
		shard.Close()
		if err != nil {
			return fmt.Errorf("read rating shard %s: %w", path, err)
		}

		for _, r := range results {
			if err := consolidated.UpdateRating(r.RowID, r.Rating, r.ReferenceURL); err != nil {
				return err
			}
		}
		logger.Info("applied rating shard", "shard", path, "results", len(results))
	}
	return nil
}

// ApplyRatingShardsDir applies every *.db rating shard directly under dir.
func ApplyRatingShardsDir(consolidated *Store, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read rating shard dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".db" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return ApplyRatingShards(consolidated, paths)
}
