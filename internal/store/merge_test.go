package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bookscout/bookscout/internal/books"
)

func newShard(t *testing.T, dir, name string, bs ...*books.Book) string {
	t.Helper()
	path := filepath.Join(dir, name)
	s, err := Open(path)
	require.NoError(t, err)
	for _, b := range bs {
		require.NoError(t, s.AddBook(b))
	}
	require.NoError(t, s.Close())
	return path
}

func TestMerge_CategoryUnionAndMinPrice(t *testing.T) {
	dir := t.TempDir()

	// The same physical listing discovered in two category crawls.
	shard1 := newShard(t, dir, "s1.db",
		mustBook(t, "Istoria Românilor", "", "", books.CategoryHistory,
			books.NewOffer("Anticariat Unu", "http://x/1", 30)))
	shard2 := newShard(t, dir, "s2.db",
		mustBook(t, "Istoria Românilor", "", "", books.CategoryArts,
			books.NewOffer("Anticariat Unu", "http://x/1", 20)))

	out, err := Merge([]string{shard1, shard2}, filepath.Join(dir, "merged.db"))
	require.NoError(t, err)
	defer out.Close()

	rows, err := out.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "History,Arts", rows[0].Category)
	require.Equal(t, 20.0, rows[0].Price)
}

func TestMerge_ISBNAndRatingPolicy(t *testing.T) {
	dir := t.TempDir()

	noISBN := mustBook(t, "Enigma Otiliei", "George Călinescu", "", books.CategoryLiterature,
		books.NewOffer("A", "http://x/2", 15))
	withISBN := mustBook(t, "Enigma Otiliei", "", "9731112223", books.CategoryLiterature,
		books.NewOffer("A", "http://x/2", 17))
	withISBN.SetRating(12345.6, "https://www.goodreads.com/book/2")

	shard1 := newShard(t, dir, "s1.db", noISBN)
	shard2 := newShard(t, dir, "s2.db", withISBN)

	out, err := Merge([]string{shard1, shard2}, filepath.Join(dir, "merged.db"))
	require.NoError(t, err)
	defer out.Close()

	rows, err := out.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "9731112223", rows[0].ISBN)
	require.Equal(t, "George Călinescu", rows[0].Author)
	require.True(t, rows[0].HasRating)
	require.Equal(t, 12345.6, rows[0].Rating)
	require.Equal(t, "https://www.goodreads.com/book/2", rows[0].ReferenceURL)
	require.Equal(t, 15.0, rows[0].Price)
}

func TestMerge_Idempotent(t *testing.T) {
	dir := t.TempDir()

	shard1 := newShard(t, dir, "s1.db",
		mustBook(t, "A", "", "", books.CategoryHistory, books.NewOffer("s", "http://x/1", 30)),
		mustBook(t, "B", "", "", books.CategoryNone, books.NewOffer("s", "http://x/2", 10)))
	shard2 := newShard(t, dir, "s2.db",
		mustBook(t, "A", "", "", books.CategoryArts, books.NewOffer("s", "http://x/1", 25)))

	once, err := Merge([]string{shard1, shard2}, filepath.Join(dir, "merged1.db"))
	require.NoError(t, err)
	onceRows, err := once.Rows()
	require.NoError(t, err)
	require.NoError(t, once.Close())

	// Re-merging the merged output must be a no-op up to row order.
	twice, err := Merge([]string{filepath.Join(dir, "merged1.db")}, filepath.Join(dir, "merged2.db"))
	require.NoError(t, err)
	twiceRows, err := twice.Rows()
	require.NoError(t, err)
	require.NoError(t, twice.Close())

	require.Len(t, twiceRows, len(onceRows))
	for i := range onceRows {
		onceRows[i].ID = 0
		twiceRows[i].ID = 0
	}
	require.ElementsMatch(t, onceRows, twiceRows)
}

func TestMergeDir(t *testing.T) {
	dir := t.TempDir()
	newShard(t, dir, "s1.db",
		mustBook(t, "A", "", "", books.CategoryNone, books.NewOffer("s", "http://x/1", 5)))
	newShard(t, dir, "s2.db",
		mustBook(t, "B", "", "", books.CategoryNone, books.NewOffer("s", "http://x/2", 6)))

	out, err := MergeDir(dir, filepath.Join(t.TempDir(), "merged.db"))
	require.NoError(t, err)
	defer out.Close()

	n, err := out.Count()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestApplyRatingShards(t *testing.T) {
	dir := t.TempDir()

	consolidated, err := Open(filepath.Join(dir, "main.db"))
	require.NoError(t, err)
	defer consolidated.Close()
	require.NoError(t, consolidated.AddBook(
		mustBook(t, "A", "", "", books.CategoryNone, books.NewOffer("s", "http://x/1", 5))))
	require.NoError(t, consolidated.AddBook(
		mustBook(t, "B", "", "", books.CategoryNone, books.NewOffer("s", "http://x/2", 6))))

	rows, err := consolidated.Rows()
	require.NoError(t, err)

	ratingShard, err := Open(filepath.Join(dir, "r1.db"))
	require.NoError(t, err)
	require.NoError(t, ratingShard.AddRatingResult(rows[0].ID, 777.5, "https://www.goodreads.com/book/a"))
	// A row id that no longer exists in the consolidated store.
	require.NoError(t, ratingShard.AddRatingResult(9999, 1.0, "https://www.goodreads.com/book/x"))
	require.NoError(t, ratingShard.Close())

	require.NoError(t, ApplyRatingShards(consolidated, []string{ratingShard.Path()}))

	rows, err = consolidated.Rows()
	require.NoError(t, err)
	require.True(t, rows[0].HasRating)
	require.Equal(t, 777.5, rows[0].Rating)
	require.False(t, rows[1].HasRating)
}
