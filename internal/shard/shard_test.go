package shard

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/bookscout/bookscout/internal/books"
)

func TestWidth(t *testing.T) {
	cases := []struct {
		total, want int
	}{
		{0, 20},
		{1, 20},
		{19, 20},
		{20, 20},
		{4000, 20},
		{4001, 21},
		{10000, 50},
		{100000, 500},
	}
	for _, tc := range cases {
		if got := Width(tc.total); got != tc.want {
			t.Errorf("Width(%d) = %d, want %d", tc.total, got, tc.want)
		}
	}
}

func TestWidth_CapsShardCount(t *testing.T) {
	for _, total := range []int{1, 399, 4000, 4001, 123457, 1000000} {
		w := Width(total)
		shards := (total + w - 1) / w
		if shards > MaxShards {
			t.Errorf("total %d: width %d yields %d shards, cap is %d", total, w, shards, MaxShards)
		}
	}
}

func makeURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://example.com/page/%d", i)
	}
	return urls
}

func TestPlanFetch(t *testing.T) {
	urls := makeURLs(45)
	shards := PlanFetch("targulcartii", urls, "/tmp/shards")

	if len(shards) != 3 {
		t.Fatalf("got %d shards, want 3", len(shards))
	}

	var seen []string
	for i, s := range shards {
		if s.Store != "targulcartii" {
			t.Errorf("shard %d store = %q", i, s.Store)
		}
		want := filepath.Join("/tmp/shards", fmt.Sprintf("targulcartii-%03d.db", i))
		if s.DBPath != want {
			t.Errorf("shard %d db path = %q, want %q", i, s.DBPath, want)
		}
		seen = append(seen, s.URLs...)
	}
	if len(seen) != len(urls) {
		t.Fatalf("shards cover %d urls, want %d", len(seen), len(urls))
	}
	for i, u := range seen {
		if u != urls[i] {
			t.Fatalf("url order not preserved at %d: %q", i, u)
		}
	}
	if len(shards[2].URLs) != 5 {
		t.Errorf("last shard holds %d urls, want the 5 leftover", len(shards[2].URLs))
	}
}

func TestPlanFetch_Empty(t *testing.T) {
	if shards := PlanFetch("x", nil, "/tmp"); len(shards) != 0 {
		t.Errorf("empty workload produced %d shards", len(shards))
	}
}

func TestFetchManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	shards := PlanFetch("carturesti", makeURLs(30), dir)

	path := filepath.Join(dir, "manifest.json")
	if err := WriteManifest(path, shards); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFetchManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(shards) {
		t.Fatalf("got %d shards, want %d", len(got), len(shards))
	}
	if got[0].Store != "carturesti" || got[0].URLs[0] != shards[0].URLs[0] {
		t.Errorf("manifest contents changed across round trip: %+v", got[0])
	}
}

func TestPlanRating(t *testing.T) {
	dir := t.TempDir()
	tasks := make([]books.RatingTask, 25)
	for i := range tasks {
		tasks[i] = books.RatingTask{RowID: int64(i + 1), Title: fmt.Sprintf("Carte %d", i)}
	}

	shards, err := PlanRating(tasks, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(shards) != 2 {
		t.Fatalf("got %d shards, want 2", len(shards))
	}

	var total int
	for i, s := range shards {
		loaded, err := ReadTasks(s.TaskFile)
		if err != nil {
			t.Fatalf("shard %d task file: %v", i, err)
		}
		total += len(loaded)
		for _, task := range loaded {
			if task.RowID == 0 {
				t.Errorf("shard %d dropped a row id", i)
			}
		}
	}
	if total != len(tasks) {
		t.Errorf("task files hold %d tasks, want %d", total, len(tasks))
	}
}

func TestReadURLList_PlainArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "urls.json")
	shards := []FetchShard{{DBPath: "s.db", Store: "s", URLs: makeURLs(3)}}
	if err := WriteManifest(path, shards[0].URLs); err != nil {
		t.Fatal(err)
	}
	urls, err := ReadURLList(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 3 {
		t.Errorf("got %d urls, want 3", len(urls))
	}
}

func TestReadURLList_ShardObject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shard.json")
	s := FetchShard{DBPath: "s.db", Store: "s", URLs: makeURLs(4)}
	if err := WriteManifest(path, s); err != nil {
		t.Fatal(err)
	}
	urls, err := ReadURLList(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 4 || urls[0] != "http://example.com/page/0" {
		t.Errorf("got %v", urls)
	}
}
