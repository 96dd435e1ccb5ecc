// Package shard plans and serializes the work manifests consumed by
// sharded batch runs. A crawl or rating workload is cut into contiguous
// chunks, each of which a separate job processes into its own database
// file before a final merge folds everything back together.
package shard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bookscout/bookscout/internal/books"
)

const (
	// MinWidth is the smallest number of work units per shard. Tiny
	// shards waste runner startup time.
	MinWidth = 20

	// MaxShards caps the shard count so a manifest always fits a CI
	// job matrix.
	MaxShards = 200
)

// Width returns the number of work units per shard for a workload of the
// given size: max(MinWidth, ceil(total/MaxShards)). The resulting shard
// count never exceeds MaxShards.
func Width(total int) int {
	w := (total + MaxShards - 1) / MaxShards
	if w < MinWidth {
		w = MinWidth
	}
	return w
}

// FetchShard is one crawl job: scrape URLs for one store into its own
// database file.
type FetchShard struct {
	DBPath string   `json:"shard_db_path"`
	Store  string   `json:"store"`
	URLs   []string `json:"urls"`
}

// RatingShard is one rating job: resolve the tasks in TaskFile into its
// own result database.
type RatingShard struct {
	DBPath   string `json:"shard_db_path"`
	TaskFile string `json:"json_task_file"`
}

// PlanFetch cuts a store's discovered URLs into shards. Database paths
// are laid out under dir as <store>-NNN.db. URL order is preserved within
// and across shards.
func PlanFetch(store string, urls []string, dir string) []FetchShard {
	width := Width(len(urls))
	var shards []FetchShard
	for start := 0; start < len(urls); start += width {
		end := start + width
		if end > len(urls) {
			end = len(urls)
		}
		shards = append(shards, FetchShard{
			DBPath: filepath.Join(dir, fmt.Sprintf("%s-%03d.db", store, len(shards))),
			Store:  store,
			URLs:   urls[start:end],
		})
	}
	return shards
}

// PlanRating cuts rating tasks into shards, writing each shard's task
// file under dir as rating-tasks-NNN.json next to its database path
// rating-NNN.db.
func PlanRating(tasks []books.RatingTask, dir string) ([]RatingShard, error) {
	width := Width(len(tasks))
	var shards []RatingShard
	for start := 0; start < len(tasks); start += width {
		end := start + width
		if end > len(tasks) {
			end = len(tasks)
		}
		n := len(shards)
		taskFile := filepath.Join(dir, fmt.Sprintf("rating-tasks-%03d.json", n))
		if err := WriteTasks(taskFile, tasks[start:end]); err != nil {
			return nil, fmt.Errorf("writing task file: %w", err)
		}
		shards = append(shards, RatingShard{
			DBPath:   filepath.Join(dir, fmt.Sprintf("rating-%03d.db", n)),
			TaskFile: taskFile,
		})
	}
	return shards, nil
}

// WriteManifest serializes a shard list (either kind) as an indented
// JSON array.
func WriteManifest(path string, shards any) error {
	data, err := json.MarshalIndent(shards, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadFetchManifest loads a crawl manifest.
func ReadFetchManifest(path string) ([]FetchShard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var shards []FetchShard
	if err := json.Unmarshal(data, &shards); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}
	return shards, nil
}

// ReadRatingManifest loads a rating manifest.
func ReadRatingManifest(path string) ([]RatingShard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var shards []RatingShard
	if err := json.Unmarshal(data, &shards); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}
	return shards, nil
}

// ReadURLList loads a crawl job's URL list. The file may be either a
// plain JSON array of URLs or a single fetch-shard object, so a runner
// can pass one manifest entry through unchanged.
func ReadURLList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading url list: %w", err)
	}
	var urls []string
	if err := json.Unmarshal(data, &urls); err == nil {
		return urls, nil
	}
	var s FetchShard
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding url list %s: %w", path, err)
	}
	return s.URLs, nil
}

// WriteTasks serializes rating tasks for one shard.
func WriteTasks(path string, tasks []books.RatingTask) error {
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tasks: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing tasks: %w", err)
	}
	return nil
}

// ReadTasks loads one shard's rating tasks.
func ReadTasks(path string) ([]books.RatingTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tasks: %w", err)
	}
	var tasks []books.RatingTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("decoding tasks %s: %w", path, err)
	}
	return tasks, nil
}
