package pool

import (
	"sync"
	"testing"
)

func TestRun_VisitsEveryItemExactlyOnce(t *testing.T) {
	const n = 37
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}

	for workers := 1; workers <= n; workers++ {
		p := New[int](workers)

		var mu sync.Mutex
		visits := make(map[int]int)

		p.Run(items, func(slice []int, _ int) {
			for _, item := range slice {
				mu.Lock()
				visits[item]++
				mu.Unlock()
				p.ItemDone()
			}
		})

		if len(visits) != n {
			t.Fatalf("workers=%d: visited %d distinct items, want %d", workers, len(visits), n)
		}
		for item, count := range visits {
			if count != 1 {
				t.Fatalf("workers=%d: item %d visited %d times", workers, item, count)
			}
		}
		if p.Done() != n {
			t.Errorf("workers=%d: counter = %d, want %d", workers, p.Done(), n)
		}
	}
}

func TestRun_SliceOrderPreserved(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	p := New[int](3)

	var mu sync.Mutex
	slices := make(map[int][]int)

	p.Run(items, func(slice []int, worker int) {
		seen := make([]int, 0, len(slice))
		for _, item := range slice {
			seen = append(seen, item)
			p.ItemDone()
		}
		mu.Lock()
		slices[worker] = seen
		mu.Unlock()
	})

	for worker, seen := range slices {
		for i := 1; i < len(seen); i++ {
			if seen[i] != seen[i-1]+1 {
				t.Errorf("worker %d processed out of order: %v", worker, seen)
			}
		}
	}
}

func TestRun_EmptyInput(t *testing.T) {
	p := New[string](4)
	called := false
	p.Run(nil, func([]string, int) { called = true })
	if called {
		t.Error("worker must not run for empty input")
	}
}

func TestRun_MoreWorkersThanItems(t *testing.T) {
	items := []int{1, 2}
	p := New[int](8)

	var mu sync.Mutex
	var visited []int
	p.Run(items, func(slice []int, _ int) {
		mu.Lock()
		visited = append(visited, slice...)
		mu.Unlock()
	})

	if len(visited) != 2 {
		t.Errorf("visited %d items, want 2", len(visited))
	}
}

func TestPartition_CoversAll(t *testing.T) {
	for total := 0; total <= 25; total++ {
		for parts := 1; parts <= 10; parts++ {
			covered := 0
			prevEnd := 0
			for _, b := range Partition(total, parts) {
				if b[0] != prevEnd {
					t.Fatalf("total=%d parts=%d: gap before %v", total, parts, b)
				}
				covered += b[1] - b[0]
				prevEnd = b[1]
			}
			if covered != total {
				t.Fatalf("total=%d parts=%d: covered %d", total, parts, covered)
			}
		}
	}
}
