package types

import (
	"sync"
	"sync/atomic"
	"testing"
)

// =============================================================================
// Generic Sorted[T, K] Tests
// =============================================================================

// TestSortedBasic tests basic sorting with string keys.
func TestSortedBasic(t *testing.T) {
	items := []string{"charlie", "alpha", "bravo"}
	sorted := NewSorted(items, func(s string) string { return s })

	if sorted.Len() != 3 {
		t.Errorf("expected Len() = 3, got %d", sorted.Len())
	}

	expected := []string{"alpha", "bravo", "charlie"}
	for i, item := range sorted.Items() {
		if item != expected[i] {
			t.Errorf("Items()[%d] = %q, want %q", i, item, expected[i])
		}
	}
}

// TestSortedFirst tests First() returns smallest key element.
func TestSortedFirst(t *testing.T) {
	items := []int{30, 10, 20}
	sorted := NewSorted(items, func(i int) int { return i })

	if sorted.First() != 10 {
		t.Errorf("First() = %d, want 10", sorted.First())
	}
}

// TestSortedFirstEmpty tests First() returns zero value on empty.
func TestSortedFirstEmpty(t *testing.T) {
	sorted := NewSorted([]string{}, func(s string) string { return s })

	if sorted.First() != "" {
		t.Errorf("First() on empty = %q, want empty string", sorted.First())
	}
}

// TestSortedDoesNotMutateInput tests that input slice is not modified.
func TestSortedDoesNotMutateInput(t *testing.T) {
	original := []string{"charlie", "alpha", "bravo"}
	originalCopy := make([]string, len(original))
	copy(originalCopy, original)

	_ = NewSorted(original, func(s string) string { return s })

	for i := range original {
		if original[i] != originalCopy[i] {
			t.Errorf("input was mutated: original[%d] = %q, was %q", i, original[i], originalCopy[i])
		}
	}
}

// =============================================================================
// Group Type Tests
// =============================================================================

// TestSiblingGroupSortedByPath tests that sibling groups sort by path.
func TestSiblingGroupSortedByPath(t *testing.T) {
	sg := NewSiblingGroup([]*FileInfo{
		{Path: "/z.txt"},
		{Path: "/a.txt"},
		{Path: "/m.txt"},
	})

	if sg.First().Path != "/a.txt" {
		t.Errorf("First().Path = %q, want /a.txt", sg.First().Path)
	}
}

// TestSameInode tests the identity comparison used for already-linked skips.
func TestSameInode(t *testing.T) {
	a := &FileInfo{Path: "/a", Dev: 1, Ino: 100}
	b := &FileInfo{Path: "/b", Dev: 1, Ino: 100}
	c := &FileInfo{Path: "/c", Dev: 1, Ino: 101}
	d := &FileInfo{Path: "/d", Dev: 2, Ino: 100}

	if !a.SameInode(b) {
		t.Error("same dev+ino should compare equal")
	}
	if a.SameInode(c) {
		t.Error("different inode should not compare equal")
	}
	if a.SameInode(d) {
		t.Error("different device should not compare equal")
	}
}

// TestDuplicateGroupOriginalShortestPath tests that the shortest path wins.
func TestDuplicateGroupOriginalShortestPath(t *testing.T) {
	g := NewDuplicateGroup(100, "digest", []SiblingGroup{
		NewSiblingGroup([]*FileInfo{{Path: "/a/b/c/file.txt"}}),
		NewSiblingGroup([]*FileInfo{{Path: "/a/file.txt"}}),
		NewSiblingGroup([]*FileInfo{{Path: "/a/b/file.txt"}}),
	})

	if got := g.Original().Path; got != "/a/file.txt" {
		t.Errorf("Original().Path = %q, want /a/file.txt", got)
	}
}

// TestDuplicateGroupOriginalTieBreak tests lexicographic tie-breaking for
// equal-length paths.
func TestDuplicateGroupOriginalTieBreak(t *testing.T) {
	g := NewDuplicateGroup(100, "digest", []SiblingGroup{
		NewSiblingGroup([]*FileInfo{{Path: "/data/b.txt"}}),
		NewSiblingGroup([]*FileInfo{{Path: "/data/a.txt"}}),
	})

	if got := g.Original().Path; got != "/data/a.txt" {
		t.Errorf("Original().Path = %q, want /data/a.txt", got)
	}
}

// TestDuplicateGroupOriginalSearchesSiblings tests that selection looks at
// every path in every sibling group, not just representatives.
func TestDuplicateGroupOriginalSearchesSiblings(t *testing.T) {
	g := NewDuplicateGroup(100, "digest", []SiblingGroup{
		NewSiblingGroup([]*FileInfo{
			{Path: "/data/long/name.txt", Ino: 1},
			{Path: "/d.txt", Ino: 1},
		}),
		NewSiblingGroup([]*FileInfo{{Path: "/data/copy.txt", Ino: 2}}),
	})

	if got := g.Original().Path; got != "/d.txt" {
		t.Errorf("Original().Path = %q, want /d.txt", got)
	}
}

// TestDuplicateGroupPathsOriginalFirst tests deterministic path listing.
func TestDuplicateGroupPathsOriginalFirst(t *testing.T) {
	g := NewDuplicateGroup(100, "digest", []SiblingGroup{
		NewSiblingGroup([]*FileInfo{{Path: "/data/copy.txt", Ino: 2}}),
		NewSiblingGroup([]*FileInfo{{Path: "/a.txt", Ino: 1}}),
	})

	paths := g.Paths()
	if len(paths) != 2 {
		t.Fatalf("len(Paths()) = %d, want 2", len(paths))
	}
	if paths[0] != "/a.txt" {
		t.Errorf("Paths()[0] = %q, want original /a.txt", paths[0])
	}
}

// =============================================================================
// Semaphore Tests
// =============================================================================

// TestSemaphoreLimitsConcurrency tests that at most n goroutines hold the
// semaphore simultaneously.
func TestSemaphoreLimitsConcurrency(t *testing.T) {
	const limit = 3
	sem := NewSemaphore(limit)

	var current, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem.Acquire()
			defer sem.Release()

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			current.Add(-1)
		}()
	}
	wg.Wait()

	if peak.Load() > limit {
		t.Errorf("peak concurrency %d exceeds limit %d", peak.Load(), limit)
	}
}
