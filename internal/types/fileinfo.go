// Package types provides shared types used across the dedup codebase.
package types

import (
	"cmp"
	"slices"
	"time"
)

// FileInfo holds metadata for a scanned file.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
	Dev     uint64
	Ino     uint64
	Nlink   uint32
}

// SameInode reports whether two files refer to the same filesystem object.
// Files sharing device and inode are hardlinks of one another.
func (f *FileInfo) SameInode(other *FileInfo) bool {
	return f.Dev == other.Dev && f.Ino == other.Ino
}

// Sorted is an ordered collection that maintains sort order by a key function.
// T is the element type, K is the comparable key type.
// Once constructed, items are guaranteed to be sorted by key.
type Sorted[T any, K cmp.Ordered] struct {
	items   []T
	keyFunc func(T) K
}

// NewSorted creates a sorted collection from items using keyFunc for ordering.
// Items are copied and sorted at construction time.
func NewSorted[T any, K cmp.Ordered](items []T, keyFunc func(T) K) Sorted[T, K] {
	sorted := make([]T, len(items))
	copy(sorted, items)
	slices.SortFunc(sorted, func(a, b T) int {
		return cmp.Compare(keyFunc(a), keyFunc(b))
	})
	return Sorted[T, K]{items: sorted, keyFunc: keyFunc}
}

// Items returns the sorted items.
func (s Sorted[T, K]) Items() []T { return s.items }

// First returns the first item (smallest key), or zero value if empty.
func (s Sorted[T, K]) First() T {
	if len(s.items) == 0 {
		var zero T
		return zero
	}
	return s.items[0]
}

// Len returns the number of items.
func (s Sorted[T, K]) Len() int { return len(s.items) }

// SiblingGroup contains files sharing the same inode (hardlinks).
// Files are always sorted by Path for deterministic iteration.
type SiblingGroup = Sorted[*FileInfo, string]

// NewSiblingGroup creates a SiblingGroup sorted by file path.
func NewSiblingGroup(files []*FileInfo) SiblingGroup {
	return NewSorted(files, func(f *FileInfo) string { return f.Path })
}

// CandidateGroup contains sibling groups of identical size (potential
// duplicates). Sorted by first file's path in each sibling group.
type CandidateGroup = Sorted[SiblingGroup, string]

// NewCandidateGroup creates a CandidateGroup sorted by first file's path.
func NewCandidateGroup(siblings []SiblingGroup) CandidateGroup {
	return NewSorted(siblings, func(sg SiblingGroup) string { return sg.First().Path })
}

// CandidateGroups is a sorted collection of candidate groups.
type CandidateGroups = Sorted[CandidateGroup, string]

// NewCandidateGroups creates sorted CandidateGroups.
func NewCandidateGroups(groups []CandidateGroup) CandidateGroups {
	return NewSorted(groups, func(cg CandidateGroup) string {
		return cg.First().First().Path
	})
}

// DuplicateGroup is a confirmed set of byte-identical files, keyed by the
// full-content digest. Members are sibling groups: distinct inodes whose
// content hashed equal. Immutable once built.
type DuplicateGroup struct {
	Size     int64
	Digest   string
	Siblings Sorted[SiblingGroup, string]
}

// NewDuplicateGroup creates a DuplicateGroup with siblings sorted by each
// sibling group's first path.
func NewDuplicateGroup(size int64, digest string, siblings []SiblingGroup) DuplicateGroup {
	return DuplicateGroup{
		Size:   size,
		Digest: digest,
		Siblings: NewSorted(siblings, func(sg SiblingGroup) string {
			return sg.First().Path
		}),
	}
}

// Original returns the member to keep when the rest of the group is replaced
// with hardlinks: the file with the shortest path, ties broken by the
// lexicographically smallest path. Deterministic for a given group.
func (g DuplicateGroup) Original() *FileInfo {
	var best *FileInfo
	for _, siblings := range g.Siblings.Items() {
		for _, f := range siblings.Items() {
			if best == nil || len(f.Path) < len(best.Path) ||
				(len(f.Path) == len(best.Path) && f.Path < best.Path) {
				best = f
			}
		}
	}
	return best
}

// Paths returns every member path in deterministic order, original first.
func (g DuplicateGroup) Paths() []string {
	orig := g.Original()
	paths := []string{orig.Path}
	for _, siblings := range g.Siblings.Items() {
		for _, f := range siblings.Items() {
			if f.Path != orig.Path {
				paths = append(paths, f.Path)
			}
		}
	}
	return paths
}

// Semaphore implements a counting semaphore using a buffered channel.
// It limits concurrent access to a resource by blocking when the limit is reached.
type Semaphore chan struct{}

// NewSemaphore creates a semaphore that allows up to n concurrent acquisitions.
func NewSemaphore(n int) Semaphore { return make(chan struct{}, n) }

// Acquire blocks until a slot is available, then claims it.
func (s Semaphore) Acquire() { s <- struct{}{} }

// Release frees a slot, unblocking one waiting Acquire call.
func (s Semaphore) Release() { <-s }
