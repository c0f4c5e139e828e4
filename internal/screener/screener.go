// Package screener partitions scanned files into duplicate candidates.
//
// # Processing Pipeline
//
//	Input: []*types.FileInfo (all scanned files)
//	    │
//	    ├──► Group by exact file size
//	    │
//	    ├──► Group by (dev, ino) into sibling groups
//	    │
//	    ├──► Filter: keep size groups with 2+ distinct inodes
//	    │
//	    └──► Output: types.CandidateGroups
//
// Size grouping is the cheapest elimination in the pipeline: it is a pure
// in-memory partition over metadata the scanner already collected, and files
// of different sizes cannot be duplicates. Sibling grouping folds paths that
// already share an inode into one member, so pre-existing hardlinks are
// hashed once and later skipped as no-ops by the linker. No I/O happens here.
package screener

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/denizariyan/dedup/internal/progress"
	"github.com/denizariyan/dedup/internal/types"
)

// Screener screens files by size to find potential duplicates.
//
// The screener is designed for single-use: create with New(), call Run() once.
type Screener struct {
	files        []*types.FileInfo
	showProgress bool
}

// New creates a Screener over the scanned files.
func New(files []*types.FileInfo, showProgress bool) *Screener {
	return &Screener{files: files, showProgress: showProgress}
}

// stats tracks screening progress.
type stats struct {
	candidateFiles int
	candidateBytes int64
	startTime      time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Selected %d candidates (%s) in %.1fs",
		s.candidateFiles, humanize.IBytes(uint64(s.candidateBytes)),
		time.Since(s.startTime).Seconds())
}

// devIno uniquely identifies a file by device and inode.
// Used to detect hardlinks (different paths pointing to same file).
type devIno struct {
	dev, ino uint64
}

// Run screens files and returns candidate duplicate groups.
//
// Processing steps:
//  1. Group files by exact size (different sizes can't be duplicates)
//  2. Group by (dev, ino) into sibling groups
//  3. Keep size groups with 2+ distinct inodes; singletons are discarded
func (s *Screener) Run() types.CandidateGroups {
	bar := progress.New(s.showProgress, -1)
	st := &stats{startTime: time.Now()}

	bySize := make(map[int64][]*types.FileInfo)
	for _, f := range s.files {
		bySize[f.Size] = append(bySize[f.Size], f)
	}

	var result []types.CandidateGroup
	for _, files := range bySize {
		siblings := groupByDevIno(files)
		if siblings.Len() >= 2 { // 2+ distinct inodes = potential duplicates
			result = append(result, siblings)
		}
	}

	// Count distinct inodes, not paths: already-linked files occupy no
	// reclaimable space.
	for _, group := range result {
		st.candidateFiles += group.Len()
		st.candidateBytes += group.First().First().Size * int64(group.Len())
	}

	bar.Finish(st)

	return types.NewCandidateGroups(result)
}

// groupByDevIno groups files by their device and inode numbers.
// Files with the same dev+ino are hardlinks and form a sibling group.
func groupByDevIno(files []*types.FileInfo) types.CandidateGroup {
	// Collect raw slices first (map iteration is non-deterministic)
	byDevIno := make(map[devIno][]*types.FileInfo)
	for _, f := range files {
		key := devIno{f.Dev, f.Ino}
		byDevIno[key] = append(byDevIno[key], f)
	}

	// Sorting is enforced by the group constructors
	siblings := make([]types.SiblingGroup, 0, len(byDevIno))
	for _, files := range byDevIno {
		siblings = append(siblings, types.NewSiblingGroup(files))
	}

	return types.NewCandidateGroup(siblings)
}
