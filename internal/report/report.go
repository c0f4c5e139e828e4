// Package report assembles confirmed duplicate groups into an immutable
// summary consumed by the output layer.
package report

import (
	"sort"

	"github.com/denizariyan/dedup/internal/types"
)

// Stats summarizes the scan outcome.
//
// DuplicateFiles and WastedBytes count distinct inodes minus the retained
// original per group: paths that already share an inode occupy no extra
// space and are not counted as reclaimable.
type Stats struct {
	TotalFiles     int    `json:"total_files"`
	GroupCount     int    `json:"group_count"`
	DuplicateFiles int    `json:"duplicate_files"`
	WastedBytes    uint64 `json:"wasted_bytes"`
}

// Group is one confirmed duplicate set.
type Group struct {
	Size     int64    `json:"size"`
	Digest   string   `json:"digest"`
	Original string   `json:"original"`
	Files    []string `json:"files"` // All member paths, original first
}

// Report is the immutable result of a pipeline run.
type Report struct {
	Stats  Stats   `json:"stats"`
	Groups []Group `json:"groups"`
}

// Assemble builds a Report from confirmed duplicate groups.
//
// Groups are ordered by size descending, then digest, so repeated runs over
// an unchanged tree produce identical reports regardless of hash completion
// order. No I/O is performed.
func Assemble(groups []types.DuplicateGroup, totalFiles int) *Report {
	ordered := make([]types.DuplicateGroup, len(groups))
	copy(ordered, groups)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Size != ordered[j].Size {
			return ordered[i].Size > ordered[j].Size
		}
		return ordered[i].Digest < ordered[j].Digest
	})

	r := &Report{
		Stats:  Stats{TotalFiles: totalFiles},
		Groups: make([]Group, 0, len(ordered)),
	}

	for _, g := range ordered {
		inodes := g.Siblings.Len()
		if inodes < 2 {
			continue
		}

		r.Stats.GroupCount++
		r.Stats.DuplicateFiles += inodes - 1
		r.Stats.WastedBytes += uint64(g.Size) * uint64(inodes-1)

		r.Groups = append(r.Groups, Group{
			Size:     g.Size,
			Digest:   g.Digest,
			Original: g.Original().Path,
			Files:    g.Paths(),
		})
	}

	return r
}

// HasDuplicates reports whether any duplicate group was found.
// The CLI derives the report-exit-code behavior from this.
func (r *Report) HasDuplicates() bool {
	return r.Stats.GroupCount > 0
}
