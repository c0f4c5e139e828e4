//go:build unix && !e2e

package internal

import (
	"path/filepath"
	"testing"

	"github.com/denizariyan/dedup/internal/cache"
	"github.com/denizariyan/dedup/internal/linker"
	"github.com/denizariyan/dedup/internal/report"
	"github.com/denizariyan/dedup/internal/scanner"
	"github.com/denizariyan/dedup/internal/screener"
	"github.com/denizariyan/dedup/internal/testfs"
	"github.com/denizariyan/dedup/internal/verifier"
	"github.com/denizariyan/dedup/internal/workpool"
)

// runPipeline executes scan → screen → verify → link against root and
// returns the report and linking summary. cachePath may be empty.
func runPipeline(t *testing.T, root string, minSize int64, dryRun bool, cachePath string) (*report.Report, *linker.Summary) {
	t.Helper()

	digestCache, err := cache.Open(cachePath)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer func() { _ = digestCache.Close() }()

	pool, err := workpool.New(2)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	files := scanner.New(root, minSize, 0, nil, 2, false, nil).Run()
	candidates := screener.New(files, false).Run()
	confirmed := verifier.New(candidates, pool, false, nil, digestCache).Run()
	rep := report.Assemble(confirmed, len(files))
	summary := linker.New(confirmed, dryRun, false, false, nil).Run()

	return rep, summary
}

// TestPipelineBasicDuplicates tests end-to-end detection and hardlinking.
func TestPipelineBasicDuplicates(t *testing.T) {
	h := testfs.New(t, testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'D', Size: "1KiB"}}},
					{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'D', Size: "1KiB"}}},
				},
			},
		},
	})

	rep, summary := runPipeline(t, h.Root(), 1, false, "")

	if rep.Stats.GroupCount != 1 || rep.Stats.DuplicateFiles != 1 {
		t.Errorf("report stats = %+v, want 1 group, 1 duplicate", rep.Stats)
	}
	if summary.Linked != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 1 linked", summary)
	}

	h.Assert(testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt", "b.txt"}},
				},
			},
		},
	})
}

// TestPipelineExistingHardlinksPreserved tests that a pre-linked pair is
// absorbed into the group as a no-op and the third copy joins it.
func TestPipelineExistingHardlinksPreserved(t *testing.T) {
	h := testfs.New(t, testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt", "a_link.txt"}, Chunks: []testfs.Chunk{{Pattern: 'O', Size: "1KiB"}}},
					{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'O', Size: "1KiB"}}},
				},
			},
		},
	})

	rep, summary := runPipeline(t, h.Root(), 1, false, "")

	// Two inodes, one retained: exactly one reclaimable duplicate
	if rep.Stats.DuplicateFiles != 1 {
		t.Errorf("DuplicateFiles = %d, want 1", rep.Stats.DuplicateFiles)
	}
	if summary.Linked != 1 {
		t.Errorf("Linked = %d, want 1 (pre-linked pair is a no-op)", summary.Linked)
	}

	h.Assert(testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt", "a_link.txt", "b.txt"}},
				},
			},
		},
	})
}

// TestPipelineMixedDuplicatesAndUnique tests multiple independent groups
// plus an untouched unique file.
func TestPipelineMixedDuplicatesAndUnique(t *testing.T) {
	h := testfs.New(t, testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"dup1_a.txt"}, Chunks: []testfs.Chunk{{Pattern: '1', Size: "1KiB"}}},
					{Path: []string{"dup1_b.txt"}, Chunks: []testfs.Chunk{{Pattern: '1', Size: "1KiB"}}},
					{Path: []string{"dup2_a.txt"}, Chunks: []testfs.Chunk{{Pattern: '2', Size: "2KiB"}}},
					{Path: []string{"dup2_b.txt"}, Chunks: []testfs.Chunk{{Pattern: '2', Size: "2KiB"}}},
					{Path: []string{"unique.txt"}, Chunks: []testfs.Chunk{{Pattern: 'U', Size: "3KiB"}}},
				},
			},
		},
	})

	rep, _ := runPipeline(t, h.Root(), 1, false, "")

	if rep.Stats.GroupCount != 2 {
		t.Errorf("GroupCount = %d, want 2", rep.Stats.GroupCount)
	}

	h.Assert(testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"dup1_a.txt", "dup1_b.txt"}},
					{Path: []string{"dup2_a.txt", "dup2_b.txt"}},
					{Path: []string{"unique.txt"}},
				},
			},
		},
	})
}

// TestPipelineMinSizeFilter tests that duplicates below the minimum size
// are never touched.
func TestPipelineMinSizeFilter(t *testing.T) {
	h := testfs.New(t, testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"small_a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'S', Size: "100"}}},
					{Path: []string{"small_b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'S', Size: "100"}}},
					{Path: []string{"large_a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'L', Size: "1KiB"}}},
					{Path: []string{"large_b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'L', Size: "1KiB"}}},
				},
			},
		},
	})

	runPipeline(t, h.Root(), 512, false, "")

	h.Assert(testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					// Small pair stays on distinct inodes
					{Path: []string{"small_a.txt"}},
					{Path: []string{"small_b.txt"}},
					{Path: []string{"large_a.txt", "large_b.txt"}},
				},
			},
		},
	})
}

// TestPipelinePrefixCollisionRejected tests files agreeing on the hash
// prefix but diverging later: they must survive untouched.
func TestPipelinePrefixCollisionRejected(t *testing.T) {
	h := testfs.New(t, testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					// Identical 8KiB prefix, different tail
					{Path: []string{"a.bin"}, Chunks: []testfs.Chunk{
						{Pattern: 'P', Size: "8KiB"},
						{Pattern: 'X', Size: "1KiB"},
					}},
					{Path: []string{"b.bin"}, Chunks: []testfs.Chunk{
						{Pattern: 'P', Size: "8KiB"},
						{Pattern: 'Y', Size: "1KiB"},
					}},
				},
			},
		},
	})

	rep, _ := runPipeline(t, h.Root(), 1, false, "")

	if rep.HasDuplicates() {
		t.Errorf("expected no duplicates, got %+v", rep.Stats)
	}

	h.Assert(testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.bin"}},
					{Path: []string{"b.bin"}},
				},
			},
		},
	})
}

// TestPipelineDryRun tests that dry-run leaves the tree unchanged while
// predicting the replacements.
func TestPipelineDryRun(t *testing.T) {
	h := testfs.New(t, testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'D', Size: "1KiB"}}},
					{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'D', Size: "1KiB"}}},
				},
			},
		},
	})

	_, summary := runPipeline(t, h.Root(), 1, true, "")

	if summary.Linked != 1 {
		t.Errorf("dry-run should predict 1 replacement, got %d", summary.Linked)
	}

	h.Assert(testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt"}},
					{Path: []string{"b.txt"}},
				},
			},
		},
	})
}

// TestPipelineRerunReportsNothing tests round-trip convergence: after a
// successful run, a second run finds zero duplicates and changes nothing.
func TestPipelineRerunReportsNothing(t *testing.T) {
	h := testfs.New(t, testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'R', Size: "1KiB"}}},
					{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'R', Size: "1KiB"}}},
					{Path: []string{"c.txt"}, Chunks: []testfs.Chunk{{Pattern: 'R', Size: "1KiB"}}},
				},
			},
		},
	})

	rep1, summary1 := runPipeline(t, h.Root(), 1, false, "")
	if rep1.Stats.DuplicateFiles != 2 || summary1.Linked != 2 {
		t.Fatalf("first run: report %+v, summary %+v", rep1.Stats, summary1)
	}

	rep2, summary2 := runPipeline(t, h.Root(), 1, false, "")
	if rep2.HasDuplicates() {
		t.Errorf("second run should report zero duplicates, got %+v", rep2.Stats)
	}
	if summary2.Linked != 0 || summary2.Failed != 0 {
		t.Errorf("second run should change nothing, got %+v", summary2)
	}

	h.Assert(testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt", "b.txt", "c.txt"}},
				},
			},
		},
	})
}

// TestPipelineSymlinksUntouched tests that symlinks are neither followed
// nor replaced.
func TestPipelineSymlinksUntouched(t *testing.T) {
	h := testfs.New(t, testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'D', Size: "1KiB"}}},
					{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'D', Size: "1KiB"}}},
				},
				Symlinks: []testfs.Symlink{
					{Path: "a_sym.txt", Target: "a.txt"},
				},
			},
		},
	})

	runPipeline(t, h.Root(), 1, false, "")

	h.Assert(testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt", "b.txt"}},
				},
				Symlinks: []testfs.Symlink{
					{Path: "a_sym.txt", Target: "a.txt"},
				},
			},
		},
	})
}

// TestPipelineWithCache tests the pipeline with a digest cache enabled:
// a repeated scan over an unchanged tree reports identically.
func TestPipelineWithCache(t *testing.T) {
	h := testfs.New(t, testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'C', Size: "16KiB"}}},
					{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'C', Size: "16KiB"}}},
				},
			},
		},
	})

	cachePath := filepath.Join(t.TempDir(), "digests.db")

	// Dry-run both times so the tree (and thus the cache keys) stay stable
	rep1, _ := runPipeline(t, h.Root(), 1, true, cachePath)
	rep2, _ := runPipeline(t, h.Root(), 1, true, cachePath)

	if rep1.Stats != rep2.Stats {
		t.Errorf("cached run differs: %+v vs %+v", rep1.Stats, rep2.Stats)
	}
	if rep2.Stats.GroupCount != 1 {
		t.Errorf("GroupCount = %d, want 1", rep2.Stats.GroupCount)
	}
}
