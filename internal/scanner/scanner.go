// Package scanner enumerates candidate files using parallel directory
// traversal.
//
// # Concurrency Model
//
// The scanner employs three concurrent components:
//
//  1. WALKER GOROUTINES (fan-out)
//     - One goroutine spawned per directory discovered
//     - Concurrency limited by semaphore (walkerSem)
//     - Each walker: acquires semaphore → lists directory → releases
//       semaphore → spawns child walkers
//
//  2. COLLECTOR GOROUTINE (fan-in)
//     - Single goroutine that drains resultCh into a slice
//     - Runs until resultCh is closed
//
//  3. MAIN GOROUTINE (orchestrator)
//     - Spawns the initial walker, waits for walkers (walkerWg.Wait),
//       closes resultCh, waits for the collector
//
// # Filtering
//
// Filters are applied cheapest-first: the size bounds use metadata already
// in hand from the directory listing, so they run before the glob matcher.
// Symlinks and other non-regular entries are never yielded. Per-entry
// errors (permission denied, files vanishing mid-scan) go to the error
// channel and never abort the walk.
package scanner

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/denizariyan/dedup/internal/matcher"
	"github.com/denizariyan/dedup/internal/progress"
	"github.com/denizariyan/dedup/internal/types"
)

// Scanner discovers files matching filter criteria under a single root.
//
// The scanner is designed for single-use: create with New(), call Run() once.
type Scanner struct {
	// Config (immutable, set by New)
	root         string           // Root directory to scan (absolute)
	minSize      int64            // Minimum file size, inclusive
	maxSize      int64            // Maximum file size, inclusive (0 = unbounded)
	match        *matcher.Matcher // Include/exclude predicate (nil = match all)
	workers      int              // Max concurrent directory reads
	showProgress bool             // Whether to display progress bar
	errCh        chan error       // Non-fatal errors (permission denied, etc.)

	// Runtime (initialized in Run)
	walkerWg  sync.WaitGroup       // Tracks in-flight walker goroutines
	walkerSem types.Semaphore      // Limits concurrent directory reads
	resultCh  chan *types.FileInfo // Fan-in channel: walkers → collector
	stats     *stats               // Atomic counters for progress tracking
	bar       *progress.Bar        // Progress display (thread-safe)
}

// New creates a Scanner rooted at root.
// The root must already be validated as an existing directory; maxSize 0
// means no upper bound.
func New(root string, minSize, maxSize int64, match *matcher.Matcher, workers int, showProgress bool, errCh chan error) *Scanner {
	if maxSize <= 0 {
		maxSize = math.MaxInt64
	}
	return &Scanner{
		root:         root,
		minSize:      minSize,
		maxSize:      maxSize,
		match:        match,
		workers:      workers,
		showProgress: showProgress,
		errCh:        errCh,
	}
}

// stats tracks scanning progress using atomic counters so all walker
// goroutines can update them without lock contention. A read may see counters
// from slightly different moments, which is acceptable for progress display.
type stats struct {
	scannedFiles atomic.Int64 // Total files discovered (all walkers)
	matchedFiles atomic.Int64 // Files passing size/pattern filters
	scannedBytes atomic.Int64 // Total bytes across all scanned files
	matchedBytes atomic.Int64 // Bytes of matched files only
	startTime    time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Scanned %d (%s), matched %d files (%s) in %.1fs",
		s.scannedFiles.Load(), humanize.IBytes(uint64(s.scannedBytes.Load())),
		s.matchedFiles.Load(), humanize.IBytes(uint64(s.matchedBytes.Load())),
		time.Since(s.startTime).Seconds())
}

// Run executes the scan and returns matching files.
//
// Coordination sequence:
//  1. Start collector goroutine (drains resultCh → results slice)
//  2. Spawn the root walker (fan-out begins)
//  3. Wait for all walkers, close resultCh, wait for the collector
func (s *Scanner) Run() []*types.FileInfo {
	s.walkerSem = types.NewSemaphore(s.workers)
	s.bar = progress.New(s.showProgress, -1)
	s.stats = &stats{startTime: time.Now()}
	s.bar.Describe(s.stats)
	s.resultCh = make(chan *types.FileInfo, 1000) // Buffer smooths producer/consumer rates

	var results []*types.FileInfo
	collectorWg := sync.WaitGroup{}

	collectorWg.Add(1)
	go func() {
		for r := range s.resultCh {
			results = append(results, r)
		}
		collectorWg.Done()
	}()

	s.walkDirectory(s.root)

	s.walkerWg.Wait()  // All walkers done
	close(s.resultCh)  // Signal collector: no more items coming
	collectorWg.Wait() // Collector drained channel

	s.bar.Finish(s.stats)
	return results
}

// walkDirectory spawns a goroutine to process one directory and recursively
// spawn children.
//
// The WaitGroup increment happens BEFORE the spawn to avoid racing Wait();
// the semaphore is held only across the directory listing so children can
// acquire it while the parent filters its files.
func (s *Scanner) walkDirectory(dir string) {
	s.walkerWg.Add(1)
	go func() {
		defer s.walkerWg.Done()

		s.walkerSem.Acquire()
		defer s.walkerSem.Release()

		files, subdirs, err := s.listDirectory(dir)
		if err != nil {
			s.sendError(err)
			return
		}

		for _, f := range files {
			s.stats.scannedFiles.Add(1)
			s.stats.scannedBytes.Add(f.Size)
			if s.wantFile(f) {
				s.resultCh <- f // May block briefly if channel buffer full
				s.stats.matchedFiles.Add(1)
				s.stats.matchedBytes.Add(f.Size)
			}
		}
		s.bar.Describe(s.stats)

		for _, sub := range subdirs {
			s.walkDirectory(sub)
		}
	}()
}

// wantFile applies the file filters, cheapest first: size bounds use already
// fetched metadata, pattern matching walks the path strings.
func (s *Scanner) wantFile(f *types.FileInfo) bool {
	if f.Size < s.minSize || f.Size > s.maxSize {
		return false
	}
	return s.match.MatchFile(f.Path)
}

// listDirectory reads a single directory, returning files and subdirectories.
//
// Uses batched ReadDir so directories with millions of entries do not pin
// memory. This is the only place directory I/O occurs, protected by walkerSem.
func (s *Scanner) listDirectory(dirPath string) (files []*types.FileInfo, subdirs []string, err error) {
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	const batchSize = 1000
	for {
		entries, err := dir.ReadDir(batchSize)
		if len(entries) == 0 {
			if err != nil && err != io.EOF {
				return files, subdirs, err
			}
			break
		}

		for _, entry := range entries {
			f, sub := s.processEntry(dirPath, entry)
			if f != nil {
				files = append(files, f)
			}
			if sub != "" {
				subdirs = append(subdirs, sub)
			}
		}
	}

	return files, subdirs, nil
}

// processEntry processes a single directory entry, returning a file or
// subdirectory path. Returns (nil, "") for entries that should be skipped:
// symlinks, devices, sockets, and excluded directories.
func (s *Scanner) processEntry(dirPath string, entry os.DirEntry) (file *types.FileInfo, subdir string) {
	fullPath := filepath.Join(dirPath, entry.Name())

	if entry.IsDir() {
		if s.match.SkipDir(fullPath) {
			return nil, ""
		}
		return nil, fullPath
	}

	// Symlinks are never followed or reported as candidates.
	if !entry.Type().IsRegular() {
		return nil, ""
	}

	// Info() may trigger an extra stat call; a failure here usually means the
	// file vanished between listing and stat.
	info, err := entry.Info()
	if err != nil {
		return nil, ""
	}

	return newFileInfo(fullPath, info), ""
}

// sendError sends an error to the errors channel if it's not nil.
func (s *Scanner) sendError(err error) {
	if s.errCh != nil {
		s.errCh <- err
	}
}
