// Package verifier confirms duplicate candidates by content hashing.
//
// # Two-Stage Elimination
//
// Candidates surviving the size screen are verified in two hash stages:
//
//	Stage 1 (partial): BLAKE3 over the first 8 KiB (whole file if smaller).
//	                   Candidate groups are re-partitioned by (size, digest)
//	                   and singletons discarded without any further reads.
//	Stage 2 (full):    BLAKE3 over the entire content. Surviving partitions
//	                   are confirmed duplicate groups.
//
// Both stages submit one task per sibling-group representative across ALL
// groups at once, so the pool stays saturated even when group sizes vary.
// Sibling groups (hardlinks) are hashed once: same inode, same content.
//
// Digest equality at the full stage is treated as content equality. BLAKE3
// is collision-resistant; a cheap checksum would not be acceptable here
// because confirmed groups feed an irreversible filesystem mutation.
//
// # Error Policy
//
// A read failure (file vanished, permission revoked) drops that file from
// its group and is reported on the error channel; it never aborts the stage.
// If the drop leaves a group below two members the group is discarded.
package verifier

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"

	"github.com/denizariyan/dedup/internal/cache"
	"github.com/denizariyan/dedup/internal/progress"
	"github.com/denizariyan/dedup/internal/types"
	"github.com/denizariyan/dedup/internal/workpool"
)

const (
	// PartialSize is the prefix length hashed by the partial stage.
	PartialSize = 8 * 1024
	// blockSize is the read buffer size for full-content hashing.
	blockSize = 64 * 1024
)

// Verifier confirms duplicates among candidate groups.
//
// The verifier is designed for single-use: create with New(), call Run() once.
type Verifier struct {
	// Config (immutable, set by New)
	groups       types.CandidateGroups // Input: candidate groups from screener
	pool         *workpool.Pool        // Shared bounded worker pool
	showProgress bool
	errCh        chan error   // Non-fatal per-file errors
	cache        *cache.Cache // Digest cache (disabled instance when not configured)

	// Runtime (initialized in Run)
	bar   *progress.Bar
	stats *stats
}

// New creates a Verifier. The pool is owned by the caller and shared across
// stages; the verifier never closes it.
func New(groups types.CandidateGroups, pool *workpool.Pool, showProgress bool, errCh chan error, digestCache *cache.Cache) *Verifier {
	return &Verifier{
		groups:       groups,
		pool:         pool,
		showProgress: showProgress,
		errCh:        errCh,
		cache:        digestCache,
	}
}

// stats tracks verification progress with atomic counters: hashing tasks on
// pool workers update the byte counters concurrently, while the progress
// observer reads snapshots for display. Confirmation counters are only
// touched by Run itself.
type stats struct {
	totalBytes     uint64 // Upper bound: full size of every candidate inode
	hashedBytes    atomic.Uint64
	cachedBytes    atomic.Uint64
	confirmedFiles atomic.Int64
	confirmedBytes atomic.Uint64
	confirmedSets  atomic.Int64
	startTime      time.Time
}

func (s *stats) String() string {
	elapsed := time.Since(s.startTime).Truncate(time.Millisecond)
	if cached := s.cachedBytes.Load(); cached > 0 {
		return fmt.Sprintf("Hashed %s + cached %s of %s, confirmed %d duplicates (%s) in %d sets in %v",
			humanize.IBytes(s.hashedBytes.Load()), humanize.IBytes(cached), humanize.IBytes(s.totalBytes),
			s.confirmedFiles.Load(), humanize.IBytes(s.confirmedBytes.Load()), s.confirmedSets.Load(), elapsed)
	}
	return fmt.Sprintf("Hashed %s of %s, confirmed %d duplicates (%s) in %d sets in %v",
		humanize.IBytes(s.hashedBytes.Load()), humanize.IBytes(s.totalBytes),
		s.confirmedFiles.Load(), humanize.IBytes(s.confirmedBytes.Load()), s.confirmedSets.Load(), elapsed)
}

// unit is one hashing task: a sibling group whose representative gets hashed.
type unit struct {
	size     int64
	siblings types.SiblingGroup

	// Task output. Each task writes only its own unit, so no lock is needed;
	// the Flush barrier publishes the writes to the collecting goroutine.
	digest string
	failed bool
}

// partitionKey groups units by size and digest. Size is part of the key so a
// rare cross-size prefix collision can never merge groups.
type partitionKey struct {
	size   int64
	digest string
}

// Run executes both hash stages and returns confirmed duplicate groups.
// Group order is not significant; the report assembler sorts.
func (v *Verifier) Run() []types.DuplicateGroup {
	if v.groups.Len() == 0 {
		return nil
	}

	units := v.flatten()
	v.stats = &stats{startTime: time.Now()}
	for _, u := range units {
		v.stats.totalBytes += uint64(u.size)
	}
	v.bar = progress.New(v.showProgress, -1)
	v.bar.Describe(v.stats)

	// Progress observer: the pool emits a completion event per hashed file;
	// redraw the description on each. Stops when Run finishes (the pool
	// itself outlives the verifier).
	observerDone := make(chan struct{})
	defer close(observerDone)
	go func() {
		for {
			select {
			case _, ok := <-v.pool.Events():
				if !ok {
					return
				}
				v.bar.Describe(v.stats)
			case <-observerDone:
				return
			}
		}
	}()

	// Stage 1: partial digests over every candidate inode.
	survivors := v.runStage(units, cache.StagePartial)

	// Stage 2: full digests over the survivors only.
	confirmed := v.runStage(survivors, cache.StageFull)

	var duplicates []types.DuplicateGroup
	byKey := make(map[partitionKey][]types.SiblingGroup)
	for _, u := range confirmed {
		key := partitionKey{u.size, u.digest}
		byKey[key] = append(byKey[key], u.siblings)
	}
	for key, siblings := range byKey {
		if len(siblings) < 2 {
			continue
		}
		group := types.NewDuplicateGroup(key.size, key.digest, siblings)
		duplicates = append(duplicates, group)

		// Count files to be replaced, excluding the retained original
		v.stats.confirmedFiles.Add(int64(len(siblings) - 1))
		v.stats.confirmedBytes.Add(uint64(key.size) * uint64(len(siblings)-1))
		v.stats.confirmedSets.Add(1)
	}

	v.bar.Finish(v.stats)
	return duplicates
}

// flatten turns candidate groups into one unit per sibling group.
// Submitting across all groups at once keeps the pool busy when group sizes
// are uneven.
func (v *Verifier) flatten() []*unit {
	var units []*unit
	for _, cg := range v.groups.Items() {
		for _, siblings := range cg.Items() {
			units = append(units, &unit{
				size:     siblings.First().Size,
				siblings: siblings,
			})
		}
	}
	return units
}

// runStage hashes every unit at the given stage through the pool, then
// re-partitions by (size, digest) and returns only units in partitions that
// still have 2+ members. Failed units are dropped.
func (v *Verifier) runStage(units []*unit, stage cache.Stage) []*unit {
	if len(units) == 0 {
		return nil
	}

	v.pool.AddTotal(int64(len(units)))
	for _, u := range units {
		u := u // per-iteration copy: required under go <1.22 loop-var semantics
		v.pool.Submit(func() {
			v.hashUnit(u, stage)
		})
	}
	v.pool.Flush() // Barrier: all unit fields written and visible below

	byKey := make(map[partitionKey][]*unit)
	for _, u := range units {
		if u.failed {
			continue
		}
		key := partitionKey{u.size, u.digest}
		byKey[key] = append(byKey[key], u)
	}
	v.bar.Describe(v.stats)

	var survivors []*unit
	for _, members := range byKey {
		if len(members) >= 2 {
			survivors = append(survivors, members...)
		}
	}
	return survivors
}

// hashUnit computes (or recalls) the stage digest for a unit's
// representative file. Runs on a pool worker.
func (v *Verifier) hashUnit(u *unit, stage cache.Stage) {
	// Hash only the first file: all siblings share the inode and content.
	rep := u.siblings.First()

	if digest := v.cache.Lookup(rep, stage); digest != nil {
		u.digest = hex.EncodeToString(digest)
		v.stats.cachedBytes.Add(stageBytes(stage, rep.Size))
		return
	}

	digest, bytesRead, err := hashFile(rep.Path, stage)
	if err != nil {
		v.sendError(fmt.Errorf("%s: %w", rep.Path, err))
		u.failed = true
		return
	}

	_ = v.cache.Store(rep, stage, digest)
	u.digest = hex.EncodeToString(digest)
	v.stats.hashedBytes.Add(bytesRead)
}

// stageBytes returns how many bytes a stage reads for a file of the given size.
func stageBytes(stage cache.Stage, size int64) uint64 {
	if stage == cache.StagePartial && size > PartialSize {
		return PartialSize
	}
	return uint64(size)
}

// sendError sends an error to the errors channel if it's not nil.
func (v *Verifier) sendError(err error) {
	if v.errCh != nil {
		v.errCh <- err
	}
}

// hashFile computes the BLAKE3 digest of a file for the given stage:
// the first 8 KiB for StagePartial, the entire content for StageFull.
// Returns the 32-byte digest and the number of bytes actually read.
func hashFile(path string, stage cache.Stage) (digest []byte, bytesRead uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = f.Close() }()

	hasher := blake3.New()
	var src io.Reader = f
	if stage == cache.StagePartial {
		src = io.LimitReader(f, PartialSize)
	}

	buf := make([]byte, blockSize)
	n, err := io.CopyBuffer(hasher, src, buf)
	if err != nil {
		return nil, uint64(n), err
	}

	return hasher.Sum(nil), uint64(n), nil
}
