//go:build unix

package linker

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

const (
	// TmpSuffix is appended to a duplicate's path to form the temporary
	// link location. The temp lives in the same directory as the duplicate
	// so the final rename stays within one filesystem and is atomic.
	TmpSuffix = ".dedup.tmp"

	// orphanedTmpMaxAge is the minimum age for a temp file to be considered
	// orphaned. Files younger than this are assumed to belong to an active
	// operation.
	orphanedTmpMaxAge = 1 * time.Minute
)

// CreateHardlink atomically replaces target with a hardlink to source.
//
// Protocol: link source to a temporary path adjacent to target, then rename
// the temp over target. The target path resolves to readable content at
// every instant: its old inode before the rename, the source's inode after.
// The duplicate's content is never deleted before the replacement is in
// place, so an interruption anywhere in this sequence loses no data.
//
// If the rename fails the temp link is removed before returning, leaving no
// leaked entries. If the temp path already exists from a crashed prior run,
// it is cleaned up and the link retried, but only when provably safe.
func CreateHardlink(source, target string) error {
	tmp := target + TmpSuffix

	err := os.Link(source, tmp)
	if errors.Is(err, syscall.EEXIST) {
		if cleanupErr := tryCleanupOrphanedTmp(tmp, orphanedTmpMaxAge); cleanupErr != nil {
			return fmt.Errorf("tmp file exists and cannot be cleaned: %w", cleanupErr)
		}
		err = os.Link(source, tmp)
	}
	if err != nil {
		return err
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp) // cleanup on failure
		return err
	}
	return nil
}

// tryCleanupOrphanedTmp attempts to remove an orphaned temp link.
// Returns nil if removed, or an error explaining why cleanup was refused.
//
// Safety criteria (ALL must be met):
//  1. The file is older than maxAge (guards against racing an active run)
//  2. nlink > 1 (the data exists elsewhere; removing this entry loses nothing)
//
// With nlink == 1 the entry may be the only copy of someone's data, so it is
// never removed.
func tryCleanupOrphanedTmp(path string, maxAge time.Duration) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("lstat: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	if info.ModTime().After(cutoff) {
		return fmt.Errorf("file too recent (mtime %v, cutoff %v)", info.ModTime(), cutoff)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file (mode %v)", info.Mode())
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("cannot get syscall.Stat_t")
	}

	if stat.Nlink <= 1 {
		return fmt.Errorf("nlink=%d, may be only copy of data", stat.Nlink)
	}

	return os.Remove(path)
}
