// Package cache provides optional persistent caching of content digests.
//
// Entries are keyed by (path, size, inode, mtime, stage) so any change to a
// file invalidates its cached digests. The cache is self-cleaning: each run
// writes surviving entries to a fresh database which atomically replaces the
// old one on close, so entries for deleted or modified files age out.
package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/denizariyan/dedup/internal/types"
)

// Stage distinguishes which byte range a cached digest covers.
type Stage byte

const (
	// StagePartial is the digest of the first 8 KiB prefix.
	StagePartial Stage = 1
	// StageFull is the digest of the entire file content.
	StageFull Stage = 2
)

const (
	bucketName = "digests"
	digestSize = 32
)

// Cache is a BoltDB-backed digest store.
// A disabled Cache (empty path) is a valid no-op instance.
type Cache struct {
	readDB  *bolt.DB // Existing cache (read-only)
	writeDB *bolt.DB // New cache (write) - BoltDB locks this file
	path    string   // Final path (for atomic swap)
	enabled bool
}

// Open opens an existing cache for reading and creates a new one for writing.
// BoltDB's file lock on the .new file prevents concurrent instances.
// Returns a disabled cache if path is empty.
func Open(path string) (*Cache, error) {
	if path == "" {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{path: path, enabled: true}
	var err error

	if _, statErr := os.Stat(path); statErr == nil {
		c.readDB, err = bolt.Open(path, 0o600, &bolt.Options{
			ReadOnly: true,
			Timeout:  1 * time.Second,
		})
		if err != nil {
			// Can't open existing - continue without read cache
			c.readDB = nil
		}
	}

	newPath := path + ".new"
	c.writeDB, err = bolt.Open(newPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create new cache (locked by another instance?): %w", err)
	}

	if err := c.writeDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Close closes both databases and atomically replaces old with new.
// Only replaces if the write database closed cleanly, to avoid data loss.
func (c *Cache) Close() error {
	var errs []error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.writeDB != nil {
		if err := c.writeDB.Close(); err != nil {
			errs = append(errs, err)
		} else {
			if err := os.Rename(c.path+".new", c.path); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

const keyVersion byte = 1 // Increment when key format changes

// makeKey builds the deterministic byte key for a file and stage.
// Key = ver(1) + path + NUL + size(8) + ino(8) + mtime(8) + stage(1)
func makeKey(fi *types.FileInfo, stage Stage) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(keyVersion)
	buf.WriteString(fi.Path)
	buf.WriteByte(0) // NUL separator
	_ = binary.Write(buf, binary.BigEndian, fi.Size)
	_ = binary.Write(buf, binary.BigEndian, fi.Ino)
	_ = binary.Write(buf, binary.BigEndian, fi.ModTime.UnixNano())
	buf.WriteByte(byte(stage))
	return buf.Bytes()
}

// Lookup retrieves a cached digest for a file at a stage.
// Any change in path, size, inode, or mtime is a miss. On a hit the entry is
// copied to the write database (self-cleaning). Returns nil when not found,
// disabled, or unreadable: the caller simply hashes on a miss.
func (c *Cache) Lookup(fi *types.FileInfo, stage Stage) []byte {
	if !c.enabled || c.readDB == nil {
		return nil
	}

	key := makeKey(fi, stage)
	var digest []byte

	err := c.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		data := b.Get(key)
		if len(data) == digestSize {
			digest = make([]byte, digestSize)
			copy(digest, data)
		}
		return nil
	})
	if err != nil || digest == nil {
		return nil
	}

	// Self-cleaning: carry the still-valid entry into the new database
	_ = c.Store(fi, stage, digest)

	return digest
}

// Store saves a digest for a file at a stage to the new database.
func (c *Cache) Store(fi *types.FileInfo, stage Stage, digest []byte) error {
	if !c.enabled || c.writeDB == nil || len(digest) != digestSize {
		return nil
	}

	err := c.writeDB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put(makeKey(fi, stage), digest)
	})
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}
