// Package testfs provides test infrastructure for filesystem operations.
//
// It supports two modes:
//   - Integration tests: the harness sows files under t.TempDir()
//   - E2E tests: a Docker container with tmpfs mounts, so volumes get
//     distinct device IDs and cross-device hardlink failures are reachable
//
// Tests use a single FileTree type for both setup and verification:
//
//	given := testfs.FileTree{
//	    Volumes: []Volume{
//	        {
//	            MountPoint: "/data",
//	            Files: []File{
//	                {Path: []string{"a.txt"}, Chunks: []Chunk{{Pattern: 'A', Size: "64KiB"}}},
//	                {Path: []string{"copy/a.txt"}, Chunks: []Chunk{{Pattern: 'A', Size: "64KiB"}}},
//	            },
//	        },
//	    },
//	}
//	then := testfs.FileTree{
//	    Volumes: []Volume{
//	        {
//	            MountPoint: "/data",
//	            Files: []File{
//	                {Path: []string{"a.txt", "copy/a.txt"}}, // same inode
//	            },
//	        },
//	    },
//	}
//	h := testfs.New(t, given)
//	h.RunDedup("-a", "hardlink", "/data")
//	h.Assert(then)
//
// Parent directories are created automatically from file paths (mkdir -p
// semantics). File paths are relative to the volume mount point.
//
// Field usage by context:
//
//	| Field          | Setup              | Verification             |
//	|----------------|--------------------|--------------------------|
//	| Volumes        | Creates mounts     | Scope for assertions     |
//	| File.Path      | Create file/links  | Assert same inode        |
//	| File.Chunks    | Generate content   | Ignored                  |
//	| Symlink.Path   | Create symlink     | Assert is symlink        |
//	| Symlink.Target | Symlink target     | Assert symlink target    |
//	| ExitCode       | Ignored            | Assert matches           |
package testfs

import "github.com/dustin/go-humanize"

// FileTree describes a filesystem state, used for both setup and verification.
type FileTree struct {
	// Volumes in the filesystem. In E2E mode each is a separate tmpfs
	// mount; in integration mode each is a subdirectory of the temp root.
	Volumes []Volume `json:"volumes"`

	// ExitCode expected from dedup (verification only, default 0).
	ExitCode int `json:"-"` // Harness-only field, not serialized
}

// Volume represents a separate filesystem.
//
// In E2E mode each volume gets its own device ID, which is how the
// cross-device (EXDEV) behavior of the hardlink engine is exercised.
// Nested mount points ("/data/sub" inside "/data") are supported, so a
// single scan root can span devices.
type Volume struct {
	// MountPoint is the absolute path where this volume is mounted.
	MountPoint string `json:"mountPoint"`

	// Files in this volume (regular files, possibly hardlinked).
	Files []File `json:"files,omitempty"`

	// Symlinks in this volume. The scanner never follows these; tests use
	// them to assert symlinks are left untouched.
	Symlinks []Symlink `json:"symlinks,omitempty"`
}

// File defines a regular file, possibly with hardlinks.
//
// In setup context:
//   - Path[0] is created with content from the Chunks specification
//   - Path[1:] are hardlinked to Path[0]
//
// In verification context:
//   - All paths must exist and share the same inode
//   - Paths in different File entries must have different inodes
//
// Content is a sequence of chunks, each filling a region with its pattern
// byte. Identical chunk sequences produce byte-identical files.
type File struct {
	// Path contains one or more paths relative to the volume.
	// Multiple paths indicate hardlinks sharing the same inode.
	Path []string `json:"path"`

	// Chunks specifies file content as a sequence of filled regions.
	// Sizes use IEC units: "8KiB", "1MiB".
	Chunks []Chunk `json:"chunks,omitempty"`
}

// Chunk defines a region of file content filled with a pattern byte.
type Chunk struct {
	// Pattern is the fill byte for this region, e.g. 'A' fills with 0x41.
	Pattern rune `json:"pattern"`

	// Size in IEC units (1024-based), parsed via go-humanize. Chunk
	// boundaries can be aligned with the partial-hash prefix to build
	// files that agree on the first 8 KiB but differ later.
	Size string `json:"size"`
}

// TotalSize calculates the sum of all chunk sizes in bytes.
func (f *File) TotalSize() int64 {
	var total int64
	for _, c := range f.Chunks {
		size, _ := humanize.ParseBytes(c.Size)
		total += int64(size)
	}
	return total
}

// Symlink defines a symbolic link: created at Path pointing to Target in
// setup, asserted to exist with that target in verification.
type Symlink struct {
	// Path is relative to the volume mount point.
	Path string `json:"path"`

	// Target is the path the symlink points to.
	Target string `json:"target"`
}

// RunResult captures the outcome of a dedup execution.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ReapResult is the output format of the testfs-helper reap command: the
// actual filesystem state, compared against an expected FileTree.
type ReapResult struct {
	Volumes []ReapVolume `json:"volumes"`
}

// ReapVolume contains scanned filesystem state for a single volume.
type ReapVolume struct {
	Name     string        `json:"name"`               // Mount point path
	Files    []ReapFile    `json:"files,omitempty"`    // Regular files, grouped by inode
	Symlinks []ReapSymlink `json:"symlinks,omitempty"` // Symbolic links
}

// ReapFile contains file metadata including inode for hardlink verification.
type ReapFile struct {
	Path  []string `json:"path"`  // All paths sharing this inode
	Inode uint64   `json:"inode"` // Inode number
	Nlink uint64   `json:"nlink"` // Link count
	Size  int64    `json:"size"`  // File size in bytes
}

// ReapSymlink contains symlink metadata.
type ReapSymlink struct {
	Path   string `json:"path"`   // Symlink path (relative to volume)
	Target string `json:"target"` // Symlink target
}
