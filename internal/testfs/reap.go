//go:build unix

package testfs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// ReapPaths captures the filesystem state for the given paths.
//
// Each path becomes a ReapVolume with files grouped by inode (hardlinks)
// and symlinks captured with their targets.
//
// The root parameter is subtracted from paths: "" or "/" for E2E runs
// (paths used as-is), t.TempDir() for integration runs.
func ReapPaths(root string, paths []string) (*ReapResult, error) {
	result := &ReapResult{}

	for _, path := range paths {
		actualPath := path
		if root != "" && root != "/" {
			actualPath = filepath.Join(root, path)
		}

		vol, err := reapPath(actualPath, path)
		if err != nil {
			return nil, fmt.Errorf("reap %s: %w", path, err)
		}
		result.Volumes = append(result.Volumes, vol)
	}

	return result, nil
}

// ReapToWriter captures filesystem state and writes JSON to the writer.
// Used by the testfs-helper CLI to write to stdout.
func ReapToWriter(w io.Writer, paths []string) error {
	result, err := ReapPaths("", paths)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// reapPath scans a directory tree and returns its state. rootPath is the
// actual path to scan; logicalPath is reported as the volume name.
func reapPath(rootPath, logicalPath string) (ReapVolume, error) {
	vol := ReapVolume{Name: logicalPath}

	// Group paths by inode so hardlink sets come back as one entry
	inodeToFile := make(map[uint64]*ReapFile)

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == rootPath {
			return nil
		}

		relPath, _ := filepath.Rel(rootPath, path)

		// Walk uses Lstat, so symlinks show up as themselves
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
			vol.Symlinks = append(vol.Symlinks, ReapSymlink{
				Path:   relPath,
				Target: target,
			})
			return nil
		}

		if info.IsDir() {
			return nil
		}

		stat, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			return fmt.Errorf("cannot get stat for %s", path)
		}

		if existing, ok := inodeToFile[stat.Ino]; ok {
			existing.Path = append(existing.Path, relPath)
		} else {
			inodeToFile[stat.Ino] = &ReapFile{
				Path:  []string{relPath},
				Inode: stat.Ino,
				Nlink: uint64(stat.Nlink), //nolint:unconvert // platform-dependent type
				Size:  info.Size(),
			}
		}

		return nil
	})
	if err != nil {
		return vol, err
	}

	for _, rf := range inodeToFile {
		vol.Files = append(vol.Files, *rf)
	}

	return vol, nil
}
