//go:build unix && !e2e

package testfs

import (
	"testing"
)

// Harness provides integration test infrastructure using t.TempDir().
//
// Unlike the E2E harness that uses Docker containers with tmpfs mounts,
// this harness creates files in a temporary directory on the local
// filesystem. All "volumes" are directories on the same device, so
// cross-device scenarios (EXDEV) need the E2E harness instead.
//
// Usage:
//
//	h := testfs.New(t, given)
//	files := scanner.New(h.Root(), 1, 0, nil, 2, false, nil).Run()
//	// ... run pipeline
//	h.Assert(then)
type Harness struct {
	t     *testing.T
	root  string   // Temporary directory root
	given FileTree // Original spec
}

// New creates a new Harness with the given FileTree specification.
//
// The harness creates a temporary directory via t.TempDir(), then sows the
// volumes, files, hardlinks, and symlinks according to the spec. Cleanup is
// handled by t.TempDir() mechanics.
func New(t *testing.T, given FileTree) *Harness {
	t.Helper()

	root := t.TempDir()
	h := &Harness{
		t:     t,
		root:  root,
		given: given,
	}

	if err := SowFileTree(root, given); err != nil {
		t.Fatalf("failed to setup files: %v", err)
	}

	return h
}

// Root returns the temporary directory root path.
func (h *Harness) Root() string {
	return h.root
}

// Assert verifies the filesystem state matches the expected FileTree.
// Fails the test with descriptive errors if any assertion fails.
func (h *Harness) Assert(expected FileTree) {
	h.t.Helper()

	for _, vol := range expected.Volumes {
		h.assertState(vol)
	}
}

// assertState verifies files and symlinks match expected state for a volume.
func (h *Harness) assertState(vol Volume) {
	h.t.Helper()

	actual, err := ReapPaths(h.root, []string{vol.MountPoint})
	if err != nil {
		h.t.Fatalf("reap %s: %v", vol.MountPoint, err)
	}
	if len(actual.Volumes) == 0 {
		h.t.Fatalf("reap returned no volumes for %s", vol.MountPoint)
	}

	AssertVolume(h.t, vol, actual.Volumes[0])
}
