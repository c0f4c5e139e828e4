//go:build unix

package linker

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/denizariyan/dedup/internal/types"
)

// TestCreateHardlinkBasic tests the atomic replacement protocol end to end.
func TestCreateHardlinkBasic(t *testing.T) {
	root := t.TempDir()

	source := filepath.Join(root, "source.txt")
	target := filepath.Join(root, "target.txt")
	writeFile(t, source, []byte("shared content"))
	writeFile(t, target, []byte("shared content"))

	if err := CreateHardlink(source, target); err != nil {
		t.Fatalf("CreateHardlink failed: %v", err)
	}

	if !sameInode(t, source, target) {
		t.Error("source and target should share an inode after replacement")
	}

	content, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "shared content" {
		t.Errorf("target content = %q", content)
	}

	// No temp entry may survive a successful replacement
	if _, err := os.Lstat(target + TmpSuffix); !os.IsNotExist(err) {
		t.Error("temp link left behind after success")
	}
}

// TestCreateHardlinkCleansOldOrphan tests recovery from a crashed prior
// run: a stale temp link (old enough, nlink > 1) is removed and the
// replacement retried.
func TestCreateHardlinkCleansOldOrphan(t *testing.T) {
	root := t.TempDir()

	source := filepath.Join(root, "source.txt")
	target := filepath.Join(root, "target.txt")
	writeFile(t, source, []byte("data"))
	writeFile(t, target, []byte("data"))

	// Simulate a leftover: hardlink of source at the temp path, aged past
	// the cleanup cutoff
	tmp := target + TmpSuffix
	if err := os.Link(source, tmp); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Minute)
	if err := os.Chtimes(tmp, old, old); err != nil {
		t.Fatal(err)
	}

	if err := CreateHardlink(source, target); err != nil {
		t.Fatalf("CreateHardlink should recover from orphan: %v", err)
	}
	if !sameInode(t, source, target) {
		t.Error("replacement did not happen")
	}
}

// TestCreateHardlinkRefusesRecentTmp tests that a fresh temp file is never
// removed: it may belong to an active run.
func TestCreateHardlinkRefusesRecentTmp(t *testing.T) {
	root := t.TempDir()

	source := filepath.Join(root, "source.txt")
	target := filepath.Join(root, "target.txt")
	writeFile(t, source, []byte("data"))
	writeFile(t, target, []byte("data"))

	tmp := target + TmpSuffix
	if err := os.Link(source, tmp); err != nil {
		t.Fatal(err)
	}

	if err := CreateHardlink(source, target); err == nil {
		t.Error("expected error for recent temp file")
	}
	if sameInode(t, source, target) {
		t.Error("target should be untouched")
	}
}

// TestCreateHardlinkRefusesSoleCopyTmp tests that a temp entry with
// nlink == 1 is never removed, even when old: it may be the only copy of
// someone's data.
func TestCreateHardlinkRefusesSoleCopyTmp(t *testing.T) {
	root := t.TempDir()

	source := filepath.Join(root, "source.txt")
	target := filepath.Join(root, "target.txt")
	writeFile(t, source, []byte("data"))
	writeFile(t, target, []byte("data"))

	tmp := target + TmpSuffix
	writeFile(t, tmp, []byte("unrelated precious data"))
	old := time.Now().Add(-2 * time.Minute)
	if err := os.Chtimes(tmp, old, old); err != nil {
		t.Fatal(err)
	}

	if err := CreateHardlink(source, target); err == nil {
		t.Error("expected error for sole-copy temp file")
	}
	if _, err := os.Lstat(tmp); err != nil {
		t.Errorf("sole-copy temp file must survive: %v", err)
	}
}

// TestLinkerRun tests live replacement of a two-member duplicate group.
func TestLinkerRun(t *testing.T) {
	root := t.TempDir()

	content := []byte("identical bytes, 100 of them padded..............")
	pathA := filepath.Join(root, "a.txt")
	pathB := filepath.Join(root, "deep", "b.txt")
	writeFile(t, pathA, content)
	writeFile(t, pathB, content)

	g := dupGroup(t, pathA, pathB)
	summary := New([]types.DuplicateGroup{g}, false, false, false, nil).Run()

	if summary.Linked != 1 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Errorf("summary = %+v, want 1 linked", summary)
	}
	if summary.SavedBytes != int64(len(content)) {
		t.Errorf("SavedBytes = %d, want %d", summary.SavedBytes, len(content))
	}
	if !sameInode(t, pathA, pathB) {
		t.Error("paths should share an inode after linking")
	}
}

// TestLinkerOriginalSelection tests that the shortest path is retained and
// everything else points at its inode.
func TestLinkerOriginalSelection(t *testing.T) {
	root := t.TempDir()

	content := []byte("same")
	short := filepath.Join(root, "a")
	mid := filepath.Join(root, "bb")
	long := filepath.Join(root, "sub", "ccc")
	for _, p := range []string{short, mid, long} {
		writeFile(t, p, content)
	}

	g := dupGroup(t, short, mid, long)
	origInode := inode(t, short)

	summary := New([]types.DuplicateGroup{g}, false, false, false, nil).Run()

	if summary.Linked != 2 {
		t.Errorf("Linked = %d, want 2", summary.Linked)
	}
	for _, p := range []string{mid, long} {
		if inode(t, p) != origInode {
			t.Errorf("%s should hardlink to the retained original", p)
		}
	}
}

// TestLinkerDryRun tests that dry-run records intended actions without
// touching the filesystem.
func TestLinkerDryRun(t *testing.T) {
	root := t.TempDir()

	content := []byte("same content")
	pathA := filepath.Join(root, "a.txt")
	pathB := filepath.Join(root, "b.txt")
	writeFile(t, pathA, content)
	writeFile(t, pathB, content)

	g := dupGroup(t, pathA, pathB)
	summary := New([]types.DuplicateGroup{g}, true, false, false, nil).Run()

	if summary.Linked != 1 {
		t.Errorf("dry-run should record 1 intended replacement, got %d", summary.Linked)
	}
	if len(summary.Results) != 1 || summary.Results[0].Action != ActionSimulated {
		t.Errorf("expected ActionSimulated result, got %+v", summary.Results)
	}
	if sameInode(t, pathA, pathB) {
		t.Error("dry-run must not modify the filesystem")
	}
}

// TestLinkerSkipsAlreadyLinked tests that members sharing the original's
// inode are no-ops with no results.
func TestLinkerSkipsAlreadyLinked(t *testing.T) {
	root := t.TempDir()

	content := []byte("same")
	pathA := filepath.Join(root, "a.txt")
	pathALink := filepath.Join(root, "a-link.txt")
	pathB := filepath.Join(root, "b.txt")
	writeFile(t, pathA, content)
	if err := os.Link(pathA, pathALink); err != nil {
		t.Fatal(err)
	}
	writeFile(t, pathB, content)

	// One sibling group holds the linked pair, another the lone file
	g := types.NewDuplicateGroup(int64(len(content)), "d", []types.SiblingGroup{
		types.NewSiblingGroup([]*types.FileInfo{getFileInfo(t, pathA), getFileInfo(t, pathALink)}),
		types.NewSiblingGroup([]*types.FileInfo{getFileInfo(t, pathB)}),
	})

	summary := New([]types.DuplicateGroup{g}, false, false, false, nil).Run()

	// Only pathB needed replacing
	if summary.Linked != 1 || len(summary.Results) != 1 {
		t.Errorf("expected exactly 1 result, got %+v", summary)
	}
	if !sameInode(t, pathA, pathB) {
		t.Error("b.txt should now share a.txt's inode")
	}
}

// TestLinkerSkipsModifiedFile tests the mtime safety check: a file changed
// after scanning is skipped and left untouched.
func TestLinkerSkipsModifiedFile(t *testing.T) {
	root := t.TempDir()

	content := []byte("same content")
	pathA := filepath.Join(root, "a.txt")
	pathB := filepath.Join(root, "b.txt")
	writeFile(t, pathA, content)
	writeFile(t, pathB, content)

	g := dupGroup(t, pathA, pathB)

	// Touch the non-original member after the scan metadata was captured
	future := time.Now().Add(1 * time.Hour)
	if err := os.Chtimes(pathB, future, future); err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 10)
	summary := New([]types.DuplicateGroup{g}, false, false, false, errCh).Run()
	close(errCh)

	if summary.Skipped != 1 || summary.Linked != 0 {
		t.Errorf("summary = %+v, want 1 skipped", summary)
	}
	if sameInode(t, pathA, pathB) {
		t.Error("modified file must not be replaced")
	}

	var errCount int
	for range errCh {
		errCount++
	}
	if errCount == 0 {
		t.Error("expected skip to be reported on the error channel")
	}
}

// TestResultString tests display formatting, including control character
// escaping in paths.
func TestResultString(t *testing.T) {
	r := &Result{Original: "/a", Path: "/evil\npath", Action: ActionLinked}
	s := r.String()
	if want := "Replaced /evil\\npath with hardlink to /a"; s != want {
		t.Errorf("String() = %q, want %q", s, want)
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// dupGroup builds a DuplicateGroup where every path is its own inode.
func dupGroup(t *testing.T, paths ...string) types.DuplicateGroup {
	t.Helper()
	var siblings []types.SiblingGroup
	var size int64
	for _, p := range paths {
		fi := getFileInfo(t, p)
		size = fi.Size
		siblings = append(siblings, types.NewSiblingGroup([]*types.FileInfo{fi}))
	}
	return types.NewDuplicateGroup(size, "digest", siblings)
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
}

func inode(t *testing.T, path string) uint64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return info.Sys().(*syscall.Stat_t).Ino
}

func sameInode(t *testing.T, a, b string) bool {
	t.Helper()
	return inode(t, a) == inode(t, b)
}

func getFileInfo(t *testing.T, path string) *types.FileInfo {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat %s: %v", path, err)
	}
	stat := info.Sys().(*syscall.Stat_t)
	return &types.FileInfo{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Dev:     uint64(stat.Dev), //nolint:unconvert // platform-dependent type
		Ino:     stat.Ino,
		Nlink:   uint32(stat.Nlink),
	}
}
