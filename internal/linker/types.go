package linker

import (
	"fmt"
	"strings"
)

// Action describes the outcome of one replacement attempt.
type Action int

const (
	// ActionLinked: the duplicate path now hardlinks to the original.
	ActionLinked Action = iota
	// ActionSimulated: dry-run, the replacement was recorded but not performed.
	ActionSimulated
	// ActionSkipped: safety check declined to touch the file (locked,
	// modified since scan). The file is unchanged.
	ActionSkipped
	// ActionFailed: the link or rename failed (cross-device, permissions,
	// filesystem full). The file is unchanged.
	ActionFailed
)

// Result describes the outcome of a single replacement.
// One Result is produced per duplicate file; the original itself gets none.
type Result struct {
	Original   string // Path kept
	Path       string // Path replaced (or considered)
	Action     Action
	BytesSaved int64 // Bytes reclaimed (0 unless linked or simulated)
	Err        error // Non-nil for ActionSkipped and ActionFailed
}

// String formats the result for display.
func (r *Result) String() string {
	switch r.Action {
	case ActionLinked:
		return fmt.Sprintf("Replaced %s with hardlink to %s", escapePath(r.Path), escapePath(r.Original))
	case ActionSimulated:
		return fmt.Sprintf("[dry-run] Would replace %s with hardlink to %s", escapePath(r.Path), escapePath(r.Original))
	case ActionSkipped:
		return fmt.Sprintf("skipped %s: %v", escapePath(r.Path), r.Err)
	case ActionFailed:
		return fmt.Sprintf("failed %s: %v", escapePath(r.Path), r.Err)
	default:
		return fmt.Sprintf("unknown action for %s", escapePath(r.Path))
	}
}

// Summary aggregates per-file results for the whole run.
// The CLI derives the hardlink-mode exit code from Failed.
type Summary struct {
	Linked     int
	Skipped    int
	Failed     int
	SavedBytes int64
	Results    []*Result
}

// escapePath escapes control characters in paths for safe terminal output.
func escapePath(path string) string {
	r := strings.NewReplacer(
		"\t", "\\t",
		"\n", "\\n",
		"\r", "\\r",
	)
	return r.Replace(path)
}
