package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/denizariyan/dedup/internal/linker"
	"github.com/denizariyan/dedup/internal/report"
)

// renderReport writes the duplicate report to stdout in the selected format.
// Progress and errors go to stderr, so json output stays machine-parseable.
func renderReport(r *report.Report, opts *options) error {
	switch opts.format {
	case formatJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case formatQuiet:
		return nil
	default:
		printHumanReport(r, opts.verbose)
		return nil
	}
}

// printHumanReport prints the report summary, and with verbose the
// individual groups (original first, duplicates indented).
func printHumanReport(r *report.Report, verbose bool) {
	if verbose {
		for _, g := range r.Groups {
			fmt.Printf("%s (%d files, %s each):\n", g.Digest[:16], len(g.Files), humanize.IBytes(uint64(g.Size)))
			fmt.Printf("  %s (original)\n", g.Original)
			for _, path := range g.Files[1:] {
				fmt.Printf("  %s\n", path)
			}
		}
		if len(r.Groups) > 0 {
			fmt.Println()
		}
	}

	fmt.Printf("Scanned %d files, found %d duplicate files in %d sets, %s reclaimable\n",
		r.Stats.TotalFiles, r.Stats.DuplicateFiles, r.Stats.GroupCount,
		humanize.IBytes(r.Stats.WastedBytes))
}

// renderSummary reports the outcome of the hardlink phase.
func renderSummary(s *linker.Summary, opts *options) {
	if opts.format != formatHuman {
		return
	}

	verb := "Replaced"
	if opts.dryRun {
		verb = "[dry-run] Would replace"
	}
	fmt.Printf("%s %d files with hardlinks, saved %s",
		verb, s.Linked, humanize.IBytes(uint64(s.SavedBytes)))
	if s.Skipped > 0 || s.Failed > 0 {
		fmt.Printf(" (%d skipped, %d failed)", s.Skipped, s.Failed)
	}
	fmt.Println()
}
