package main

import (
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// options holds CLI flags for the dedup command.
type options struct {
	format      string
	action      string
	minSizeStr  string
	maxSizeStr  string
	excludes    []string
	excludeFile string
	includes    []string
	includeFile string
	jobs        int
	noProgress  bool
	verbose     bool
	dryRun      bool
	cacheFile   string

	// exitCode is derived from the run outcome: duplicates found in
	// report-exit-code mode, or any failed link operation.
	exitCode int
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := &options{
		format:     formatHuman,
		action:     actionNone,
		minSizeStr: "1",
		jobs:       runtime.NumCPU(),
	}

	root := &cobra.Command{
		Use:     "dedup [path]",
		Short:   "Find duplicate files and reclaim space with hardlinks",
		Version: version + " (" + commit + ")",
		Long: `Locates duplicate files by content using staged elimination (size,
partial hash, full hash) and optionally replaces duplicates with hardlinks
to a single retained copy.

Replacement is atomic: a duplicate's path always resolves to valid content,
even if the process is interrupted mid-operation. Use --dry-run to preview
changes before committing them.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(_ *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			return runDedup(path, opts)
		},
	}

	root.Flags().StringVarP(&opts.format, "format", "f", opts.format, "Output format: human, json or quiet")
	root.Flags().StringVarP(&opts.action, "action", "a", opts.action, "Action on duplicates: none, report-exit-code or hardlink")
	root.Flags().StringVarP(&opts.minSizeStr, "min-size", "s", opts.minSizeStr, "Minimum file size (e.g., 100, 1K, 10M, 1G)")
	root.Flags().StringVarP(&opts.maxSizeStr, "max-size", "S", "", "Maximum file size (unbounded if empty)")
	root.Flags().StringSliceVarP(&opts.excludes, "exclude", "e", nil, "Glob patterns to exclude")
	root.Flags().StringVar(&opts.excludeFile, "exclude-file", "", "File with exclude patterns (one per line, gitignore-style)")
	root.Flags().StringSliceVarP(&opts.includes, "include", "i", nil, "Glob patterns to include (only matching files are scanned)")
	root.Flags().StringVar(&opts.includeFile, "include-file", "", "File with include patterns (one per line)")
	root.Flags().IntVarP(&opts.jobs, "jobs", "j", opts.jobs, "Number of parallel hashing workers")
	root.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	root.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show individual groups and file operations")
	root.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "Preview changes without executing")
	root.Flags().StringVar(&opts.cacheFile, "cache-file", "", "Path to digest cache file (enables caching)")

	if err := root.Execute(); err != nil {
		return 1
	}
	return opts.exitCode
}
