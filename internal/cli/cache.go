package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/blockdoc/internal/mediacache"
)

// CacheOptions holds flags for the cache commands.
type CacheOptions struct {
	*RootOptions
	MaxBytes int64
	MaxFiles int
	MaxDays  int
}

// CachePathResult is the output of `blockdoc cache path`.
type CachePathResult struct {
	Document string `json:"document"`
	Root     string `json:"root"`
}

// CachePruneResult is the output of `blockdoc cache prune`.
type CachePruneResult struct {
	Base string `json:"base"`
	mediacache.PruneStats
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the media cache",
		Long: `Materialized images and renders live under the media cache,
one directory per document. Everything there can be rebuilt by
loading the document again.`,
	}

	cmd.AddCommand(newCachePathCommand(rootOpts))
	cmd.AddCommand(newCachePruneCommand(rootOpts))

	return cmd
}

func newCachePathCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path <document>",
		Short: "Print the cache directory of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			if a.cacheBase == "" {
				return a.fail(ExitCommandError, CodeCacheFailed, "media cache unavailable", nil)
			}
			result := CachePathResult{
				Document: args[0],
				Root:     mediacache.RootFor(a.cacheBase, args[0]),
			}
			return a.out.Success(result, func(w io.Writer) {
				fmt.Fprintln(w, result.Root)
			})
		},
	}
}

func newCachePruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old cache files until the limits hold",
		Long: `Remove cache files older than --max-days, then the oldest files
until at most --max-files files and --max-bytes bytes remain.
Limits default to the config file; 0 disables a limit.

Examples:
  blockdoc cache prune
  blockdoc cache prune --max-files 500 --max-days 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePrune(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.MaxBytes, "max-bytes", 0, "maximum total bytes (default from config)")
	cmd.Flags().IntVar(&opts.MaxFiles, "max-files", 0, "maximum number of files (default from config)")
	cmd.Flags().IntVar(&opts.MaxDays, "max-days", 0, "maximum file age in days (default from config)")

	return cmd
}

func runCachePrune(opts *CacheOptions, cmd *cobra.Command) error {
	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if a.cacheBase == "" {
		return a.fail(ExitCommandError, CodeCacheFailed, "media cache unavailable", nil)
	}

	limits := a.cfg.Cache
	flags := cmd.Flags()
	if flags.Changed("max-bytes") {
		limits.MaxBytes = opts.MaxBytes
	}
	if flags.Changed("max-files") {
		limits.MaxFiles = opts.MaxFiles
	}
	if flags.Changed("max-days") {
		limits.MaxDays = opts.MaxDays
	}

	stats, err := mediacache.Prune(a.cacheBase, limits.Limits(), time.Now())
	if err != nil {
		return a.fail(ExitCommandError, CodeCacheFailed, "failed to prune cache", err)
	}
	a.logger.Debug("cache pruned", "base", a.cacheBase, "removed", stats.Removed)

	result := CachePruneResult{Base: a.cacheBase, PruneStats: stats}
	return a.out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Pruned %s\n", mediacache.CacheDir(result.Base))
		fmt.Fprintf(w, "  Scanned: %d\n", result.Scanned)
		fmt.Fprintf(w, "  Removed: %d (%d bytes)\n", result.Removed, result.RemovedBytes)
		fmt.Fprintf(w, "  Kept:    %d (%d bytes)\n", result.KeptFiles, result.KeptBytes)
	})
}
