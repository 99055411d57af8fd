package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/blockdoc/internal/docio"
	"github.com/roach88/blockdoc/internal/store"
)

// MigrateResult reports what `blockdoc migrate` did.
type MigrateResult struct {
	Path    string `json:"path"`
	From    int    `json:"from"`
	To      int    `json:"to"`
	Created bool   `json:"created"`
	Dropped int64  `json:"dropped_rows"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <document>",
		Short: "Upgrade a document store to the current schema",
		Long: `Upgrade a relational document to the current schema version.

Migration runs in a single transaction: on failure the store stays at
its previous version. Rows of block types that are no longer valid are
dropped and counted. Stores written by a newer blockdoc are refused.

Examples:
  blockdoc migrate notes.docv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, cmd, args[0])
		},
	}
}

func runMigrate(opts *RootOptions, cmd *cobra.Command, path string) error {
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	if err := a.requireDocument(path); err != nil {
		return err
	}
	if docio.HasTextHeader(path) {
		return a.fail(ExitCommandError, CodeMigrateFailed, "text documents have no schema", fmt.Errorf("%s", path))
	}

	s, err := store.Open(path, store.Options{
		Driver:       a.cfg.Driver,
		DisableCache: true,
		Logger:       a.logger,
		Trail:        a.trail,
	})
	if err != nil {
		return a.fail(ExitCommandError, CodeLoadFailed, "failed to open document", err)
	}
	defer s.Close()

	res, err := s.Migrate(cmd.Context())
	if err != nil {
		return a.fail(ExitCommandError, CodeMigrateFailed, "migration failed", err)
	}

	result := MigrateResult{
		Path:    path,
		From:    res.From,
		To:      res.To,
		Created: res.Created,
		Dropped: res.Dropped,
	}
	return a.out.Success(result, func(w io.Writer) {
		switch {
		case result.Created:
			fmt.Fprintf(w, "Created schema v%d in %s\n", result.To, path)
		case result.From == result.To:
			fmt.Fprintf(w, "%s is up to date (schema v%d)\n", path, result.To)
		default:
			fmt.Fprintf(w, "Migrated %s from schema v%d to v%d\n", path, result.From, result.To)
		}
		if result.Dropped > 0 {
			fmt.Fprintf(w, "Dropped %d rows of retired block types\n", result.Dropped)
		}
	})
}
