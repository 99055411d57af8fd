package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/blockdoc/internal/docio"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	Text bool
}

// ConvertResult reports what `blockdoc convert` wrote.
type ConvertResult struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Format      string `json:"format"`
	Blocks      int    `json:"blocks"`
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <source> <destination>",
		Short: "Copy a document into the relational or text format",
		Long: `Load a document in either format and write it to destination.

Without --text the destination is a relational store and gets the
.docv extension. Image blocks whose bytes cannot be resolved are
dropped from relational output.

Examples:
  blockdoc convert notes.txt notes          # writes notes.docv
  blockdoc convert notes.docv notes.txt --text`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().BoolVar(&opts.Text, "text", false, "write the lightweight text format")

	return cmd
}

func runConvert(opts *ConvertOptions, cmd *cobra.Command, src, dst string) error {
	ctx := cmd.Context()
	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if err := a.requireDocument(src); err != nil {
		return err
	}

	doc, err := a.docs.Load(ctx, src)
	if err != nil {
		return a.fail(ExitCommandError, CodeLoadFailed, "failed to load document", err)
	}

	result := ConvertResult{Source: src, Blocks: len(doc.Blocks)}
	if opts.Text {
		result.Destination = dst
		result.Format = "text"
		err = a.docs.SaveText(ctx, dst, doc)
	} else {
		result.Destination = docio.CoercePath(dst)
		result.Format = "relational"
		doc.TextFormat = false
		err = a.docs.Save(ctx, result.Destination, doc)
	}
	if err != nil {
		return a.fail(ExitCommandError, CodeSaveFailed, "failed to save document", err)
	}

	return a.out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Wrote %d blocks from %s to %s (%s)\n",
			result.Blocks, result.Source, result.Destination, result.Format)
	})
}
