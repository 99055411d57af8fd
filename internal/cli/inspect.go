package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/roach88/blockdoc/internal/block"
	"github.com/roach88/blockdoc/internal/store"
)

const summaryWidth = 60

// InspectResult describes a document for `blockdoc inspect`.
type InspectResult struct {
	Path          string         `json:"path"`
	Format        string         `json:"format"` // "relational" or "text"
	SchemaVersion int            `json:"schema_version,omitempty"`
	Blocks        []BlockSummary `json:"blocks"`
}

// BlockSummary is a one-line description of a block.
type BlockSummary struct {
	Index   int        `json:"index"`
	Kind    block.Kind `json:"kind"`
	Summary string     `json:"summary"`
	Status  string     `json:"status,omitempty"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <document>",
		Short: "List the blocks of a document",
		Long: `List the blocks of a document in order.

Relational documents are migrated to the current schema on open.
Rendered-code blocks show their format and render state; "stale"
means the source, format or configured interpreter changed since
the last render.

Examples:
  blockdoc inspect notes.docv
  blockdoc inspect notes.docv --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, cmd, args[0])
		},
	}
}

func runInspect(opts *RootOptions, cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	if err := a.requireDocument(path); err != nil {
		return err
	}

	doc, err := a.docs.Load(ctx, path)
	if err != nil {
		return a.fail(ExitCommandError, CodeLoadFailed, "failed to load document", err)
	}

	result := buildInspectResult(doc, a.cfg.Interpreter)
	if !doc.TextFormat {
		version, err := a.schemaVersion(ctx, path)
		if err != nil {
			return a.fail(ExitCommandError, CodeLoadFailed, "failed to read schema version", err)
		}
		result.SchemaVersion = version
	}

	return a.out.Success(result, func(w io.Writer) {
		writeInspectText(w, result)
	})
}

func (a *app) schemaVersion(ctx context.Context, path string) (int, error) {
	s, err := store.Open(path, store.Options{Driver: a.cfg.Driver, DisableCache: true, Logger: a.logger})
	if err != nil {
		return 0, err
	}
	defer s.Close()
	return s.Version(ctx)
}

// buildInspectResult summarizes doc. interpreter is used for staleness and
// may be empty.
func buildInspectResult(doc *block.Document, interpreter string) InspectResult {
	result := InspectResult{
		Path:   doc.Path,
		Format: "relational",
		Blocks: make([]BlockSummary, 0, len(doc.Blocks)),
	}
	if doc.TextFormat {
		result.Format = "text"
	}
	for i, b := range doc.Blocks {
		s := summarize(b, interpreter)
		s.Index = i
		result.Blocks = append(result.Blocks, s)
	}
	return result
}

func summarize(b block.Block, interpreter string) BlockSummary {
	s := BlockSummary{Kind: b.Kind()}
	switch b := b.(type) {
	case *block.Text:
		s.Summary = firstLine(b.Text)
	case *block.Image:
		s.Summary = imageSummary(b)
	case *block.ThreeScene:
		s.Summary = firstLine(b.Source)
	case *block.RenderedCode:
		s.Summary = firstLine(b.Source)
		s.Status = renderStatus(b, interpreter)
	case *block.Math:
		s.Summary = firstLine(b.Source)
	}
	return s
}

func imageSummary(img *block.Image) string {
	label := img.Alt
	if label == "" && img.Path != "" {
		label = filepath.Base(img.Path)
	}
	if label == "" {
		label = "image"
	}

	var details []string
	if img.MIME != "" {
		details = append(details, img.MIME)
	}
	if len(img.Data) > 0 {
		details = append(details, fmt.Sprintf("%d bytes", len(img.Data)))
	}
	if len(details) == 0 {
		return truncate(label)
	}
	return fmt.Sprintf("%s (%s)", truncate(label), strings.Join(details, ", "))
}

func renderStatus(b *block.RenderedCode, interpreter string) string {
	state := "not rendered"
	switch {
	case b.LastError != "":
		state = "error: " + firstLine(b.LastError)
	case b.RenderedData != "":
		state = "rendered"
	}
	status := string(block.ParseFormat(string(b.Format))) + ", " + state
	if interpreter != "" && b.Stale(interpreter) {
		status += ", stale"
	}
	return status
}

// writeInspectText writes the human-readable block listing.
func writeInspectText(w io.Writer, result InspectResult) {
	fmt.Fprintf(w, "Document: %s\n", result.Path)
	if result.SchemaVersion > 0 {
		fmt.Fprintf(w, "Format:   %s (schema v%d)\n", result.Format, result.SchemaVersion)
	} else {
		fmt.Fprintf(w, "Format:   %s\n", result.Format)
	}
	fmt.Fprintf(w, "Blocks:   %d\n", len(result.Blocks))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Blocks ===")
	if len(result.Blocks) == 0 {
		fmt.Fprintln(w, "  (no blocks)")
		return
	}
	for _, b := range result.Blocks {
		line := fmt.Sprintf("  [%d] %-8s %s", b.Index, b.Kind, b.Summary)
		if b.Status != "" {
			line += " [" + b.Status + "]"
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

// firstLine returns the first non-empty line of s, truncated.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return truncate(line)
		}
	}
	return "(empty)"
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= summaryWidth {
		return s
	}
	runes := []rune(s)
	return string(runes[:summaryWidth-3]) + "..."
}
