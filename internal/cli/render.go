package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/blockdoc/internal/mediacache"
	"github.com/roach88/blockdoc/internal/refresh"
	"github.com/roach88/blockdoc/internal/render"
	"github.com/roach88/blockdoc/internal/watch"
)

// RenderOptions holds flags for the render and watch commands.
type RenderOptions struct {
	*RootOptions
	Force       bool
	Interpreter string
	Debounce    time.Duration
}

// RenderResult reports what a render pass did.
type RenderResult struct {
	Path  string `json:"path"`
	Saved bool   `json:"saved"`
	refresh.Stats
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render <document>",
		Short: "Re-render stale rendered-code blocks",
		Long: `Run every stale rendered-code block through the configured
interpreter and save the document if anything changed.

A block is stale when its stored digest does not match its source,
format and interpreter. Blocks that already failed with the same
digest are skipped unless --force is given. Exits 1 when any block
fails to render; the failure is stored on the block.

Examples:
  blockdoc render notes.docv
  blockdoc render notes.docv --force --interpreter /usr/bin/python3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "render every block, stale or not")
	cmd.Flags().StringVar(&opts.Interpreter, "interpreter", "", "interpreter to run (overrides config)")

	return cmd
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <document>",
		Short: "Re-render stale blocks whenever a document changes",
		Long: `Render stale blocks once, then again after every change to the
document file until interrupted.

Examples:
  blockdoc watch notes.docv
  blockdoc watch notes.docv --debounce 1s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Interpreter, "interpreter", "", "interpreter to run (overrides config)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", watch.DefaultDebounce, "quiet period before re-rendering")

	return cmd
}

func runRender(opts *RenderOptions, cmd *cobra.Command, path string) error {
	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if err := a.requireDocument(path); err != nil {
		return err
	}

	result, err := a.renderDocument(cmd.Context(), path, opts.interpreter(a), opts.Force)
	if err != nil {
		return err
	}

	if err := a.out.Success(result, func(w io.Writer) { writeRenderText(w, result) }); err != nil {
		return err
	}
	if result.Failed > 0 {
		// The failures are already in the result; only the exit code is left.
		a.trail.Flush(a.logger)
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d of %d blocks failed to render", result.Failed, result.Checked))
	}
	return nil
}

func runWatch(opts *RenderOptions, cmd *cobra.Command, path string) error {
	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if err := a.requireDocument(path); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interpreter := opts.interpreter(a)
	pass := func() {
		result, err := a.renderDocument(ctx, path, interpreter, false)
		if err != nil {
			a.logger.Error("render pass failed", "path", path, "error", err)
			return
		}
		if result.Rendered > 0 || result.Failed > 0 {
			_ = a.out.Success(result, func(w io.Writer) { writeRenderText(w, result) })
		}
	}

	a.out.VerboseLog("Watching %s", path)
	pass()
	if err := watch.File(ctx, path, opts.Debounce, a.logger, pass); err != nil {
		return a.fail(ExitCommandError, CodeLoadFailed, "failed to watch document", err)
	}
	return nil
}

func (o *RenderOptions) interpreter(a *app) string {
	if o.Interpreter != "" {
		return o.Interpreter
	}
	return a.cfg.Interpreter
}

// renderDocument loads path, refreshes its renders and saves it back when
// any block changed.
func (a *app) renderDocument(ctx context.Context, path, interpreter string, force bool) (RenderResult, error) {
	result := RenderResult{Path: path}

	doc, err := a.docs.Load(ctx, path)
	if err != nil {
		return result, a.fail(ExitCommandError, CodeLoadFailed, "failed to load document", err)
	}

	r := &refresh.Refresher{
		Renderer:    &render.Sandbox{Logger: a.logger, Trail: a.trail},
		Interpreter: interpreter,
		Logger:      a.logger,
		Trail:       a.trail,
	}
	if a.cacheBase != "" {
		r.Cache = mediacache.ForDocument(a.cacheBase, path, a.logger)
	}

	stats, err := r.Refresh(ctx, doc, force)
	result.Stats = stats
	if err != nil {
		return result, a.fail(ExitCommandError, CodeRenderFailed, "render interrupted", err)
	}

	if doc.Dirty() {
		if err := a.docs.Save(ctx, path, doc); err != nil {
			return result, a.fail(ExitCommandError, CodeSaveFailed, "failed to save document", err)
		}
		result.Saved = true
	}
	return result, nil
}

func writeRenderText(w io.Writer, result RenderResult) {
	fmt.Fprintf(w, "Rendered %s\n", result.Path)
	fmt.Fprintf(w, "  Checked:  %d\n", result.Checked)
	fmt.Fprintf(w, "  Rendered: %d\n", result.Rendered)
	fmt.Fprintf(w, "  Failed:   %d\n", result.Failed)
	if result.Saved {
		fmt.Fprintln(w, "  Saved")
	}
}
