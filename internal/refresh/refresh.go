// Package refresh re-renders rendered-code blocks whose stored digest no
// longer matches their source, format and interpreter.
package refresh

import (
	"context"
	"log/slog"

	"github.com/roach88/blockdoc/internal/block"
	"github.com/roach88/blockdoc/internal/mediacache"
	"github.com/roach88/blockdoc/internal/render"
	"github.com/roach88/blockdoc/internal/trail"
)

// Stats counts what one Refresh did.
type Stats struct {
	Checked  int `json:"checked"`
	Rendered int `json:"rendered"`
	Failed   int `json:"failed"`
}

// Refresher brings a document's renders up to date.
type Refresher struct {
	Renderer    render.Renderer
	Interpreter string

	// Cache receives fresh payloads. Nil skips materialization.
	Cache *mediacache.Cache

	Logger *slog.Logger
	Trail  *trail.Trail
}

// Refresh renders every stale RenderedCode block of doc, or every one when
// force is set. A block whose last attempt failed with the same digest is
// not stale and is only retried with force. The document is marked dirty
// when any block changed. The only error is ctx's.
func (r *Refresher) Refresh(ctx context.Context, doc *block.Document, force bool) (Stats, error) {
	var stats Stats
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for _, b := range doc.RenderedBlocks() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Checked++
		if !force && !b.Stale(r.Interpreter) {
			continue
		}

		res := r.Renderer.Render(ctx, b.Source, r.Interpreter, block.ParseFormat(string(b.Format)))
		res.ApplyTo(b)
		b.Format = block.ParseFormat(string(b.Format))
		doc.MarkDirty()

		if res.Error != "" {
			stats.Failed++
			logger.Warn("render failed", "path", doc.Path, "digest", block.ShortDigest(res.Digest), "error", res.Error)
			continue
		}
		stats.Rendered++
		b.RenderedPath = r.Cache.MaterializeRender(b.RenderedHash, b.RenderedData, b.Format)
	}

	r.Trail.Record("refresh %s: %d checked, %d rendered, %d failed", doc.Path, stats.Checked, stats.Rendered, stats.Failed)
	return stats, nil
}
