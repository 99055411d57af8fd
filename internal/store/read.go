package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/blockdoc/internal/block"
)

const loadQuery = `
	SELECT b.id, b.position, b.type, b.text, b.image_id, b.format,
	       b.rendered_data, b.rendered_hash, b.error,
	       i.id, i.mime, i.data, i.alt
	FROM blocks b
	LEFT JOIN images i ON b.image_id = i.id
	ORDER BY b.position ASC, b.id ASC
`

// blockRow is one row of loadQuery.
type blockRow struct {
	id           int64
	position     int64
	typ          string
	text         sql.NullString
	imageRef     sql.NullInt64
	format       sql.NullString
	renderedData sql.NullString
	renderedHash sql.NullString
	errText      sql.NullString
	imageID      sql.NullInt64
	mime         sql.NullString
	data         []byte
	alt          sql.NullString
}

// Load ensures the schema and returns the document's blocks in position
// order. Rows that cannot be decoded are skipped.
func (s *Store) Load(ctx context.Context) ([]block.Block, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.ensure(ctx, tx); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	rows, err := tx.QueryContext(ctx, loadQuery)
	if err != nil {
		return nil, fmt.Errorf("load: query blocks: %w", err)
	}
	defer rows.Close()

	blocks := []block.Block{}
	for rows.Next() {
		var r blockRow
		if err := rows.Scan(
			&r.id, &r.position, &r.typ, &r.text, &r.imageRef, &r.format,
			&r.renderedData, &r.renderedHash, &r.errText,
			&r.imageID, &r.mime, &r.data, &r.alt,
		); err != nil {
			return nil, fmt.Errorf("load: scan block: %w", err)
		}
		if b, ok := s.decode(r); ok {
			blocks = append(blocks, b)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load: iterate blocks: %w", err)
	}
	rows.Close()

	// Commit persists any migration Ensure performed.
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("load: commit: %w", err)
	}

	s.trail.Record("load %s: %d blocks", s.path, len(blocks))
	return blocks, nil
}

// decode maps a row to its block variant. ok is false for rows to skip.
func (s *Store) decode(r blockRow) (block.Block, bool) {
	switch block.Kind(r.typ) {
	case block.KindText:
		return &block.Text{Text: r.text.String}, true

	case block.KindImage:
		if !r.imageID.Valid {
			s.logger.Warn("skipping image block without image row",
				"path", s.path, "block_id", r.id, "position", r.position)
			return nil, false
		}
		img := &block.Image{
			Data: r.data,
			MIME: r.mime.String,
			Alt:  r.alt.String,
		}
		img.Path = s.cache.MaterializeImage(r.imageID.Int64, img.MIME, img.Data)
		return img, true

	case block.KindThree:
		return &block.ThreeScene{Source: r.text.String}, true

	case block.KindRendered:
		rc := &block.RenderedCode{
			Source:       r.text.String,
			Format:       block.ParseFormat(r.format.String),
			RenderedData: r.renderedData.String,
			RenderedHash: r.renderedHash.String,
			LastError:    r.errText.String,
		}
		if rc.RenderedData != "" {
			rc.RenderedPath = s.cache.MaterializeRender(rc.RenderedHash, rc.RenderedData, rc.Format)
		}
		return rc, true

	case block.KindMath:
		return &block.Math{Source: r.text.String}, true

	default:
		s.logger.Warn("skipping block of unknown type",
			"path", s.path, "block_id", r.id, "type", r.typ)
		return nil, false
	}
}
