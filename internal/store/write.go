package store

import (
	"context"
	"database/sql"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/roach88/blockdoc/internal/block"
)

const insertBlockSQL = `
	INSERT INTO blocks (position, type, text, image_id, format, rendered_data, rendered_hash, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

const insertImageSQL = `INSERT INTO images (mime, data, alt) VALUES (?, ?, ?)`

// SaveStats summarizes a Save.
type SaveStats struct {
	Written int
	Dropped int
}

// blockValues are the column values of one blocks row.
type blockValues struct {
	kind         block.Kind
	text         sql.NullString
	imageID      sql.NullInt64
	format       sql.NullString
	renderedData sql.NullString
	renderedHash sql.NullString
	errText      sql.NullString
}

// Save replaces the stored document with blocks in one transaction.
//
// Block i is written at position i. Image blocks without a resolvable
// payload are dropped without a row; their position is not reused.
func (s *Store) Save(ctx context.Context, blocks []block.Block) (SaveStats, error) {
	var stats SaveStats

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("save: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.ensure(ctx, tx); err != nil {
		return stats, fmt.Errorf("save: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks`); err != nil {
		return stats, fmt.Errorf("save: clear blocks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM images`); err != nil {
		return stats, fmt.Errorf("save: clear images: %w", err)
	}

	insert, err := tx.PrepareContext(ctx, insertBlockSQL)
	if err != nil {
		return stats, fmt.Errorf("save: prepare insert: %w", err)
	}
	defer insert.Close()

	for position, b := range blocks {
		v, ok, err := encode(ctx, tx, b)
		if err != nil {
			return stats, fmt.Errorf("save: block %d: %w", position, err)
		}
		if !ok {
			stats.Dropped++
			s.logger.Warn("dropping image block without payload", "path", s.path, "position", position)
			continue
		}
		if _, err := insert.ExecContext(ctx,
			position, string(v.kind), v.text, v.imageID,
			v.format, v.renderedData, v.renderedHash, v.errText,
		); err != nil {
			return stats, fmt.Errorf("save: insert block %d: %w", position, err)
		}
		stats.Written++
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("save: commit: %w", err)
	}

	s.trail.Record("save %s: %d written, %d dropped", s.path, stats.Written, stats.Dropped)
	return stats, nil
}

// encode maps a block to its row values, inserting the image row first for
// image blocks. ok is false when the block is soft-dropped.
func encode(ctx context.Context, tx *sql.Tx, b block.Block) (blockValues, bool, error) {
	switch b := b.(type) {
	case *block.Text:
		return blockValues{kind: block.KindText, text: nullString(b.Text)}, true, nil

	case *block.Image:
		data, mimeType, ok := imagePayload(b)
		if !ok {
			return blockValues{}, false, nil
		}
		res, err := tx.ExecContext(ctx, insertImageSQL, mimeType, data, b.Alt)
		if err != nil {
			return blockValues{}, false, fmt.Errorf("insert image: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return blockValues{}, false, fmt.Errorf("image id: %w", err)
		}
		return blockValues{
			kind:    block.KindImage,
			imageID: sql.NullInt64{Int64: id, Valid: true},
		}, true, nil

	case *block.ThreeScene:
		return blockValues{kind: block.KindThree, text: nullString(b.Source)}, true, nil

	case *block.RenderedCode:
		return blockValues{
			kind:         block.KindRendered,
			text:         nullString(b.Source),
			format:       nullString(string(block.ParseFormat(string(b.Format)))),
			renderedData: optionalString(b.RenderedData),
			renderedHash: optionalString(b.RenderedHash),
			errText:      optionalString(b.LastError),
		}, true, nil

	case *block.Math:
		return blockValues{kind: block.KindMath, text: nullString(b.Source)}, true, nil

	default:
		return blockValues{}, false, fmt.Errorf("unsupported block type %T", b)
	}
}

// imagePayload resolves the bytes and MIME type to persist for an image.
//
// In order: in-memory bytes with a known MIME; the file at Path, typed by
// extension or content; in-memory bytes typed by content.
func imagePayload(img *block.Image) ([]byte, string, bool) {
	if len(img.Data) > 0 && img.MIME != "" {
		return img.Data, img.MIME, true
	}
	if img.Path != "" {
		if data, err := os.ReadFile(img.Path); err == nil && len(data) > 0 {
			return data, mimeFor(img.Path, data), true
		}
	}
	if len(img.Data) > 0 {
		return img.Data, mimeFor("", img.Data), true
	}
	return nil, "", false
}

func mimeFor(path string, data []byte) string {
	if path != "" {
		if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
			return baseMediaType(t)
		}
	}
	return baseMediaType(mimetype.Detect(data).String())
}

// baseMediaType strips parameters such as "; charset=utf-8".
func baseMediaType(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

// optionalString maps "" to NULL.
func optionalString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
