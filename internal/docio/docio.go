package docio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/blockdoc/internal/block"
	"github.com/roach88/blockdoc/internal/store"
	"github.com/roach88/blockdoc/internal/textdoc"
	"github.com/roach88/blockdoc/internal/trail"
)

// Extension is the canonical extension of relational documents.
const Extension = ".docv"

// Dispatcher routes document loads and saves to the right format.
type Dispatcher struct {
	// Store configures each relational connection. Logger and Trail default
	// to the dispatcher's own.
	Store store.Options

	Logger *slog.Logger
	Trail  *trail.Trail
}

// New creates a Dispatcher.
func New(opts store.Options, logger *slog.Logger, tr *trail.Trail) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{Store: opts, Logger: logger, Trail: tr}
}

// Load reads the document at path. A missing file yields an empty document
// bound to path; nothing is created on disk.
func (d *Dispatcher) Load(ctx context.Context, path string) (*block.Document, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		d.Trail.Record("load %s: new document", path)
		return block.NewDocument(path, []block.Block{}), nil
	} else if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	if HasTextHeader(path) {
		blocks, err := textdoc.Load(path)
		if err != nil {
			return nil, err
		}
		d.Trail.Record("load %s: text, %d blocks", path, len(blocks))
		doc := block.NewDocument(path, blocks)
		doc.TextFormat = true
		return doc, nil
	}

	s, err := d.open(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	blocks, err := s.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return block.NewDocument(path, blocks), nil
}

// Save writes doc to path and rebinds doc to it.
func (d *Dispatcher) Save(ctx context.Context, path string, doc *block.Document) error {
	if doc.TextFormat && samePath(path, doc.Path) {
		return d.SaveText(ctx, path, doc)
	}

	s, err := d.open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Save(ctx, doc.Blocks)
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	if stats.Dropped > 0 {
		d.Logger.Warn("saved document without unresolvable images", "path", path, "dropped", stats.Dropped)
	}

	doc.SetPath(path)
	doc.TextFormat = false
	doc.ClearDirty()
	return nil
}

// SaveText writes doc to path in the text format and rebinds doc to it.
func (d *Dispatcher) SaveText(_ context.Context, path string, doc *block.Document) error {
	if err := textdoc.Save(path, doc.Blocks); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	d.Trail.Record("save %s: text, %d blocks", path, len(doc.Blocks))

	doc.SetPath(path)
	doc.TextFormat = true
	doc.ClearDirty()
	return nil
}

func (d *Dispatcher) open(path string) (*store.Store, error) {
	opts := d.Store
	if opts.Logger == nil {
		opts.Logger = d.Logger
	}
	if opts.Trail == nil {
		opts.Trail = d.Trail
	}
	s, err := store.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return s, nil
}

// HasTextHeader reports whether the file at path starts with the text-format
// header. Unreadable files report false.
func HasTextHeader(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	return textdoc.Sniff(f)
}

// CoercePath returns path with the relational document extension.
func CoercePath(path string) string {
	ext := filepath.Ext(path)
	if ext == Extension {
		return path
	}
	return path[:len(path)-len(ext)] + Extension
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
