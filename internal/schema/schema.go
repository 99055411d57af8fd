package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/blockdoc/internal/block"
)

// CurrentVersion is the schema version written by this build.
const CurrentVersion = 5

// MetaKeySchemaVersion is the meta row holding the schema version.
const MetaKeySchemaVersion = "schema_version"

// ErrNewerSchema is returned for stores written by a newer build. They are
// never downgraded.
var ErrNewerSchema = errors.New("store schema is newer than this build")

const metaDDL = `CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

const imagesDDL = `CREATE TABLE IF NOT EXISTS images (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	mime TEXT NOT NULL,
	data BLOB NOT NULL,
	alt TEXT DEFAULT ''
)`

const positionIndexDDL = `CREATE INDEX IF NOT EXISTS idx_blocks_position ON blocks(position)`

// blocksV0DDL is the legacy layout, kept to build fixtures of old stores.
const blocksV0DDL = `CREATE TABLE blocks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	position INTEGER NOT NULL,
	type TEXT NOT NULL,
	text TEXT
)`

const blocksV2Template = `CREATE TABLE blocks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	position INTEGER NOT NULL,
	type TEXT NOT NULL CHECK(type IN (%s)),
	text TEXT,
	image_id INTEGER REFERENCES images(id) ON DELETE SET NULL,
	created_at TEXT DEFAULT (datetime('now')),
	updated_at TEXT DEFAULT (datetime('now'))
)`

const blocksV3Template = `CREATE TABLE blocks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	position INTEGER NOT NULL,
	type TEXT NOT NULL CHECK(type IN (%s)),
	text TEXT,
	image_id INTEGER REFERENCES images(id) ON DELETE SET NULL,
	format TEXT,
	rendered_data TEXT,
	rendered_hash TEXT,
	error TEXT,
	created_at TEXT DEFAULT (datetime('now')),
	updated_at TEXT DEFAULT (datetime('now'))
)`

// step moves a store to version by recreating blocks with kinds as the only
// valid types.
type step struct {
	version int
	kinds   []block.Kind
	ddl     string
}

func newStep(version int, template string, kinds ...block.Kind) step {
	return step{version: version, kinds: kinds, ddl: fmt.Sprintf(template, checkList(kinds))}
}

var steps = []step{
	newStep(2, blocksV2Template, block.KindText, block.KindImage, block.KindThree),
	newStep(3, blocksV3Template, block.KindText, block.KindImage, block.KindThree, block.KindRendered),
	newStep(4, blocksV3Template, block.KindText, block.KindThree, block.KindRendered, block.KindMath),
	newStep(5, blocksV3Template, block.KindText, block.KindImage, block.KindThree, block.KindRendered, block.KindMath),
}

// ValidKinds returns the block types the current schema accepts.
func ValidKinds() []block.Kind {
	return append([]block.Kind(nil), steps[len(steps)-1].kinds...)
}

// Result describes what Ensure did.
type Result struct {
	From    int   `json:"from"`
	To      int   `json:"to"`
	Created bool  `json:"created"`
	Dropped int64 `json:"dropped"`
}

// Migrated reports whether any migration step ran.
func (r Result) Migrated() bool {
	return !r.Created && r.From != r.To
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ensure initializes a virgin store at CurrentVersion or migrates an existing
// one step by step. It is idempotent: on a current store it writes nothing.
func Ensure(ctx context.Context, tx *sql.Tx) (Result, error) {
	for _, ddl := range []string{metaDDL, imagesDDL} {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return Result{}, fmt.Errorf("ensure schema: %w", err)
		}
	}

	version, err := Version(ctx, tx)
	if err != nil {
		return Result{}, err
	}
	if version > CurrentVersion {
		return Result{From: version, To: version}, fmt.Errorf("ensure schema: store is v%d, build supports v%d: %w", version, CurrentVersion, ErrNewerSchema)
	}

	hasBlocks, err := tableExists(ctx, tx, "blocks")
	if err != nil {
		return Result{}, err
	}
	if !hasBlocks {
		return create(ctx, tx, version)
	}

	res := Result{From: version, To: version}
	for _, s := range steps {
		if version >= s.version {
			continue
		}
		dropped, err := s.apply(ctx, tx)
		if err != nil {
			return res, fmt.Errorf("migrate v%d to v%d: %w", version, s.version, err)
		}
		if err := setVersion(ctx, tx, s.version); err != nil {
			return res, err
		}
		version = s.version
		res.To = version
		res.Dropped += dropped
	}
	return res, nil
}

func create(ctx context.Context, tx *sql.Tx, from int) (Result, error) {
	current := steps[len(steps)-1]
	for _, ddl := range []string{current.ddl, positionIndexDDL} {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return Result{}, fmt.Errorf("create schema: %w", err)
		}
	}
	if err := setVersion(ctx, tx, CurrentVersion); err != nil {
		return Result{}, err
	}
	return Result{From: from, To: CurrentVersion, Created: true}, nil
}

func (s step) apply(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx, `ALTER TABLE blocks RENAME TO blocks_old`); err != nil {
		return 0, fmt.Errorf("rename blocks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.ddl); err != nil {
		return 0, fmt.Errorf("create blocks: %w", err)
	}

	oldCols, err := columns(ctx, tx, "blocks_old")
	if err != nil {
		return 0, err
	}
	newCols, err := columns(ctx, tx, "blocks")
	if err != nil {
		return 0, err
	}

	shared := make(map[string]bool, len(oldCols))
	for _, c := range oldCols {
		shared[c] = true
	}

	var names, exprs []string
	for _, c := range newCols {
		if !shared[c] {
			continue
		}
		names = append(names, quoteIdent(c))
		if c == "image_id" {
			exprs = append(exprs, `(SELECT images.id FROM images WHERE images.id = blocks_old.image_id)`)
		} else {
			exprs = append(exprs, "blocks_old."+quoteIdent(c))
		}
	}

	var total int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks_old`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count blocks: %w", err)
	}

	args := make([]any, len(s.kinds))
	for i, k := range s.kinds {
		args[i] = string(k)
	}
	copySQL := fmt.Sprintf(`INSERT INTO blocks (%s) SELECT %s FROM blocks_old WHERE blocks_old.type IN (%s)`,
		strings.Join(names, ", "), strings.Join(exprs, ", "), placeholders(len(args)))
	result, err := tx.ExecContext(ctx, copySQL, args...)
	if err != nil {
		return 0, fmt.Errorf("copy blocks: %w", err)
	}
	copied, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("copy blocks: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE blocks_old`); err != nil {
		return 0, fmt.Errorf("drop old blocks: %w", err)
	}
	// The index followed the renamed table and was dropped with it.
	if _, err := tx.ExecContext(ctx, positionIndexDDL); err != nil {
		return 0, fmt.Errorf("create index: %w", err)
	}
	return total - copied, nil
}

// Version reads meta.schema_version. A store without the meta table or row,
// or with an unparsable value, is version 0.
func Version(ctx context.Context, q Querier) (int, error) {
	hasMeta, err := tableExists(ctx, q, "meta")
	if err != nil || !hasMeta {
		return 0, err
	}

	var value string
	err = q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, MetaKeySchemaVersion).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || v < 0 {
		return 0, nil
	}
	return v, nil
}

func setVersion(ctx context.Context, q Querier, version int) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		MetaKeySchemaVersion, strconv.Itoa(version))
	if err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

func tableExists(ctx context.Context, q Querier, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect table %s: %w", name, err)
	}
	return n > 0, nil
}

// columns returns a table's column names in declaration order.
func columns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("columns of %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func checkList(kinds []block.Kind) string {
	quoted := make([]string, len(kinds))
	for i, k := range kinds {
		quoted[i] = "'" + string(k) + "'"
	}
	return strings.Join(quoted, ",")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
