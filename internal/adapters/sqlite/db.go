// Package sqlite persists the artifact cache and the full-text index in one
// SQLite database. Writes from all components are serialized through a
// single writer goroutine so the engine's single-writer constraint is an
// explicit discipline in code; reads go straight to the pool and see the
// last-committed state.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/wavyrai/rm-mcp/internal/domain"
)

const schemaVersion = "1"

const schemaSQL = `
	PRAGMA synchronous = NORMAL;
	PRAGMA cache_size = -64000;
	PRAGMA temp_store = MEMORY;
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS artifacts (
		doc_id      TEXT NOT NULL,
		version     TEXT NOT NULL,
		artifact    TEXT NOT NULL,
		data        BLOB,
		checksum    TEXT,
		failed      INTEGER NOT NULL DEFAULT 0,
		fail_reason TEXT,
		stored_at   INTEGER NOT NULL,
		PRIMARY KEY (doc_id, version, artifact)
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_doc ON artifacts(doc_id);

	CREATE TABLE IF NOT EXISTS documents (
		doc_id     TEXT PRIMARY KEY,
		version    TEXT NOT NULL,
		path       TEXT NOT NULL,
		content    TEXT NOT NULL,
		indexed_at INTEGER NOT NULL
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
		doc_id,
		content,
		tokenize='porter unicode61'
	);
`

type writeOp struct {
	fn   func(*sql.Tx) error
	done chan error
}

// DB is the shared handle behind Store and Index.
type DB struct {
	sql  *sql.DB
	path string
	log  *slog.Logger

	writes chan writeOp
	quit   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// Open opens (or creates) the database at path, verifies its integrity and
// schema version, and starts the writer. A failed integrity check or a
// schema mismatch discards the old state and starts fresh; recreated reports
// whether that happened so the caller can log it and re-derive the index.
func Open(path string, log *slog.Logger) (db *DB, recreated bool, err error) {
	if log == nil {
		log = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, false, fmt.Errorf("creating index directory: %w", err)
		}
	}

	h, err := openAndCheck(path)
	if err != nil {
		if path == ":memory:" {
			return nil, false, err
		}
		// Corrupt on disk: the cache is derived state, so discard and
		// start over rather than refusing to serve.
		log.Warn("discarding corrupt database", "path", path, "err", err)
		removeDatabase(path)
		h, err = openAndCheck(path)
		if err != nil {
			return nil, false, err
		}
		recreated = true
	}

	db = &DB{
		sql:    h,
		path:   path,
		log:    log,
		writes: make(chan writeOp),
		quit:   make(chan struct{}),
	}

	wiped, err := db.ensureSchemaVersion()
	if err != nil {
		h.Close()
		return nil, false, err
	}
	recreated = recreated || wiped

	db.wg.Add(1)
	go db.writer()
	return db, recreated, nil
}

func openAndCheck(path string) (*sql.DB, error) {
	h, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	var check string
	if err := h.QueryRow("PRAGMA quick_check").Scan(&check); err != nil || check != "ok" {
		h.Close()
		if err == nil {
			err = fmt.Errorf("quick_check: %s", check)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexCorrupt, err)
	}
	if _, err := h.Exec(schemaSQL); err != nil {
		h.Close()
		return nil, fmt.Errorf("%w: applying schema: %v", domain.ErrIndexCorrupt, err)
	}
	return h, nil
}

func removeDatabase(path string) {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		os.Remove(path + suffix)
	}
}

// ensureSchemaVersion wipes all tables when the stored schema version does
// not match, so an old layout never masquerades as valid cache state.
func (d *DB) ensureSchemaVersion() (wiped bool, err error) {
	var stored string
	err = d.sql.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&stored)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	if stored == schemaVersion {
		return false, nil
	}
	if stored != "" {
		d.log.Warn("schema version changed, clearing database",
			"from", stored, "to", schemaVersion)
		for _, stmt := range []string{
			`DELETE FROM documents_fts`,
			`DELETE FROM documents`,
			`DELETE FROM artifacts`,
		} {
			if _, err := d.sql.Exec(stmt); err != nil {
				return false, err
			}
		}
		wiped = true
	}
	_, err = d.sql.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`,
		schemaVersion)
	return wiped, err
}

func (d *DB) writer() {
	defer d.wg.Done()
	for {
		select {
		case <-d.quit:
			return
		case op := <-d.writes:
			op.done <- d.runWrite(op.fn)
		}
	}
}

func (d *DB) runWrite(fn func(*sql.Tx) error) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// write submits fn to the single writer and waits for the commit. The write
// executes exactly once even if ctx is canceled after submission; in that
// case the result is abandoned and the context error returned.
func (d *DB) write(ctx context.Context, fn func(*sql.Tx) error) error {
	op := writeOp{fn: fn, done: make(chan error, 1)}
	select {
	case d.writes <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.quit:
		return fmt.Errorf("database closed")
	}
	select {
	case err := <-op.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the writer and closes the underlying pool.
func (d *DB) Close() error {
	d.once.Do(func() { close(d.quit) })
	d.wg.Wait()
	return d.sql.Close()
}

// ftsQuote turns an arbitrary term into a valid FTS5 string literal.
func ftsQuote(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}
