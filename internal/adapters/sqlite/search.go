package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/wavyrai/rm-mcp/internal/domain"
	"github.com/wavyrai/rm-mcp/internal/ports"
)

// Index is the FTS5-backed full-text index. One record per document,
// superseded on upsert; ranking is bm25 with most-recently-indexed breaking
// ties.
type Index struct {
	db *DB
}

var _ ports.SearchIndex = (*Index)(nil)

// NewIndex builds the search index on a shared database handle.
func NewIndex(db *DB) *Index {
	return &Index{db: db}
}

// Upsert replaces the document's record and its FTS row in one transaction.
// The documents rowid is kept stable across updates so the FTS shadow row
// can be re-pointed instead of leaking.
func (i *Index) Upsert(ctx context.Context, rec domain.IndexRecord) error {
	indexedAt := rec.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now()
	}
	return i.db.write(ctx, func(tx *sql.Tx) error {
		var rowid int64
		err := tx.QueryRow(`SELECT rowid FROM documents WHERE doc_id = ?`, rec.DocID).Scan(&rowid)
		switch err {
		case nil:
			if _, err := tx.Exec(`DELETE FROM documents_fts WHERE rowid = ?`, rowid); err != nil {
				return err
			}
		case sql.ErrNoRows:
		default:
			return err
		}

		if _, err := tx.Exec(`
			INSERT INTO documents (doc_id, version, path, content, indexed_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(doc_id) DO UPDATE SET
				version = excluded.version,
				path = excluded.path,
				content = excluded.content,
				indexed_at = excluded.indexed_at
		`, rec.DocID, rec.Version, rec.Path, rec.Text, indexedAt.Unix()); err != nil {
			return err
		}

		if err := tx.QueryRow(`SELECT rowid FROM documents WHERE doc_id = ?`, rec.DocID).Scan(&rowid); err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO documents_fts (rowid, doc_id, content) VALUES (?, ?, ?)`,
			rowid, rec.DocID, rec.Text)
		return err
	})
}

// Query runs an FTS match. The term is tried as-is first so FTS operators
// keep working; if its syntax is invalid it is retried as a quoted literal.
// An error on the quoted form is no longer a syntax problem and surfaces.
func (i *Index) Query(ctx context.Context, term, pathPrefix string, limit int) ([]domain.SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	hits, err := i.query(ctx, term, pathPrefix, limit)
	if err != nil {
		i.db.log.Debug("retrying search term quoted", "term", term, "err", err)
		hits, err = i.query(ctx, ftsQuote(term), pathPrefix, limit)
		if err != nil {
			return nil, err
		}
	}
	return hits, nil
}

func (i *Index) query(ctx context.Context, match, pathPrefix string, limit int) ([]domain.SearchHit, error) {
	q := `
		SELECT d.doc_id, d.path, d.version, d.indexed_at,
		       snippet(documents_fts, 1, '>>>', '<<<', '...', 12),
		       bm25(documents_fts)
		FROM documents_fts
		JOIN documents d ON d.rowid = documents_fts.rowid
		WHERE documents_fts.content MATCH ?`
	args := []any{match}
	if pathPrefix != "" {
		q += ` AND (d.path = ? OR d.path LIKE ?)`
		args = append(args, pathPrefix, pathPrefix+"/%")
	}
	q += ` ORDER BY bm25(documents_fts), d.indexed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := i.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var (
			hit       domain.SearchHit
			indexedAt int64
			rank      float64
		)
		if err := rows.Scan(&hit.DocID, &hit.Path, &hit.Version, &indexedAt,
			&hit.Snippet, &rank); err != nil {
			return nil, err
		}
		hit.IndexedAt = time.Unix(indexedAt, 0).UTC()
		// bm25 reports better matches as more negative.
		hit.Score = -rank
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// Invalidate drops a document's record and FTS row.
func (i *Index) Invalidate(ctx context.Context, docID string) error {
	return i.db.write(ctx, func(tx *sql.Tx) error {
		var rowid int64
		err := tx.QueryRow(`SELECT rowid FROM documents WHERE doc_id = ?`, docID).Scan(&rowid)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM documents_fts WHERE rowid = ?`, rowid); err != nil {
			return err
		}
		_, err = tx.Exec(`DELETE FROM documents WHERE doc_id = ?`, docID)
		return err
	})
}

// Lookup returns the stored record for one document.
func (i *Index) Lookup(ctx context.Context, docID string) (domain.IndexRecord, bool, error) {
	var (
		rec       domain.IndexRecord
		indexedAt int64
	)
	err := i.db.sql.QueryRowContext(ctx, `
		SELECT doc_id, version, path, content, indexed_at
		FROM documents WHERE doc_id = ?
	`, docID).Scan(&rec.DocID, &rec.Version, &rec.Path, &rec.Text, &indexedAt)
	if err == sql.ErrNoRows {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	rec.IndexedAt = time.Unix(indexedAt, 0).UTC()
	return rec, true, nil
}

// Count reports how many documents are indexed.
func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := i.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// Reset drops all records.
func (i *Index) Reset(ctx context.Context) error {
	return i.db.write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM documents_fts`); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM documents`)
		return err
	})
}

// Close is a no-op; the shared database handle is owned by the caller.
func (i *Index) Close() error {
	return nil
}
