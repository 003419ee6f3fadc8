package sqlite

import (
	"context"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"github.com/wavyrai/rm-mcp/internal/domain"
	"github.com/wavyrai/rm-mcp/internal/ports"
)

// Store is the persistent artifact tier. Blobs are zstd-compressed and
// checksummed; an entry whose checksum no longer matches reads as absent
// instead of serving damaged bytes.
type Store struct {
	db  *DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var _ ports.ArtifactStore = (*Store)(nil)

// NewStore builds the artifact store on a shared database handle.
func NewStore(db *DB) (*Store, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, enc: enc, dec: dec}, nil
}

// Get reads one artifact. ok=false covers both absence and a blob that
// fails decompression or checksum verification.
func (s *Store) Get(ctx context.Context, key domain.ArtifactKey) (domain.Artifact, bool, error) {
	var (
		data       []byte
		checksum   sql.NullString
		failed     bool
		failReason sql.NullString
		storedAt   int64
	)
	err := s.db.sql.QueryRowContext(ctx, `
		SELECT data, checksum, failed, fail_reason, stored_at
		FROM artifacts WHERE doc_id = ? AND version = ? AND artifact = ?
	`, key.DocID, key.Version, string(key.Kind)).
		Scan(&data, &checksum, &failed, &failReason, &storedAt)
	if err == sql.ErrNoRows {
		return domain.Artifact{}, false, nil
	}
	if err != nil {
		return domain.Artifact{}, false, err
	}

	art := domain.Artifact{
		Failed:     failed,
		FailReason: failReason.String,
		StoredAt:   time.Unix(storedAt, 0).UTC(),
	}
	if failed {
		return art, true, nil
	}

	plain, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		s.db.log.Warn("cached blob undecodable, treating as miss", "key", key.String(), "err", err)
		return domain.Artifact{}, false, nil
	}
	if sum := blobChecksum(plain); sum != checksum.String {
		s.db.log.Warn("cached blob checksum mismatch, treating as miss", "key", key.String())
		return domain.Artifact{}, false, nil
	}
	art.Data = plain
	return art, true, nil
}

// Put stores an artifact, replacing any prior entry for the key.
func (s *Store) Put(ctx context.Context, key domain.ArtifactKey, art domain.Artifact) error {
	var (
		data     []byte
		checksum string
	)
	if !art.Failed {
		data = s.enc.EncodeAll(art.Data, nil)
		checksum = blobChecksum(art.Data)
	}
	storedAt := art.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	return s.db.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO artifacts
				(doc_id, version, artifact, data, checksum, failed, fail_reason, stored_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, key.DocID, key.Version, string(key.Kind),
			data, checksum, art.Failed, art.FailReason, storedAt.Unix())
		return err
	})
}

// Sweep reclaims entries of a document left behind by superseded versions.
func (s *Store) Sweep(ctx context.Context, docID, current string) error {
	return s.db.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM artifacts WHERE doc_id = ? AND version != ?`,
			docID, current)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			s.db.log.Debug("swept stale cache entries", "doc", docID, "count", n)
		}
		return nil
	})
}

// Texts streams every successfully extracted text artifact.
func (s *Store) Texts(ctx context.Context, fn func(key domain.ArtifactKey, text string) error) error {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT doc_id, version, data, checksum
		FROM artifacts WHERE artifact = ? AND failed = 0
	`, string(domain.ArtifactText))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			docID, version string
			data           []byte
			checksum       sql.NullString
		)
		if err := rows.Scan(&docID, &version, &data, &checksum); err != nil {
			return err
		}
		plain, err := s.dec.DecodeAll(data, nil)
		if err != nil || blobChecksum(plain) != checksum.String {
			continue
		}
		key := domain.ArtifactKey{DocID: docID, Version: version, Kind: domain.ArtifactText}
		if err := fn(key, string(plain)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close releases the codec state. The shared database handle is owned by
// the caller and closed separately.
func (s *Store) Close() error {
	s.dec.Close()
	return s.enc.Close()
}

func blobChecksum(data []byte) string {
	sum := xxh3.Hash128(data).Bytes()
	return hex.EncodeToString(sum[:])
}
