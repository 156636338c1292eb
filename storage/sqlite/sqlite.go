// Package sqlite is a durable, single-file core.Storage backend. All three
// facets (vectors, graph, key/value) share one SQLite database; similarity
// search decodes candidate embeddings and scores them in process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/cogmesh/core"
	"github.com/hupe1980/cogmesh/storage"
)

// Store implements core.Storage backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens or creates a SQLite database at the given path and runs the
// schema migration.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id         TEXT PRIMARY KEY,
		tier       TEXT NOT NULL,
		content    TEXT NOT NULL,
		metadata   TEXT,
		embedding  BLOB,
		timestamp  TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'active'
	);
	CREATE INDEX IF NOT EXISTS idx_memories_tier_status ON memories(tier, status);

	CREATE TABLE IF NOT EXISTS relationships (
		src        TEXT NOT NULL,
		dst        TEXT NOT NULL,
		rel_type   TEXT NOT NULL,
		properties TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY (src) REFERENCES memories(id),
		FOREIGN KEY (dst) REFERENCES memories(id)
	);
	CREATE INDEX IF NOT EXISTS idx_relationships_src ON relationships(src);

	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		expires_at TEXT
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// encodeVector packs float32s little-endian; nil vectors stay nil.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Store implements core.VectorStore.
func (s *Store) Store(ctx context.Context, tier core.Tier, id string, vector []float32, rec core.MemoryRecord) error {
	if id == "" {
		return &core.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	status := rec.Status
	if status == "" {
		status = core.RecordActive
	}
	md, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if vector == nil {
		vector = rec.Embedding
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, tier, content, metadata, embedding, timestamp, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tier = excluded.tier,
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			timestamp = excluded.timestamp,
			status = excluded.status`,
		id, string(tier), rec.Content, string(md), encodeVector(vector),
		rec.Timestamp.UTC().Format(time.RFC3339Nano), status)
	return err
}

// Search implements core.VectorStore. Candidates are scored in process over
// the active rows of the requested tier.
func (s *Store) Search(ctx context.Context, tier core.Tier, vector []float32, topK int) ([]core.SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tier, content, metadata, embedding, timestamp, status
		FROM memories WHERE tier = ? AND status = ?`, string(tier), core.RecordActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []core.SearchHit
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, core.SearchHit{ID: rec.ID, Score: storage.Cosine(vector, rec.Embedding), Payload: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (core.MemoryRecord, error) {
	var (
		rec       core.MemoryRecord
		tier      string
		md        sql.NullString
		embedding []byte
		ts        string
	)
	if err := r.Scan(&rec.ID, &tier, &rec.Content, &md, &embedding, &ts, &rec.Status); err != nil {
		return core.MemoryRecord{}, err
	}
	rec.Tier = core.Tier(tier)
	rec.Embedding = decodeVector(embedding)
	if md.Valid && md.String != "" && md.String != "null" {
		if err := json.Unmarshal([]byte(md.String), &rec.Metadata); err != nil {
			return core.MemoryRecord{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return core.MemoryRecord{}, fmt.Errorf("parse timestamp: %w", err)
	}
	rec.Timestamp = t
	return rec, nil
}

// Get implements core.VectorStore.
func (s *Store) Get(ctx context.Context, id string) (core.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tier, content, metadata, embedding, timestamp, status
		FROM memories WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MemoryRecord{}, core.ErrNotFound
	}
	return rec, err
}

// UpdateStatus implements core.VectorStore.
func (s *Store) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// UpdateMetadata implements core.VectorStore. The merge happens read-modify-
// write inside one transaction.
func (s *Store) UpdateMetadata(ctx context.Context, id string, md map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var cur sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT metadata FROM memories WHERE id = ?`, id).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return err
	}

	merged := make(map[string]string)
	if cur.Valid && cur.String != "" && cur.String != "null" {
		if err := json.Unmarshal([]byte(cur.String), &merged); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	for k, v := range md {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE memories SET metadata = ? WHERE id = ?`, string(out), id); err != nil {
		return err
	}
	return tx.Commit()
}

// AddRelationship implements core.GraphStore.
func (s *Store) AddRelationship(ctx context.Context, src, dst, relType string, props map[string]string) error {
	for _, id := range []string{src, dst} {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return err
		}
	}
	var propJSON []byte
	if props != nil {
		var err error
		propJSON, err = json.Marshal(props)
		if err != nil {
			return fmt.Errorf("marshal properties: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (src, dst, rel_type, properties, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		src, dst, relType, string(propJSON), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// Relationships implements core.GraphStore.
func (s *Store) Relationships(ctx context.Context, id string) ([]core.Relationship, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT dst, rel_type, properties FROM relationships WHERE src = ? ORDER BY created_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Relationship
	for rows.Next() {
		var (
			rel   core.Relationship
			props sql.NullString
		)
		if err := rows.Scan(&rel.TargetID, &rel.Type, &props); err != nil {
			return nil, err
		}
		if props.Valid && props.String != "" && props.String != "null" {
			if err := json.Unmarshal([]byte(props.String), &rel.Properties); err != nil {
				return nil, fmt.Errorf("unmarshal properties: %w", err)
			}
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// GetKV implements core.KVStore.
func (s *Store) GetKV(ctx context.Context, key string) (string, bool, error) {
	var (
		value   string
		expires sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv WHERE key = ?`, key).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if expires.Valid && expires.String != "" {
		t, err := time.Parse(time.RFC3339Nano, expires.String)
		if err == nil && time.Now().After(t) {
			return "", false, nil
		}
	}
	return value, true, nil
}

// SetKV implements core.KVStore.
func (s *Store) SetKV(ctx context.Context, key, value string, ttl time.Duration) error {
	var expires any
	if ttl > 0 {
		expires = time.Now().Add(ttl).UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expires)
	return err
}
