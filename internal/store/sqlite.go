package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/recordd/internal/filter"
	"github.com/fyrsmithlabs/recordd/internal/schema"
)

// timeFormat is the stored timestamp encoding. The fractional second is
// fixed-width so the text sorts chronologically, which ORDER BY relies
// on. RFC3339Nano would trim trailing zeros and break that ordering.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const ddl = `
CREATE TABLE IF NOT EXISTS model_definitions (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	fields        TEXT NOT NULL,
	relationships TEXT,
	indexes       TEXT,
	embedding     TEXT,
	status        TEXT NOT NULL DEFAULT 'active',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_model_definitions_owner
	ON model_definitions(owner_id, status);

CREATE TABLE IF NOT EXISTS model_records (
	id         TEXT PRIMARY KEY,
	model_id   TEXT NOT NULL REFERENCES model_definitions(id),
	owner_id   TEXT NOT NULL,
	data       TEXT NOT NULL,
	embedding  TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_model_records_model
	ON model_records(model_id, created_at);
`

// SQLite is the Store implementation backed by an embedded SQLite
// database. Documents and vectors are stored as JSON text columns.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// Open opens (creating if needed) the database at path and bootstraps
// the schema. Use ":memory:" for an ephemeral database.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL allows concurrent readers during writes; the busy timeout
	// retries instead of failing immediately on a locked database.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateModel persists a new model definition.
func (s *SQLite) CreateModel(ctx context.Context, m *schema.Model) error {
	fields, err := json.Marshal(m.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	rels, err := marshalNullable(m.Relationships)
	if err != nil {
		return fmt.Errorf("encode relationships: %w", err)
	}
	idx, err := marshalNullable(m.Indexes)
	if err != nil {
		return fmt.Errorf("encode indexes: %w", err)
	}
	emb, err := marshalNullable(m.Embedding)
	if err != nil {
		return fmt.Errorf("encode embedding config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO model_definitions
			(id, owner_id, name, description, fields, relationships, indexes, embedding, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.OwnerID, m.Name, m.Description, string(fields), rels, idx, emb,
		m.Status, encodeTime(m.CreatedAt), encodeTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

// GetModel retrieves a model by id regardless of status.
func (s *SQLite) GetModel(ctx context.Context, id string) (*schema.Model, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, description, fields, relationships, indexes, embedding, status, created_at, updated_at
		FROM model_definitions WHERE id = ?`, id)
	return scanModel(row)
}

// ListModels returns the owner's active models, newest first.
func (s *SQLite) ListModels(ctx context.Context, ownerID string) ([]*schema.Model, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, description, fields, relationships, indexes, embedding, status, created_at, updated_at
		FROM model_definitions
		WHERE owner_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC`, ownerID, schema.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	var models []*schema.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return models, nil
}

// UpdateModel replaces a model's mutable columns, gated on owner.
func (s *SQLite) UpdateModel(ctx context.Context, m *schema.Model, ownerID string) error {
	fields, err := json.Marshal(m.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	rels, err := marshalNullable(m.Relationships)
	if err != nil {
		return fmt.Errorf("encode relationships: %w", err)
	}
	idx, err := marshalNullable(m.Indexes)
	if err != nil {
		return fmt.Errorf("encode indexes: %w", err)
	}
	emb, err := marshalNullable(m.Embedding)
	if err != nil {
		return fmt.Errorf("encode embedding config: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE model_definitions
		SET name = ?, description = ?, fields = ?, relationships = ?, indexes = ?, embedding = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		m.Name, m.Description, string(fields), rels, idx, emb, encodeTime(m.UpdatedAt),
		m.ID, ownerID)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	return s.requireAffected(ctx, res, "model_definitions", m.ID)
}

// MarkModelDeleted soft-deletes a model, gated on owner.
func (s *SQLite) MarkModelDeleted(ctx context.Context, id, ownerID string, deletedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE model_definitions
		SET status = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		schema.StatusDeleted, encodeTime(deletedAt), id, ownerID)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	return s.requireAffected(ctx, res, "model_definitions", id)
}

// InsertRecord persists a new record.
func (s *SQLite) InsertRecord(ctx context.Context, r *Record) error {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("encode data: %w", err)
	}
	emb, err := marshalNullable(r.Embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO model_records (id, model_id, owner_id, data, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ModelID, r.OwnerID, string(data), emb,
		encodeTime(r.CreatedAt), encodeTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetRecord retrieves a record scoped to a model.
func (s *SQLite) GetRecord(ctx context.Context, modelID, recordID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model_id, owner_id, data, embedding, created_at, updated_at
		FROM model_records WHERE id = ? AND model_id = ?`, recordID, modelID)
	return scanRecord(row)
}

// QueryRecords returns a page of matching records plus the total
// matching count. The count shares the data query's predicate so
// pagination metadata stays consistent with the page contents.
func (s *SQLite) QueryRecords(ctx context.Context, modelID string, f *filter.Filter, offset, limit int) ([]*Record, int, error) {
	where := "model_id = ?"
	args := []any{modelID}
	if frag, fargs := f.ToSQL("data"); frag != "" {
		where += " AND " + frag
		args = append(args, fargs...)
	}

	var total int
	countRow := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM model_records WHERE "+where, args...)
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model_id, owner_id, data, embedding, created_at, updated_at
		FROM model_records
		WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate records: %w", err)
	}
	return records, total, nil
}

// UpdateRecord replaces a record's data and embedding, gated on owner.
func (s *SQLite) UpdateRecord(ctx context.Context, recordID, ownerID string, data map[string]any, embedding []float32, updatedAt time.Time) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode data: %w", err)
	}
	emb, err := marshalNullable(embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE model_records SET data = ?, embedding = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		string(encoded), emb, encodeTime(updatedAt), recordID, ownerID)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return s.requireAffected(ctx, res, "model_records", recordID)
}

// DeleteRecord hard-deletes a record, gated on owner.
func (s *SQLite) DeleteRecord(ctx context.Context, recordID, ownerID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM model_records WHERE id = ? AND owner_id = ?`,
		recordID, ownerID)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return s.requireAffected(ctx, res, "model_records", recordID)
}

// requireAffected distinguishes why a conditional owner-gated write
// matched nothing: the row is absent (ErrNotFound) or held by another
// owner (ErrOwnerMismatch).
func (s *SQLite) requireAffected(ctx context.Context, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", table), id)
	if err := row.Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("check existence: %w", err)
	}
	return ErrOwnerMismatch
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*schema.Model, error) {
	var m schema.Model
	var fields string
	var rels, idx, emb sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&m.ID, &m.OwnerID, &m.Name, &m.Description,
		&fields, &rels, &idx, &emb, &m.Status, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan model: %w", err)
	}

	if err := json.Unmarshal([]byte(fields), &m.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if err := unmarshalNullable(rels, &m.Relationships); err != nil {
		return nil, fmt.Errorf("decode relationships: %w", err)
	}
	if err := unmarshalNullable(idx, &m.Indexes); err != nil {
		return nil, fmt.Errorf("decode indexes: %w", err)
	}
	if err := unmarshalNullable(emb, &m.Embedding); err != nil {
		return nil, fmt.Errorf("decode embedding config: %w", err)
	}
	if m.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	var data string
	var emb sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&r.ID, &r.ModelID, &r.OwnerID, &data, &emb, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	if err := unmarshalNullable(emb, &r.Embedding); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if r.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// marshalNullable encodes v as JSON text, mapping nil-ish values to SQL
// NULL so absent optional structures round-trip as absent.
func marshalNullable(v any) (sql.NullString, error) {
	if isNilish(v) {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalNullable(s sql.NullString, dest any) error {
	if !s.Valid {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dest)
}

func isNilish(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case *schema.EmbeddingConfig:
		return t == nil
	case map[string]schema.Relationship:
		return len(t) == 0
	case map[string]schema.Index:
		return len(t) == 0
	case []float32:
		return len(t) == 0
	}
	return false
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp: %w", err)
	}
	return t, nil
}
