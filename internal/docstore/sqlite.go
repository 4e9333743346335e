package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists documents in a single SQLite table keyed
// (collection, id), with the body as JSON. Filters and ordering are pushed
// down via json_extract; tenant_id is mirrored into a column so the common
// tenant scan stays indexed.
type SQLiteStore struct {
	db     *sql.DB
	closed atomic.Bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at dbPath.
// Transactions take the write lock immediately so Mutate read-modify-write
// cycles serialize instead of failing on upgrade.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("empty database path")
	}
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			tenant_id TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(collection, tenant_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := validateKey(collection, id); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return decodeBody(body)
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, collection, id string, doc Document) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}
	body, tenantID, err := encodeBody(id, doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertSQL, collection, id, tenantID, body)
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

const upsertSQL = `INSERT INTO documents (collection, id, tenant_id, body) VALUES (?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET tenant_id = excluded.tenant_id, body = excluded.body`

// PutBatch implements Store. The whole batch commits in one transaction.
func (s *SQLiteStore) PutBatch(ctx context.Context, collection string, docs map[string]Document) error {
	if !ValidCollection(collection) {
		return fmt.Errorf("%q: %w", collection, ErrInvalidCollection)
	}
	if len(docs) == 0 {
		return ErrEmptyBatch
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer stmt.Close()

	for id, doc := range docs {
		if id == "" {
			return ErrEmptyID
		}
		body, tenantID, err := encodeBody(id, doc)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, collection, id, tenantID, body); err != nil {
			return fmt.Errorf("failed to write document %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Delete implements Store. Missing IDs are a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Query implements Store.
func (s *SQLiteStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("%q: %w", collection, ErrInvalidCollection)
	}
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	where, args, err := buildWhere(collection, q.Filters)
	if err != nil {
		return nil, err
	}

	orderField := q.OrderBy
	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}

	if q.StartAfter != "" {
		cursorClause, cursorArgs, err := s.cursorClause(ctx, collection, q, orderField)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return []Document{}, nil
			}
			return nil, err
		}
		where += cursorClause
		args = append(args, cursorArgs...)
	}

	var orderClause string
	if orderField == "" || orderField == "id" {
		orderClause = fmt.Sprintf(" ORDER BY id %s", dir)
	} else {
		orderClause = fmt.Sprintf(" ORDER BY json_extract(body, ?) %s, id %s", dir, dir)
		args = append(args, jsonPath(orderField))
	}

	query := `SELECT body FROM documents WHERE ` + where + orderClause
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}

// Mutate implements Store. The immediate transaction serializes concurrent
// mutations of the same document.
func (s *SQLiteStore) Mutate(ctx context.Context, collection, id string, fn MutateFunc) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin mutation: %w", err)
	}
	defer tx.Rollback()

	var current Document
	var body string
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&body)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// fn sees nil for absent documents
	case err != nil:
		return fmt.Errorf("failed to read document: %w", err)
	default:
		if current, err = decodeBody(body); err != nil {
			return err
		}
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	encoded, tenantID, err := encodeBody(id, next)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsertSQL, collection, id, tenantID, encoded); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mutation: %w", err)
	}
	return nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context, collection string, filters []Filter) (int, error) {
	if !ValidCollection(collection) {
		return 0, fmt.Errorf("%q: %w", collection, ErrInvalidCollection)
	}
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	where, args, err := buildWhere(collection, filters)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Capabilities implements Store.
func (s *SQLiteStore) Capabilities() Capabilities {
	return Capabilities{CompositeFilters: true}
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// cursorClause builds the keyset predicate for StartAfter pagination.
func (s *SQLiteStore) cursorClause(ctx context.Context, collection string, q Query, orderField string) (string, []any, error) {
	if orderField == "" || orderField == "id" {
		op := ">"
		if q.Descending {
			op = "<"
		}
		return fmt.Sprintf(" AND id %s ?", op), []any{q.StartAfter}, nil
	}

	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		collection, q.StartAfter).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("cursor %s: %w", q.StartAfter, ErrNotFound)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to read cursor document: %w", err)
	}
	doc, err := decodeBody(body)
	if err != nil {
		return "", nil, err
	}
	cursorVal := doc[orderField]

	op := ">"
	if q.Descending {
		op = "<"
	}
	path := jsonPath(orderField)
	clause := fmt.Sprintf(
		" AND (json_extract(body, ?) %s ? OR (json_extract(body, ?) = ? AND id %s ?))",
		op, op)
	return clause, []any{path, cursorVal, path, cursorVal, q.StartAfter}, nil
}

// buildWhere renders filters into SQL. tenant_id equality uses the indexed
// column; everything else goes through json_extract.
func buildWhere(collection string, filters []Filter) (string, []any, error) {
	clauses := []string{"collection = ?"}
	args := []any{collection}

	for _, f := range filters {
		if f.Field == "" {
			return "", nil, fmt.Errorf("%w: empty field", ErrUnsupportedFilter)
		}
		if f.Field == "tenant_id" && f.Op == OpEq {
			clauses = append(clauses, "tenant_id = ?")
			args = append(args, f.Value)
			continue
		}
		path := jsonPath(f.Field)
		switch f.Op {
		case OpEq:
			clauses = append(clauses, "json_extract(body, ?) = ?")
			args = append(args, path, bindValue(f.Value))
		case OpLt, OpLte, OpGt, OpGte:
			clauses = append(clauses, fmt.Sprintf("json_extract(body, ?) %s ?", sqlOp(f.Op)))
			args = append(args, path, bindValue(f.Value))
		case OpIn:
			set, ok := f.Value.([]any)
			if !ok || len(set) == 0 {
				return "", nil, fmt.Errorf("%w: in requires a non-empty slice", ErrUnsupportedFilter)
			}
			placeholders := strings.Repeat("?,", len(set))
			clauses = append(clauses,
				fmt.Sprintf("json_extract(body, ?) IN (%s)", placeholders[:len(placeholders)-1]))
			args = append(args, path)
			for _, v := range set {
				args = append(args, bindValue(v))
			}
		case OpContains:
			// array membership, or substring for string fields
			clauses = append(clauses,
				`(EXISTS (SELECT 1 FROM json_each(documents.body, ?) WHERE json_each.value = ?)
				OR (json_type(body, ?) = 'text' AND instr(json_extract(body, ?), ?) > 0))`)
			args = append(args, path, bindValue(f.Value), path, path, bindValue(f.Value))
		default:
			return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedFilter, f.Op)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

func sqlOp(op Op) string {
	switch op {
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	default:
		return ">="
	}
}

func jsonPath(field string) string {
	return "$." + field
}

// bindValue converts filter values to types database/sql binds natively.
func bindValue(v any) any {
	switch t := v.(type) {
	case Timestamp:
		return t.String()
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

func encodeBody(id string, doc Document) (string, string, error) {
	stored := Clone(doc)
	if stored == nil {
		stored = Document{}
	}
	stored["id"] = id
	data, err := json.Marshal(stored)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode document: %w", err)
	}
	tenantID, _ := stored["tenant_id"].(string)
	return string(data), tenantID, nil
}

func decodeBody(body string) (Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}
