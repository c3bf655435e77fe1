package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:threatmon.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			parent TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) Append(ctx context.Context, path string, value any) (string, error) {
	parent := cleanPath(path)
	key := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nodes (path, parent, key, value) VALUES (?, ?, ?, ?)`,
		childPath(parent, key), parent, key, encodeJSON(value))
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *sqliteStore) Set(ctx context.Context, path string, value any) error {
	p := cleanPath(path)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nodes (path, parent, key, value) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET value = excluded.value`,
		p, parentOf(p), keyOf(p), encodeJSON(value))
	return err
}

func (s *sqliteStore) Update(ctx context.Context, path string, fields map[string]any) error {
	p := cleanPath(path)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	var raw string
	err = tx.QueryRowContext(ctx, `SELECT value FROM nodes WHERE path = ?`, p).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO nodes (path, parent, key, value) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET value = excluded.value`,
		p, parentOf(p), keyOf(p), mergeFields(json.RawMessage(raw), fields))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM nodes WHERE path = ?`, cleanPath(path)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (s *sqliteStore) GetLastN(ctx context.Context, path string, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM nodes WHERE parent = ? ORDER BY seq DESC LIMIT ?`,
		cleanPath(path), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		var raw string
		if err := rows.Scan(&rec.Key, &raw); err != nil {
			return nil, err
		}
		rec.Value = json.RawMessage(raw)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (s *sqliteStore) Count(ctx context.Context, path string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE parent = ?`, cleanPath(path)).Scan(&count)
	return count, err
}
