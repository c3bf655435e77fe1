package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/threatmon?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			seq BIGSERIAL PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			parent TEXT NOT NULL,
			key TEXT NOT NULL,
			value JSONB NOT NULL
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

func (s *postgresStore) Append(ctx context.Context, path string, value any) (string, error) {
	parent := cleanPath(path)
	key := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nodes (path, parent, key, value) VALUES ($1, $2, $3, $4)`,
		childPath(parent, key), parent, key, encodeJSON(value))
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *postgresStore) Set(ctx context.Context, path string, value any) error {
	p := cleanPath(path)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nodes (path, parent, key, value) VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE SET value = excluded.value`,
		p, parentOf(p), keyOf(p), encodeJSON(value))
	return err
}

func (s *postgresStore) Update(ctx context.Context, path string, fields map[string]any) error {
	p := cleanPath(path)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	var raw string
	err = tx.QueryRowContext(ctx, `SELECT value FROM nodes WHERE path = $1 FOR UPDATE`, p).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO nodes (path, parent, key, value) VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE SET value = excluded.value`,
		p, parentOf(p), keyOf(p), mergeFields(json.RawMessage(raw), fields))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *postgresStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM nodes WHERE path = $1`, cleanPath(path)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (s *postgresStore) GetLastN(ctx context.Context, path string, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM nodes WHERE parent = $1 ORDER BY seq DESC LIMIT $2`,
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

func (s *postgresStore) Count(ctx context.Context, path string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE parent = $1`, cleanPath(path)).Scan(&count)
	return count, err
}
