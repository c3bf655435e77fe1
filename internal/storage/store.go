package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"threatmon/internal/config"
)

type Record struct {
	Key   string
	Value json.RawMessage
}

type Store interface {
	Init(ctx context.Context) error
	Close() error
	Append(ctx context.Context, path string, value any) (string, error)
	Set(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Get(ctx context.Context, path string) (json.RawMessage, error)
	GetLastN(ctx context.Context, path string, n int) ([]Record, error)
	Count(ctx context.Context, path string) (int64, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func cleanPath(p string) string {
	return "/" + strings.Trim(p, "/")
}

func parentOf(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

func keyOf(p string) string {
	return p[strings.LastIndex(p, "/")+1:]
}

func childPath(parent, key string) string {
	if parent == "/" {
		return "/" + key
	}
	return parent + "/" + key
}

func mergeFields(existing json.RawMessage, fields map[string]any) string {
	merged := map[string]any{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &merged); err != nil {
			merged = map[string]any{}
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	return encodeJSON(merged)
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}
