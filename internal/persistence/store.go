package persistence

import (
	"TrueMarket/internal/storage"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"
)

// SQLStore is a storage.Store over the view_entries table. Several chains
// can share one database; rows are scoped by chain id.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	chain   string
}

func NewSQLStore(db *sql.DB, dialect Dialect, chain string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, chain: chain}
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT entry_value FROM view_entries WHERE chain_id = $1 AND entry_key = $2`),
		s.chain, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(value), true, nil
}

// Scan returns entries under prefix in byte order. Ordering is done here
// rather than in SQL so that database collation does not matter.
func (s *SQLStore) Scan(ctx context.Context, prefix string) ([]storage.KV, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT entry_key, entry_value FROM view_entries
			WHERE chain_id = $1 AND substr(entry_key, 1, $2) = $3`),
		s.chain, utf8.RuneCountInString(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	defer rows.Close()

	var out []storage.KV
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", prefix, err)
		}
		out = append(out, storage.KV{Key: key, Value: []byte(value)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Apply upserts writes in one transaction.
func (s *SQLStore) Apply(ctx context.Context, writes []storage.KV) error {
	if len(writes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`
		INSERT INTO view_entries (chain_id, entry_key, entry_value) VALUES ($1, $2, $3)
		ON CONFLICT (chain_id, entry_key) DO UPDATE SET entry_value = excluded.entry_value`))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, kv := range writes {
		if _, err := stmt.ExecContext(ctx, s.chain, kv.Key, string(kv.Value)); err != nil {
			return fmt.Errorf("upsert %s: %w", kv.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Ping checks the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
