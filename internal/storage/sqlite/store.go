package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"lookupbot/internal/model"
)

type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// OpenStore opens the database, applies migrations and returns a ready store.
func OpenStore(ctx context.Context, opts Options) (*Store, error) {
	db, err := Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) Load(ctx context.Context) ([]model.Entry, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT keys, text FROM entries ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	entries := []model.Entry{}
	for rows.Next() {
		var keys, text string
		if err := rows.Scan(&keys, &text); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, model.Entry{Keys: splitKeys(keys), Text: text})
	}
	return entries, rows.Err()
}

// Save replaces the table content in one transaction.
func (s *Store) Save(ctx context.Context, entries []model.Entry) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear entries: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries(position, keys, text, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, i+1, strings.Join(e.Keys, ","), e.Text, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert entry %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entries: %w", err)
	}
	return nil
}

func splitKeys(raw string) []string {
	out := []string{}
	for _, k := range strings.Split(raw, ",") {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
