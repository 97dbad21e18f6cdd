package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// SQLite is the structured tier. Every call runs in its own transaction.
type SQLite struct {
	db *sqlx.DB
}

type row struct {
	ID   string `db:"id"`
	Data string `db:"data"`
}

// OpenSQLite opens the database at dsn and applies the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrBackendUnavailable, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to connect to database: %w", ErrBackendUnavailable, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to apply schema: %w", ErrBackendUnavailable, err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) tx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Namespace names come from the fixed Names list, so they are safe to
// interpolate as table names.

func (s *SQLite) Get(ctx context.Context, ns Name, key string) ([]byte, bool, error) {
	var data string
	err := s.tx(ctx, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &data, fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, ns), key)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return []byte(data), true, nil
}

func (s *SQLite) Set(ctx context.Context, ns Name, key string, value []byte) error {
	err := s.tx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, data) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data
		`, ns), key, string(value))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Remove(ctx context.Context, ns Name, key string) error {
	err := s.tx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, ns), key)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) All(ctx context.Context, ns Name) ([]Entry, error) {
	var rows []row
	err := s.tx(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, fmt.Sprintf(`SELECT id, data FROM %s`, ns))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{Key: r.ID, Value: []byte(r.Data)})
	}
	return entries, nil
}

func (s *SQLite) Clear(ctx context.Context, ns Name) error {
	err := s.tx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, ns))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to clear: %w", err)
	}
	return nil
}
