package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sdrshn-nmbr/cleancity/internal/transaction"
	"github.com/sdrshn-nmbr/cleancity/internal/types"

	_ "modernc.org/sqlite"
)

// ─── SQLite Key/Value Store ─────────────────────────────────────────────────

// SQLiteStorage keeps every key in a single kv table. Transactions map onto
// SQL transactions, so a failed delete rolls back the puts before it.
type SQLiteStorage struct {
	db *sql.DB
}

func sqliteMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
}

// NewSQLiteStorage opens (or creates) the database at path. Use ":memory:"
// for a throwaway store.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases stable and serializes writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteMigrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Get(key types.Key) (types.Value, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, string(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *SQLiteStorage) Put(key types.Key, value types.Value) error {
	txn := transaction.NewTransaction()
	txn.Put(key, value)
	return s.ExecuteTransaction(txn)
}

func (s *SQLiteStorage) Delete(key types.Key) error {
	txn := transaction.NewTransaction()
	txn.Delete(key)
	return s.ExecuteTransaction(txn)
}

func (s *SQLiteStorage) ExecuteTransaction(t *transaction.Transaction) error {
	if t == nil {
		return ErrInvalidTxn
	}

	tx, err := s.db.Begin()
	if err != nil {
		t.Status = transaction.Aborted
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, op := range t.Operations {
		switch op.Type {
		case types.Put:
			value := op.Value
			if value == nil {
				value = types.Value{}
			}
			_, err = tx.Exec(`
				INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET
					value      = excluded.value,
					updated_at = excluded.updated_at
			`, string(op.Key), []byte(value), now)
		case types.Delete:
			var res sql.Result
			res, err = tx.Exec(`DELETE FROM kv WHERE key = ?`, string(op.Key))
			if err == nil {
				var n int64
				n, err = res.RowsAffected()
				if err == nil && n == 0 {
					err = ErrKeyNotFound
				}
			}
		}
		if err != nil {
			_ = tx.Rollback()
			t.Status = transaction.Aborted
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		t.Status = transaction.Aborted
		return err
	}
	t.Status = transaction.Committed
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
