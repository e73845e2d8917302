package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by PostgresStorage.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS purchase_ledgers (
    target_date TEXT PRIMARY KEY,
    document    JSONB NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStorage persists each target date's document as a JSONB row.
type PostgresStorage struct {
	db  DB
	now func() time.Time
}

// NewPostgresStorage constructs a Postgres-backed ledger storage.
func NewPostgresStorage(db DB) *PostgresStorage {
	return &PostgresStorage{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureSchema creates the ledger table when missing.
func (s *PostgresStorage) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// Read loads the document of targetDate.
func (s *PostgresStorage) Read(ctx context.Context, targetDate string) (Entries, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT document FROM purchase_ledgers WHERE target_date = $1`, targetDate).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entries{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument(targetDate, data)
}

// Write upserts the document of targetDate.
func (s *PostgresStorage) Write(ctx context.Context, targetDate string, entries Entries) error {
	now := s.now()
	data, err := encodeDocument(targetDate, entries, now)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO purchase_ledgers (target_date, document, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (target_date) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
		targetDate, data, now)
	return err
}
