package ledger

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/akatsuki-labs/akatsuki/internal/logging"
)

type fakeRow struct {
	data []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.data
	return nil
}

type fakeDB struct {
	rows  map[string][]byte
	execs []string
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	if len(args) >= 2 {
		f.rows[args[0].(string)] = args[1].([]byte)
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	data, ok := f.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{data: data}
}

func TestPostgresStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := &fakeDB{rows: map[string][]byte{}}
	storage := NewPostgresStorage(db)

	if err := storage.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	entries, err := storage.Read(ctx, "20250105")
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty ledger, got %v (%v)", entries, err)
	}

	l := newTestLedger(storage)
	id := testIdentity(4)
	if err := l.Record(ctx, id, NewRecord(id, 700, StatusUnverified)); err != nil {
		t.Fatalf("record: %v", err)
	}

	reloaded := New(NewPostgresStorage(db), logging.Discard())
	rec, ok, err := reloaded.Lookup(ctx, id)
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if rec.Status != StatusUnverified || rec.Amount != 700 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(db.execs) != 2 {
		t.Fatalf("expected schema + upsert statements, got %d", len(db.execs))
	}
}
