package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type recordingDB struct {
	sql  string
	args []any
}

func (r *recordingDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *recordingDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	r.sql = sql
	r.args = args
	return errRow{}
}

type errRow struct{}

func (errRow) Scan(...any) error { return pgx.ErrNoRows }

func TestQueriesArgumentOrder(t *testing.T) {
	db := &recordingDB{}
	q := newQueries(db)
	if err := q.InsertShare(context.Background(), Share{ID: "s1", Protocol: "GMX", Query: []byte(`{}`)}); err != nil {
		t.Fatalf("InsertShare() error = %v", err)
	}
	if db.sql != insertShare || len(db.args) != 3 || db.args[0] != "s1" {
		t.Errorf("InsertShare args = %v", db.args)
	}

	if err := q.UpsertLastSettings(context.Background(), LastSettings{Owner: "o", Protocol: "GMX"}); err != nil {
		t.Fatalf("UpsertLastSettings() error = %v", err)
	}
	if len(db.args) != 17 || db.args[0] != "o" || db.args[1] != "GMX" {
		t.Errorf("UpsertLastSettings args = %v", db.args)
	}

	_, err := q.GetLastSettings(context.Background(), GetLastSettingsParams{Owner: "o", Protocol: "GMX"})
	if err != pgx.ErrNoRows {
		t.Errorf("GetLastSettings() error = %v", err)
	}
	if db.sql != getLastSettings {
		t.Errorf("GetLastSettings ran %q", db.sql)
	}
}
