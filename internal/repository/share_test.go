package repository

import (
	"context"
	"copin/types"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type mockSharesRepository struct {
	rows map[string]Share
}

func (m *mockSharesRepository) GetShare(_ context.Context, id string) (Share, error) {
	row, ok := m.rows[id]
	if !ok {
		return Share{}, pgx.ErrNoRows
	}
	return row, nil
}

func (m *mockSharesRepository) InsertShare(_ context.Context, arg Share) error {
	m.rows[arg.ID] = arg
	return nil
}

func TestDatabase_Share(t *testing.T) {
	db := &Database{shares: &mockSharesRepository{rows: map[string]Share{}}}
	query := types.ShareQuery{
		Setting: map[string]string{"acc": "0xabc", "bal": "1000"},
		Sort:    &types.SortSpec{Column: "roi", Direction: types.SortDesc},
	}
	if err := db.SaveShare(context.Background(), "s1", types.ProtocolGMX, query); err != nil {
		t.Fatalf("SaveShare() error = %v", err)
	}
	protocol, got, err := db.GetShare(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetShare() error = %v", err)
	}
	if protocol != types.ProtocolGMX {
		t.Errorf("protocol = %v", protocol)
	}
	if got.Setting["bal"] != "1000" || got.Sort == nil || got.Sort.Column != "roi" {
		t.Errorf("GetShare() = %+v", got)
	}

	_, _, err = db.GetShare(context.Background(), "missing")
	if !errors.Is(err, ErrShareNotFound) {
		t.Errorf("GetShare() error = %v, want ErrShareNotFound", err)
	}
}
