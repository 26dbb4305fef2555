package repository

import (
	"context"
	"copin/types"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SaveShare keeps a local record of a share id handed out by the share endpoint.
func (db *Database) SaveShare(ctx context.Context, id string, protocol types.Protocol, query types.ShareQuery) error {
	raw, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("encode share query: %w", err)
	}
	if err := db.shares.InsertShare(ctx, Share{ID: id, Protocol: string(protocol), Query: raw}); err != nil {
		return fmt.Errorf("save share %s: %w", id, err)
	}
	return nil
}

func (db *Database) GetShare(ctx context.Context, id string) (types.Protocol, *types.ShareQuery, error) {
	row, err := db.shares.GetShare(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, fmt.Errorf("share %s %w", id, ErrShareNotFound)
		}
		return "", nil, err
	}
	var query types.ShareQuery
	if err := json.Unmarshal(row.Query, &query); err != nil {
		return "", nil, fmt.Errorf("decode share %s: %w", id, err)
	}
	return types.Protocol(row.Protocol), &query, nil
}
