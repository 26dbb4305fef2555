package repository

import (
	"context"
	"errors"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Global error declarations.
var (
	ErrSettingsNotFound = errors.New("no saved settings")
	ErrShareNotFound    = errors.New("share not found")
)

type settingsRepository interface {
	GetLastSettings(ctx context.Context, arg GetLastSettingsParams) (LastSettings, error)
	UpsertLastSettings(ctx context.Context, arg LastSettings) error
}
type sharesRepository interface {
	GetShare(ctx context.Context, id string) (Share, error)
	InsertShare(ctx context.Context, arg Share) error
}

// Database struct that holds the database connection and queries.
type Database struct {
	settings settingsRepository
	shares   sharesRepository
	conn     *pgxpool.Pool
}

// NewDatabase creates a new Database instance and verifies connectivity.
func NewDatabase(ctx context.Context, dbURL string) (*Database, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	// Ensure the connection is established.
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	queries := newQueries(conn)
	return &Database{
		settings: queries,
		shares:   queries,
		conn:     conn}, nil
}

// Migrate creates the tables if they do not exist yet.
func (db *Database) Migrate(ctx context.Context) error {
	if _, err := db.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (db *Database) Close() {
	if db.conn != nil {
		db.conn.Close()
	}
}
