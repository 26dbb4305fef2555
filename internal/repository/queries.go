package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS backtest_last_settings (
    owner              TEXT        NOT NULL,
    protocol           TEXT        NOT NULL,
    accounts           TEXT[]      NOT NULL DEFAULT '{}',
    balance            NUMERIC     NOT NULL,
    order_volume       NUMERIC     NOT NULL,
    leverage           NUMERIC     NOT NULL,
    token_addresses    TEXT[],
    from_time          TIMESTAMPTZ NOT NULL,
    to_time            TIMESTAMPTZ NOT NULL,
    look_back_orders   INTEGER,
    stop_loss_type     TEXT        NOT NULL DEFAULT '',
    stop_loss_amount   NUMERIC,
    take_profit_type   TEXT        NOT NULL DEFAULT '',
    take_profit_amount NUMERIC,
    max_vol_multiplier NUMERIC,
    reverse_copy       BOOLEAN     NOT NULL DEFAULT FALSE,
    copy_all           BOOLEAN     NOT NULL DEFAULT FALSE,
    modified_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (owner, protocol)
);

CREATE TABLE IF NOT EXISTS backtest_shares (
    id         TEXT PRIMARY KEY,
    protocol   TEXT        NOT NULL,
    query      JSONB       NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db dbtx
}

func newQueries(db dbtx) *queries {
	return &queries{db: db}
}

// LastSettings is one row of backtest_last_settings.
type LastSettings struct {
	Owner            string
	Protocol         string
	Accounts         []string
	Balance          decimal.Decimal
	OrderVolume      decimal.Decimal
	Leverage         decimal.Decimal
	TokenAddresses   []string
	FromTime         time.Time
	ToTime           time.Time
	LookBackOrders   *int32
	StopLossType     string
	StopLossAmount   decimal.NullDecimal
	TakeProfitType   string
	TakeProfitAmount decimal.NullDecimal
	MaxVolMultiplier decimal.NullDecimal
	ReverseCopy      bool
	CopyAll          bool
	ModifiedAt       time.Time
}

type GetLastSettingsParams struct {
	Owner    string
	Protocol string
}

const getLastSettings = `-- name: GetLastSettings :one
SELECT owner, protocol, accounts, balance, order_volume, leverage, token_addresses,
       from_time, to_time, look_back_orders, stop_loss_type, stop_loss_amount,
       take_profit_type, take_profit_amount, max_vol_multiplier, reverse_copy, copy_all,
       modified_at
FROM backtest_last_settings
WHERE owner = $1 AND protocol = $2
`

func (q *queries) GetLastSettings(ctx context.Context, arg GetLastSettingsParams) (LastSettings, error) {
	row := q.db.QueryRow(ctx, getLastSettings, arg.Owner, arg.Protocol)
	var i LastSettings
	err := row.Scan(
		&i.Owner,
		&i.Protocol,
		&i.Accounts,
		&i.Balance,
		&i.OrderVolume,
		&i.Leverage,
		&i.TokenAddresses,
		&i.FromTime,
		&i.ToTime,
		&i.LookBackOrders,
		&i.StopLossType,
		&i.StopLossAmount,
		&i.TakeProfitType,
		&i.TakeProfitAmount,
		&i.MaxVolMultiplier,
		&i.ReverseCopy,
		&i.CopyAll,
		&i.ModifiedAt,
	)
	return i, err
}

const upsertLastSettings = `-- name: UpsertLastSettings :exec
INSERT INTO backtest_last_settings (
    owner, protocol, accounts, balance, order_volume, leverage, token_addresses,
    from_time, to_time, look_back_orders, stop_loss_type, stop_loss_amount,
    take_profit_type, take_profit_amount, max_vol_multiplier, reverse_copy, copy_all
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (owner, protocol) DO UPDATE SET
    accounts = EXCLUDED.accounts,
    balance = EXCLUDED.balance,
    order_volume = EXCLUDED.order_volume,
    leverage = EXCLUDED.leverage,
    token_addresses = EXCLUDED.token_addresses,
    from_time = EXCLUDED.from_time,
    to_time = EXCLUDED.to_time,
    look_back_orders = EXCLUDED.look_back_orders,
    stop_loss_type = EXCLUDED.stop_loss_type,
    stop_loss_amount = EXCLUDED.stop_loss_amount,
    take_profit_type = EXCLUDED.take_profit_type,
    take_profit_amount = EXCLUDED.take_profit_amount,
    max_vol_multiplier = EXCLUDED.max_vol_multiplier,
    reverse_copy = EXCLUDED.reverse_copy,
    copy_all = EXCLUDED.copy_all,
    modified_at = now()
`

func (q *queries) UpsertLastSettings(ctx context.Context, arg LastSettings) error {
	_, err := q.db.Exec(ctx, upsertLastSettings,
		arg.Owner,
		arg.Protocol,
		arg.Accounts,
		arg.Balance,
		arg.OrderVolume,
		arg.Leverage,
		arg.TokenAddresses,
		arg.FromTime,
		arg.ToTime,
		arg.LookBackOrders,
		arg.StopLossType,
		arg.StopLossAmount,
		arg.TakeProfitType,
		arg.TakeProfitAmount,
		arg.MaxVolMultiplier,
		arg.ReverseCopy,
		arg.CopyAll,
	)
	return err
}

// Share is one row of backtest_shares. Query holds the JSON encoded share query.
type Share struct {
	ID        string
	Protocol  string
	Query     []byte
	CreatedAt time.Time
}

const getShare = `-- name: GetShare :one
SELECT id, protocol, query, created_at FROM backtest_shares WHERE id = $1
`

func (q *queries) GetShare(ctx context.Context, id string) (Share, error) {
	row := q.db.QueryRow(ctx, getShare, id)
	var i Share
	err := row.Scan(&i.ID, &i.Protocol, &i.Query, &i.CreatedAt)
	return i, err
}

const insertShare = `-- name: InsertShare :exec
INSERT INTO backtest_shares (id, protocol, query) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET protocol = EXCLUDED.protocol, query = EXCLUDED.query
`

func (q *queries) InsertShare(ctx context.Context, arg Share) error {
	_, err := q.db.Exec(ctx, insertShare, arg.ID, arg.Protocol, arg.Query)
	return err
}
