package repository

import (
	"context"
	"copin/types"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// SaveLastSettings remembers req as the last backtest owner ran on protocol.
func (db *Database) SaveLastSettings(ctx context.Context, owner string, protocol types.Protocol, req types.RequestBackTestData) error {
	if err := db.settings.UpsertLastSettings(ctx, toLastSettings(owner, protocol, req)); err != nil {
		return fmt.Errorf("save settings for %s: %w", owner, err)
	}
	return nil
}

// GetLastSettings returns the settings saved by SaveLastSettings.
func (db *Database) GetLastSettings(ctx context.Context, owner string, protocol types.Protocol) (*types.RequestBackTestData, error) {
	row, err := db.settings.GetLastSettings(ctx, GetLastSettingsParams{Owner: owner, Protocol: string(protocol)})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("owner %s on %s: %w", owner, protocol, ErrSettingsNotFound)
		}
		return nil, err
	}
	req := fromLastSettings(row)
	return &req, nil
}

func toLastSettings(owner string, protocol types.Protocol, req types.RequestBackTestData) LastSettings {
	row := LastSettings{
		Owner:            owner,
		Protocol:         string(protocol),
		Accounts:         req.Accounts,
		Balance:          decimal.NewFromFloat(req.Balance),
		OrderVolume:      decimal.NewFromFloat(req.OrderVolume),
		Leverage:         decimal.NewFromFloat(req.Leverage),
		TokenAddresses:   req.TokenAddresses,
		FromTime:         time.UnixMilli(req.FromTime).UTC(),
		ToTime:           time.UnixMilli(req.ToTime).UTC(),
		StopLossType:     string(req.StopLossType),
		StopLossAmount:   nullDecimal(req.StopLossAmount),
		TakeProfitType:   string(req.TakeProfitType),
		TakeProfitAmount: nullDecimal(req.TakeProfitAmount),
		MaxVolMultiplier: nullDecimal(req.MaxVolMultiplier),
		ReverseCopy:      req.ReverseCopy,
		CopyAll:          req.CopyAll,
	}
	if row.Accounts == nil {
		row.Accounts = []string{}
	}
	if req.LookBackOrders != nil {
		n := int32(*req.LookBackOrders)
		row.LookBackOrders = &n
	}
	return row
}

func fromLastSettings(row LastSettings) types.RequestBackTestData {
	req := types.RequestBackTestData{
		Accounts:         row.Accounts,
		Balance:          row.Balance.InexactFloat64(),
		OrderVolume:      row.OrderVolume.InexactFloat64(),
		Leverage:         row.Leverage.InexactFloat64(),
		TokenAddresses:   row.TokenAddresses,
		FromTime:         row.FromTime.UnixMilli(),
		ToTime:           row.ToTime.UnixMilli(),
		StopLossType:     types.SLTPType(row.StopLossType),
		StopLossAmount:   floatPtr(row.StopLossAmount),
		TakeProfitType:   types.SLTPType(row.TakeProfitType),
		TakeProfitAmount: floatPtr(row.TakeProfitAmount),
		MaxVolMultiplier: floatPtr(row.MaxVolMultiplier),
		ReverseCopy:      row.ReverseCopy,
		CopyAll:          row.CopyAll,
	}
	if row.LookBackOrders != nil {
		n := int(*row.LookBackOrders)
		req.LookBackOrders = &n
	}
	return req
}

func nullDecimal(f *float64) decimal.NullDecimal {
	if f == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(*f), Valid: true}
}

func floatPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}
