package engine

import (
	"context"
	"copin/internal/codec"
	"copin/internal/form"
	"copin/internal/session"
	"copin/types"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrEmptyResult    = errors.New("simulator returned no result")
	ErrNoAccounts     = errors.New("no accounts to backtest")
	ErrNothingToShare = errors.New("settings cannot be encoded for sharing")
)

// Engine submits backtests to the remote simulator and routes the outcome back into
// session state.
type Engine struct {
	sim      simulator
	share    sharer
	traders  traderSource
	settings settingsStore
	config   *Config
	log      *zap.Logger
}

func NewEngine(sim simulator, share sharer, config *Config, log *zap.Logger) *Engine {
	if config == nil {
		config = NewEngineConfig(DefaultPageSize)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		sim:    sim,
		share:  share,
		config: config,
		log:    log,
	}
}

func (e *Engine) UseTraderSource(t traderSource) {
	e.traders = t
}

// UseSettingsStore makes successful submissions remember their settings per owner.
func (e *Engine) UseSettingsStore(s settingsStore) {
	e.settings = s
}

func (e *Engine) Config() *Config {
	return e.config
}

// Submit runs a single-account backtest for the instance that is focused when Submit is
// called. The outcome is applied to that instance even if focus moves while the request
// is in flight.
func (e *Engine) Submit(ctx context.Context, store *session.Store, protocol types.Protocol, values form.Values, account, owner string) (*types.BackTestResultData, error) {
	if strings.TrimSpace(account) == "" {
		return nil, ErrNoAccounts
	}
	if err := form.Validate(values, e.config.now()); err != nil {
		return nil, err
	}
	instanceID := store.State().CurrentInstanceID
	req := values.ToRequest(account)
	result, err := e.submitInstance(ctx, store, instanceID, protocol, req, false)
	if err != nil {
		return nil, err
	}
	e.rememberSettings(ctx, owner, protocol, req)
	return result, nil
}

func (e *Engine) submitInstance(ctx context.Context, store *session.Store, instanceID string, protocol types.Protocol, req types.RequestBackTestData, returnPositions bool) (*types.BackTestResultData, error) {
	log := e.log.With(zap.String("session", store.ID), zap.String("instance", instanceID), zap.String("protocol", string(protocol)))
	store.Dispatch(
		session.SetSetting{InstanceID: instanceID, Settings: &req},
		session.SetStatus{InstanceID: instanceID, Status: session.StatusTesting},
	)

	results, err := e.sim.Simulate(ctx, protocol, types.SimulateRequest{RequestBackTestData: req, IsReturnPositions: returnPositions})
	if err == nil && len(results) == 0 {
		err = ErrEmptyResult
	}
	if err != nil {
		store.Dispatch(session.SetStatus{InstanceID: instanceID, Status: session.StatusSetting})
		log.Warn("backtest failed", zap.Error(err))
		return nil, fmt.Errorf("simulate %s: %w", protocol, err)
	}

	result := results[0]
	store.Dispatch(
		session.SetStatus{InstanceID: instanceID, Status: session.StatusTested},
		session.SetResult{InstanceID: instanceID, Result: &result},
	)
	log.Info("backtest done", zap.Float64("profit", result.ProfitOrZero()), zap.Float64("roi", result.Roi))
	return &result, nil
}

// SubmitBatch backtests the same settings against many accounts in one call.
func (e *Engine) SubmitBatch(ctx context.Context, batch *Batch, protocol types.Protocol, values form.Values, accounts []string, owner string) error {
	if len(accounts) == 0 {
		return ErrNoAccounts
	}
	if err := form.Validate(values, e.config.now()); err != nil {
		return err
	}
	req := values.ToRequest(accounts...)
	batch.begin(req)

	results, err := e.sim.Simulate(ctx, protocol, types.SimulateRequest{RequestBackTestData: req})
	if err != nil {
		batch.fail()
		e.log.Warn("batch backtest failed", zap.String("batch", batch.ID), zap.Int("accounts", len(accounts)), zap.Error(err))
		return fmt.Errorf("simulate %s batch: %w", protocol, err)
	}

	// Per-position detail is dropped to bound memory for large batches.
	stripped := make([]types.BackTestResultData, 0, len(results))
	for _, r := range results {
		stripped = append(stripped, r.WithoutPositions())
	}
	batch.complete(stripped)
	e.log.Info("batch backtest done", zap.String("batch", batch.ID), zap.Int("results", len(stripped)))
	e.rememberSettings(ctx, owner, protocol, req)
	return nil
}

// Share stores the encoded settings and sort with the share endpoint. It returns the
// shared id and the query that was sent.
func (e *Engine) Share(ctx context.Context, protocol types.Protocol, settings types.RequestBackTestData, sort *types.SortSpec) (string, types.ShareQuery, error) {
	encoded := codec.StringifyRequestData(settings, protocol)
	if len(encoded) == 0 {
		return "", types.ShareQuery{}, ErrNothingToShare
	}
	setting := make(map[string]string, len(encoded))
	for k := range encoded {
		setting[k] = encoded.Get(k)
	}
	query := types.ShareQuery{Setting: setting, Sort: sort}
	id, err := e.share.Share(ctx, protocol, types.ShareRequest{Type: types.ShareTypeBacktest, Query: query})
	if err != nil {
		return "", types.ShareQuery{}, fmt.Errorf("share backtest: %w", err)
	}
	return id, query, nil
}

// BatchTable joins a finished batch with trader metadata into a sortable table.
func (e *Engine) BatchTable(ctx context.Context, protocol types.Protocol, snap BatchSnapshot) (*ResultTable, error) {
	if snap.Settings == nil {
		return NewResultTable(nil, e.config.pageSize), nil
	}
	traders := map[string]types.TraderData{}
	if e.traders != nil {
		accounts := make([]string, 0, len(snap.Results))
		for _, r := range snap.Results {
			accounts = append(accounts, r.Account)
		}
		found, err := e.traders.Traders(ctx, protocol, accounts)
		if err != nil {
			// Rows without identity decoration are still shown.
			e.log.Warn("load trader data", zap.Error(err))
		} else {
			traders = found
		}
	}
	rows := BuildTableRows(snap.Results, *snap.Settings, traders)
	return NewResultTable(rows, e.config.pageSize), nil
}

func (e *Engine) rememberSettings(ctx context.Context, owner string, protocol types.Protocol, req types.RequestBackTestData) {
	if e.settings == nil || owner == "" {
		return
	}
	if err := e.settings.SaveLastSettings(ctx, owner, protocol, req); err != nil {
		e.log.Warn("save last settings", zap.String("owner", owner), zap.Error(err))
	}
}
