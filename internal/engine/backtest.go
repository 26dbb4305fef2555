package engine

import (
	"context"
	"copin/internal/codec"
	"copin/internal/session"
	"copin/types"
	"sync"

	"github.com/google/uuid"
)

// Batch groups a multi-account backtest.
type Batch struct {
	ID string

	mu       sync.RWMutex
	status   session.Status
	settings *types.RequestBackTestData
	results  []types.BackTestResultData
	isTested bool
}

type BatchSnapshot struct {
	ID       string                     `json:"id"`
	Status   session.Status             `json:"status"`
	Settings *types.RequestBackTestData `json:"settings"`
	Results  []types.BackTestResultData `json:"results"`
	IsTested bool                       `json:"isTested"`
}

func NewBatch() *Batch {
	return &Batch{ID: uuid.New().String(), status: session.StatusSetting}
}

func (b *Batch) Snapshot() BatchSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BatchSnapshot{
		ID:       b.ID,
		Status:   b.status,
		Settings: b.settings,
		Results:  b.results,
		IsTested: b.isTested,
	}
}

func (b *Batch) begin(req types.RequestBackTestData) {
	settings := req.Clone()
	b.mu.Lock()
	b.settings = &settings
	b.status = session.StatusTesting
	b.mu.Unlock()
}

func (b *Batch) fail() {
	b.mu.Lock()
	b.status = session.StatusSetting
	b.mu.Unlock()
}

func (b *Batch) complete(results []types.BackTestResultData) {
	b.mu.Lock()
	b.results = results
	b.status = session.StatusTested
	b.isTested = true
	b.mu.Unlock()
}

// AutoSubmitter fires the deep-link submission of a session at most once.
type AutoSubmitter struct {
	engine *Engine
	once   sync.Once
}

func (e *Engine) NewAutoSubmitter() *AutoSubmitter {
	return &AutoSubmitter{engine: e}
}

// Run submits params for the focused instance when they are complete and the caller is
// authenticated. Positions are requested because a deep link opens straight on the
// detailed result. fired is false when nothing was sent.
func (a *AutoSubmitter) Run(ctx context.Context, store *session.Store, protocol types.Protocol, params codec.Params, authenticated bool) (fired bool, result *types.BackTestResultData, err error) {
	if params.Empty() || !authenticated {
		return false, nil, nil
	}
	a.once.Do(func() {
		fired = true
		instanceID := store.State().CurrentInstanceID
		result, err = a.engine.submitInstance(ctx, store, instanceID, protocol, params.Request(), true)
	})
	return fired, result, err
}
