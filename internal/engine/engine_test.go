package engine

import (
	"context"
	"copin/internal/codec"
	"copin/internal/form"
	"copin/internal/session"
	"copin/types"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type mockSimulator struct {
	mu      sync.Mutex
	calls   []types.SimulateRequest
	results []types.BackTestResultData
	err     error
	block   chan struct{}
	started chan struct{}
}

func (m *mockSimulator) Simulate(_ context.Context, _ types.Protocol, req types.SimulateRequest) ([]types.BackTestResultData, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

func (m *mockSimulator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockSharer struct {
	got types.ShareRequest
	id  string
	err error
}

func (m *mockSharer) Share(_ context.Context, _ types.Protocol, req types.ShareRequest) (string, error) {
	m.got = req
	return m.id, m.err
}

type mockSettingsStore struct {
	saved map[string]types.RequestBackTestData
}

func (m *mockSettingsStore) SaveLastSettings(_ context.Context, owner string, _ types.Protocol, req types.RequestBackTestData) error {
	if m.saved == nil {
		m.saved = make(map[string]types.RequestBackTestData)
	}
	m.saved[owner] = req
	return nil
}

func newTestEngine(sim simulator, share sharer) *Engine {
	return NewEngine(sim, share, NewEngineConfig(10).WithClock(func() time.Time { return testNow }), nil)
}

func profit(v float64) *float64 { return &v }

func TestEngine_SubmitHappyPath(t *testing.T) {
	sim := &mockSimulator{results: []types.BackTestResultData{{Account: "0xabc", Profit: profit(250), Roi: 25}}}
	settings := &mockSettingsStore{}
	eng := newTestEngine(sim, nil)
	eng.UseSettingsStore(settings)
	store := session.NewStore("s1", session.NewState(nil))

	values := form.Default(types.ProtocolGMX, testNow)
	if !values.StartTime.Equal(form.Yesterday(testNow).AddDate(0, 0, -30)) {
		t.Fatalf("unexpected default start %v", values.StartTime)
	}
	result, err := eng.Submit(context.Background(), store, types.ProtocolGMX, values, "0xabc", "owner-1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sim.callCount() != 1 {
		t.Fatalf("simulate calls = %d, want 1", sim.callCount())
	}
	req := sim.calls[0]
	if req.Balance != 1000 || req.OrderVolume != 100 || req.Leverage != 5 {
		t.Errorf("request amounts = %v/%v/%v", req.Balance, req.OrderVolume, req.Leverage)
	}
	if req.IsReturnPositions {
		t.Errorf("manual submission should not ask for positions")
	}

	cur := store.State().Current()
	if cur.Status != session.StatusTested || cur.Result == nil || cur.Settings == nil {
		t.Fatalf("instance = %+v", cur)
	}
	summary := SingleSummary(*cur.Settings, *result)
	if summary.Balance.String() != "1250" {
		t.Errorf("balance = %s, want 1250", summary.Balance)
	}
	if _, ok := settings.saved["owner-1"]; !ok {
		t.Errorf("settings were not remembered")
	}
}

func TestEngine_SubmitFailureRevertsStatus(t *testing.T) {
	sim := &mockSimulator{err: errors.New("boom")}
	eng := newTestEngine(sim, nil)
	inbound := &types.RequestBackTestData{Accounts: []string{"0xabc"}, Balance: 1000, OrderVolume: 100, Leverage: 5}
	store := session.NewStore("s1", session.NewState(inbound))
	if store.State().Current().Status != session.StatusTesting {
		t.Fatalf("inbound state should start testing")
	}

	values := *form.FromRequest(inbound)
	values.StartTime = form.Yesterday(testNow).AddDate(0, 0, -7)
	values.EndTime = form.Yesterday(testNow)
	values.CopyAll = true
	_, err := eng.Submit(context.Background(), store, types.ProtocolGMX, values, "0xabc", "")
	if err == nil {
		t.Fatalf("Submit() error = nil, want failure")
	}
	cur := store.State().Current()
	if cur.Status != session.StatusSetting {
		t.Errorf("status = %v, want setting", cur.Status)
	}
	if cur.Settings == nil || cur.Settings.Balance != 1000 {
		t.Errorf("settings = %+v, want kept", cur.Settings)
	}
}

func TestEngine_SubmitValidationNeverCallsSimulator(t *testing.T) {
	sim := &mockSimulator{}
	eng := newTestEngine(sim, nil)
	store := session.NewStore("s1", session.NewState(nil))
	values := form.Default(types.ProtocolGMX, testNow)
	values.Leverage = 1

	_, err := eng.Submit(context.Background(), store, types.ProtocolGMX, values, "0xabc", "")
	if !errors.Is(err, form.ErrInvalidValues) {
		t.Fatalf("Submit() error = %v, want ErrInvalidValues", err)
	}
	if sim.callCount() != 0 {
		t.Errorf("simulator called for invalid values")
	}
	if store.State().Current().Status != session.StatusSetting {
		t.Errorf("status changed on invalid values")
	}
}

func TestEngine_SubmitEmptyResult(t *testing.T) {
	eng := newTestEngine(&mockSimulator{}, nil)
	store := session.NewStore("s1", session.NewState(nil))
	_, err := eng.Submit(context.Background(), store, types.ProtocolGMX, form.Default(types.ProtocolGMX, testNow), "0xabc", "")
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("Submit() error = %v, want ErrEmptyResult", err)
	}
	if store.State().Current().Status != session.StatusSetting {
		t.Errorf("status = %v, want setting", store.State().Current().Status)
	}
}

func TestEngine_ResultFollowsOriginatingInstance(t *testing.T) {
	sim := &mockSimulator{
		results: []types.BackTestResultData{{Account: "0xabc", Profit: profit(1)}},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	eng := newTestEngine(sim, nil)
	store := session.NewStore("s1", session.NewState(nil))
	origin := store.State().CurrentInstanceID

	done := make(chan error, 1)
	go func() {
		_, err := eng.Submit(context.Background(), store, types.ProtocolGMX, form.Default(types.ProtocolGMX, testNow), "0xabc", "")
		done <- err
	}()
	<-sim.started
	// The user opens another tab while the request is in flight.
	focused := store.Dispatch(session.AddNewInstance{}).CurrentInstanceID
	close(sim.block)
	if err := <-done; err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	s := store.State()
	if s.Instances[origin].Status != session.StatusTested || s.Instances[origin].Result == nil {
		t.Errorf("origin instance = %+v, want tested", s.Instances[origin])
	}
	if s.Instances[focused].Status != session.StatusSetting || s.Instances[focused].Result != nil {
		t.Errorf("focused instance = %+v, want untouched", s.Instances[focused])
	}
}

func TestEngine_SubmitBatch(t *testing.T) {
	sim := &mockSimulator{results: []types.BackTestResultData{
		{Account: "0x1", Profit: profit(10), SimulatorPositions: []types.SimulatorPosition{{ID: "p1"}}},
		{Account: "0x2", SimulatorPositions: []types.SimulatorPosition{{ID: "p2"}}},
	}}
	eng := newTestEngine(sim, nil)
	batch := NewBatch()

	err := eng.SubmitBatch(context.Background(), batch, types.ProtocolGMX, form.Default(types.ProtocolGMX, testNow), []string{"0x1", "0x2"}, "")
	if err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}
	snap := batch.Snapshot()
	if !snap.IsTested || snap.Status != session.StatusTested {
		t.Errorf("batch = %+v, want tested", snap)
	}
	for _, r := range snap.Results {
		if r.SimulatorPositions != nil {
			t.Errorf("result %s kept positions", r.Account)
		}
	}
	if len(sim.calls[0].Accounts) != 2 {
		t.Errorf("accounts sent = %v", sim.calls[0].Accounts)
	}

	table, err := eng.BatchTable(context.Background(), types.ProtocolGMX, snap)
	if err != nil {
		t.Fatalf("BatchTable() error = %v", err)
	}
	rows := table.Rows()
	if rows[0].Balance.String() != "1010" || rows[1].Balance.String() != "1000" {
		t.Errorf("balances = %s, %s", rows[0].Balance, rows[1].Balance)
	}
}

func TestEngine_SubmitBatchFailure(t *testing.T) {
	eng := newTestEngine(&mockSimulator{err: errors.New("down")}, nil)
	batch := NewBatch()
	if err := eng.SubmitBatch(context.Background(), batch, types.ProtocolGMX, form.Default(types.ProtocolGMX, testNow), nil, ""); !errors.Is(err, ErrNoAccounts) {
		t.Fatalf("SubmitBatch(nil accounts) error = %v", err)
	}
	err := eng.SubmitBatch(context.Background(), batch, types.ProtocolGMX, form.Default(types.ProtocolGMX, testNow), []string{"0x1"}, "")
	if err == nil {
		t.Fatalf("SubmitBatch() error = nil")
	}
	snap := batch.Snapshot()
	if snap.Status != session.StatusSetting || snap.IsTested || snap.Settings == nil {
		t.Errorf("batch = %+v", snap)
	}
}

func TestAutoSubmitter_FiresOnce(t *testing.T) {
	sim := &mockSimulator{results: []types.BackTestResultData{{Account: "0xabc", Profit: profit(5)}}}
	eng := newTestEngine(sim, nil)
	params := codec.DecodeQuery("acc=0xabc&bal=1000&vol=100&lev=5&from=1704067200000&to=1706659200000&copy_all=1", types.ProtocolGMX)
	req := params.Request()
	store := session.NewStore("s1", session.NewState(&req))
	auto := eng.NewAutoSubmitter()

	fired, _, err := auto.Run(context.Background(), store, types.ProtocolGMX, params, false)
	if fired || err != nil {
		t.Fatalf("Run() unauthenticated fired = %v err = %v", fired, err)
	}
	fired, _, err = auto.Run(context.Background(), store, types.ProtocolGMX, codec.Params{}, true)
	if fired || err != nil {
		t.Fatalf("Run() empty params fired = %v err = %v", fired, err)
	}

	fired, result, err := auto.Run(context.Background(), store, types.ProtocolGMX, params, true)
	if !fired || err != nil || result == nil {
		t.Fatalf("Run() fired = %v result = %v err = %v", fired, result, err)
	}
	fired, _, _ = auto.Run(context.Background(), store, types.ProtocolGMX, params, true)
	if fired {
		t.Errorf("Run() fired twice")
	}
	if sim.callCount() != 1 {
		t.Errorf("simulate calls = %d, want 1", sim.callCount())
	}
	if !sim.calls[0].IsReturnPositions {
		t.Errorf("deep link submission should ask for positions")
	}
	if store.State().Current().Status != session.StatusTested {
		t.Errorf("status = %v", store.State().Current().Status)
	}
}

func TestEngine_SubmitRequiresAccount(t *testing.T) {
	sim := &mockSimulator{}
	eng := newTestEngine(sim, &mockSharer{})
	store := session.NewStore("s1", session.NewState(nil))

	for _, account := range []string{"", "   "} {
		if _, err := eng.Submit(context.Background(), store, types.ProtocolGMX, form.Default(types.ProtocolGMX, testNow), account, ""); !errors.Is(err, ErrNoAccounts) {
			t.Errorf("Submit(%q) error = %v, want ErrNoAccounts", account, err)
		}
	}
	if sim.callCount() != 0 {
		t.Errorf("simulate calls = %d, want 0", sim.callCount())
	}
	if cur := store.State().Current(); cur.Status != session.StatusSetting || cur.Settings != nil {
		t.Errorf("instance = %+v, want untouched", cur)
	}
}

func TestEngine_Share(t *testing.T) {
	share := &mockSharer{id: "abc123"}
	eng := newTestEngine(&mockSimulator{}, share)
	settings := types.RequestBackTestData{Accounts: []string{"0x1"}, Balance: 1000, OrderVolume: 100, Leverage: 5, CopyAll: true}
	sort := &types.SortSpec{Column: "roi", Direction: types.SortDesc}

	id, query, err := eng.Share(context.Background(), types.ProtocolGMX, settings, sort)
	if err != nil || id != "abc123" {
		t.Fatalf("Share() = %q, %v", id, err)
	}
	if share.got.Type != types.ShareTypeBacktest || share.got.Query.Setting[codec.KeyBalance] != "1000" || share.got.Query.Sort != sort {
		t.Errorf("share request = %+v", share.got)
	}
	if !reflect.DeepEqual(query, share.got.Query) {
		t.Errorf("Share() query = %+v, want the sent %+v", query, share.got.Query)
	}

	share.err = errors.New("nope")
	if _, _, err := eng.Share(context.Background(), types.ProtocolGMX, settings, nil); err == nil {
		t.Errorf("Share() error = nil, want failure")
	}
	if _, _, err := eng.Share(context.Background(), types.Protocol("NOPE"), settings, nil); !errors.Is(err, ErrNothingToShare) {
		t.Errorf("Share() error = %v, want ErrNothingToShare", err)
	}
}
