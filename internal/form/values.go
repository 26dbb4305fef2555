package form

import (
	"copin/types"
	"time"
)

const (
	DefaultCapital        = 1000
	DefaultMargin         = 100
	DefaultLeverage       = 5
	DefaultLookBackOrders = 10
	DefaultRangeDays      = 30
)

// Values is what the user edits before submitting a backtest.
type Values struct {
	Capital              float64        `json:"capital" validate:"gt=0"`
	Margin               float64        `json:"margin" validate:"gt=0,ltefield=Capital"`
	Leverage             float64        `json:"leverage" validate:"gte=2"`
	Pairs                []string       `json:"pairs"`
	CopyAll              bool           `json:"copyAll"`
	StartTime            time.Time      `json:"startTime"`
	EndTime              time.Time      `json:"endTime"`
	VolumeProtection     bool           `json:"volumeProtection"`
	LookBackOrders       int            `json:"lookBackOrders" validate:"gte=0"`
	EnableStopLoss       bool           `json:"enableStopLoss"`
	StopLossType         types.SLTPType `json:"stopLossType" validate:"omitempty,oneof=USD PERCENT"`
	StopLossAmount       float64        `json:"stopLossAmount" validate:"gte=0"`
	EnableTakeProfit     bool           `json:"enableTakeProfit"`
	TakeProfitType       types.SLTPType `json:"takeProfitType" validate:"omitempty,oneof=USD PERCENT"`
	TakeProfitAmount     float64        `json:"takeProfitAmount" validate:"gte=0"`
	MaxMarginPerPosition *float64       `json:"maxMarginPerPosition,omitempty" validate:"omitempty,gt=0"`
	ReverseCopy          bool           `json:"reverseCopy"`
}

// Yesterday returns 00:00 UTC of the day before now.
func Yesterday(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// Default builds the initial form for a protocol. Cross-margin protocols have no
// per-position margin to protect, so the look-back window starts disabled there.
func Default(protocol types.Protocol, now time.Time) Values {
	info, _ := types.LookupProtocol(protocol)
	end := Yesterday(now)
	v := Values{
		Capital:        DefaultCapital,
		Margin:         DefaultMargin,
		Leverage:       DefaultLeverage,
		Pairs:          info.TokenAddresses,
		CopyAll:        true,
		StartTime:      end.AddDate(0, 0, -DefaultRangeDays),
		EndTime:        end,
		StopLossType:   types.SLTPTypeUSD,
		TakeProfitType: types.SLTPTypeUSD,
	}
	if !info.CrossMargin() {
		v.VolumeProtection = true
		v.LookBackOrders = DefaultLookBackOrders
	}
	return v
}

// FromRequest pre-fills a form from a previously submitted or shared request.
func FromRequest(req *types.RequestBackTestData) *Values {
	if req == nil {
		return nil
	}
	v := &Values{
		Capital:        req.Balance,
		Margin:         req.OrderVolume,
		Leverage:       req.Leverage,
		Pairs:          append([]string(nil), req.TokenAddresses...),
		CopyAll:        req.CopyAll,
		StartTime:      time.UnixMilli(req.FromTime).UTC(),
		EndTime:        time.UnixMilli(req.ToTime).UTC(),
		StopLossType:   types.SLTPTypeUSD,
		TakeProfitType: types.SLTPTypeUSD,
		ReverseCopy:    req.ReverseCopy,
	}
	if req.LookBackOrders != nil && *req.LookBackOrders > 0 {
		v.VolumeProtection = true
		v.LookBackOrders = *req.LookBackOrders
	}
	if req.StopLossAmount != nil && *req.StopLossAmount > 0 {
		v.EnableStopLoss = true
		v.StopLossAmount = *req.StopLossAmount
		if req.StopLossType.Valid() {
			v.StopLossType = req.StopLossType
		}
	}
	if req.TakeProfitAmount != nil && *req.TakeProfitAmount > 0 {
		v.EnableTakeProfit = true
		v.TakeProfitAmount = *req.TakeProfitAmount
		if req.TakeProfitType.Valid() {
			v.TakeProfitType = req.TakeProfitType
		}
	}
	if req.MaxVolMultiplier != nil && *req.MaxVolMultiplier > 0 {
		maxMargin := *req.MaxVolMultiplier * req.OrderVolume
		v.MaxMarginPerPosition = &maxMargin
	}
	return v
}

// ToRequest builds the simulator payload for the given accounts.
func (v Values) ToRequest(accounts ...string) types.RequestBackTestData {
	req := types.RequestBackTestData{
		Accounts:       append([]string(nil), accounts...),
		Balance:        v.Capital,
		OrderVolume:    v.Margin,
		Leverage:       v.Leverage,
		TokenAddresses: append([]string(nil), v.Pairs...),
		FromTime:       v.StartTime.UnixMilli(),
		ToTime:         v.EndTime.UnixMilli(),
		ReverseCopy:    v.ReverseCopy,
		CopyAll:        v.CopyAll,
	}
	if v.VolumeProtection && v.LookBackOrders > 0 {
		lookBack := v.LookBackOrders
		req.LookBackOrders = &lookBack
	}
	if v.EnableStopLoss && v.StopLossAmount > 0 {
		amount := v.StopLossAmount
		req.StopLossAmount = &amount
		req.StopLossType = orUSD(v.StopLossType)
	}
	if v.EnableTakeProfit && v.TakeProfitAmount > 0 {
		amount := v.TakeProfitAmount
		req.TakeProfitAmount = &amount
		req.TakeProfitType = orUSD(v.TakeProfitType)
	}
	if v.MaxMarginPerPosition != nil && *v.MaxMarginPerPosition > 0 && v.Margin > 0 {
		multiplier := *v.MaxMarginPerPosition / v.Margin
		req.MaxVolMultiplier = &multiplier
	}
	return req
}

func orUSD(t types.SLTPType) types.SLTPType {
	if t.Valid() {
		return t
	}
	return types.SLTPTypeUSD
}
