package types

import "time"

// BackTestResultData is one account's simulation outcome.
type BackTestResultData struct {
	Account              string   `json:"account"`
	Protocol             string   `json:"protocol,omitempty"`
	Profit               *float64 `json:"profit,omitempty"` // nil when the simulator opened no positions
	Roi                  float64  `json:"roi"`
	MaxRoi               float64  `json:"maxRoi"`
	WinRate              float64  `json:"winRate"`
	GainLossRatio        float64  `json:"gainLossRatio"`
	ProfitLossRatio      float64  `json:"profitLossRatio"`
	MaxDrawDown          float64  `json:"maxDrawDown"`
	MaxDrawUp            float64  `json:"maxDrawUp"`
	MaxVolMultiplier     float64  `json:"maxVolMultiplier"`
	RoiWMaxDrawDownRatio float64  `json:"roiWMaxDrawDownRatio"`
	FundTier             int      `json:"fundTier"`
	VolumeSuggestion     float64  `json:"volumeSuggestion"`
	TotalTrade           int      `json:"totalTrade"`
	TotalWin             int      `json:"totalWin"`
	TotalLose            int      `json:"totalLose"`

	SimulatorPositions []SimulatorPosition `json:"simulatorPositions,omitempty"`
}

func (r BackTestResultData) ProfitOrZero() float64 {
	if r.Profit == nil {
		return 0
	}
	return *r.Profit
}

// WithoutPositions drops the per-trade detail.
func (r BackTestResultData) WithoutPositions() BackTestResultData {
	r.SimulatorPositions = nil
	return r
}

// SimulatorPosition is one simulated copy of a trader position.
type SimulatorPosition struct {
	ID          string           `json:"id"`
	Account     string           `json:"account"`
	IndexToken  string           `json:"indexToken"`
	Direction   Direction        `json:"direction"`
	Leverage    float64          `json:"leverage"`
	Size        float64          `json:"size"`
	Collateral  float64          `json:"collateral"`
	EntryPrice  float64          `json:"averagePrice"`
	ClosePrice  float64          `json:"closePrice"`
	Pnl         float64          `json:"pnl"`
	Roi         float64          `json:"roi"`
	OpenedAt    time.Time        `json:"openBlockTime"`
	ClosedAt    time.Time        `json:"closeBlockTime"`
	IsLiquidate bool             `json:"isLiquidate"`
	Orders      []SimulatorOrder `json:"orders,omitempty"`
}

type SimulatorOrder struct {
	Kind      OrderKind `json:"type"`
	Price     float64   `json:"price"`
	SizeDelta float64   `json:"sizeDeltaNumber"`
	BlockTime time.Time `json:"blockTime"`
}

// TraderData is the identity decoration shown next to a result row.
type TraderData struct {
	Account       string  `json:"account"`
	Protocol      string  `json:"protocol"`
	Pnl           float64 `json:"pnl"`
	WinRate       float64 `json:"winRate"`
	TotalTrade    int     `json:"totalTrade"`
	AvgLeverage   float64 `json:"avgLeverage"`
	LastTradeAtTs int64   `json:"lastTradeAtTs"`
}
