package types

// RequestBackTestData is the payload the simulator expects for one submission.
type RequestBackTestData struct {
	Accounts         []string `json:"accounts"`
	Balance          float64  `json:"balance"`
	OrderVolume      float64  `json:"orderVolume"`
	Leverage         float64  `json:"leverage"`
	TokenAddresses   []string `json:"tokenAddresses,omitempty"`
	FromTime         int64    `json:"fromTime"`
	ToTime           int64    `json:"toTime"`
	LookBackOrders   *int     `json:"lookBackOrders,omitempty"`
	StopLossType     SLTPType `json:"stopLossType,omitempty"`
	StopLossAmount   *float64 `json:"stopLossAmount,omitempty"`
	TakeProfitType   SLTPType `json:"takeProfitType,omitempty"`
	TakeProfitAmount *float64 `json:"takeProfitAmount,omitempty"`
	MaxVolMultiplier *float64 `json:"maxVolMultiplier,omitempty"`
	ReverseCopy      bool     `json:"reverseCopy"`
	CopyAll          bool     `json:"copyAll"`
}

// Clone returns a copy that shares no slices or pointers with r.
func (r RequestBackTestData) Clone() RequestBackTestData {
	out := r
	out.Accounts = append([]string(nil), r.Accounts...)
	if r.TokenAddresses != nil {
		out.TokenAddresses = append([]string(nil), r.TokenAddresses...)
	}
	out.LookBackOrders = clonePtr(r.LookBackOrders)
	out.StopLossAmount = clonePtr(r.StopLossAmount)
	out.TakeProfitAmount = clonePtr(r.TakeProfitAmount)
	out.MaxVolMultiplier = clonePtr(r.MaxVolMultiplier)
	return out
}

// SimulateRequest is RequestBackTestData plus transport-only flags.
type SimulateRequest struct {
	RequestBackTestData
	IsReturnPositions bool `json:"isReturnPositions,omitempty"`
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
