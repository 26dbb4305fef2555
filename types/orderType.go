package types

type Side string

type Direction string

type SLTPType string

type OrderKind string

const (
	SideTypeBuy  Side = "BUY"
	SideTypeSell Side = "SELL"

	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"

	// SLTPTypeUSD is an absolute amount, SLTPTypePercent is a percentage of ROI.
	SLTPTypeUSD     SLTPType = "USD"
	SLTPTypePercent SLTPType = "PERCENT"

	OrderKindOpen     OrderKind = "OPEN"
	OrderKindIncrease OrderKind = "INCREASE"
	OrderKindDecrease OrderKind = "DECREASE"
	OrderKindClose    OrderKind = "CLOSE"
	OrderKindLiquid   OrderKind = "LIQUIDATE"
)

func (t SLTPType) Valid() bool {
	return t == SLTPTypeUSD || t == SLTPTypePercent
}
