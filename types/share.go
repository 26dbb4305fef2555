package types

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"

	ShareTypeBacktest = "back_test"
)

type SortSpec struct {
	Column    string        `json:"sortBy"`
	Direction SortDirection `json:"sortType"`
}

// ShareQuery is what a shared backtest link restores: the encoded settings and the
// table sort the sharer was looking at.
type ShareQuery struct {
	Setting map[string]string `json:"setting"`
	Sort    *SortSpec         `json:"sort,omitempty"`
}

type ShareRequest struct {
	Type  string     `json:"type"`
	Query ShareQuery `json:"query"`
}
