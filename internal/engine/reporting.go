package engine

import (
	"copin/types"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/shopspring/decimal"
)

var ErrUnknownSortColumn = errors.New("unknown sort column")

// TableRow is a simulation result decorated for display. Rows are derived on demand and
// never written back to the results they came from.
type TableRow struct {
	types.BackTestResultData
	Balance    decimal.Decimal   `json:"balance"`
	TraderData *types.TraderData `json:"traderData,omitempty"`
}

// BuildTableRows computes balance = settings.balance + profit for each result and
// attaches trader metadata when known.
func BuildTableRows(results []types.BackTestResultData, settings types.RequestBackTestData, traders map[string]types.TraderData) []TableRow {
	balance := decimal.NewFromFloat(settings.Balance)
	rows := make([]TableRow, 0, len(results))
	for _, r := range results {
		row := TableRow{
			BackTestResultData: r.WithoutPositions(),
			Balance:            balance.Add(decimal.NewFromFloat(r.ProfitOrZero())),
		}
		if trader, ok := traders[r.Account]; ok {
			row.TraderData = &trader
		}
		rows = append(rows, row)
	}
	return rows
}

var sortColumns = map[string]func(r TableRow) float64{
	"balance":              func(r TableRow) float64 { return r.Balance.InexactFloat64() },
	"profit":               func(r TableRow) float64 { return r.ProfitOrZero() },
	"roi":                  func(r TableRow) float64 { return r.Roi },
	"maxRoi":               func(r TableRow) float64 { return r.MaxRoi },
	"winRate":              func(r TableRow) float64 { return r.WinRate },
	"gainLossRatio":        func(r TableRow) float64 { return r.GainLossRatio },
	"profitLossRatio":      func(r TableRow) float64 { return r.ProfitLossRatio },
	"maxDrawDown":          func(r TableRow) float64 { return r.MaxDrawDown },
	"maxDrawUp":            func(r TableRow) float64 { return r.MaxDrawUp },
	"maxVolMultiplier":     func(r TableRow) float64 { return r.MaxVolMultiplier },
	"roiWMaxDrawDownRatio": func(r TableRow) float64 { return r.RoiWMaxDrawDownRatio },
	"volumeSuggestion":     func(r TableRow) float64 { return r.VolumeSuggestion },
	"fundTier":             func(r TableRow) float64 { return float64(r.FundTier) },
	"totalTrade":           func(r TableRow) float64 { return float64(r.TotalTrade) },
}

func SortColumns() []string {
	out := make([]string, 0, len(sortColumns))
	for k := range sortColumns {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ResultTable sorts and paginates rows. The rows it was built from keep their order.
type ResultTable struct {
	rows     []TableRow
	sorted   []TableRow
	sort     *types.SortSpec
	page     int
	pageSize int
}

type Page struct {
	Rows        []TableRow      `json:"rows"`
	CurrentPage int             `json:"currentPage"`
	TotalPages  int             `json:"totalPages"`
	Total       int             `json:"total"`
	PageSize    int             `json:"pageSize"`
	Sort        *types.SortSpec `json:"sort,omitempty"`
}

func NewResultTable(rows []TableRow, pageSize int) *ResultTable {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &ResultTable{
		rows:     rows,
		sorted:   rows,
		page:     1,
		pageSize: pageSize,
	}
}

// SetSort orders a deep copy of the rows by one numeric column and goes back to page 1.
func (t *ResultTable) SetSort(spec types.SortSpec) error {
	key, ok := sortColumns[spec.Column]
	if !ok {
		return fmt.Errorf("%s %w", spec.Column, ErrUnknownSortColumn)
	}
	copied, err := cloneRows(t.rows)
	if err != nil {
		return fmt.Errorf("copy rows: %w", err)
	}
	desc := spec.Direction == types.SortDesc
	sort.SliceStable(copied, func(i, j int) bool {
		a, b := key(copied[i]), key(copied[j])
		if desc {
			return a > b
		}
		return a < b
	})
	t.sorted = copied
	t.sort = &spec
	t.page = 1
	return nil
}

// SetPage moves to a 1-based page, clamped to the available range.
func (t *ResultTable) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	if total := t.TotalPages(); page > total {
		page = total
	}
	t.page = page
}

func (t *ResultTable) TotalPages() int {
	if len(t.sorted) == 0 {
		return 1
	}
	return (len(t.sorted) + t.pageSize - 1) / t.pageSize
}

func (t *ResultTable) CurrentPage() int {
	return t.page
}

func (t *ResultTable) Page() Page {
	start := (t.page - 1) * t.pageSize
	end := start + t.pageSize
	if start > len(t.sorted) {
		start = len(t.sorted)
	}
	if end > len(t.sorted) {
		end = len(t.sorted)
	}
	return Page{
		Rows:        t.sorted[start:end],
		CurrentPage: t.page,
		TotalPages:  t.TotalPages(),
		Total:       len(t.sorted),
		PageSize:    t.pageSize,
		Sort:        t.sort,
	}
}

// Rows returns every row in the current sort order.
func (t *ResultTable) Rows() []TableRow {
	return t.sorted
}

func cloneRows(rows []TableRow) ([]TableRow, error) {
	var out []TableRow
	err := copier.CopyWithOption(&out, &rows, copier.Option{
		DeepCopy: true,
		// decimal.Decimal and time.Time keep their state in unexported fields.
		Converters: []copier.TypeConverter{
			{
				SrcType: decimal.Decimal{},
				DstType: decimal.Decimal{},
				Fn:      func(src interface{}) (interface{}, error) { return src.(decimal.Decimal), nil },
			},
			{
				SrcType: time.Time{},
				DstType: time.Time{},
				Fn:      func(src interface{}) (interface{}, error) { return src.(time.Time), nil },
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Summary is the single-instance result view.
type Summary struct {
	Account     string          `json:"account"`
	Capital     decimal.Decimal `json:"capital"`
	Profit      decimal.Decimal `json:"profit"`
	Balance     decimal.Decimal `json:"balance"`
	Roi         float64         `json:"roi"`
	MaxDrawDown float64         `json:"maxDrawDown"`
	WinRate     float64         `json:"winRate"`
	TotalTrade  int             `json:"totalTrade"`
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
}

func SingleSummary(settings types.RequestBackTestData, result types.BackTestResultData) Summary {
	capital := decimal.NewFromFloat(settings.Balance)
	profit := decimal.NewFromFloat(result.ProfitOrZero())
	account := result.Account
	if account == "" && len(settings.Accounts) > 0 {
		account = settings.Accounts[0]
	}
	return Summary{
		Account:     account,
		Capital:     capital,
		Profit:      profit,
		Balance:     capital.Add(profit),
		Roi:         result.Roi,
		MaxDrawDown: result.MaxDrawDown,
		WinRate:     result.WinRate,
		TotalTrade:  result.TotalTrade,
		From:        time.UnixMilli(settings.FromTime).UTC(),
		To:          time.UnixMilli(settings.ToTime).UTC(),
	}
}

func PrintSummary(w io.Writer, s Summary) {
	fmt.Fprintln(w, "===== Backtest Result =====")
	fmt.Fprintf(w, "Account:               %s\n", s.Account)
	fmt.Fprintf(w, "Period:                %s - %s\n", s.From.Format("2006-01-02"), s.To.Format("2006-01-02"))
	fmt.Fprintf(w, "Capital:               %s\n", s.Capital.StringFixed(2))
	fmt.Fprintf(w, "Profit:                %s\n", s.Profit.StringFixed(2))
	fmt.Fprintf(w, "Balance:               %s\n", s.Balance.StringFixed(2))
	fmt.Fprintf(w, "ROI:                   %.2f%%\n", s.Roi)
	fmt.Fprintf(w, "Max Drawdown:          %.2f%%\n", s.MaxDrawDown)
	fmt.Fprintf(w, "Win Rate:              %.2f%%\n", s.WinRate)
	fmt.Fprintf(w, "Total Trades:          %d\n", s.TotalTrade)
	fmt.Fprintln(w, "===========================")
}

// BatchReport aggregates a multi-account run.
type BatchReport struct {
	Accounts     int             `json:"accounts"`
	Profitable   int             `json:"profitable"`
	TotalProfit  decimal.Decimal `json:"totalProfit"`
	AvgRoi       decimal.Decimal `json:"avgRoi"`
	BestAccount  string          `json:"bestAccount"`
	BestRoi      float64         `json:"bestRoi"`
	WorstAccount string          `json:"worstAccount"`
	WorstRoi     float64         `json:"worstRoi"`
	AvgWinRate   decimal.Decimal `json:"avgWinRate"`
}

func GenerateBatchReport(rows []TableRow) *BatchReport {
	report := &BatchReport{Accounts: len(rows)}
	if len(rows) == 0 {
		return report
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		report.TotalProfit, report.Profitable = calcProfit(rows, &wg)
	}()
	go func() {
		report.AvgRoi = calcAverage(rows, func(r TableRow) float64 { return r.Roi }, &wg)
	}()
	go func() {
		report.AvgWinRate = calcAverage(rows, func(r TableRow) float64 { return r.WinRate }, &wg)
	}()
	go func() {
		report.BestAccount, report.BestRoi, report.WorstAccount, report.WorstRoi = calcRoiExtremes(rows, &wg)
	}()
	wg.Wait()

	return report
}

func PrintBatchReport(w io.Writer, r *BatchReport) {
	fmt.Fprintln(w, "===== Batch Backtest =====")
	fmt.Fprintf(w, "Accounts:              %d\n", r.Accounts)
	fmt.Fprintf(w, "Profitable:            %d\n", r.Profitable)
	fmt.Fprintf(w, "Total Profit:          %s\n", r.TotalProfit.StringFixed(2))
	fmt.Fprintf(w, "Avg ROI:               %s%%\n", r.AvgRoi.StringFixed(2))
	fmt.Fprintf(w, "Avg Win Rate:          %s%%\n", r.AvgWinRate.StringFixed(2))
	fmt.Fprintf(w, "Best:                  %s (%.2f%%)\n", r.BestAccount, r.BestRoi)
	fmt.Fprintf(w, "Worst:                 %s (%.2f%%)\n", r.WorstAccount, r.WorstRoi)
	fmt.Fprintln(w, "==========================")
}

func calcProfit(rows []TableRow, wg *sync.WaitGroup) (decimal.Decimal, int) {
	defer wg.Done()
	total := decimal.Zero
	profitable := 0
	for _, r := range rows {
		p := r.ProfitOrZero()
		total = total.Add(decimal.NewFromFloat(p))
		if p > 0 {
			profitable++
		}
	}
	return total, profitable
}

func calcAverage(rows []TableRow, key func(r TableRow) float64, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(decimal.NewFromFloat(key(r)))
	}
	return sum.Div(decimal.NewFromInt(int64(len(rows))))
}

func calcRoiExtremes(rows []TableRow, wg *sync.WaitGroup) (string, float64, string, float64) {
	defer wg.Done()
	best, worst := rows[0], rows[0]
	for _, r := range rows[1:] {
		if r.Roi > best.Roi {
			best = r
		}
		if r.Roi < worst.Roi {
			worst = r
		}
	}
	return best.Account, best.Roi, worst.Account, worst.Roi
}
