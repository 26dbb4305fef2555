package engine

import (
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
)

type csvRow struct {
	Account              string  `csv:"account"`
	Balance              string  `csv:"balance"`
	Profit               float64 `csv:"profit"`
	Roi                  float64 `csv:"roi"`
	MaxRoi               float64 `csv:"max_roi"`
	WinRate              float64 `csv:"win_rate"`
	GainLossRatio        float64 `csv:"gain_loss_ratio"`
	ProfitLossRatio      float64 `csv:"profit_loss_ratio"`
	MaxDrawDown          float64 `csv:"max_drawdown"`
	MaxDrawUp            float64 `csv:"max_drawup"`
	MaxVolMultiplier     float64 `csv:"max_vol_multiplier"`
	RoiWMaxDrawDownRatio float64 `csv:"roi_w_max_drawdown_ratio"`
	FundTier             int     `csv:"fund_tier"`
	VolumeSuggestion     float64 `csv:"volume_suggestion"`
	TotalTrade           int     `csv:"total_trade"`
	TraderPnl            string  `csv:"trader_pnl"`
	TraderWinRate        string  `csv:"trader_win_rate"`
}

// WriteTableCSVFile writes rows to a CSV file at the given path.
func WriteTableCSVFile(path string, rows []TableRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create table file: %w", err)
	}
	defer f.Close()

	return WriteTableCSV(f, rows)
}

// WriteTableCSV writes rows, in the order given, to any io.Writer as CSV.
func WriteTableCSV(w io.Writer, rows []TableRow) error {
	records := make([]*csvRow, 0, len(rows))
	for _, r := range rows {
		rec := &csvRow{
			Account:              r.Account,
			Balance:              r.Balance.StringFixed(2),
			Profit:               r.ProfitOrZero(),
			Roi:                  r.Roi,
			MaxRoi:               r.MaxRoi,
			WinRate:              r.WinRate,
			GainLossRatio:        r.GainLossRatio,
			ProfitLossRatio:      r.ProfitLossRatio,
			MaxDrawDown:          r.MaxDrawDown,
			MaxDrawUp:            r.MaxDrawUp,
			MaxVolMultiplier:     r.MaxVolMultiplier,
			RoiWMaxDrawDownRatio: r.RoiWMaxDrawDownRatio,
			FundTier:             r.FundTier,
			VolumeSuggestion:     r.VolumeSuggestion,
			TotalTrade:           r.TotalTrade,
		}
		if r.TraderData != nil {
			rec.TraderPnl = fmt.Sprintf("%.2f", r.TraderData.Pnl)
			rec.TraderWinRate = fmt.Sprintf("%.2f", r.TraderData.WinRate)
		}
		records = append(records, rec)
	}
	if err := gocsv.Marshal(records, w); err != nil {
		return fmt.Errorf("write table csv: %w", err)
	}
	return nil
}
