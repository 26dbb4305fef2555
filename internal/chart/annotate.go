// Package chart turns simulated positions into annotations for a charting widget.
package chart

import (
	"copin/types"
	"fmt"
	"time"
)

// Annotator is the narrow surface a charting widget has to offer.
type Annotator interface {
	DrawPositionLine(line PositionLine) error
	DrawOrderMarker(marker OrderMarker) error
	RemoveAll() error
}

type PositionLine struct {
	PositionID string          `json:"positionId"`
	Direction  types.Direction `json:"direction"`
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	EntryPrice float64         `json:"entryPrice"`
	ClosePrice float64         `json:"closePrice"`
	Pnl        float64         `json:"pnl"`
	Open       bool            `json:"open"`
}

type OrderMarker struct {
	PositionID string          `json:"positionId"`
	Kind       types.OrderKind `json:"kind"`
	Side       types.Side      `json:"side"`
	Time       time.Time       `json:"time"`
	Price      float64         `json:"price"`
	Text       string          `json:"text"`
}

// PlotPositions clears the chart and draws one line per position plus a marker for
// each of its orders. Positions without orders get synthetic open and close markers.
func PlotPositions(a Annotator, positions []types.SimulatorPosition) error {
	if err := a.RemoveAll(); err != nil {
		return fmt.Errorf("clear annotations: %w", err)
	}
	for _, p := range positions {
		line := PositionLine{
			PositionID: p.ID,
			Direction:  p.Direction,
			From:       p.OpenedAt,
			To:         p.ClosedAt,
			EntryPrice: p.EntryPrice,
			ClosePrice: p.ClosePrice,
			Pnl:        p.Pnl,
			Open:       p.ClosedAt.IsZero(),
		}
		if err := a.DrawPositionLine(line); err != nil {
			return fmt.Errorf("draw position %s: %w", p.ID, err)
		}
		for _, m := range orderMarkers(p) {
			if err := a.DrawOrderMarker(m); err != nil {
				return fmt.Errorf("draw order marker %s: %w", p.ID, err)
			}
		}
	}
	return nil
}

func orderMarkers(p types.SimulatorPosition) []OrderMarker {
	if len(p.Orders) == 0 {
		markers := []OrderMarker{{
			PositionID: p.ID,
			Kind:       types.OrderKindOpen,
			Side:       sideFor(p.Direction, types.OrderKindOpen),
			Time:       p.OpenedAt,
			Price:      p.EntryPrice,
			Text:       markerText(types.OrderKindOpen, p.Direction),
		}}
		if !p.ClosedAt.IsZero() {
			kind := types.OrderKindClose
			if p.IsLiquidate {
				kind = types.OrderKindLiquid
			}
			markers = append(markers, OrderMarker{
				PositionID: p.ID,
				Kind:       kind,
				Side:       sideFor(p.Direction, kind),
				Time:       p.ClosedAt,
				Price:      p.ClosePrice,
				Text:       markerText(kind, p.Direction),
			})
		}
		return markers
	}
	markers := make([]OrderMarker, 0, len(p.Orders))
	for _, o := range p.Orders {
		markers = append(markers, OrderMarker{
			PositionID: p.ID,
			Kind:       o.Kind,
			Side:       sideFor(p.Direction, o.Kind),
			Time:       o.BlockTime,
			Price:      o.Price,
			Text:       markerText(o.Kind, p.Direction),
		})
	}
	return markers
}

// sideFor maps an order on a position to the trade side it executes.
func sideFor(d types.Direction, kind types.OrderKind) types.Side {
	opening := kind == types.OrderKindOpen || kind == types.OrderKindIncrease
	if (d == types.DirectionLong) == opening {
		return types.SideTypeBuy
	}
	return types.SideTypeSell
}

func markerText(kind types.OrderKind, d types.Direction) string {
	switch kind {
	case types.OrderKindOpen:
		return "Open " + string(d)
	case types.OrderKindIncrease:
		return "Increase"
	case types.OrderKindDecrease:
		return "Decrease"
	case types.OrderKindClose:
		return "Close"
	case types.OrderKindLiquid:
		return "Liquidated"
	}
	return string(kind)
}

// Recorder is an Annotator that keeps what was drawn, for clients that render the
// chart themselves.
type Recorder struct {
	Lines   []PositionLine `json:"lines"`
	Markers []OrderMarker  `json:"markers"`
}

func (r *Recorder) DrawPositionLine(line PositionLine) error {
	r.Lines = append(r.Lines, line)
	return nil
}

func (r *Recorder) DrawOrderMarker(marker OrderMarker) error {
	r.Markers = append(r.Markers, marker)
	return nil
}

func (r *Recorder) RemoveAll() error {
	r.Lines = nil
	r.Markers = nil
	return nil
}
