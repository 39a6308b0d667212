package pipeline

import (
	"github.com/uhyunpark/itchmoe/pkg/itch"
	"github.com/uhyunpark/itchmoe/pkg/moe"
	"github.com/uhyunpark/itchmoe/pkg/orderbook"
	"github.com/uhyunpark/itchmoe/pkg/trace"
)

// Record is everything the pipeline observed for one accepted order.
type Record struct {
	Seq     uint64 // index among accepted orders, from 0
	Order   itch.AddOrder
	BestBid uint32 // before the order reached the book
	BestAsk uint32
	Signal  moe.TradeSignal
	Match   orderbook.MatchResult

	// Diagnostics, not part of the trace file.
	Selected [moe.TopK]int
	Gates    [moe.TopK]float64
	Outputs  [moe.TopK]float64
	Combined float64
}

// Row converts the record to its trace line.
func (r *Record) Row() trace.Row {
	return trace.Row{
		OrderIdx:   r.Seq,
		Side:       byte(r.Order.Side),
		Price:      r.Order.Price,
		Shares:     r.Order.Shares,
		Stock:      string(r.Order.Stock[:]),
		BestBid:    r.BestBid,
		BestAsk:    r.BestAsk,
		Action:     r.Signal.Action,
		Confidence: r.Signal.Confidence,
		Matched:    r.Match.Matched,
		MatchPrice: r.Match.Price,
		MatchQty:   r.Match.Quantity,
	}
}

func (r *Record) applyInference(inf moe.Inference) {
	r.Signal = inf.Signal
	r.Selected = inf.Selected
	r.Gates = inf.Gates
	r.Outputs = inf.Outputs
	r.Combined = inf.Combined
}
