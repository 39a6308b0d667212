// Package feed produces Add Order streams for the pipeline: the fixed golden
// scenario, a seeded synthetic market, and orders read from a price CSV.
package feed

import "github.com/uhyunpark/itchmoe/pkg/itch"

// GoldenScenario returns the eight-order regression scenario. Order refs are
// the index and timestamps are index*1000 ns.
func GoldenScenario() []itch.AddOrder {
	rows := []struct {
		side   itch.Side
		price  uint32
		shares uint32
		stock  string
	}{
		{itch.Buy, 100000, 100, "AAPL"},  // bid 10.0000
		{itch.Sell, 100100, 200, "AAPL"}, // ask 10.0100
		{itch.Buy, 100050, 150, "AAPL"},  // inside the spread, rests
		{itch.Sell, 100050, 50, "AAPL"},  // hits the 10.0050 bid
		{itch.Buy, 100200, 300, "AAPL"},  // lifts the 10.0100 ask
		{itch.Sell, 99900, 100, "AAPL"},  // hits the best bid
		{itch.Buy, 100000, 500, "GOOG"},
		{itch.Sell, 100500, 250, "GOOG"},
	}
	orders := make([]itch.AddOrder, len(rows))
	for i, r := range rows {
		orders[i] = itch.AddOrder{
			Timestamp: uint64(i) * 1000,
			OrderRef:  uint64(i),
			Side:      r.side,
			Shares:    r.shares,
			Stock:     itch.StockField(r.stock),
			Price:     r.price,
		}
	}
	return orders
}
