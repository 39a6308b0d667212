package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/itchmoe/pkg/itch"
)

var csvLots = []uint32{100, 200, 300, 500, 1000}

// FromCSV builds orders from a price table. Column names are matched
// case-insensitively: symbol|ticker|stock, price|close|last, and the optional
// side and shares|volume|qty. A missing side alternates B (odd refs) and S;
// missing shares draw a lot size from the seeded rng. Timestamps start at
// market open and advance 100ns-10us per row.
func FromCSV(r io.Reader, seed int64) ([]itch.AddOrder, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("price csv: empty input")
		}
		return nil, fmt.Errorf("price csv header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	lookup := func(row []string, names ...string) string {
		for _, n := range names {
			if i, ok := col[n]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
		}
		return ""
	}

	rng := rand.New(rand.NewSource(seed))
	ts := MarketOpenNanos
	var orders []itch.AddOrder
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("price csv line %d: %w", line, err)
		}
		ref := uint64(len(orders) + 1)

		stock := strings.ToUpper(lookup(row, "symbol", "ticker", "stock"))
		if stock == "" {
			stock = "AAPL"
		}

		priceStr := lookup(row, "price", "close", "last")
		if priceStr == "" {
			priceStr = "100.0"
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("price csv line %d: price %q: %w", line, priceStr, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("price csv line %d: negative price %s", line, priceStr)
		}

		var side itch.Side
		switch strings.ToUpper(lookup(row, "side")) {
		case "B":
			side = itch.Buy
		case "S":
			side = itch.Sell
		default:
			side = itch.Sell
			if ref%2 == 1 {
				side = itch.Buy
			}
		}

		var shares uint32
		if s := lookup(row, "shares", "volume", "qty"); s != "" {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil || f < 0 {
				return nil, fmt.Errorf("price csv line %d: shares %q invalid", line, s)
			}
			shares = uint32(f)
		} else {
			shares = csvLots[rng.Intn(len(csvLots))]
		}

		ts += uint64(100 + rng.Intn(9_901))

		orders = append(orders, itch.AddOrder{
			Timestamp: ts,
			OrderRef:  ref,
			Side:      side,
			Shares:    shares,
			Stock:     itch.StockField(stock),
			Price:     itch.PriceFromDecimal(price),
		})
	}
	return orders, nil
}

// ListingHeader is the column layout written by WriteListing.
var ListingHeader = []string{"order_ref", "timestamp_ns", "side", "shares", "stock", "price_raw", "price_dollars"}

// WriteListing writes a human-readable CSV of orders.
func WriteListing(w io.Writer, orders []itch.AddOrder) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ListingHeader); err != nil {
		return fmt.Errorf("write listing header: %w", err)
	}
	for i := range orders {
		o := &orders[i]
		rec := []string{
			strconv.FormatUint(o.OrderRef, 10),
			strconv.FormatUint(o.Timestamp, 10),
			o.Side.String(),
			strconv.FormatUint(uint64(o.Shares), 10),
			o.Symbol(),
			strconv.FormatUint(uint64(o.Price), 10),
			o.PriceDecimal().StringFixed(itch.PriceDecimals),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write listing row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
