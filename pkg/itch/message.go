package itch

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MsgAddOrder is the ITCH 5.0 message type byte for Add Order (no MPID).
	MsgAddOrder byte = 'A'

	// AddOrderSize is the minimum encoded length of an Add Order message.
	AddOrderSize = 36

	// PriceDecimals is the number of implied decimal places in Price.
	PriceDecimals = 4
)

// Field offsets inside an Add Order frame.
const (
	offStockLocate = 1
	offTracking    = 3
	offTimestamp   = 5
	offOrderRef    = 11
	offSide        = 19
	offShares      = 20
	offStock       = 24
	offPrice       = 32
)

// Side is the raw buy/sell indicator byte carried on the wire.
type Side byte

const (
	Buy  Side = 'B'
	Sell Side = 'S'
)

// IsBuy reports whether the side byte is 'B'. Every other byte is treated as
// a sell by downstream stages.
func (s Side) IsBuy() bool { return s == Buy }

func (s Side) String() string { return string(rune(s)) }

// AddOrder is a decoded Add Order message.
type AddOrder struct {
	StockLocate uint16
	Tracking    uint16
	Timestamp   uint64 // nanoseconds since midnight, 48 bits on the wire
	OrderRef    uint64
	Side        Side
	Shares      uint32
	Stock       [8]byte // space padded, copied verbatim
	Price       uint32  // 4 implied decimal places
}

// Symbol returns the stock field with trailing padding removed.
func (o *AddOrder) Symbol() string {
	return strings.TrimRight(string(o.Stock[:]), " \x00")
}

// PriceDecimal returns the price with its implied decimals applied.
func (o *AddOrder) PriceDecimal() decimal.Decimal {
	return PriceToDecimal(o.Price)
}

// PriceToDecimal converts a raw 4-decimal price.
func PriceToDecimal(raw uint32) decimal.Decimal {
	return decimal.New(int64(raw), -PriceDecimals)
}

// PriceFromDecimal converts a decimal dollar price to its raw 4-decimal
// representation, rounding half away from zero.
func PriceFromDecimal(d decimal.Decimal) uint32 {
	return uint32(d.Shift(PriceDecimals).Round(0).IntPart())
}

// StockField pads or truncates a symbol to the 8-byte wire field.
func StockField(symbol string) [8]byte {
	var f [8]byte
	for i := range f {
		f[i] = ' '
	}
	copy(f[:], symbol)
	return f
}
