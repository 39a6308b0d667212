package features

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/uhyunpark/itchmoe/pkg/fixed"
	"github.com/uhyunpark/itchmoe/pkg/itch"
)

func order(side itch.Side, price, shares uint32) *itch.AddOrder {
	return &itch.AddOrder{Side: side, Price: price, Shares: shares, Stock: itch.StockField("AAPL")}
}

func TestExtractEmptyBook(t *testing.T) {
	v := Extract(order(itch.Buy, 100000, 100), 0, 0)

	assert.Equal(t, fixed.Zero, v[PriceDeviation])
	assert.Equal(t, fixed.One, v[Direction])
	// log2(100)/16 = 0.41524... -> raw 106
	assert.Equal(t, int16(106), v[SizeLog].Raw())
	assert.Equal(t, fixed.Zero, v[Spread])
	assert.Equal(t, fixed.Zero, v[Aggressiveness])
	for i := Reserved5; i < Size; i++ {
		assert.Equal(t, fixed.Zero, v[i])
	}
}

func TestExtractTwoSidedBook(t *testing.T) {
	// bid 10.0000, ask 10.0100, mid 10.0050
	v := Extract(order(itch.Buy, 100050, 150), 100000, 100100)

	assert.Equal(t, fixed.Zero, v[PriceDeviation])
	// (100100-100000)/10000 = 0.01 -> raw 2
	assert.Equal(t, int16(2), v[Spread].Raw())
	// (100000-100050)/100000 = -0.0005 -> raw 0 after truncation
	assert.Equal(t, fixed.Zero, v[Aggressiveness])
}

func TestExtractSell(t *testing.T) {
	v := Extract(order(itch.Sell, 150000, 1), 100000, 100000)

	assert.Equal(t, int16(-256), v[Direction].Raw())
	// log2(1) = 0
	assert.Equal(t, fixed.Zero, v[SizeLog])
	// (150000-100000)/100000 = 0.5
	assert.Equal(t, int16(128), v[PriceDeviation].Raw())
	assert.Equal(t, int16(128), v[Aggressiveness].Raw())
	// ask == bid: no spread
	assert.Equal(t, fixed.Zero, v[Spread])
}

func TestExtractNonBuySideIsSell(t *testing.T) {
	v := Extract(order(itch.Side('X'), 100000, 100), 0, 0)
	assert.Equal(t, int16(-256), v[Direction].Raw())
}

func TestExtractZeroSharesClamped(t *testing.T) {
	v := Extract(order(itch.Buy, 100000, 0), 0, 0)
	assert.Equal(t, fixed.Zero, v[SizeLog])
}

func TestExtractOneSidedBook(t *testing.T) {
	// Only an ask: the spread is still taken against an empty bid.
	v := Extract(order(itch.Buy, 100000, 100), 0, 20000)
	assert.Equal(t, int16(512), v[Spread].Raw())
	// mid = 10000; (100000-10000)/10000 = 9.0
	assert.Equal(t, int16(9*256), v[PriceDeviation].Raw())
	// buy with no bid
	assert.Equal(t, fixed.Zero, v[Aggressiveness])
}

func TestExtractAggressiveBuy(t *testing.T) {
	// Buy below the bid is passive: positive distance.
	v := Extract(order(itch.Buy, 75000, 100), 100000, 0)
	assert.Equal(t, int16(64), v[Aggressiveness].Raw())
	// Buy above the bid gives a negative distance.
	v = Extract(order(itch.Buy, 125000, 100), 100000, 0)
	assert.Equal(t, int16(-64), v[Aggressiveness].Raw())
}

func TestExtractSellDistanceIsSigned(t *testing.T) {
	// Sell below the ask: (90090-100100)/100100 = -0.1 -> -25.6, truncated to -25.
	v := Extract(order(itch.Sell, 90090, 100), 100000, 100100)
	assert.Equal(t, int16(-25), v[Aggressiveness].Raw())
	// Sell above the ask is passive.
	v = Extract(order(itch.Sell, 110110, 100), 100000, 100100)
	assert.Equal(t, int16(25), v[Aggressiveness].Raw())
	// Buy above the bid: (100000-110000)/100000 = -0.1.
	v = Extract(order(itch.Buy, 110000, 100), 100000, 100100)
	assert.Equal(t, int16(-25), v[Aggressiveness].Raw())
}

func TestExtractDeterministic(t *testing.T) {
	o := order(itch.Sell, 99900, 300)
	assert.Equal(t, Extract(o, 100000, 100100), Extract(o, 100000, 100100))
}

func TestFloats(t *testing.T) {
	v := Extract(order(itch.Buy, 100000, 65536), 0, 0)
	f := v.Floats()
	assert.Equal(t, 1.0, f[Direction])
	assert.Equal(t, 1.0, f[SizeLog])
}
