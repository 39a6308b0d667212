package orderbook

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyBook(t *testing.T) {
	b := New()
	assert.Equal(t, uint32(0), b.BestBid())
	assert.Equal(t, uint32(0), b.BestAsk())
	assert.Empty(t, b.BidLevels())
	assert.Empty(t, b.AskLevels())
}

func TestRestWithoutCross(t *testing.T) {
	b := New()
	res := b.AddOrder(Buy, 100000, 100)
	assert.Equal(t, MatchResult{}, res)
	res = b.AddOrder(Sell, 100100, 200)
	assert.Equal(t, MatchResult{}, res)

	bid, ask := b.Top()
	assert.Equal(t, uint32(100000), bid)
	assert.Equal(t, uint32(100100), ask)
	assert.Equal(t, uint64(100), b.BidQty(100000))
	assert.Equal(t, uint64(200), b.AskQty(100100))
}

func TestSimpleMatch(t *testing.T) {
	b := New()
	b.AddOrder(Buy, 100000, 100)
	res := b.AddOrder(Sell, 100000, 50)

	assert.Equal(t, MatchResult{Matched: true, Price: 100000, Quantity: 50}, res)
	assert.Equal(t, uint64(50), b.BidQty(100000))
	assert.Equal(t, uint32(0), b.BestAsk())
}

func TestNoMatchInsideSpread(t *testing.T) {
	b := New()
	b.AddOrder(Buy, 100000, 100)
	b.AddOrder(Sell, 100100, 200)

	res := b.AddOrder(Buy, 100050, 150)
	assert.False(t, res.Matched)
	assert.Equal(t, uint32(100050), b.BestBid())
	assert.Equal(t, uint64(150), b.BidQty(100050))
	assert.Equal(t, uint64(100), b.BidQty(100000))
}

func TestFullLevelCross(t *testing.T) {
	b := New()
	b.AddOrder(Sell, 100050, 50)
	b.AddOrder(Sell, 100100, 200)

	res := b.AddOrder(Buy, 100200, 300)
	assert.Equal(t, MatchResult{Matched: true, Price: 100050, Quantity: 50}, res)

	assert.Equal(t, uint64(0), b.AskQty(100050))
	assert.Equal(t, uint32(100100), b.BestAsk(), "only the best level is touched")
	assert.Equal(t, uint64(200), b.AskQty(100100))
	assert.Equal(t, uint64(250), b.BidQty(100200))
	// Remainder rests at the limit price even though it still crosses.
	assert.Equal(t, uint32(100200), b.BestBid())
}

func TestPartialLevelFill(t *testing.T) {
	b := New()
	b.AddOrder(Buy, 100000, 500)
	res := b.AddOrder(Sell, 99900, 100)

	assert.Equal(t, MatchResult{Matched: true, Price: 100000, Quantity: 100}, res)
	assert.Equal(t, uint64(400), b.BidQty(100000))
	assert.Equal(t, uint32(0), b.BestAsk())
}

func TestSellSweepsOnlyBestBid(t *testing.T) {
	b := New()
	b.AddOrder(Buy, 100200, 10)
	b.AddOrder(Buy, 100100, 10)

	res := b.AddOrder(Sell, 100000, 25)
	assert.Equal(t, MatchResult{Matched: true, Price: 100200, Quantity: 10}, res)
	assert.Equal(t, uint32(100100), b.BestBid())
	assert.Equal(t, uint32(100000), b.BestAsk())
	assert.Equal(t, uint64(15), b.AskQty(100000))
}

func TestLevelsAggregate(t *testing.T) {
	b := New()
	b.AddOrder(Buy, 100, 1)
	b.AddOrder(Buy, 300, 2)
	b.AddOrder(Buy, 200, 3)
	b.AddOrder(Buy, 300, 4)
	b.AddOrder(Sell, 500, 5)
	b.AddOrder(Sell, 400, 6)

	assert.Equal(t, []PriceLevel{{300, 6}, {200, 3}, {100, 1}}, b.BidLevels())
	assert.Equal(t, []PriceLevel{{400, 6}, {500, 5}}, b.AskLevels())
	nb, na := b.Depth()
	assert.Equal(t, 3, nb)
	assert.Equal(t, 2, na)
}

func TestZeroQuantity(t *testing.T) {
	t.Run("buy crossing", func(t *testing.T) {
		b := New()
		b.AddOrder(Sell, 100, 10)
		res := b.AddOrder(Buy, 100, 0)
		assert.Equal(t, MatchResult{Matched: true, Price: 100, Quantity: 0}, res)
		assert.Equal(t, uint64(10), b.AskQty(100))
		assert.Equal(t, uint32(100), b.BestAsk())
		assert.Equal(t, uint32(0), b.BestBid())
	})
	t.Run("sell crossing", func(t *testing.T) {
		b := New()
		b.AddOrder(Buy, 100, 10)
		res := b.AddOrder(Sell, 90, 0)
		assert.Equal(t, MatchResult{Matched: true, Price: 100, Quantity: 0}, res)
		assert.Equal(t, uint64(10), b.BidQty(100))
		assert.Equal(t, uint32(100), b.BestBid())
		assert.Equal(t, uint32(0), b.BestAsk())
	})
	t.Run("resting", func(t *testing.T) {
		b := New()
		assert.Equal(t, MatchResult{}, b.AddOrder(Buy, 100, 0))
		assert.Equal(t, MatchResult{}, b.AddOrder(Sell, 200, 0))
		nb, na := b.Depth()
		assert.Zero(t, nb)
		assert.Zero(t, na)
	})
}

// Orders that never cross leave matching results false and accumulate exactly.
func TestNoCrossIdempotence(t *testing.T) {
	b := New()
	for i := 0; i < 50; i++ {
		require.False(t, b.AddOrder(Buy, uint32(1000+i%5), 10).Matched)
		require.False(t, b.AddOrder(Sell, uint32(2000+i%5), 10).Matched)
	}
	for _, l := range b.BidLevels() {
		assert.Equal(t, uint64(100), l.Qty)
	}
	assert.Equal(t, uint32(1004), b.BestBid())
	assert.Equal(t, uint32(2000), b.BestAsk())
}

// Random flow must keep the heaps consistent with the level maps and conserve
// quantity.
func TestRandomFlowInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	b := New()
	var in, traded uint64
	for i := 0; i < 5000; i++ {
		side := Side(rng.Intn(2))
		price := uint32(9990 + rng.Intn(20))
		qty := uint32(1 + rng.Intn(500))
		in += uint64(qty)

		bidBefore, askBefore := b.Top()
		res := b.AddOrder(side, price, qty)
		if res.Matched {
			traded += uint64(res.Quantity)
			require.LessOrEqual(t, res.Quantity, qty)
			if side == Buy {
				require.Equal(t, askBefore, res.Price)
			} else {
				require.Equal(t, bidBefore, res.Price)
			}
		}

		bids, asks := b.BidLevels(), b.AskLevels()
		if len(bids) > 0 {
			require.Equal(t, bids[0].Price, b.BestBid())
		} else {
			require.Zero(t, b.BestBid())
		}
		if len(asks) > 0 {
			require.Equal(t, asks[0].Price, b.BestAsk())
		} else {
			require.Zero(t, b.BestAsk())
		}

		var resting uint64
		for _, l := range append(bids, asks...) {
			require.Positive(t, l.Qty)
			resting += l.Qty
		}
		// Each trade removes its quantity from both the taker and the maker.
		require.Equal(t, in, resting+2*traded)
	}
}

func TestDigest(t *testing.T) {
	a, b := New(), New()
	assert.Equal(t, a.Digest(), b.Digest())

	a.AddOrder(Buy, 100, 10)
	a.AddOrder(Buy, 100, 5)
	b.AddOrder(Buy, 100, 15)
	assert.Equal(t, a.Digest(), b.Digest())

	b.AddOrder(Sell, 200, 1)
	assert.NotEqual(t, a.Digest(), b.Digest())

	// Same price and quantity on the opposite side must differ.
	c, d := New(), New()
	c.AddOrder(Buy, 100, 1)
	d.AddOrder(Sell, 100, 1)
	assert.NotEqual(t, c.Digest(), d.Digest())
}

func TestSideString(t *testing.T) {
	assert.Equal(t, "BUY", Buy.String())
	assert.Equal(t, "SELL", Sell.String())
}

func BenchmarkAddOrder(b *testing.B) {
	book := New()
	rng := rand.New(rand.NewSource(1))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		book.AddOrder(Side(rng.Intn(2)), uint32(9990+rng.Intn(20)), uint32(1+rng.Intn(500)))
	}
}
