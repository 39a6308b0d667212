package feed

import (
	"math"
	"math/rand"

	"github.com/uhyunpark/itchmoe/pkg/itch"
)

// MarketOpenNanos is 09:30:00 in nanoseconds since midnight.
const MarketOpenNanos uint64 = 34_200_000_000_000

var (
	DefaultSymbols = []string{"AAPL", "GOOG", "MSFT", "TSLA", "AMZN", "META", "NVDA", "AMD"}

	lotSizes = []uint32{100, 100, 100, 200, 200, 300, 500, 1000}
)

type GeneratorConfig struct {
	Symbols       []string
	BasePrice     float64 // dollars
	Volatility    float64 // per-order stddev as a fraction of price
	BaseTimestamp uint64
	Seed          int64
}

func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbols:       DefaultSymbols,
		BasePrice:     150.0,
		Volatility:    0.001,
		BaseTimestamp: MarketOpenNanos,
		Seed:          42,
	}
}

// Generator creates a synthetic order flow. Each symbol's mid follows a
// random walk; buys are placed below mid and sells above it, and the side is
// biased against the last move. The same config always yields the same flow.
type Generator struct {
	cfg      GeneratorConfig
	rng      *rand.Rand
	mids     []float64
	ts       uint64
	orderRef uint64
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = DefaultSymbols
	}
	mids := make([]float64, len(cfg.Symbols))
	for i := range mids {
		mids[i] = cfg.BasePrice
	}
	return &Generator{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		mids:     mids,
		ts:       cfg.BaseTimestamp,
		orderRef: 1,
	}
}

// Next returns the next order.
func (g *Generator) Next() itch.AddOrder {
	i := g.rng.Intn(len(g.cfg.Symbols))

	change := g.rng.NormFloat64() * g.cfg.Volatility * g.mids[i]
	g.mids[i] = math.Max(1.0, g.mids[i]+change)
	mid := g.mids[i]

	buyProb := 0.5 - (change/mid)*10
	buyProb = math.Max(0.3, math.Min(0.7, buyProb))
	side := itch.Sell
	if g.rng.Float64() < buyProb {
		side = itch.Buy
	}

	ticks := float64(1 + g.rng.Intn(10))
	price := mid + ticks*0.01
	if side == itch.Buy {
		price = mid - ticks*0.01
	}

	shares := lotSizes[g.rng.Intn(len(lotSizes))]

	if g.rng.Float64() < 0.2 {
		g.ts += uint64(100 + g.rng.Intn(401))
	} else {
		g.ts += uint64(1_000 + g.rng.Intn(9_001))
	}

	o := itch.AddOrder{
		Timestamp: g.ts,
		OrderRef:  g.orderRef,
		Side:      side,
		Shares:    shares,
		Stock:     itch.StockField(g.cfg.Symbols[i]),
		Price:     dollarsToRaw(price),
	}
	g.orderRef++
	return o
}

// Generate returns the next n orders.
func (g *Generator) Generate(n int) []itch.AddOrder {
	orders := make([]itch.AddOrder, n)
	for i := range orders {
		orders[i] = g.Next()
	}
	return orders
}

func dollarsToRaw(p float64) uint32 {
	raw := math.Round(p * 10000)
	switch {
	case raw < 0:
		return 0
	case raw > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(raw)
}
