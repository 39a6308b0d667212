// Package features turns an Add Order and the top of book into the fixed-point
// input vector consumed by the router and the experts.
package features

import (
	"math"

	"github.com/uhyunpark/itchmoe/pkg/fixed"
	"github.com/uhyunpark/itchmoe/pkg/itch"
)

// Size is the number of features per vector.
const Size = 8

// Feature indices.
const (
	PriceDeviation = iota // (price - mid) / mid
	Direction             // +1 buy, -1 sell
	SizeLog               // log2(shares) / 16
	Spread                // (ask - bid) / 10000
	Aggressiveness        // distance from same-side best, relative
	Reserved5
	Reserved6
	Reserved7
)

// Vector is the model input. Unused slots stay zero.
type Vector [Size]fixed.Point

// Floats widens every element.
func (v Vector) Floats() [Size]float64 {
	var out [Size]float64
	for i, p := range v {
		out[i] = p.Float()
	}
	return out
}

// Extract computes the feature vector for o given the best bid and ask before
// o reaches the book. A price of 0 means that side is empty. It is a pure
// function.
func Extract(o *itch.AddOrder, bestBid, bestAsk uint32) Vector {
	var v Vector

	price := float64(o.Price)
	bid := float64(bestBid)
	ask := float64(bestAsk)

	mid := (bid + ask) / 2
	if mid != 0 {
		v[PriceDeviation] = fixed.FromFloat((price - mid) / mid)
	}

	if o.Side.IsBuy() {
		v[Direction] = fixed.One
	} else {
		v[Direction] = fixed.FromFloat(-1)
	}

	shares := math.Max(1, float64(o.Shares))
	v[SizeLog] = fixed.FromFloat(math.Log2(shares) / 16)

	if bestAsk > bestBid {
		v[Spread] = fixed.FromFloat((ask - bid) / 10000)
	}

	if o.Side.IsBuy() {
		if bestBid != 0 {
			v[Aggressiveness] = fixed.FromFloat((bid - price) / bid)
		}
	} else if bestAsk != 0 {
		v[Aggressiveness] = fixed.FromFloat((price - ask) / ask)
	}

	return v
}
