package moe

import (
	"github.com/uhyunpark/itchmoe/pkg/features"
	"github.com/uhyunpark/itchmoe/pkg/fixed"
)

// Scores evaluates the router for every expert. Accumulation happens in
// fixed point; the results are widened for selection and gating.
func Scores(r *RouterWeights, x *features.Vector) [NumExperts]float64 {
	var out [NumExperts]float64
	for e := 0; e < NumExperts; e++ {
		acc := r.Bias[e]
		for f := 0; f < NumFeatures; f++ {
			acc = acc.Add(r.W[e][f].Mul(x[f]))
		}
		out[e] = acc.Float()
	}
	return out
}

// SelectTop2 picks two experts in one pass. The candidates start as experts 0
// and 1 with their own scores and the scan then visits every expert from 0,
// so comparisons are strict and the lower index keeps a tie.
//
// When score[0] > score[1] the scan can demote the seeded expert 0 into the
// second slot while it also holds the first, selecting expert 0 twice. The
// hardware router does the same thing, so it is kept.
func SelectTop2(scores [NumExperts]float64) (idx [TopK]int, top [TopK]float64) {
	idx = [TopK]int{0, 1}
	top = [TopK]float64{scores[0], scores[1]}
	for e := 0; e < NumExperts; e++ {
		switch {
		case scores[e] > top[0]:
			top[1], idx[1] = top[0], idx[0]
			top[0], idx[0] = scores[e], e
		case scores[e] > top[1]:
			top[1], idx[1] = scores[e], e
		}
	}
	return idx, top
}

// Gate maps the two selected scores to mixing weights with a piecewise-linear
// sigmoid of their difference. The weights sum to 1.
func Gate(s0, s1 float64) (g0, g1 float64) {
	diff := s0 - s1
	switch {
	case diff > 2:
		g0 = 1
	case diff < -2:
		g0 = 0
	default:
		g0 = 0.5 + 0.25*diff
	}
	return g0, 1 - g0
}

// Forward runs one expert and returns its scalar output.
func Forward(w *ExpertWeights, x *features.Vector) fixed.Point {
	var hidden [HiddenDim]fixed.Point
	for h := 0; h < HiddenDim; h++ {
		acc := w.B1[h]
		for f := 0; f < NumFeatures; f++ {
			acc = acc.Add(w.W1[h][f].Mul(x[f]))
		}
		hidden[h] = fixed.ReLU(acc)
	}
	out := w.B2
	for h := 0; h < HiddenDim; h++ {
		out = out.Add(w.W2[h].Mul(hidden[h]))
	}
	return out
}
