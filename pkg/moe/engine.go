// Package moe implements the sparse mixture-of-experts model: a linear router,
// top-2 selection with a piecewise-linear gate, and small two-layer experts
// evaluated in Q8.8 fixed point.
package moe

import (
	"github.com/uhyunpark/itchmoe/pkg/features"
)

// Inference is the full intermediate state of one evaluation.
type Inference struct {
	Scores   [NumExperts]float64
	Selected [TopK]int
	Gates    [TopK]float64
	Outputs  [TopK]float64
	Combined float64
	Signal   TradeSignal
}

// Engine evaluates a fixed set of weights. It holds no per-message state, so
// one Engine may be shared by concurrent callers.
type Engine struct {
	w *Weights
}

// NewEngine panics on nil weights.
func NewEngine(w *Weights) *Engine {
	if w == nil {
		panic("moe: nil weights")
	}
	return &Engine{w: w}
}

func (e *Engine) Weights() *Weights { return e.w }

// Infer returns the trading signal for x.
func (e *Engine) Infer(x features.Vector) TradeSignal {
	return e.InferDetail(x).Signal
}

// InferDetail returns the signal together with the router and expert state
// that produced it.
func (e *Engine) InferDetail(x features.Vector) Inference {
	var inf Inference
	inf.Scores = Scores(&e.w.Router, &x)

	var top [TopK]float64
	inf.Selected, top = SelectTop2(inf.Scores)
	inf.Gates[0], inf.Gates[1] = Gate(top[0], top[1])

	for k, ex := range inf.Selected {
		inf.Outputs[k] = Forward(e.w.Expert(ex), &x).Float()
	}

	inf.Combined = inf.Gates[0]*inf.Outputs[0] + inf.Gates[1]*inf.Outputs[1]
	inf.Signal = Decide(inf.Combined)
	return inf
}
