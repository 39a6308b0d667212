package moe

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/uhyunpark/itchmoe/pkg/features"
	"github.com/uhyunpark/itchmoe/pkg/fixed"
)

const (
	NumExperts  = 8
	TopK        = 2
	HiddenDim   = 16
	NumFeatures = features.Size
)

// ExpertWeights holds one two-layer expert network.
type ExpertWeights struct {
	W1 [HiddenDim][NumFeatures]fixed.Point
	B1 [HiddenDim]fixed.Point
	W2 [HiddenDim]fixed.Point
	B2 fixed.Point
}

// RouterWeights holds the linear gating layer, one row per expert.
type RouterWeights struct {
	W    [NumExperts][NumFeatures]fixed.Point
	Bias [NumExperts]fixed.Point
}

// Weights is the full model.
type Weights struct {
	Router  RouterWeights
	Experts [NumExperts]ExpertWeights
}

// Expert returns the weights of expert e.
func (w *Weights) Expert(e int) *ExpertWeights { return &w.Experts[e] }

// DefaultWeights returns the deterministic placeholder model used until
// trained weights are available.
func DefaultWeights() *Weights {
	w := &Weights{}
	for e := 0; e < NumExperts; e++ {
		for f := 0; f < NumFeatures; f++ {
			w.Router.W[e][f] = fixed.FromFloat(0.1 * float64((e*8+f)%7-3) / 3.0)
		}
		w.Router.Bias[e] = fixed.FromFloat(0.01 * float64(e))

		ex := &w.Experts[e]
		for h := 0; h < HiddenDim; h++ {
			for f := 0; f < NumFeatures; f++ {
				ex.W1[h][f] = fixed.FromFloat(0.1 * float64((e*h+f)%11-5) / 5.0)
			}
			ex.B1[h] = fixed.Zero
			ex.W2[h] = fixed.FromFloat(0.05 * float64((e+h)%5-2))
		}
		ex.B2 = fixed.Zero
	}
	return w
}

// weightsFile is the on-disk layout. Values are raw Q8.8 integers so a table
// round-trips bit for bit.
type weightsFile struct {
	Router struct {
		Weights [][]int16 `yaml:"weights,flow"`
		Bias    []int16   `yaml:"bias,flow"`
	} `yaml:"router"`
	Experts []expertFile `yaml:"experts"`
}

type expertFile struct {
	W1 [][]int16 `yaml:"w1,flow"`
	B1 []int16   `yaml:"b1,flow"`
	W2 []int16   `yaml:"w2,flow"`
	B2 int16     `yaml:"b2"`
}

// MarshalYAML implements yaml.Marshaler.
func (w *Weights) MarshalYAML() (interface{}, error) {
	var f weightsFile
	f.Router.Weights = make([][]int16, NumExperts)
	for e := range w.Router.W {
		f.Router.Weights[e] = rawRow(w.Router.W[e][:])
	}
	f.Router.Bias = rawRow(w.Router.Bias[:])
	f.Experts = make([]expertFile, NumExperts)
	for e := range w.Experts {
		ex := &w.Experts[e]
		ef := expertFile{
			W1: make([][]int16, HiddenDim),
			B1: rawRow(ex.B1[:]),
			W2: rawRow(ex.W2[:]),
			B2: ex.B2.Raw(),
		}
		for h := range ex.W1 {
			ef.W1[h] = rawRow(ex.W1[h][:])
		}
		f.Experts[e] = ef
	}
	return &f, nil
}

// UnmarshalYAML implements yaml.Unmarshaler and checks every dimension.
func (w *Weights) UnmarshalYAML(node *yaml.Node) error {
	var f weightsFile
	if err := node.Decode(&f); err != nil {
		return err
	}
	if len(f.Router.Weights) != NumExperts {
		return fmt.Errorf("router.weights: want %d rows, got %d", NumExperts, len(f.Router.Weights))
	}
	for e, row := range f.Router.Weights {
		if err := fillRow(w.Router.W[e][:], row, fmt.Sprintf("router.weights[%d]", e)); err != nil {
			return err
		}
	}
	if err := fillRow(w.Router.Bias[:], f.Router.Bias, "router.bias"); err != nil {
		return err
	}
	if len(f.Experts) != NumExperts {
		return fmt.Errorf("experts: want %d, got %d", NumExperts, len(f.Experts))
	}
	for e, ef := range f.Experts {
		ex := &w.Experts[e]
		if len(ef.W1) != HiddenDim {
			return fmt.Errorf("experts[%d].w1: want %d rows, got %d", e, HiddenDim, len(ef.W1))
		}
		for h, row := range ef.W1 {
			if err := fillRow(ex.W1[h][:], row, fmt.Sprintf("experts[%d].w1[%d]", e, h)); err != nil {
				return err
			}
		}
		if err := fillRow(ex.B1[:], ef.B1, fmt.Sprintf("experts[%d].b1", e)); err != nil {
			return err
		}
		if err := fillRow(ex.W2[:], ef.W2, fmt.Sprintf("experts[%d].w2", e)); err != nil {
			return err
		}
		ex.B2 = fixed.FromRaw(ef.B2)
	}
	return nil
}

// LoadWeights reads a YAML weight table.
func LoadWeights(path string) (*Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	w := &Weights{}
	if err := yaml.Unmarshal(data, w); err != nil {
		return nil, fmt.Errorf("parse weights %s: %w", path, err)
	}
	return w, nil
}

// SaveWeights writes w as YAML.
func SaveWeights(path string, w *Weights) error {
	data, err := yaml.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}
	return nil
}

func rawRow(ps []fixed.Point) []int16 {
	out := make([]int16, len(ps))
	for i, p := range ps {
		out[i] = p.Raw()
	}
	return out
}

func fillRow(dst []fixed.Point, src []int16, field string) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%s: want %d values, got %d", field, len(dst), len(src))
	}
	for i, r := range src {
		dst[i] = fixed.FromRaw(r)
	}
	return nil
}
