package trace

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// DefaultTolerance bounds the confidence difference accepted between a golden
// and a hardware trace.
const DefaultTolerance = 0.01

type FieldMismatch struct {
	Field    string
	Golden   string
	Hardware string
}

type OrderMismatch struct {
	Index  int
	Stock  string
	Fields []FieldMismatch
}

// Report is the outcome of Compare.
type Report struct {
	GoldenRows   int
	HardwareRows int
	Total        int
	Passed       int
	Failed       int
	Tolerance    float64
	Mismatches   []OrderMismatch
}

// Pass reports whether at least one row was compared and none failed.
func (r *Report) Pass() bool { return r.Failed == 0 && r.Total > 0 }

// RowCountMismatch reports whether the traces differ in length. Only the
// common prefix is compared.
func (r *Report) RowCountMismatch() bool { return r.GoldenRows != r.HardwareRows }

// Compare checks hardware against golden row by row. Side, price, shares,
// matched, match price and match quantity must be identical; the action must
// be the same category; confidence may differ by at most tol.
func Compare(golden, hardware []Row, tol float64) Report {
	rep := Report{
		GoldenRows:   len(golden),
		HardwareRows: len(hardware),
		Tolerance:    tol,
	}
	n := min(len(golden), len(hardware))
	for i := 0; i < n; i++ {
		g, h := golden[i], hardware[i]
		rep.Total++

		var diffs []FieldMismatch
		exact := func(field string, gv, hv string) {
			if gv != hv {
				diffs = append(diffs, FieldMismatch{field, gv, hv})
			}
		}
		gf, hf := g.Fields(), h.Fields()
		exact("side", gf[1], hf[1])
		exact("price", gf[2], hf[2])
		exact("shares", gf[3], hf[3])
		exact("matched", gf[9], hf[9])
		exact("match_price", gf[10], hf[10])
		exact("match_qty", gf[11], hf[11])

		if d := math.Abs(g.Confidence - h.Confidence); d > tol || math.IsNaN(d) {
			diffs = append(diffs, FieldMismatch{
				Field:    "moe_confidence",
				Golden:   strconv.FormatFloat(g.Confidence, 'f', 6, 64),
				Hardware: strconv.FormatFloat(h.Confidence, 'f', 6, 64),
			})
		}
		if g.Action != h.Action {
			diffs = append(diffs, FieldMismatch{"moe_action", g.Action.String(), h.Action.String()})
		}

		if len(diffs) == 0 {
			rep.Passed++
			continue
		}
		rep.Failed++
		rep.Mismatches = append(rep.Mismatches, OrderMismatch{
			Index:  i,
			Stock:  strings.TrimSpace(g.Stock),
			Fields: diffs,
		})
	}
	return rep
}

// Print writes a human-readable report.
func (r *Report) Print(w io.Writer, goldenPath, hardwarePath string) {
	rule := strings.Repeat("=", 70)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "  Trace verification report")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  Golden trace:     %s\n", goldenPath)
	fmt.Fprintf(w, "  Hardware trace:   %s\n", hardwarePath)
	fmt.Fprintf(w, "  Orders compared:  %d\n", r.Total)
	if r.RowCountMismatch() {
		fmt.Fprintf(w, "  WARNING: row count mismatch, golden has %d rows, hardware has %d rows\n",
			r.GoldenRows, r.HardwareRows)
	}
	fmt.Fprintln(w)

	if len(r.Mismatches) > 0 {
		fmt.Fprintln(w, "  MISMATCHES:")
		for _, m := range r.Mismatches {
			fmt.Fprintf(w, "  Order %d (%s):\n", m.Index, m.Stock)
			for _, f := range m.Fields {
				fmt.Fprintf(w, "    - %s: golden=%s hw=%s\n", f.Field, f.Golden, f.Hardware)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "  Passed: %d\n", r.Passed)
	fmt.Fprintf(w, "  Failed: %d\n", r.Failed)
	switch {
	case r.Total == 0:
		fmt.Fprintln(w, "  VERDICT: NO DATA, nothing to compare")
	case r.Failed == 0:
		fmt.Fprintln(w, "  VERDICT: PASS, bit-accurate match")
	default:
		fmt.Fprintf(w, "  VERDICT: FAIL, %d/%d orders (%.1f%%) have mismatches\n",
			r.Failed, r.Total, float64(r.Failed)/float64(r.Total)*100)
	}
	fmt.Fprintln(w, rule)
}
