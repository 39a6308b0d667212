// Package trace reads, writes, hashes and compares the per-order CSV trace
// that hardware simulation output is checked against.
package trace

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/uhyunpark/itchmoe/pkg/moe"
)

// Header is the exact column layout of a trace file.
var Header = []string{
	"order_idx", "side", "price", "shares", "stock", "best_bid", "best_ask",
	"moe_action", "moe_confidence", "matched", "match_price", "match_qty",
}

var ErrHeader = errors.New("trace: unexpected header")

// Row is one order's outcome. Stock is the raw 8-byte field as text.
type Row struct {
	OrderIdx   uint64
	Side       byte
	Price      uint32
	Shares     uint32
	Stock      string
	BestBid    uint32
	BestAsk    uint32
	Action     moe.Action
	Confidence float64
	Matched    bool
	MatchPrice uint32
	MatchQty   uint32
}

// Fields renders r as CSV fields. Actions are written as their numeric code
// and confidence uses six significant digits.
func (r Row) Fields() []string {
	matched := "0"
	if r.Matched {
		matched = "1"
	}
	return []string{
		strconv.FormatUint(r.OrderIdx, 10),
		string([]byte{r.Side}),
		strconv.FormatUint(uint64(r.Price), 10),
		strconv.FormatUint(uint64(r.Shares), 10),
		r.Stock,
		strconv.FormatUint(uint64(r.BestBid), 10),
		strconv.FormatUint(uint64(r.BestAsk), 10),
		strconv.Itoa(int(r.Action)),
		FormatConfidence(r.Confidence),
		matched,
		strconv.FormatUint(uint64(r.MatchPrice), 10),
		strconv.FormatUint(uint64(r.MatchQty), 10),
	}
}

// FormatConfidence formats like a default C++ ostream: %g with six
// significant digits and no trailing zeros.
func FormatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'g', 6, 64)
}

// Writer emits a trace. The header is written on the first Write.
type Writer struct {
	cw      *csv.Writer
	started bool
	rows    int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{cw: csv.NewWriter(w)}
}

func (w *Writer) Write(r Row) error {
	if !w.started {
		if err := w.WriteHeader(); err != nil {
			return err
		}
	}
	if err := w.cw.Write(r.Fields()); err != nil {
		return fmt.Errorf("write trace row %d: %w", r.OrderIdx, err)
	}
	w.rows++
	return nil
}

// WriteHeader writes the header if it has not been written yet. An empty run
// still produces a valid file this way.
func (w *Writer) WriteHeader() error {
	if w.started {
		return nil
	}
	w.started = true
	if err := w.cw.Write(Header); err != nil {
		return fmt.Errorf("write trace header: %w", err)
	}
	return nil
}

// Rows returns the number of data rows written.
func (w *Writer) Rows() int { return w.rows }

func (w *Writer) Flush() error {
	w.cw.Flush()
	return w.cw.Error()
}

// Read parses a trace. Column names and values are trimmed; columns may
// appear in any order but all of Header must be present.
func Read(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	head, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrHeader)
		}
		return nil, fmt.Errorf("read trace header: %w", err)
	}
	col := make(map[string]int, len(head))
	for i, h := range head {
		col[strings.TrimSpace(h)] = i
	}
	for _, h := range Header {
		if _, ok := col[h]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrHeader, h)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read trace line %d: %w", line, err)
		}
		row, err := parseRow(rec, col)
		if err != nil {
			return nil, fmt.Errorf("trace line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
}

// ReadFile opens and parses path.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func parseRow(rec []string, col map[string]int) (Row, error) {
	get := func(name string) (string, error) {
		i := col[name]
		if i >= len(rec) {
			return "", fmt.Errorf("missing %s", name)
		}
		return strings.TrimSpace(rec[i]), nil
	}
	u32 := func(name string) (uint32, error) {
		s, err := get(name)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return uint32(v), nil
	}

	var r Row
	s, err := get("order_idx")
	if err != nil {
		return r, err
	}
	if r.OrderIdx, err = strconv.ParseUint(s, 10, 64); err != nil {
		return r, fmt.Errorf("order_idx: %w", err)
	}

	if s, err = get("side"); err != nil {
		return r, err
	}
	if len(s) != 1 {
		return r, fmt.Errorf("side: want one character, got %q", s)
	}
	r.Side = s[0]

	if r.Price, err = u32("price"); err != nil {
		return r, err
	}
	if r.Shares, err = u32("shares"); err != nil {
		return r, err
	}
	if r.Stock, err = get("stock"); err != nil {
		return r, err
	}
	if r.BestBid, err = u32("best_bid"); err != nil {
		return r, err
	}
	if r.BestAsk, err = u32("best_ask"); err != nil {
		return r, err
	}

	if s, err = get("moe_action"); err != nil {
		return r, err
	}
	a, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return r, fmt.Errorf("moe_action: %w", err)
	}
	r.Action = moe.Action(int(a))

	if s, err = get("moe_confidence"); err != nil {
		return r, err
	}
	if r.Confidence, err = strconv.ParseFloat(s, 64); err != nil {
		return r, fmt.Errorf("moe_confidence: %w", err)
	}

	if s, err = get("matched"); err != nil {
		return r, err
	}
	switch s {
	case "0":
	case "1":
		r.Matched = true
	default:
		return r, fmt.Errorf("matched: want 0 or 1, got %q", s)
	}

	if r.MatchPrice, err = u32("match_price"); err != nil {
		return r, err
	}
	if r.MatchQty, err = u32("match_qty"); err != nil {
		return r, err
	}
	return r, nil
}
