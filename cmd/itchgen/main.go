// Command itchgen writes a binary Add Order feed, either from a CSV of prices
// or from the seeded synthetic market, with an optional readable listing.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/uhyunpark/itchmoe/pkg/feed"
	"github.com/uhyunpark/itchmoe/pkg/itch"
)

type options struct {
	input     string
	output    string
	listing   string
	synthetic bool
	numOrders int
	symbols   string
	basePrice float64
	seed      int64
}

func main() {
	var o options
	flag.StringVar(&o.input, "input", "", "CSV file with historical prices")
	flag.StringVar(&o.output, "output", "data/test_orders.bin", "output binary feed")
	flag.StringVar(&o.listing, "csv", "", "also write a readable CSV listing")
	flag.BoolVar(&o.synthetic, "synthetic", false, "generate a synthetic random walk instead of reading a CSV")
	flag.IntVar(&o.numOrders, "num-orders", 1000, "number of synthetic orders")
	flag.StringVar(&o.symbols, "symbols", "", "comma separated tickers for synthetic data")
	flag.Float64Var(&o.basePrice, "base-price", 150.0, "starting price in dollars for synthetic data")
	flag.Int64Var(&o.seed, "seed", 42, "random seed")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s (-input prices.csv | -synthetic) [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(o, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(o options, out io.Writer) error {
	if o.input == "" && !o.synthetic {
		return errors.New("must specify either -input (CSV file) or -synthetic")
	}

	var orders []itch.AddOrder
	if o.synthetic {
		if o.numOrders <= 0 {
			return fmt.Errorf("num-orders must be positive, got %d", o.numOrders)
		}
		fmt.Fprintf(out, "Generating %d synthetic ITCH orders...\n", o.numOrders)
		cfg := feed.DefaultGeneratorConfig()
		cfg.Seed = o.seed
		cfg.BasePrice = o.basePrice
		if syms := splitSymbols(o.symbols); len(syms) > 0 {
			cfg.Symbols = syms
		}
		orders = feed.NewGenerator(cfg).Generate(o.numOrders)
	} else {
		f, err := os.Open(o.input)
		if err != nil {
			return fmt.Errorf("input file: %w", err)
		}
		defer f.Close()
		fmt.Fprintf(out, "Generating ITCH orders from CSV: %s\n", o.input)
		orders, err = feed.FromCSV(f, o.seed)
		if err != nil {
			return err
		}
	}

	n, err := writeFile(o.output, func(w io.Writer) error { return itch.WriteFrames(w, orders) })
	if err != nil {
		return fmt.Errorf("write feed: %w", err)
	}
	if o.listing != "" {
		if _, err := writeFile(o.listing, func(w io.Writer) error { return feed.WriteListing(w, orders) }); err != nil {
			return fmt.Errorf("write listing: %w", err)
		}
	}

	fmt.Fprintf(out, "Generated %d orders (%d bytes) -> %s\n", len(orders), n, o.output)
	if o.listing != "" {
		fmt.Fprintf(out, "CSV log -> %s\n", o.listing)
	}
	fmt.Fprintf(out, "Each message: %d bytes (ITCH Add Order format)\n", itch.AddOrderSize)
	return nil
}

// writeFile creates path and its directory and returns the bytes written.
func writeFile(path string, fill func(io.Writer) error) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	cw := &countingWriter{w: f}
	bw := bufio.NewWriter(cw)
	if err := fill(bw); err != nil {
		f.Close()
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return 0, err
	}
	return cw.n, f.Close()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func splitSymbols(s string) []string {
	var out []string
	for _, sym := range strings.Split(s, ",") {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}
