// Command golden runs an Add Order feed through the decoder, the MoE model and
// the book, and writes the reference trace that hardware runs are checked
// against.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/itchmoe/params"
	"github.com/uhyunpark/itchmoe/pkg/api"
	"github.com/uhyunpark/itchmoe/pkg/feed"
	"github.com/uhyunpark/itchmoe/pkg/itch"
	"github.com/uhyunpark/itchmoe/pkg/metrics"
	"github.com/uhyunpark/itchmoe/pkg/moe"
	"github.com/uhyunpark/itchmoe/pkg/pipeline"
	"github.com/uhyunpark/itchmoe/pkg/storage"
	"github.com/uhyunpark/itchmoe/pkg/trace"
	"github.com/uhyunpark/itchmoe/pkg/util"
)

func main() {
	envPath := flag.String("env", "", "path to .env file (default: ./.env)")
	printOrders := flag.Bool("print-orders", false, "print one line per order (always on for the golden scenario)")
	flag.Parse()

	// Priority: ENV > .env file > defaults
	cfg := params.LoadFromEnv(*envPath)

	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Output.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Output.LogFile, cfg.Output.LogLevel)
	} else {
		logger, err = util.NewLogger(cfg.Output.LogLevel)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := run(ctx, cfg, sugar, os.Stdout, *printOrders); err != nil {
		sugar.Fatalw("golden_run_failed", "err", err)
	}
}

// run executes one configured run and prints the summary to out. With the API
// enabled it keeps serving until ctx is cancelled.
func run(ctx context.Context, cfg params.Config, sugar *zap.SugaredLogger, out io.Writer, printOrders bool) (pipeline.Summary, error) {
	var store *storage.PebbleStore
	if cfg.Output.StoreDir != "" {
		s, err := storage.NewPebbleStore(cfg.Output.StoreDir)
		if err != nil {
			return pipeline.Summary{}, fmt.Errorf("open store: %w", err)
		}
		defer s.Close()
		store = s
	}

	weights, origin, err := loadWeights(cfg, store)
	if err != nil {
		return pipeline.Summary{}, err
	}
	sugar.Infow("weights_loaded", "origin", origin)

	src, name, closeSrc, err := openSource(cfg)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer closeSrc()
	printOrders = printOrders || name == "golden"

	traceFile, err := createFile(cfg.Output.TraceFile)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("create trace: %w", err)
	}
	defer traceFile.Close()
	tw := trace.NewWriter(traceFile)
	if err := tw.WriteHeader(); err != nil {
		return pipeline.Summary{}, err
	}

	runID := uuid.New()
	m := metrics.New()
	opts := []pipeline.Option{
		pipeline.WithRunID(runID),
		pipeline.WithLogger(sugar),
		pipeline.WithMetrics(m),
		pipeline.WithSink(pipeline.TraceSink(tw)),
	}
	if printOrders {
		fmt.Fprintf(out, "Processing %s orders:\n", name)
		fmt.Fprintln(out, strings.Repeat("-", 70))
		opts = append(opts, pipeline.WithSink(orderPrinter(out)))
	}

	var recorder *storage.RunRecorder
	if store != nil {
		recorder = store.NewRunRecorder(runID, storage.DefaultBatchSize)
		opts = append(opts, pipeline.WithSink(recorder))
	}

	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(api.Config{Logger: sugar, Metrics: m, Store: store})
		opts = append(opts, pipeline.WithSink(server))
	}

	p := pipeline.New(moe.NewEngine(weights), opts...)

	serveErr := make(chan error, 1)
	if server != nil {
		server.Attach(p.RunID(), p.Book())
		go func() { serveErr <- server.Start(ctx, cfg.API.Addr) }()
	}

	var sum pipeline.Summary
	if cfg.Model.InferWorkers > 1 {
		sum, err = p.RunConcurrent(ctx, src, cfg.Model.InferWorkers)
	} else {
		sum, err = p.Run(ctx, src)
	}
	if err != nil {
		return sum, err
	}
	if err := tw.Flush(); err != nil {
		return sum, fmt.Errorf("flush trace: %w", err)
	}

	if recorder != nil {
		if err := recorder.Finish(name, sum); err != nil {
			return sum, fmt.Errorf("store run: %w", err)
		}
		sugar.Infow("run_stored", "run_id", sum.RunID.String(), "records", recorder.Written(), "dir", cfg.Output.StoreDir)
	}

	printSummary(out, sum, cfg.Output.TraceFile)

	if server != nil {
		server.Finish(sum)
		sugar.Infow("api_serving_until_interrupt", "addr", cfg.API.Addr)
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			if err != nil {
				return sum, fmt.Errorf("api: %w", err)
			}
		}
	}
	return sum, nil
}

// loadWeights prefers the weights file, then weights saved in the store, then
// the built-in table. Weights read from a file are saved to the store.
func loadWeights(cfg params.Config, store *storage.PebbleStore) (*moe.Weights, string, error) {
	if cfg.Model.WeightsFile != "" {
		w, err := moe.LoadWeights(cfg.Model.WeightsFile)
		if err != nil {
			return nil, "", err
		}
		if store != nil {
			if err := store.SaveWeights(w); err != nil {
				return nil, "", err
			}
		}
		return w, cfg.Model.WeightsFile, nil
	}
	if store != nil {
		w, err := store.LoadWeights()
		if err == nil {
			return w, "store", nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, "", fmt.Errorf("load stored weights: %w", err)
		}
	}
	return moe.DefaultWeights(), "default", nil
}

func openSource(cfg params.Config) (pipeline.Source, string, func(), error) {
	nop := func() {}
	switch {
	case cfg.Input.File != "":
		f, err := os.Open(cfg.Input.File)
		if err != nil {
			return nil, "", nop, fmt.Errorf("open feed: %w", err)
		}
		return pipeline.Reader(f), filepath.Base(cfg.Input.File), func() { f.Close() }, nil

	case cfg.Input.CSV != "":
		f, err := os.Open(cfg.Input.CSV)
		if err != nil {
			return nil, "", nop, fmt.Errorf("open csv: %w", err)
		}
		defer f.Close()
		orders, err := feed.FromCSV(f, cfg.Input.SyntheticSeed)
		if err != nil {
			return nil, "", nop, err
		}
		return pipeline.Orders(orders), filepath.Base(cfg.Input.CSV), nop, nil

	case cfg.Input.SyntheticOrders > 0:
		gc := feed.DefaultGeneratorConfig()
		gc.Seed = cfg.Input.SyntheticSeed
		gc.BasePrice = cfg.Input.BasePrice
		if len(cfg.Input.Symbols) > 0 {
			gc.Symbols = cfg.Input.Symbols
		}
		orders := feed.NewGenerator(gc).Generate(cfg.Input.SyntheticOrders)
		return pipeline.Orders(orders), fmt.Sprintf("synthetic(seed=%d)", gc.Seed), nop, nil
	}
	return pipeline.Orders(feed.GoldenScenario()), "golden", nop, nil
}

func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

func orderPrinter(out io.Writer) pipeline.Sink {
	w := bufio.NewWriter(out)
	return pipeline.SinkFunc(func(rec pipeline.Record) error {
		o := &rec.Order
		fmt.Fprintf(w, "Order %d: %s %d shares @ $%s | MoE: %-4s (conf=%.4f) | Match: ",
			rec.Seq, o.Side, o.Shares, o.PriceDecimal().StringFixed(itch.PriceDecimals),
			rec.Signal.Action, rec.Signal.Confidence)
		if rec.Match.Matched {
			fmt.Fprintf(w, "YES @ $%s x%d", itch.PriceToDecimal(rec.Match.Price).StringFixed(itch.PriceDecimals), rec.Match.Quantity)
		} else {
			fmt.Fprint(w, "NO")
		}
		fmt.Fprintln(w)
		return w.Flush()
	})
}

func printSummary(out io.Writer, sum pipeline.Summary, tracePath string) {
	fmt.Fprintln(out, strings.Repeat("-", 70))
	fmt.Fprintf(out, "Total messages parsed: %d\n", sum.Stats.TotalMessages)
	fmt.Fprintf(out, "Add orders parsed:     %d\n", sum.Stats.AddOrders)
	fmt.Fprintf(out, "Trades:                %d (%d shares)\n", sum.Trades, sum.MatchedQty)
	fmt.Fprintf(out, "Signals:               hold=%d buy=%d sell=%d\n",
		sum.Signals[moe.Hold], sum.Signals[moe.Buy], sum.Signals[moe.Sell])
	fmt.Fprintf(out, "Final best bid: $%s\n", sum.BestBidDollars().StringFixed(itch.PriceDecimals))
	fmt.Fprintf(out, "Final best ask: $%s\n", sum.BestAskDollars().StringFixed(itch.PriceDecimals))
	fmt.Fprintf(out, "Trace digest:   %s\n", sum.TraceDigest.Hex())
	fmt.Fprintf(out, "\nGolden trace written to: %s\n", tracePath)
}
