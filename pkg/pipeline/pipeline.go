// Package pipeline drives frames through decode, feature extraction, model
// inference and matching, and fans the resulting records out to sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/itchmoe/pkg/features"
	"github.com/uhyunpark/itchmoe/pkg/itch"
	"github.com/uhyunpark/itchmoe/pkg/metrics"
	"github.com/uhyunpark/itchmoe/pkg/moe"
	"github.com/uhyunpark/itchmoe/pkg/orderbook"
	"github.com/uhyunpark/itchmoe/pkg/trace"
	"github.com/uhyunpark/itchmoe/pkg/util"
)

// Sink receives every record in order. A sink error stops the run.
type Sink interface {
	OnRecord(rec Record) error
}

type SinkFunc func(rec Record) error

func (f SinkFunc) OnRecord(rec Record) error { return f(rec) }

// TraceSink writes each record as a trace row.
func TraceSink(w *trace.Writer) Sink {
	return SinkFunc(func(rec Record) error { return w.Write(rec.Row()) })
}

// Summary describes a finished run.
type Summary struct {
	RunID        uuid.UUID
	Stats        itch.Stats
	Records      uint64
	Trades       uint64
	MatchedQty   uint64
	Signals      [3]uint64 // indexed by moe.Action
	FinalBestBid uint32
	FinalBestAsk uint32
	BookDigest   common.Hash
	TraceDigest  common.Hash
	Started      time.Time
	Elapsed      time.Duration
}

func (s Summary) BestBidDollars() decimal.Decimal { return itch.PriceToDecimal(s.FinalBestBid) }
func (s Summary) BestAskDollars() decimal.Decimal { return itch.PriceToDecimal(s.FinalBestAsk) }

type Option func(*Pipeline)

func WithLogger(l *zap.SugaredLogger) Option { return func(p *Pipeline) { p.log = l } }
func WithMetrics(m *metrics.Metrics) Option  { return func(p *Pipeline) { p.metrics = m } }
func WithSink(s Sink) Option                 { return func(p *Pipeline) { p.sinks = append(p.sinks, s) } }
func WithClock(c util.Clock) Option          { return func(p *Pipeline) { p.clock = c } }
func WithRunID(id uuid.UUID) Option          { return func(p *Pipeline) { p.runID = id } }

// Pipeline owns one decoder and one book. Process and Run are not safe for
// concurrent use; the book may be read from other goroutines.
type Pipeline struct {
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	clock   util.Clock
	sinks   []Sink
	runID   uuid.UUID

	engine *moe.Engine
	dec    *itch.Decoder
	book   *orderbook.Book

	// written by the admitting side
	seq uint64

	// written by the emitting side
	digest     *trace.Digester
	records    uint64
	trades     uint64
	matchedQty uint64
	signals    [3]uint64
}

func New(engine *moe.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		log:    zap.NewNop().Sugar(),
		clock:  util.RealClock{},
		runID:  uuid.New(),
		engine: engine,
		dec:    itch.NewDecoder(),
		book:   orderbook.New(),
		digest: trace.NewDigester(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pipeline) RunID() uuid.UUID      { return p.runID }
func (p *Pipeline) Book() *orderbook.Book { return p.book }
func (p *Pipeline) Stats() itch.Stats     { return p.dec.Stats() }
func (p *Pipeline) Engine() *moe.Engine   { return p.engine }

// Process runs one buffer through every stage. It returns false if the
// decoder rejected the buffer, in which case nothing else happened. Sinks are
// not called; Run does that.
func (p *Pipeline) Process(buf []byte) (Record, bool) {
	rec, x, ok := p.admit(buf)
	if !ok {
		return Record{}, false
	}
	rec.applyInference(p.engine.InferDetail(x))
	p.account(&rec)
	return rec, true
}

// admit decodes buf, snapshots the top of book, extracts features and applies
// the order to the book. The model output is filled in later.
func (p *Pipeline) admit(buf []byte) (Record, features.Vector, bool) {
	var o itch.AddOrder
	ok := p.dec.Decode(buf, &o)
	if len(buf) > 0 {
		p.metrics.Decoded(ok)
	}
	if !ok {
		p.log.Debugw("decode_rejected", "len", len(buf), "total_messages", p.dec.Stats().TotalMessages)
		return Record{}, features.Vector{}, false
	}

	bid, ask := p.book.Top()
	x := features.Extract(&o, bid, ask)

	side := orderbook.Sell
	if o.Side.IsBuy() {
		side = orderbook.Buy
	}
	match := p.book.AddOrder(side, o.Price, o.Shares)

	rec := Record{
		Seq:     p.seq,
		Order:   o,
		BestBid: bid,
		BestAsk: ask,
		Match:   match,
	}
	p.seq++
	return rec, x, true
}

// account folds a finished record into the run totals.
func (p *Pipeline) account(rec *Record) {
	p.digest.Add(rec.Row())
	p.records++
	if int(rec.Signal.Action) < len(p.signals) {
		p.signals[rec.Signal.Action]++
	}
	p.metrics.Signal(rec.Signal.Action.String())
	if rec.Match.Matched {
		p.trades++
		p.matchedQty += uint64(rec.Match.Quantity)
		p.metrics.Trade(rec.Match.Quantity)
		p.log.Debugw("trade_matched",
			"seq", rec.Seq,
			"stock", rec.Order.Symbol(),
			"price", rec.Match.Price,
			"qty", rec.Match.Quantity,
		)
	}
}

func (p *Pipeline) emit(rec Record) error {
	for _, s := range p.sinks {
		if err := s.OnRecord(rec); err != nil {
			return fmt.Errorf("sink seq=%d: %w", rec.Seq, err)
		}
	}
	return nil
}

// Run processes src serially until io.EOF.
func (p *Pipeline) Run(ctx context.Context, src Source) (Summary, error) {
	started := p.clock.Now()
	p.log.Infow("pipeline_started", "run_id", p.runID.String(), "workers", 1)

	for {
		if err := ctx.Err(); err != nil {
			return p.summary(started), err
		}
		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p.summary(started), fmt.Errorf("read source: %w", err)
		}
		rec, ok := p.Process(frame)
		if !ok {
			continue
		}
		if err := p.emit(rec); err != nil {
			return p.summary(started), err
		}
	}

	sum := p.summary(started)
	p.logFinished(sum)
	return sum, nil
}

func (p *Pipeline) summary(started time.Time) Summary {
	bid, ask := p.book.Top()
	nb, na := p.book.Depth()
	p.metrics.Depth(nb, na)
	return Summary{
		RunID:        p.runID,
		Stats:        p.dec.Stats(),
		Records:      p.records,
		Trades:       p.trades,
		MatchedQty:   p.matchedQty,
		Signals:      p.signals,
		FinalBestBid: bid,
		FinalBestAsk: ask,
		BookDigest:   p.book.Digest(),
		TraceDigest:  p.digest.Sum(),
		Started:      started,
		Elapsed:      p.clock.Now().Sub(started),
	}
}

func (p *Pipeline) logFinished(s Summary) {
	p.log.Infow("pipeline_finished",
		"run_id", s.RunID.String(),
		"total_messages", s.Stats.TotalMessages,
		"add_orders", s.Stats.AddOrders,
		"trades", s.Trades,
		"best_bid", s.BestBidDollars().StringFixed(itch.PriceDecimals),
		"best_ask", s.BestAskDollars().StringFixed(itch.PriceDecimals),
		"trace_digest", s.TraceDigest.Hex(),
		"elapsed", s.Elapsed,
	)
}
