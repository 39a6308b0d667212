package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/uhyunpark/itchmoe/pkg/features"
	"github.com/uhyunpark/itchmoe/pkg/feed"
	"github.com/uhyunpark/itchmoe/pkg/itch"
	"github.com/uhyunpark/itchmoe/pkg/metrics"
	"github.com/uhyunpark/itchmoe/pkg/moe"
	"github.com/uhyunpark/itchmoe/pkg/orderbook"
	"github.com/uhyunpark/itchmoe/pkg/trace"
)

type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type collect struct{ recs []Record }

func (c *collect) OnRecord(r Record) error {
	c.recs = append(c.recs, r)
	return nil
}

func newPipeline(opts ...Option) *Pipeline {
	return New(moe.NewEngine(moe.DefaultWeights()), opts...)
}

func extractEmpty(o *itch.AddOrder) features.Vector { return features.Extract(o, 0, 0) }

func TestGoldenScenarioMatching(t *testing.T) {
	var out collect
	p := newPipeline(WithSink(&out))
	sum, err := p.Run(context.Background(), Orders(feed.GoldenScenario()))
	require.NoError(t, err)
	require.Len(t, out.recs, 8)

	want := []struct {
		bid, ask uint32
		match    orderbook.MatchResult
	}{
		{0, 0, orderbook.MatchResult{}},
		{100000, 0, orderbook.MatchResult{}},
		{100000, 100100, orderbook.MatchResult{}},
		{100050, 100100, orderbook.MatchResult{Matched: true, Price: 100050, Quantity: 50}},
		{100050, 100100, orderbook.MatchResult{Matched: true, Price: 100100, Quantity: 200}},
		{100200, 0, orderbook.MatchResult{Matched: true, Price: 100200, Quantity: 100}},
		{100050, 0, orderbook.MatchResult{}},
		{100050, 0, orderbook.MatchResult{}},
	}
	for i, w := range want {
		r := out.recs[i]
		assert.Equal(t, uint64(i), r.Seq)
		assert.Equal(t, w.bid, r.BestBid, "order %d best bid", i)
		assert.Equal(t, w.ask, r.BestAsk, "order %d best ask", i)
		assert.Equal(t, w.match, r.Match, "order %d match", i)
		assert.GreaterOrEqual(t, r.Signal.Confidence, 0.0)
		assert.Zero(t, r.Signal.Price)
		assert.InDelta(t, 1.0, r.Gates[0]+r.Gates[1], 1e-12)
	}

	assert.Equal(t, itch.Stats{TotalMessages: 8, AddOrders: 8}, sum.Stats)
	assert.Equal(t, uint64(8), sum.Records)
	assert.Equal(t, uint64(3), sum.Trades)
	assert.Equal(t, uint64(350), sum.MatchedQty)
	assert.Equal(t, uint32(100050), sum.FinalBestBid)
	assert.Equal(t, uint32(100500), sum.FinalBestAsk)
	assert.Equal(t, "10.005", sum.BestBidDollars().String())
	assert.Equal(t, uint64(8), sum.Signals[0]+sum.Signals[1]+sum.Signals[2])

	// GOOG and the AAPL remainder share one book.
	assert.Equal(t, uint64(600), p.Book().BidQty(100000))
	assert.Equal(t, uint64(100), p.Book().BidQty(100050))
}

// The model columns of the golden trace under the default weights. Combined
// scores are sums of k/256 outputs scaled by k/1024 gates, so they are exact.
func TestGoldenScenarioSignals(t *testing.T) {
	var out collect
	p := newPipeline(WithSink(&out))
	_, err := p.Run(context.Background(), Orders(feed.GoldenScenario()))
	require.NoError(t, err)
	require.Len(t, out.recs, 8)

	want := []struct {
		selected   [moe.TopK]int
		combined   float64
		action     moe.Action
		confidence string
	}{
		{[moe.TopK]int{4, 5}, -0.013545989990234375, moe.Hold, "0.013546"},
		{[moe.TopK]int{6, 4}, -0.01629638671875, moe.Hold, "0.0162964"},
		{[moe.TopK]int{4, 5}, -0.013523101806640625, moe.Hold, "0.0135231"},
		{[moe.TopK]int{6, 7}, -0.01953125, moe.Hold, "0.0195312"},
		{[moe.TopK]int{4, 3}, -0.005916595458984375, moe.Hold, "0.0059166"},
		{[moe.TopK]int{6, 4}, -0.01454925537109375, moe.Hold, "0.0145493"},
		{[moe.TopK]int{4, 5}, -0.013458251953125, moe.Hold, "0.0134583"},
		{[moe.TopK]int{6, 4}, -0.0162811279296875, moe.Hold, "0.0162811"},
	}
	for i, w := range want {
		r := out.recs[i]
		assert.Equal(t, w.selected, r.Selected, "order %d experts", i)
		assert.Equal(t, w.combined, r.Combined, "order %d combined", i)
		assert.Equal(t, w.action, r.Signal.Action, "order %d action", i)
		assert.Equal(t, -w.combined, r.Signal.Confidence, "order %d confidence", i)

		fields := r.Row().Fields()
		assert.Equal(t, "0", fields[7], "order %d moe_action", i)
		assert.Equal(t, w.confidence, fields[8], "order %d moe_confidence", i)
	}
}

func TestProcessMatchesStages(t *testing.T) {
	p := newPipeline()
	o := feed.GoldenScenario()[0]
	rec, ok := p.Process(itch.Encode(&o))
	require.True(t, ok)

	assert.Equal(t, o, rec.Order)
	x := p.Engine().InferDetail(extractEmpty(&o))
	assert.Equal(t, x.Signal, rec.Signal)
	assert.Equal(t, x.Selected, rec.Selected)
	assert.Equal(t, x.Combined, rec.Combined)
}

func TestRejectedFramesAreSkipped(t *testing.T) {
	orders := feed.GoldenScenario()
	frames := [][]byte{
		{},
		itch.Encode(&orders[0]),
		{'E', 1, 2, 3},
		itch.Encode(&orders[1])[:20],
		itch.Encode(&orders[1]),
	}
	m := metrics.New()
	var out collect
	p := newPipeline(WithSink(&out), WithMetrics(m))
	sum, err := p.Run(context.Background(), Frames(frames))
	require.NoError(t, err)

	require.Len(t, out.recs, 2)
	assert.Equal(t, uint64(0), out.recs[0].Seq)
	assert.Equal(t, uint64(1), out.recs[1].Seq)
	assert.Equal(t, itch.Stats{TotalMessages: 4, AddOrders: 2}, sum.Stats)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.Messages))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rejected))
}

func TestTraceSinkAndDigest(t *testing.T) {
	var buf bytes.Buffer
	w := trace.NewWriter(&buf)
	p := newPipeline(WithSink(TraceSink(w)))
	sum, err := p.Run(context.Background(), Orders(feed.GoldenScenario()))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	rows, err := trace.Read(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 8)
	assert.Equal(t, "AAPL", rows[0].Stock)
	assert.True(t, rows[3].Matched)
	assert.Equal(t, uint32(100050), rows[3].MatchPrice)
	assert.Equal(t, sum.TraceDigest, trace.Digest(rows))
}

func TestRunDeterministic(t *testing.T) {
	gen := feed.NewGenerator(feed.DefaultGeneratorConfig()).Generate(300)
	a, err := newPipeline().Run(context.Background(), Orders(gen))
	require.NoError(t, err)
	b, err := newPipeline().Run(context.Background(), Orders(gen))
	require.NoError(t, err)

	assert.Equal(t, a.TraceDigest, b.TraceDigest)
	assert.Equal(t, a.BookDigest, b.BookDigest)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestConcurrentMatchesSerial(t *testing.T) {
	gen := feed.NewGenerator(feed.DefaultGeneratorConfig()).Generate(2000)

	var serial, conc collect
	s, err := newPipeline(WithSink(&serial)).Run(context.Background(), Orders(gen))
	require.NoError(t, err)

	for _, workers := range []int{2, 4, 16} {
		conc.recs = nil
		c, err := newPipeline(WithSink(&conc)).RunConcurrent(context.Background(), Orders(gen), workers)
		require.NoError(t, err)
		assert.Equal(t, serial.recs, conc.recs, "workers=%d", workers)
		assert.Equal(t, s.TraceDigest, c.TraceDigest)
		assert.Equal(t, s.BookDigest, c.BookDigest)
		assert.Equal(t, s.Stats, c.Stats)
		assert.Equal(t, s.Signals, c.Signals)
	}
}

func TestConcurrentSingleWorkerFallsBack(t *testing.T) {
	var out collect
	_, err := newPipeline(WithSink(&out)).RunConcurrent(context.Background(), Orders(feed.GoldenScenario()), 1)
	require.NoError(t, err)
	assert.Len(t, out.recs, 8)
}

func TestSinkErrorStopsRun(t *testing.T) {
	boom := errors.New("disk full")
	calls := 0
	sink := SinkFunc(func(Record) error {
		calls++
		if calls == 3 {
			return boom
		}
		return nil
	})

	_, err := newPipeline(WithSink(sink)).Run(context.Background(), Orders(feed.GoldenScenario()))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)

	calls = 0
	gen := feed.NewGenerator(feed.DefaultGeneratorConfig()).Generate(500)
	_, err = newPipeline(WithSink(sink)).RunConcurrent(context.Background(), Orders(gen), 4)
	assert.ErrorIs(t, err, boom)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newPipeline().Run(ctx, Orders(feed.GoldenScenario()))
	assert.ErrorIs(t, err, context.Canceled)
}

type failingSource struct{}

func (failingSource) Next() ([]byte, error) { return nil, errors.New("io broke") }

func TestSourceError(t *testing.T) {
	_, err := newPipeline().Run(context.Background(), failingSource{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "io broke")

	_, err = newPipeline().RunConcurrent(context.Background(), failingSource{}, 3)
	require.Error(t, err)
}

func TestReaderSource(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, itch.WriteFrames(&buf, feed.GoldenScenario()))
	sum, err := newPipeline().Run(context.Background(), Reader(&buf))
	require.NoError(t, err)
	assert.Equal(t, uint64(8), sum.Records)
}

func TestRunIDClockAndLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	id := uuid.MustParse("6f1c9a1e-8a57-4c0e-9b1e-2a3d4c5e6f70")
	clk := &stepClock{now: time.Unix(1_700_000_000, 0), step: 250 * time.Millisecond}

	p := newPipeline(WithRunID(id), WithClock(clk), WithLogger(zap.New(core).Sugar()))
	sum, err := p.Run(context.Background(), Frames([][]byte{{'X'}, itch.Encode(&feed.GoldenScenario()[0])}))
	require.NoError(t, err)

	assert.Equal(t, id, sum.RunID)
	assert.Equal(t, id, p.RunID())
	assert.Equal(t, 250*time.Millisecond, sum.Elapsed)
	assert.Equal(t, 1, logs.FilterMessage("pipeline_started").Len())
	assert.Equal(t, 1, logs.FilterMessage("decode_rejected").Len())
	finished := logs.FilterMessage("pipeline_finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, id.String(), finished[0].ContextMap()["run_id"])
}
