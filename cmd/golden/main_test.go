package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/uhyunpark/itchmoe/params"
	"github.com/uhyunpark/itchmoe/pkg/feed"
	"github.com/uhyunpark/itchmoe/pkg/itch"
	"github.com/uhyunpark/itchmoe/pkg/moe"
	"github.com/uhyunpark/itchmoe/pkg/storage"
	"github.com/uhyunpark/itchmoe/pkg/trace"
)

func testConfig(t *testing.T) params.Config {
	cfg := params.Default()
	cfg.Output.TraceFile = filepath.Join(t.TempDir(), "out", "golden_trace.csv")
	return cfg
}

func TestGoldenRun(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	sum, err := run(context.Background(), cfg, zaptest.NewLogger(t).Sugar(), &out, false)
	require.NoError(t, err)

	assert.Equal(t, uint64(8), sum.Stats.TotalMessages)
	assert.Equal(t, uint32(100050), sum.FinalBestBid)
	assert.Equal(t, uint32(100500), sum.FinalBestAsk)

	text := out.String()
	assert.Contains(t, text, "Order 0: B 100 shares @ $10.0000")
	assert.Contains(t, text, "Order 3: S 50 shares @ $10.0050")
	assert.Contains(t, text, "YES @ $10.0050 x50")
	assert.Contains(t, text, "Total messages parsed: 8")
	assert.Contains(t, text, "Final best bid: $10.0050")
	assert.Contains(t, text, "Final best ask: $10.0500")

	rows, err := trace.ReadFile(cfg.Output.TraceFile)
	require.NoError(t, err)
	require.Len(t, rows, 8)
	assert.Equal(t, sum.TraceDigest, trace.Digest(rows))
}

func TestSyntheticConcurrentMatchesSerial(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input.SyntheticOrders = 500
	serial, err := run(context.Background(), cfg, zaptest.NewLogger(t).Sugar(), &bytes.Buffer{}, false)
	require.NoError(t, err)

	cfg.Model.InferWorkers = 4
	cfg.Output.TraceFile = filepath.Join(t.TempDir(), "concurrent.csv")
	var out bytes.Buffer
	par, err := run(context.Background(), cfg, zaptest.NewLogger(t).Sugar(), &out, false)
	require.NoError(t, err)

	assert.Equal(t, uint64(500), par.Records)
	assert.Equal(t, serial.TraceDigest, par.TraceDigest)
	assert.Equal(t, serial.BookDigest, par.BookDigest)
	assert.NotContains(t, out.String(), "Order 0:")
}

func TestFeedFileAndStore(t *testing.T) {
	dir := t.TempDir()

	feedPath := filepath.Join(dir, "orders.bin")
	f, err := os.Create(feedPath)
	require.NoError(t, err)
	require.NoError(t, itch.WriteFrames(f, feed.GoldenScenario()))
	require.NoError(t, f.Close())

	w := moe.DefaultWeights()
	w.Router.Bias[0] = w.Router.Bias[7]
	weightsPath := filepath.Join(dir, "weights.yaml")
	require.NoError(t, moe.SaveWeights(weightsPath, w))

	cfg := testConfig(t)
	cfg.Input.File = feedPath
	cfg.Model.WeightsFile = weightsPath
	cfg.Output.StoreDir = filepath.Join(dir, "store")

	sum, err := run(context.Background(), cfg, zaptest.NewLogger(t).Sugar(), &bytes.Buffer{}, true)
	require.NoError(t, err)

	store, err := storage.NewPebbleStore(cfg.Output.StoreDir)
	require.NoError(t, err)
	defer store.Close()

	stored, err := store.LoadWeights()
	require.NoError(t, err)
	assert.Equal(t, *w, *stored)

	meta, err := store.LoadRun(sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, "orders.bin", meta.Source)
	rows, err := store.Rows(sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, sum.TraceDigest, trace.Digest(rows))
}

func TestStoredWeightsAreReused(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewPebbleStore(dir)
	require.NoError(t, err)
	w := moe.DefaultWeights()
	w.Experts[0].B2 = w.Experts[0].W2[3]
	require.NoError(t, store.SaveWeights(w))
	require.NoError(t, store.Close())

	cfg := testConfig(t)
	cfg.Output.StoreDir = dir
	store, err = storage.NewPebbleStore(dir)
	require.NoError(t, err)
	got, origin, err := loadWeights(cfg, store)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.Equal(t, "store", origin)
	assert.Equal(t, *w, *got)

	got, origin, err = loadWeights(params.Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, "default", origin)
	assert.Equal(t, *moe.DefaultWeights(), *got)
}

func TestMissingInputs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input.File = filepath.Join(t.TempDir(), "nope.bin")
	_, err := run(context.Background(), cfg, zaptest.NewLogger(t).Sugar(), &bytes.Buffer{}, false)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Model.WeightsFile = filepath.Join(t.TempDir(), "nope.yaml")
	_, err = run(context.Background(), cfg, zaptest.NewLogger(t).Sugar(), &bytes.Buffer{}, false)
	assert.Error(t, err)
}
