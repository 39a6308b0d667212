// Package storage persists model weights and finished runs in Pebble.
package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/uhyunpark/itchmoe/pkg/itch"
	"github.com/uhyunpark/itchmoe/pkg/moe"
	"github.com/uhyunpark/itchmoe/pkg/pipeline"
	"github.com/uhyunpark/itchmoe/pkg/trace"
)

var ErrNotFound = errors.New("storage: not found")

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}
func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) get(key []byte, fn func(val []byte) error) error {
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	defer closer.Close()
	return fn(val)
}

// ============================================================================
// Weights
// ============================================================================

// SaveWeights writes the router and every expert in one synced batch.
func (s *PebbleStore) SaveWeights(w *moe.Weights) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(kRouter(), encodeRouter(&w.Router), nil); err != nil {
		return err
	}
	for e := 0; e < moe.NumExperts; e++ {
		if err := b.Set(kExpert(e), encodeExpert(w.Expert(e)), nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save weights: %w", err)
	}
	return nil
}

// LoadWeights returns ErrNotFound if no weights were ever saved.
func (s *PebbleStore) LoadWeights() (*moe.Weights, error) {
	w := &moe.Weights{}
	if err := s.get(kRouter(), func(v []byte) error { return decodeRouter(v, &w.Router) }); err != nil {
		return nil, err
	}
	for e := 0; e < moe.NumExperts; e++ {
		err := s.get(kExpert(e), func(v []byte) error { return decodeExpert(v, w.Expert(e)) })
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("expert %d missing", e)
		}
		if err != nil {
			return nil, err
		}
	}
	return w, nil
}

// ============================================================================
// Runs
// ============================================================================

// RunMeta is the stored summary of a run.
type RunMeta struct {
	ID           uuid.UUID
	Source       string
	Started      time.Time
	Elapsed      time.Duration
	Stats        itch.Stats
	Records      uint64
	Trades       uint64
	MatchedQty   uint64
	Signals      [3]uint64
	FinalBestBid uint32
	FinalBestAsk uint32
	BookDigest   common.Hash
	TraceDigest  common.Hash
}

func NewRunMeta(source string, sum pipeline.Summary) RunMeta {
	return RunMeta{
		ID:           sum.RunID,
		Source:       source,
		Started:      sum.Started,
		Elapsed:      sum.Elapsed,
		Stats:        sum.Stats,
		Records:      sum.Records,
		Trades:       sum.Trades,
		MatchedQty:   sum.MatchedQty,
		Signals:      sum.Signals,
		FinalBestBid: sum.FinalBestBid,
		FinalBestAsk: sum.FinalBestAsk,
		BookDigest:   sum.BookDigest,
		TraceDigest:  sum.TraceDigest,
	}
}

func (s *PebbleStore) SaveRun(m RunMeta) error {
	val, err := encodeGob(m)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	if err := s.db.Set(kRun(m.ID), val, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *PebbleStore) LoadRun(id uuid.UUID) (RunMeta, error) {
	var m RunMeta
	err := s.get(kRun(id), func(v []byte) error { return decodeGob(v, &m) })
	return m, err
}

// ListRuns returns every stored run, oldest first.
func (s *PebbleStore) ListRuns() ([]RunMeta, error) {
	prefix := []byte(prefixRun)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var runs []RunMeta
	for iter.First(); iter.Valid(); iter.Next() {
		var m RunMeta
		if err := decodeGob(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("decode run %x: %w", iter.Key()[len(prefix):], err)
		}
		runs = append(runs, m)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sortRuns(runs)
	return runs, nil
}

// DeleteRun removes a run and all of its records.
func (s *PebbleStore) DeleteRun(id uuid.UUID) error {
	prefix := recordPrefix(id)
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(prefix, keyUpperBound(prefix), nil); err != nil {
		return err
	}
	if err := b.Delete(kRun(id), nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// ============================================================================
// Records
// ============================================================================

// StoredRecord is the persisted form of a pipeline record.
type StoredRecord struct {
	Row      trace.Row
	Selected [moe.TopK]int
	Gates    [moe.TopK]float64
	Outputs  [moe.TopK]float64
	Combined float64
}

func NewStoredRecord(rec pipeline.Record) StoredRecord {
	return StoredRecord{
		Row:      rec.Row(),
		Selected: rec.Selected,
		Gates:    rec.Gates,
		Outputs:  rec.Outputs,
		Combined: rec.Combined,
	}
}

func (s *PebbleStore) LoadRecord(id uuid.UUID, seq uint64) (StoredRecord, error) {
	var r StoredRecord
	err := s.get(kRecord(id, seq), func(v []byte) error { return decodeGob(v, &r) })
	return r, err
}

// LoadRecords returns up to limit records of a run starting at seq from.
// limit <= 0 means no limit.
func (s *PebbleStore) LoadRecords(id uuid.UUID, from uint64, limit int) ([]StoredRecord, error) {
	prefix := recordPrefix(id)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: kRecord(id, from),
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []StoredRecord
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var r StoredRecord
		if err := decodeGob(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, r)
	}
	return out, iter.Error()
}

// Rows returns the full trace of a stored run.
func (s *PebbleStore) Rows(id uuid.UUID) ([]trace.Row, error) {
	recs, err := s.LoadRecords(id, 0, 0)
	if err != nil {
		return nil, err
	}
	rows := make([]trace.Row, len(recs))
	for i := range recs {
		rows[i] = recs[i].Row
	}
	return rows, nil
}
