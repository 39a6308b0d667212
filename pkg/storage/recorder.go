package storage

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/uhyunpark/itchmoe/pkg/pipeline"
)

const DefaultBatchSize = 1024

// RunRecorder is a pipeline sink that stores every record of one run. Records
// are written in unsynced batches; Finish flushes the tail and saves the run
// summary with a sync.
type RunRecorder struct {
	store     *PebbleStore
	runID     uuid.UUID
	batchSize int
	batch     *pebble.Batch
	pending   int
	written   uint64
}

func (s *PebbleStore) NewRunRecorder(runID uuid.UUID, batchSize int) *RunRecorder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RunRecorder{
		store:     s,
		runID:     runID,
		batchSize: batchSize,
		batch:     s.db.NewBatch(),
	}
}

func (r *RunRecorder) OnRecord(rec pipeline.Record) error {
	val, err := encodeGob(NewStoredRecord(rec))
	if err != nil {
		return fmt.Errorf("encode record %d: %w", rec.Seq, err)
	}
	if err := r.batch.Set(kRecord(r.runID, rec.Seq), val, nil); err != nil {
		return err
	}
	r.pending++
	r.written++
	if r.pending >= r.batchSize {
		return r.flush()
	}
	return nil
}

func (r *RunRecorder) flush() error {
	if r.pending == 0 {
		return nil
	}
	if err := r.batch.Commit(pebble.NoSync); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	r.batch.Reset()
	r.pending = 0
	return nil
}

// Written reports how many records were handed to the recorder.
func (r *RunRecorder) Written() uint64 { return r.written }

// Finish flushes buffered records and stores the run summary.
func (r *RunRecorder) Finish(source string, sum pipeline.Summary) error {
	if err := r.flush(); err != nil {
		return err
	}
	if err := r.batch.Close(); err != nil {
		return err
	}
	r.batch = nil
	meta := NewRunMeta(source, sum)
	meta.ID = r.runID
	return r.store.SaveRun(meta)
}

var _ pipeline.Sink = (*RunRecorder)(nil)

func sortRuns(runs []RunMeta) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].Started.Equal(runs[j].Started) {
			return runs[i].Started.Before(runs[j].Started)
		}
		return bytes.Compare(runs[i].ID[:], runs[j].ID[:]) < 0
	})
}
