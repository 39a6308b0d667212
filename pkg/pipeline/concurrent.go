package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/itchmoe/pkg/features"
)

type inferJob struct {
	rec Record
	x   features.Vector
}

// RunConcurrent is Run with model inference spread over workers goroutines.
// Decoding, the top-of-book snapshot and book mutation stay serial in arrival
// order, and records are re-sequenced before reaching sinks, so the output is
// identical to Run.
func (p *Pipeline) RunConcurrent(ctx context.Context, src Source, workers int) (Summary, error) {
	if workers <= 1 {
		return p.Run(ctx, src)
	}
	started := p.clock.Now()
	p.log.Infow("pipeline_started", "run_id", p.runID.String(), "workers", workers)

	next := p.seq
	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan inferJob, workers*4)
	results := make(chan Record, workers*4)

	g.Go(func() error {
		defer close(jobs)
		for {
			frame, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}
			rec, x, ok := p.admit(frame)
			if !ok {
				continue
			}
			select {
			case jobs <- inferJob{rec: rec, x: x}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for j := range jobs {
				j.rec.applyInference(p.engine.InferDetail(j.x))
				select {
				case results <- j.rec:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	g.Go(func() error {
		pending := make(map[uint64]Record)
		for rec := range results {
			pending[rec.Seq] = rec
			for {
				r, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				p.account(&r)
				if err := p.emit(r); err != nil {
					return err
				}
			}
		}
		if len(pending) > 0 && ctx.Err() == nil {
			return fmt.Errorf("pipeline: %d records never sequenced", len(pending))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return p.summary(started), err
	}
	sum := p.summary(started)
	p.logFinished(sum)
	return sum, nil
}
