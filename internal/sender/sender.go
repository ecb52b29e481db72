// Package sender posts chunks of a batch in parallel, one Dispatcher per worker.
package sender

import (
	"context"
	"fmt"

	"github.com/GabrielNunesIT/go-libs/logger"
	"golang.org/x/sync/errgroup"

	"github.com/GabrielNunesIT/analytics-transport/internal/model"
	"github.com/GabrielNunesIT/analytics-transport/internal/request"
)

// Poster delivers one batch. *request.Dispatcher implements it.
type Poster interface {
	Post(ctx context.Context, appID string, batch model.Batch) model.Response
}

var _ Poster = (*request.Dispatcher)(nil)

// Factory creates the Poster owned by one worker.
type Factory func() Poster

// DispatcherFactory returns a Factory building a fresh Dispatcher per worker.
func DispatcherFactory(newDispatcher func() *request.Dispatcher) Factory {
	return func() Poster {
		return newDispatcher()
	}
}

// Result is the outcome of one chunk.
type Result struct {
	Index    int
	Records  int
	Response model.Response
}

// Pool fans chunks out over a fixed number of workers.
type Pool struct {
	workers int
	factory Factory
	logger  logger.ILogger
}

// NewPool creates a pool of workers posters, at least one.
func NewPool(workers int, factory Factory, log logger.ILogger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		factory: factory,
		logger:  log.SubLogger("Pool"),
	}
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// Send splits batch into chunks of batchSize records and posts each chunk exactly
// once. Results are returned in chunk order. The error is non-nil only when ctx
// ends before every chunk was handed to a worker.
func (p *Pool) Send(ctx context.Context, appID string, batch model.Batch, batchSize int) ([]Result, error) {
	chunks := batch.Chunk(batchSize)
	if len(chunks) == 0 {
		return nil, nil
	}

	workers := min(p.workers, len(chunks))
	p.logger.Debugf("sending batch: records=%d, chunks=%d, workers=%d", len(batch), len(chunks), workers)

	results := make([]Result, len(chunks))
	jobs := make(chan int)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := range chunks {
			select {
			case jobs <- i:
			case <-gCtx.Done():
				return fmt.Errorf("dispatching chunk %d: %w", i, gCtx.Err())
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		poster := p.factory()
		g.Go(func() error {
			defer closePoster(poster)
			for i := range jobs {
				resp := poster.Post(ctx, appID, chunks[i])
				results[i] = Result{Index: i, Records: len(chunks[i]), Response: resp}
				p.logger.Debugf("chunk posted: index=%d, records=%d, %s", i, len(chunks[i]), resp)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func closePoster(poster Poster) {
	if c, ok := poster.(interface{ Close() }); ok {
		c.Close()
	}
}

// Summary counts the results that were and were not accepted.
func Summary(results []Result) (ok, failed int) {
	for _, r := range results {
		if r.Response.OK() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}
