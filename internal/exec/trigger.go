package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rkm/stac-cube/internal/cube"
)

// Result is a materialized lazy result: the full grid per time slice,
// channel-major like cube chunks.
type Result struct {
	ID       string
	Label    string
	Grid     cube.Grid
	Times    []time.Time
	Channels int
	// Data holds one buffer per time slice, len Channels*Width*Height.
	Data [][]float64
}

// At returns the sample at time slice t, channel ch, row y, column x.
func (r *Result) At(t, ch, y, x int) float64 {
	n := r.Grid.Width * r.Grid.Height
	return r.Data[t][ch*n+y*r.Grid.Width+x]
}

// Trigger materializes lazy results. With a pool client the chunk graph is
// evaluated by the pool's workers; without one, evaluation is synchronous in
// the calling goroutine. Materialized results are persisted in memory so a
// repeat materialization of the same handle does not recompute.
type Trigger struct {
	client *Client
	logger *slog.Logger

	mu        sync.Mutex
	persisted map[string]*Result
}

// New creates a trigger. A nil client selects synchronous evaluation.
func New(client *Client, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		client:    client,
		logger:    logger,
		persisted: make(map[string]*Result),
	}
}

// Materialize evaluates the supplied lazy results and blocks until every
// submitted chunk is terminal. All chunks of one call are submitted together
// and no result is read before all complete. Any chunk failure aggregates
// into a single error naming the failing result and window; no partial
// results are returned or persisted for a failed call.
func (t *Trigger) Materialize(ctx context.Context, lazies ...cube.Lazy) ([]*Result, error) {
	if len(lazies) == 0 {
		return nil, fmt.Errorf("nothing to materialize")
	}

	results := make([]*Result, len(lazies))

	type job struct {
		lazy   cube.Lazy
		result *Result
	}
	var jobs []job

	t.mu.Lock()
	for i, lazy := range lazies {
		if lazy == nil {
			t.mu.Unlock()
			return nil, fmt.Errorf("lazy result %d is nil", i)
		}
		if cached, ok := t.persisted[lazy.ID()]; ok {
			results[i] = cached
			continue
		}

		result := newResult(lazy)
		results[i] = result
		jobs = append(jobs, job{lazy: lazy, result: result})
	}
	t.mu.Unlock()

	if len(jobs) == 0 {
		t.logger.Debug("all results served from persist cache", slog.Int("count", len(lazies)))
		return results, nil
	}

	var (
		wg     sync.WaitGroup
		errMu  sync.Mutex
		errs   []error
		chunks int
	)

	run := func(taskCtx context.Context, j job, ti int, w cube.Window) {
		defer wg.Done()

		if err := taskCtx.Err(); err != nil {
			errMu.Lock()
			errs = append(errs, fmt.Errorf("%s: time %d window %s: %w", j.lazy.Label(), ti, w, err))
			errMu.Unlock()
			return
		}

		chunk, err := j.lazy.ComputeWindow(taskCtx, ti, w)
		if err != nil {
			errMu.Lock()
			errs = append(errs, fmt.Errorf("%s: time %d window %s: %w", j.lazy.Label(), ti, w, err))
			errMu.Unlock()
			return
		}
		j.result.write(chunk)
	}

	start := time.Now()

	if t.client == nil {
		// Synchronous in-process evaluation.
		for _, j := range jobs {
			for ti := range j.lazy.Times() {
				for _, w := range j.lazy.Windows() {
					wg.Add(1)
					chunks++
					run(ctx, j, ti, w)
				}
			}
		}
	} else {
		// Submit the whole graph to the pool before waiting on any of it.
		for _, j := range jobs {
			for ti := range j.lazy.Times() {
				for _, w := range j.lazy.Windows() {
					j, ti, w := j, ti, w
					wg.Add(1)
					chunks++
					err := t.client.pool.submit(func(poolCtx context.Context) {
						run(mergeContexts(ctx, poolCtx), j, ti, w)
					})
					if err != nil {
						wg.Done()
						errMu.Lock()
						errs = append(errs, fmt.Errorf("%s: time %d window %s: %w", j.lazy.Label(), ti, w, err))
						errMu.Unlock()
					}
				}
			}
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-t.client.pool.shutdownCtx.Done():
			return nil, fmt.Errorf("pool stopped during materialization; results are undefined")
		}
	}

	wg.Wait()

	if len(errs) > 0 {
		return nil, fmt.Errorf("materialization failed: %w", errors.Join(errs...))
	}

	t.mu.Lock()
	for _, j := range jobs {
		t.persisted[j.lazy.ID()] = j.result
	}
	t.mu.Unlock()

	t.logger.Debug("materialization completed",
		slog.Int("results", len(jobs)),
		slog.Int("chunks", chunks),
		slog.Duration("duration", time.Since(start)),
	)

	return results, nil
}

// Forget drops a persisted result so the next materialization recomputes it.
func (t *Trigger) Forget(lazy cube.Lazy) {
	t.mu.Lock()
	delete(t.persisted, lazy.ID())
	t.mu.Unlock()
}

func newResult(lazy cube.Lazy) *Result {
	grid := lazy.Grid()
	times := lazy.Times()
	n := lazy.Channels() * grid.Width * grid.Height

	data := make([][]float64, len(times))
	for i := range data {
		buf := make([]float64, n)
		for j := range buf {
			buf[j] = math.NaN()
		}
		data[i] = buf
	}

	return &Result{
		ID:       lazy.ID(),
		Label:    lazy.Label(),
		Grid:     grid,
		Times:    times,
		Channels: lazy.Channels(),
		Data:     data,
	}
}

// write copies a computed chunk into the result buffer. Chunks cover
// disjoint windows, so concurrent writes never overlap.
func (r *Result) write(chunk *cube.Chunk) {
	n := r.Grid.Width * r.Grid.Height
	w := chunk.Window
	for ch := 0; ch < chunk.Channels; ch++ {
		for y := 0; y < w.H; y++ {
			src := chunk.Data[ch*w.W*w.H+y*w.W : ch*w.W*w.H+(y+1)*w.W]
			dstOff := ch*n + (w.Y0+y)*r.Grid.Width + w.X0
			copy(r.Data[chunk.TimeIndex][dstOff:dstOff+w.W], src)
		}
	}
}

// mergeContexts runs tasks under the caller's deadline and cancellation
// while keeping the pool context's values (worker env passthrough).
func mergeContexts(caller, pool context.Context) context.Context {
	if env := EnvFromContext(pool); env != nil {
		return withEnv(caller, env)
	}
	return caller
}
