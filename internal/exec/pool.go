// Package exec materializes lazy cube results, either synchronously in the
// calling process or on a cooperating pool of workers.
package exec

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// PoolOptions configures worker pool provisioning.
type PoolOptions struct {
	// MinWorkers is the number of workers started up front.
	MinWorkers int
	// MaxWorkers bounds on-demand scale-up under backlog.
	MaxWorkers int
	// Env holds variables propagated to workers through the task context
	// (credential passthrough), instead of mutating the process environment.
	Env map[string]string
}

type task func(ctx context.Context)

// LocalPool is an in-process worker pool implementing the provisioning
// contract: create, obtain a client, stop. On Stop, queued work is abandoned
// and in-flight results are undefined.
type LocalPool struct {
	opts   PoolOptions
	tasks  chan task
	logger *slog.Logger

	shutdownCtx  context.Context
	shutdownFunc context.CancelFunc
	wg           sync.WaitGroup

	mu      sync.Mutex
	workers int
	stopped bool
}

// NewLocalPool provisions a local worker pool with MinWorkers started
// immediately and headroom to scale to MaxWorkers.
func NewLocalPool(opts PoolOptions, logger *slog.Logger) (*LocalPool, error) {
	if opts.MinWorkers < 1 {
		return nil, fmt.Errorf("min workers must be at least 1, got %d", opts.MinWorkers)
	}
	if opts.MaxWorkers < opts.MinWorkers {
		return nil, fmt.Errorf("max workers (%d) must be >= min workers (%d)", opts.MaxWorkers, opts.MinWorkers)
	}
	if logger == nil {
		logger = slog.Default()
	}

	shutdownCtx, shutdownFunc := context.WithCancel(context.Background())

	p := &LocalPool{
		opts:         opts,
		tasks:        make(chan task, 4*opts.MaxWorkers),
		logger:       logger,
		shutdownCtx:  shutdownCtx,
		shutdownFunc: shutdownFunc,
	}

	for i := 0; i < opts.MinWorkers; i++ {
		p.spawnWorker()
	}

	logger.Debug("worker pool provisioned",
		slog.Int("min_workers", opts.MinWorkers),
		slog.Int("max_workers", opts.MaxWorkers),
	)

	return p, nil
}

// Client returns the execution handle used to submit work to the pool.
func (p *LocalPool) Client() *Client {
	return &Client{pool: p}
}

// Stop shuts the pool down and waits for workers to exit. Queued tasks are
// discarded; callers must not assume partial completion of in-flight work.
func (p *LocalPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.shutdownFunc()
	p.wg.Wait()
	p.logger.Debug("worker pool stopped")
}

func (p *LocalPool) spawnWorker() {
	p.mu.Lock()
	if p.stopped || p.workers >= p.opts.MaxWorkers {
		p.mu.Unlock()
		return
	}
	p.workers++
	id := p.workers
	p.mu.Unlock()

	p.wg.Add(1)
	go p.worker(id)
}

// worker is the main loop for each concurrent worker.
func (p *LocalPool) worker(id int) {
	defer p.wg.Done()
	p.logger.Debug("worker started", slog.Int("worker_id", id))

	ctx := withEnv(p.shutdownCtx, p.opts.Env)

	for {
		select {
		case <-p.shutdownCtx.Done():
			p.logger.Debug("worker shutting down", slog.Int("worker_id", id))
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			t(ctx)
		}
	}
}

// submit enqueues a task, scaling the pool toward MaxWorkers under backlog.
// It fails once the pool is stopping.
func (p *LocalPool) submit(t task) error {
	select {
	case <-p.shutdownCtx.Done():
		return fmt.Errorf("pool is stopped")
	default:
	}

	// Fast path: hand off without growing the pool.
	select {
	case p.tasks <- t:
		return nil
	default:
	}

	p.spawnWorker()

	select {
	case p.tasks <- t:
		return nil
	case <-p.shutdownCtx.Done():
		return fmt.Errorf("pool is stopped")
	}
}

// Client is the execution handle obtained from a provisioned pool.
type Client struct {
	pool *LocalPool
}

// env context plumbing for worker credential passthrough.
type envKey struct{}

func withEnv(ctx context.Context, env map[string]string) context.Context {
	if len(env) == 0 {
		return ctx
	}
	return context.WithValue(ctx, envKey{}, env)
}

// EnvFromContext returns the worker environment propagated by the pool, or
// nil when running synchronously.
func EnvFromContext(ctx context.Context) map[string]string {
	env, _ := ctx.Value(envKey{}).(map[string]string)
	return env
}
