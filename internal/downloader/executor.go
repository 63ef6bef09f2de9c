package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/artur/mediasaver/internal/platform"
)

// ExecutorConfig bounds the download pool.
type ExecutorConfig struct {
	Workers int64
	Timeout time.Duration
	MaxSize int64
}

// Executor runs downloads through per-platform routes under a fixed
// concurrency bound and a per-job timeout. The fallback route serves
// platforms without a dedicated one.
type Executor struct {
	routes   map[platform.Platform]Downloader
	fallback Downloader
	sem      *semaphore.Weighted
	workers  int64
	timeout  time.Duration
	maxSize  int64
	log      *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewExecutor creates an Executor with cfg.Workers concurrent slots.
func NewExecutor(cfg ExecutorConfig, routes map[platform.Platform]Downloader, fallback Downloader, log *zap.Logger) *Executor {
	return &Executor{
		routes:   routes,
		fallback: fallback,
		sem:      semaphore.NewWeighted(cfg.Workers),
		workers:  cfg.Workers,
		timeout:  cfg.Timeout,
		maxSize:  cfg.MaxSize,
		log:      log,
	}
}

// Download runs one job. It blocks while all workers are busy and
// fails fast with ErrClosed once shutdown has begun.
func (e *Executor) Download(ctx context.Context, req Request) (*Result, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	// Close may have begun while this job waited for a permit.
	if e.isClosed() {
		return nil, ErrClosed
	}

	start := time.Now()
	dctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.route(req.Link.Platform).Download(dctx, req)
	if err != nil {
		if errors.Is(dctx.Err(), context.DeadlineExceeded) {
			e.log.Warn("download timed out",
				zap.String("platform", string(req.Link.Platform)),
				zap.Duration("timeout", e.timeout))
			return nil, ErrTimedOut
		}
		return nil, err
	}

	// Routes trust reported sizes; the file on disk is authoritative.
	fi, err := os.Stat(res.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat downloaded file: %w", err)
	}
	if fi.Size() > e.maxSize {
		os.Remove(res.Path)
		return nil, &SizeError{Size: fi.Size(), Max: e.maxSize}
	}
	res.Size = fi.Size()

	e.log.Info("download finished",
		zap.String("platform", string(req.Link.Platform)),
		zap.String("format", string(req.Format)),
		zap.Int64("size", res.Size),
		zap.Duration("took", time.Since(start)))

	return res, nil
}

func (e *Executor) route(p platform.Platform) Downloader {
	if d, ok := e.routes[p]; ok {
		return d
	}
	return e.fallback
}

func (e *Executor) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close rejects new jobs and waits for running downloads to finish or
// ctx to expire.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	// Draining means holding every permit at once.
	if err := e.sem.Acquire(ctx, e.workers); err != nil {
		return err
	}
	e.sem.Release(e.workers)
	return nil
}
