// Package scheduler implements the tick-based poller that drives the
// monitor. Every tick issues at most one prediction fetch; a tick that fires
// while a fetch is still outstanding is skipped so responses are applied in
// issue order. The scheduler does not interpret responses; it hands each
// completed fetch to a Sink on the scheduler goroutine.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spyhelmet/helmetmon/internal/metrics"
)

const (
	// DefaultInterval is the poll period.
	DefaultInterval = 500 * time.Millisecond

	// DefaultRequestTimeout bounds a single fetch.
	DefaultRequestTimeout = 2 * time.Second
)

// Fetcher performs one prediction request.
type Fetcher interface {
	FetchPrediction(ctx context.Context) ([]byte, error)
}

// Result is one completed fetch, successful or not.
type Result struct {
	Started  time.Time
	Finished time.Time
	Body     []byte
	Err      error
}

// Latency is the wall-clock round trip of the fetch.
func (r Result) Latency() time.Duration {
	if d := r.Finished.Sub(r.Started); d > 0 {
		return d
	}
	return 0
}

// Sink consumes completed fetches. Apply is never called concurrently and
// never after the scheduler has stopped.
type Sink interface {
	Apply(Result)
}

// Options tunes the scheduler.
type Options struct {
	Interval       time.Duration
	RequestTimeout time.Duration
	// Now is the wall clock; nil means time.Now.
	Now func() time.Time
	// Recorder receives skipped-tick events; nil means metrics.Nop.
	Recorder metrics.Recorder
}

// Scheduler polls the prediction endpoint on a fixed interval.
type Scheduler struct {
	fetcher Fetcher
	sink    Sink
	opts    Options
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new Scheduler.
func New(fetcher Fetcher, sink Sink, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		fetcher: fetcher,
		sink:    sink,
		opts:    opts,
		logger:  logger,
	}
}

// Start runs the poll loop in the background until Stop is called or ctx
// is cancelled. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		s.Run(runCtx)
	}()
}

// Stop cancels the poll loop and waits for it to exit. After Stop returns
// no further ticks fire and no response is applied; a fetch still in
// flight is cancelled and its result discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run begins the poll loop. It blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	// Capacity 1: at most one fetch is ever outstanding, so the fetch
	// goroutine can always deliver and exit even after Run has returned.
	results := make(chan Result, 1)
	var inflight context.CancelFunc
	defer func() {
		if inflight != nil {
			inflight()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if inflight != nil {
				s.opts.Recorder.TickSkipped()
				s.logger.Debug("Fetch still outstanding, skipping tick")
				continue
			}
			inflight = s.dispatch(ctx, results)

		case res := <-results:
			inflight()
			inflight = nil
			if ctx.Err() != nil {
				return
			}
			s.sink.Apply(res)
		}
	}
}

// dispatch issues one fetch in the background and returns its cancel func.
func (s *Scheduler) dispatch(ctx context.Context, results chan<- Result) context.CancelFunc {
	reqCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	go func() {
		started := s.opts.Now()
		body, err := s.fetcher.FetchPrediction(reqCtx)
		results <- Result{
			Started:  started,
			Finished: s.opts.Now(),
			Body:     body,
			Err:      err,
		}
	}()
	return cancel
}
