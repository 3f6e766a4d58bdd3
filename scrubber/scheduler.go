package scrubber

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PollInterval is the time between two cycles
const PollInterval = 900 * time.Second

// Job is one step of a cycle
type Job interface {
	Pull(ctx context.Context) error
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.t.C
}

func (t timeTicker) Stop() {
	t.t.Stop()
}

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Scheduler runs every job once at start and then once per interval. Jobs
// always run one at a time, in order, on a single goroutine. A tick that
// arrives while a cycle is still running is dropped once the cycle ends.
type Scheduler struct {
	interval  time.Duration
	jobs      []Job
	logger    *zap.SugaredLogger
	newTicker func(time.Duration) ticker

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start arms the ticker, then runs the first cycle and all later ones in the
// background. It does nothing if the Scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	t := s.newTicker(s.interval)

	go func() {
		defer close(s.done)
		defer t.Stop()

		s.runCycle(ctx)
		dropPending(t)

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C():
				s.runCycle(ctx)
				dropPending(t)
			}
		}
	}()
}

// dropPending discards a tick buffered while a cycle overran, so the next
// cycle waits for the next period instead of starting at once
func dropPending(t ticker) {
	select {
	case <-t.C():
	default:
	}
}

// Stop cancels the in-flight cycle, if any, and waits for it to return
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

	s.logger.Info("Scheduler: stopped")
}

func (s *Scheduler) runCycle(ctx context.Context) {
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		if err := job.Pull(ctx); err != nil {
			s.logger.Errorf("Scheduler: %s", err)
		}
	}
}

// NewScheduler creates a new Scheduler running jobs in the given order
func NewScheduler(interval time.Duration, logger *zap.SugaredLogger, jobs ...Job) *Scheduler {
	return &Scheduler{
		interval:  interval,
		jobs:      jobs,
		logger:    logger,
		newTicker: newTimeTicker,
	}
}
