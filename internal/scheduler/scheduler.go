package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrBusy is returned by TryTick while another tick of the same job runs.
var ErrBusy = errors.New("tick already in progress")

// TickFunc is invoked on every interval.
type TickFunc func(ctx context.Context, at time.Time) error

// Observer receives tick outcomes. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveTick(job string, elapsed time.Duration, err error)
	SkipTick(job string)
}

// Options tune scheduler behaviour.
type Options struct {
	Name         string
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	RunOnStart   bool
	Observer     Observer
}

// Scheduler drives one periodic job. A job never overlaps itself.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	busy   atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Name == "" {
		opts.Name = "tick"
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Str("job", opts.Name).Logger(),
	}
}

// Name is the job label.
func (s *Scheduler) Name() string {
	return s.opts.Name
}

// Start runs the loop in the background until Stop or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context, tick TickFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	go func() {
		defer close(done)
		if err := s.Run(ctx, tick); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()
}

// Stop prevents further ticks and waits for an in-flight tick to finish.
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

// Run blocks, invoking the tick function at each interval until ctx is cancelled.
// Ticks are not cancelled by ctx; cancellation only stops future ticks.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunOnStart {
		s.runTick(ctx, tick, time.Now().UTC())
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.runTick(ctx, tick, s.bucketStart(next))
		next = next.Add(s.opts.Interval)
	}
}

// TryTick runs one tick now unless one is already running.
func (s *Scheduler) TryTick(ctx context.Context, tick TickFunc) error {
	if !s.busy.CompareAndSwap(false, true) {
		if s.opts.Observer != nil {
			s.opts.Observer.SkipTick(s.opts.Name)
		}
		return ErrBusy
	}
	defer s.busy.Store(false)
	return s.execute(ctx, tick, time.Now().UTC())
}

func (s *Scheduler) runTick(ctx context.Context, tick TickFunc, at time.Time) {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Warn().Time("at", at).Msg("previous tick still running, skipping")
		if s.opts.Observer != nil {
			s.opts.Observer.SkipTick(s.opts.Name)
		}
		return
	}
	defer s.busy.Store(false)

	if err := s.execute(ctx, tick, at); err != nil {
		s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, at time.Time) error {
	start := time.Now()
	s.logger.Debug().Time("at", at).Msg("executing scheduled tick")
	err := tick(context.WithoutCancel(ctx), at)
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveTick(s.opts.Name, time.Since(start), err)
	}
	return err
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
