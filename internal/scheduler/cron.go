package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"crypto-alerts/internal/logging"
)

// Cron runs jobs on standard five-field cron schedules in UTC.
type Cron struct {
	cron     *cron.Cron
	logger   zerolog.Logger
	observer Observer
	ctx      context.Context
}

// NewCron builds a cron runner. Overlapping runs of one job are skipped and
// panics are recovered. observer may be nil.
func NewCron(observer Observer, logger zerolog.Logger) *Cron {
	l := logger.With().Str("component", "cron").Logger()
	cl := logging.NewCronLogger(l)
	return &Cron{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:   l,
		observer: observer,
		ctx:      context.Background(),
	}
}

// Add registers job under name.
func (c *Cron) Add(spec, name string, job TickFunc) error {
	_, err := c.cron.AddFunc(spec, func() {
		start := time.Now()
		err := job(c.ctx, start.UTC())
		if c.observer != nil {
			c.observer.ObserveTick(name, time.Since(start), err)
		}
		if err != nil {
			c.logger.Error().Err(err).Str("job", name).Msg("cron job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

// Start begins running scheduled jobs. Jobs see ctx values but not its
// cancellation.
func (c *Cron) Start(ctx context.Context) {
	c.ctx = context.WithoutCancel(ctx)
	c.cron.Start()
}

// Stop halts the schedule and waits for running jobs.
func (c *Cron) Stop() {
	<-c.cron.Stop().Done()
}

// Next reports the next activation of the first registered job.
func (c *Cron) Next() time.Time {
	entries := c.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
