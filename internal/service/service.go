package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crypto-alerts/internal/alert"
	"crypto-alerts/internal/alerting"
	"crypto-alerts/internal/config"
	"crypto-alerts/internal/fetcher"
	"crypto-alerts/internal/market"
	"crypto-alerts/internal/scheduler"
	"crypto-alerts/internal/storage"
)

// PriceRecorder persists and reads back price observations.
type PriceRecorder interface {
	Record(ctx context.Context, observations []market.Observation) error
	Latest(ctx context.Context, symbols []string) (map[string]market.Observation, error)
}

// AlertRegistry is the part of alert.Registry the poller drives.
type AlertRegistry interface {
	Active(ctx context.Context) ([]alert.Definition, error)
	Apply(ctx context.Context, id string, m alert.Mutation) error
}

// Recorder receives poller counters. *metrics.Metrics satisfies it.
type Recorder interface {
	scheduler.Observer
	FetchFailed(symbol string)
	Evaluated(n int)
	Triggered(kind string)
	SetActiveAlerts(n int)
}

// Option customizes a Service.
type Option func(*Service)

// WithRecorder routes tick and alert counters to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLocker guards ticks with a cross-process advisory lock.
func WithLocker(l storage.AdvisoryLocker) Option {
	return func(s *Service) { s.locker = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service polls prices, records them and evaluates alerts.
type Service struct {
	cfg      config.PollerConfig
	policy   alert.BaselinePolicy
	cooldown time.Duration
	alertsOn bool

	source   fetcher.PriceSource
	prices   PriceRecorder
	alerts   AlertRegistry
	notifier alerting.Notifier
	recorder Recorder
	locker   storage.AdvisoryLocker
	now      func() time.Time
	logger   zerolog.Logger

	priceSched *scheduler.Scheduler
	alertSched *scheduler.Scheduler

	evalMu sync.Mutex

	pendingMu sync.Mutex
	pending   []market.Observation
}

// New constructs the poller. Nothing runs until Start.
func New(cfg *config.Config, source fetcher.PriceSource, prices PriceRecorder, alerts AlertRegistry, notifier alerting.Notifier, logger zerolog.Logger, opts ...Option) *Service {
	policy, err := alert.ParseBaselinePolicy(cfg.Poller.BaselinePolicy)
	if err != nil {
		policy = alert.BaselineOnTrigger
	}

	s := &Service{
		cfg:      cfg.Poller,
		policy:   policy,
		cooldown: cfg.Alerting.Cooldown,
		alertsOn: cfg.Alerting.Enabled,
		source:   source,
		prices:   prices,
		alerts:   alerts,
		notifier: notifier,
		recorder: noopRecorder{},
		now:      time.Now,
		logger:   logger.With().Str("component", "poller").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.priceSched = scheduler.New(scheduler.Options{
		Name:         "price",
		Interval:     cfg.Poller.PriceInterval,
		AlignToStart: cfg.Poller.AlignToBucket,
		StartupDelay: cfg.Poller.StartupDelay,
		RunOnStart:   true,
		Observer:     s.recorder,
	}, logger)
	s.alertSched = scheduler.New(scheduler.Options{
		Name:         "alert",
		Interval:     cfg.Poller.AlertInterval,
		StartupDelay: cfg.Poller.StartupDelay,
		Observer:     s.recorder,
	}, logger)
	return s
}

// Start launches the price and alert-check loops.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().
		Dur("price_interval", s.cfg.PriceInterval).
		Dur("alert_interval", s.cfg.AlertInterval).
		Str("baseline_policy", string(s.policy)).
		Msg("poller starting")
	s.priceSched.Start(ctx, s.PriceTick)
	s.alertSched.Start(ctx, s.AlertTick)
}

// Stop stops both loops, waiting for in-flight ticks.
func (s *Service) Stop() {
	s.priceSched.Stop()
	s.alertSched.Stop()
	s.logger.Info().Msg("poller stopped")
}

// RefreshPrices runs one price tick now. It returns scheduler.ErrBusy when
// a price tick is already running.
func (s *Service) RefreshPrices(ctx context.Context) error {
	return s.priceSched.TryTick(ctx, s.PriceTick)
}

// CheckAlerts runs one alert-check tick now.
func (s *Service) CheckAlerts(ctx context.Context) error {
	return s.alertSched.TryTick(ctx, s.AlertTick)
}

// PriceTick fetches prices for all watched symbols, records them and
// evaluates alerts against them. Symbols that fail to fetch are dropped from
// this cycle only. A recording failure is returned after evaluation and the
// batch is retried with the next tick.
func (s *Service) PriceTick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("at", at).Msg("skip price tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	active, err := s.alerts.Active(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list active alerts")
	}
	symbols := watchedSymbols(active, s.cfg.TrackedSymbols)
	if len(symbols) == 0 {
		return nil
	}

	res := fetcher.FetchEach(ctx, s.source, symbols, s.cfg.FetchTimeout)
	for _, failure := range res.Failures {
		for _, symbol := range failure.Symbols {
			s.recorder.FetchFailed(symbol)
		}
		s.logger.Warn().Err(failure).Strs("symbols", failure.Symbols).Msg("price fetch failed")
	}

	recordErr := s.record(ctx, market.Observations(res.Quotes, at))
	if recordErr != nil {
		s.logger.Error().Err(recordErr).Int("pending", s.pendingCount()).Msg("record prices failed, will retry")
	}

	s.logger.Info().
		Int("fetched", len(res.Quotes)).
		Int("failed", len(res.Failures)).
		Msg("prices refreshed")

	if evalErr := s.evaluate(ctx, market.QuotePrices(res.Quotes)); evalErr != nil {
		return errors.Join(recordErr, evalErr)
	}
	return recordErr
}

// AlertTick evaluates active alerts against the latest stored prices.
func (s *Service) AlertTick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	active, err := s.alerts.Active(ctx)
	if err != nil {
		return fmt.Errorf("list active alerts: %w", err)
	}
	if len(active) == 0 {
		s.recorder.SetActiveAlerts(0)
		return nil
	}
	latest, err := s.prices.Latest(ctx, watchedSymbols(active, nil))
	if err != nil {
		return fmt.Errorf("latest prices: %w", err)
	}
	return s.evaluate(ctx, market.PriceMap(s.dropStale(latest, at)))
}

// dropStale removes observations older than two price intervals, so a symbol
// that keeps failing to fetch stops being evaluated on its last good price.
func (s *Service) dropStale(latest map[string]market.Observation, at time.Time) map[string]market.Observation {
	maxAge := 2 * s.cfg.PriceInterval
	if maxAge <= 0 {
		return latest
	}
	fresh := make(map[string]market.Observation, len(latest))
	for symbol, obs := range latest {
		if age := at.Sub(obs.ObservedAt); age > maxAge {
			s.logger.Warn().Str("symbol", symbol).Dur("age", age).Msg("skipping stale price")
			continue
		}
		fresh[symbol] = obs
	}
	return fresh
}

// PendingObservations reports how many observations await re-recording.
func (s *Service) PendingObservations() int {
	return s.pendingCount()
}

func (s *Service) record(ctx context.Context, observations []market.Observation) error {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	batch := append(s.pending, observations...)
	if len(batch) == 0 {
		return nil
	}
	if err := s.prices.Record(ctx, batch); err != nil {
		if limit := s.cfg.MaxPending; limit > 0 && len(batch) > limit {
			dropped := len(batch) - limit
			s.logger.Warn().Int("dropped", dropped).Msg("pending observations over limit, dropping oldest")
			batch = batch[dropped:]
		}
		s.pending = batch
		return err
	}
	s.pending = nil
	return nil
}

func (s *Service) pendingCount() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// evaluate runs every active alert against prices, one owner at a time.
// The definitions are re-read under the evaluation lock so a concurrent tick
// never sees a baseline that another tick already moved.
func (s *Service) evaluate(ctx context.Context, prices map[string]float64) error {
	if !s.alertsOn {
		return nil
	}
	s.evalMu.Lock()
	defer s.evalMu.Unlock()

	active, err := s.alerts.Active(ctx)
	if err != nil {
		return fmt.Errorf("list active alerts: %w", err)
	}
	s.recorder.SetActiveAlerts(len(active))

	byOwner := make(map[string][]alert.Definition)
	for _, def := range active {
		byOwner[def.Owner] = append(byOwner[def.Owner], def)
	}
	owners := market.SortedKeys(byOwner)

	now := s.now().UTC()
	for _, owner := range owners {
		if err := s.evaluateOwner(ctx, owner, byOwner[owner], prices, now); err != nil {
			s.logger.Error().Err(err).Str("owner", owner).Msg("owner evaluation failed")
		}
	}
	return nil
}

func (s *Service) evaluateOwner(ctx context.Context, owner string, defs []alert.Definition, prices map[string]float64, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating alerts for %s: %v", owner, r)
		}
	}()

	var errs []error
	for _, def := range defs {
		if !hasAllPrices(def, prices) {
			s.logger.Debug().Str("alert_id", def.ID).Msg("skip alert with incomplete prices")
			continue
		}
		if s.inCooldown(def, now) {
			continue
		}
		if s.cfg.SeedZeroBaselines && def.Kind.IsPercent() {
			if seeded, ok := seedZeroBaselines(def, prices); ok {
				if err := s.apply(ctx, def.ID, alert.Mutation{LastKnownPrices: seeded}); err != nil {
					errs = append(errs, err)
				}
				continue
			}
		}

		res := alert.Evaluate(def, prices, now, alert.EvalOptions{Policy: s.policy})
		s.recorder.Evaluated(1)

		if res.Triggered {
			s.recorder.Triggered(string(def.Kind))
			s.logger.Info().
				Str("alert_id", def.ID).
				Str("owner", owner).
				Str("kind", string(def.Kind)).
				Msg(res.Message)
			note := alerting.Notification{
				OwnerID:     owner,
				AlertID:     def.ID,
				Kind:        string(def.Kind),
				Message:     res.Message,
				Prices:      res.Prices,
				TriggeredAt: now,
			}
			if s.notifier != nil {
				if err := s.notifier.Notify(ctx, note); err != nil {
					errs = append(errs, fmt.Errorf("notify %s: %w", def.ID, err))
				}
			}
		}
		if res.Mutation != nil {
			if err := s.apply(ctx, def.ID, *res.Mutation); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Service) apply(ctx context.Context, id string, m alert.Mutation) error {
	err := s.alerts.Apply(ctx, id, m)
	if errors.Is(err, alert.ErrNotFound) {
		// deleted while we were evaluating
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply %s: %w", id, err)
	}
	return nil
}

func (s *Service) inCooldown(def alert.Definition, now time.Time) bool {
	if s.cooldown <= 0 || def.LastTriggeredAt == nil {
		return false
	}
	return now.Sub(*def.LastTriggeredAt) < s.cooldown
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.cfg.AdvisoryLockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.cfg.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func watchedSymbols(defs []alert.Definition, tracked []string) []string {
	set := make(map[string]struct{})
	for _, def := range defs {
		for _, symbol := range def.Symbols {
			set[symbol] = struct{}{}
		}
	}
	for _, symbol := range market.NormalizeSymbols(tracked) {
		set[symbol] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for symbol := range set {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func hasAllPrices(def alert.Definition, prices map[string]float64) bool {
	for _, symbol := range def.Symbols {
		if _, ok := prices[symbol]; !ok {
			return false
		}
	}
	return true
}

// seedZeroBaselines fills zero baselines with current prices. ok is false
// when every baseline is already set.
func seedZeroBaselines(def alert.Definition, prices map[string]float64) (map[string]float64, bool) {
	seeded := make(map[string]float64, len(def.Symbols))
	changed := false
	for _, symbol := range def.Symbols {
		base := def.LastKnownPrices[symbol]
		if base == 0 {
			base = prices[symbol]
			changed = true
		}
		seeded[symbol] = base
	}
	return seeded, changed
}

type noopRecorder struct{}

func (noopRecorder) ObserveTick(string, time.Duration, error) {}
func (noopRecorder) SkipTick(string)                          {}
func (noopRecorder) FetchFailed(string)                       {}
func (noopRecorder) Evaluated(int)                            {}
func (noopRecorder) Triggered(string)                         {}
func (noopRecorder) SetActiveAlerts(int)                      {}
