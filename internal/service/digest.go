package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crypto-alerts/internal/alert"
	"crypto-alerts/internal/alerting"
	"crypto-alerts/internal/format"
	"crypto-alerts/internal/market"
)

// HistoryReader reads latest and windowed observations.
type HistoryReader interface {
	Latest(ctx context.Context, symbols []string) (map[string]market.Observation, error)
	History(ctx context.Context, symbol string, window time.Duration) ([]market.Observation, error)
}

// DigestLine summarises one symbol.
type DigestLine struct {
	Symbol       string
	PriceUSD     float64
	Change24h    float64
	WindowChange *float64
	Mover        bool
	ObservedAt   time.Time
}

// DigestReport is one market digest.
type DigestReport struct {
	GeneratedAt time.Time
	Window      time.Duration
	Threshold   float64
	Lines       []DigestLine
	Missing     []string
}

// Movers lists lines whose window change crossed the threshold.
func (r DigestReport) Movers() []DigestLine {
	var out []DigestLine
	for _, line := range r.Lines {
		if line.Mover {
			out = append(out, line)
		}
	}
	return out
}

// Render produces the plain-text digest.
func (r DigestReport) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Market digest (%s window)\n", r.Window)
	for _, line := range r.Lines {
		fmt.Fprintf(&b, "%s: %s, 24h %s", line.Symbol, format.USD(line.PriceUSD), format.Percent(line.Change24h))
		if line.WindowChange != nil {
			fmt.Fprintf(&b, ", window %s", format.Percent(*line.WindowChange))
		}
		b.WriteString("\n")
	}
	if movers := r.Movers(); len(movers) > 0 {
		names := make([]string, 0, len(movers))
		for _, m := range movers {
			names = append(names, m.Symbol)
		}
		fmt.Fprintf(&b, "Big movers (>= %.2f%%): %s\n", r.Threshold, strings.Join(names, ", "))
	}
	if len(r.Missing) > 0 {
		fmt.Fprintf(&b, "No data: %s\n", strings.Join(r.Missing, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Digest builds periodic market summaries from stored observations.
type Digest struct {
	prices    HistoryReader
	notifier  alerting.Notifier
	symbols   []string
	window    time.Duration
	threshold float64
	owner     string
	now       func() time.Time
	logger    zerolog.Logger
}

// DigestOptions configures a Digest.
type DigestOptions struct {
	Symbols          []string
	Window           time.Duration
	MoveThresholdPct float64
	Owner            string
}

// NewDigest builds the digest job. notifier may be nil for print-only use.
func NewDigest(prices HistoryReader, notifier alerting.Notifier, opts DigestOptions, logger zerolog.Logger) *Digest {
	if opts.Window <= 0 {
		opts.Window = 4 * time.Hour
	}
	return &Digest{
		prices:    prices,
		notifier:  notifier,
		symbols:   market.NormalizeSymbols(opts.Symbols),
		window:    opts.Window,
		threshold: opts.MoveThresholdPct,
		owner:     opts.Owner,
		now:       time.Now,
		logger:    logger.With().Str("component", "digest").Logger(),
	}
}

// Build assembles a report from the latest observations and history.
func (d *Digest) Build(ctx context.Context) (DigestReport, error) {
	report := DigestReport{GeneratedAt: d.now().UTC(), Window: d.window, Threshold: d.threshold}

	latest, err := d.prices.Latest(ctx, d.symbols)
	if err != nil {
		return report, fmt.Errorf("latest prices: %w", err)
	}

	for _, symbol := range d.symbols {
		obs, ok := latest[symbol]
		if !ok {
			report.Missing = append(report.Missing, symbol)
			continue
		}
		line := DigestLine{
			Symbol:     symbol,
			PriceUSD:   obs.PriceUSD,
			Change24h:  obs.PercentChange24h,
			ObservedAt: obs.ObservedAt,
		}

		history, err := d.prices.History(ctx, symbol, d.window)
		if err != nil {
			return report, fmt.Errorf("history %s: %w", symbol, err)
		}
		if len(history) > 0 && history[0].PriceUSD > 0 {
			change, _ := alert.PercentChange(history[0].PriceUSD, obs.PriceUSD).Round(2).Float64()
			line.WindowChange = &change
			line.Mover = d.threshold > 0 && math.Abs(change) >= d.threshold
		}
		report.Lines = append(report.Lines, line)
	}
	return report, nil
}

// Send builds a report and hands it to the notifier.
func (d *Digest) Send(ctx context.Context, at time.Time) error {
	report, err := d.Build(ctx)
	if err != nil {
		return err
	}
	if len(report.Lines) == 0 {
		d.logger.Info().Strs("missing", report.Missing).Msg("no observations for digest yet")
		return nil
	}

	prices := make(map[string]float64, len(report.Lines))
	for _, line := range report.Lines {
		prices[line.Symbol] = line.PriceUSD
	}
	d.logger.Info().Int("symbols", len(report.Lines)).Int("movers", len(report.Movers())).Msg("digest ready")

	if d.notifier == nil {
		return nil
	}
	return d.notifier.Notify(ctx, alerting.Notification{
		OwnerID:     d.owner,
		AlertID:     "digest",
		Kind:        "DIGEST",
		Message:     report.Render(),
		Prices:      prices,
		TriggeredAt: at.UTC(),
	})
}
