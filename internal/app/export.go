package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"crypto-alerts/internal/market"
	"crypto-alerts/internal/storage"
)

// Export renders the price history of one symbol as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	symbol := market.NormalizeSymbol(opts.Symbol)
	if symbol == "" {
		return errors.New("--symbol is required")
	}
	if opts.Window <= 0 {
		return errors.New("--window must be greater than zero")
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	return a.withStore(ctx, func(store *storage.Store) error {
		history, err := store.History(ctx, symbol, opts.Window)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			a.Logger.Info().Str("symbol", symbol).Msg("no observations found for export window")
			return nil
		}

		points := downsample(history, opts.MaxPoints)
		a.Logger.Info().Str("symbol", symbol).Int("total", len(history)).Int("exported", len(points)).Msg("exporting observations")

		if opts.CSVPath != "" {
			if err := writeHistoryCSV(opts.CSVPath, points); err != nil {
				return err
			}
		}
		if opts.PNGPath != "" {
			if err := writeHistoryPNG(opts.PNGPath, symbol, points); err != nil {
				return err
			}
		}
		return nil
	})
}

// downsample keeps max evenly spaced points, always including both ends.
func downsample(points []market.Observation, max int) []market.Observation {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]market.Observation, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeHistoryCSV(path string, points []market.Observation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"observed_at", "symbol", "price_usd", "percent_change_24h"}); err != nil {
		return err
	}
	for _, obs := range points {
		record := []string{
			obs.ObservedAt.UTC().Format(time.RFC3339),
			obs.Symbol,
			strconv.FormatFloat(obs.PriceUSD, 'f', -1, 64),
			strconv.FormatFloat(obs.PercentChange24h, 'f', 2, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeHistoryPNG(path, symbol string, points []market.Observation) error {
	if len(points) < 2 {
		return errors.New("need at least two observations to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	prices := make([]float64, len(points))
	change := make([]float64, len(points))
	for i, obs := range points {
		x[i] = obs.ObservedAt
		prices[i] = obs.PriceUSD
		change[i] = obs.PercentChange24h
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: symbol + " (USD)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		YAxisSecondary: chart.YAxis{
			Name: "24h change (%)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.1f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: symbol, XValues: x, YValues: prices},
			chart.TimeSeries{Name: "24h %", XValues: x, YValues: change, YAxis: chart.YAxisSecondary},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
