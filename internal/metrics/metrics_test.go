package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveTick("price", 150*time.Millisecond, nil)
	m.ObserveTick("price", time.Second, errors.New("boom"))
	m.SkipTick("alert")
	m.FetchFailed("XRP")
	m.Evaluated(3)
	m.Triggered("THRESHOLD")
	m.NotificationSent("telegram", nil)
	m.NotificationSent("telegram", errors.New("down"))
	m.SetActiveAlerts(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ticks.WithLabelValues("price", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ticks.WithLabelValues("price", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ticks.WithLabelValues("alert", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailures.WithLabelValues("XRP")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AlertsEvaluated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsTriggered.WithLabelValues("THRESHOLD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("telegram", "error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ActiveAlerts))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TickDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTick("price", time.Second, nil)
		m.FetchFailed("BTC")
		m.Triggered("MULTI_CHANGE")
		m.NotificationSent("log", nil)
		m.SetActiveAlerts(1)
	})
}

func TestHandlersServeMetricsAndHealth(t *testing.T) {
	m := New()
	m.Triggered("PERCENT_CHANGE")

	srv := NewServer(":0", m, func(context.Context) error { return errors.New("db down") }, zerolog.Nop())
	ts := httptest.NewServer(srv.srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body := readAll(t, resp)
	assert.Contains(t, body, `cryptoalerts_alerts_triggered_total{kind="PERCENT_CHANGE"} 1`)

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, readAll(t, resp), "db down")
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}
