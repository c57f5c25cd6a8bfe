package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-alerts/internal/storage"
)

func sampleNotification() Notification {
	return Notification{
		OwnerID:     "42",
		AlertID:     "a1",
		Kind:        "THRESHOLD",
		Message:     "BTC price is now 51000 USD (above 50000)",
		Prices:      map[string]float64{"BTC": 51000},
		TriggeredAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottoken/sendMessage") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("telegram notify: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id mismatch: %#v", received)
	}
	assert.Equal(t, "MarkdownV2", received["parse_mode"])
	assert.Contains(t, received["text"], `BTC price is now 51000 USD \(above 50000\)`)
	assert.Contains(t, received["text"], "$51,000.00")
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type recordingPublisher struct {
	subject string
	data    []byte
	err     error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.subject = subject
	p.data = data
	return p.err
}

func TestNATSNotifierPublishesJSON(t *testing.T) {
	pub := &recordingPublisher{}
	notifier := NewNATSNotifier(pub, "alerts.triggered", testLogger())

	note := sampleNotification()
	note.OwnerID = "team.ops"
	require.NoError(t, notifier.Notify(context.Background(), note))

	assert.Equal(t, "alerts.triggered.team_ops", pub.subject)
	var decoded Notification
	require.NoError(t, json.Unmarshal(pub.data, &decoded))
	assert.Equal(t, "a1", decoded.AlertID)
	assert.Equal(t, 51000.0, decoded.Prices["BTC"])
}

func TestNATSNotifierPropagatesPublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats: connection closed")}
	notifier := NewNATSNotifier(pub, "alerts", testLogger())
	err := notifier.Notify(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
}

type memNotifications struct {
	records []storage.NotificationRecord
}

func (m *memNotifications) InsertNotification(_ context.Context, rec storage.NotificationRecord) (storage.NotificationRecord, error) {
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memNotifications) ListNotifications(context.Context, string, int) ([]storage.NotificationRecord, error) {
	return m.records, nil
}

func TestStoreNotifierStoresRecord(t *testing.T) {
	store := &memNotifications{}
	require.NoError(t, NewStoreNotifier(store).Notify(context.Background(), sampleNotification()))

	require.Len(t, store.records, 1)
	assert.Equal(t, "42", store.records[0].Owner)
	assert.Equal(t, "a1", store.records[0].AlertID)
	assert.Equal(t, 51000.0, store.records[0].Prices["BTC"])
}

type deliveries struct {
	mu  sync.Mutex
	got map[string]int
}

func (d *deliveries) NotificationSent(channel string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.got == nil {
		d.got = make(map[string]int)
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	d.got[channel+":"+status]++
}

func TestMultiDeliversToEveryChannel(t *testing.T) {
	var calls []string
	ok := NotifierFunc(func(context.Context, Notification) error {
		calls = append(calls, "ok")
		return nil
	})
	broken := NotifierFunc(func(context.Context, Notification) error {
		calls = append(calls, "broken")
		return errors.New("sink down")
	})

	rec := &deliveries{}
	multi := NewMulti(rec, testLogger(),
		Channel{Name: "broken", Notifier: broken},
		Channel{Name: "log", Notifier: ok},
	)

	err := multi.Notify(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: sink down")
	assert.Equal(t, []string{"broken", "ok"}, calls)
	assert.Equal(t, map[string]int{"broken:error": 1, "log:ok": 1}, rec.got)
	assert.Equal(t, []string{"broken", "log"}, multi.Channels())
}

func TestSkipChatOwners(t *testing.T) {
	var got []string
	operator := SkipChatOwners(NotifierFunc(func(_ context.Context, n Notification) error {
		got = append(got, n.OwnerID)
		return nil
	}))

	for _, owner := range []string{"42", "-1001234", "digest", "cli"} {
		note := sampleNotification()
		note.OwnerID = owner
		require.NoError(t, operator.Notify(context.Background(), note))
	}
	assert.Equal(t, []string{"digest", "cli"}, got)
	assert.True(t, IsChatOwner("42"))
	assert.False(t, IsChatOwner("alice"))
}

func TestRenderText(t *testing.T) {
	note := sampleNotification()
	note.Prices = map[string]float64{"ETH": 3000, "BTC": 51000}
	text := RenderText(note)
	assert.True(t, strings.HasPrefix(text, "[Crypto Alert] BTC price"))
	assert.Less(t, strings.Index(text, "BTC: "), strings.Index(text, "ETH: "))
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
