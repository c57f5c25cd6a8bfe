package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-alerts/internal/alert"
	"crypto-alerts/internal/alerting"
	"crypto-alerts/internal/config"
	"crypto-alerts/internal/market"
	"crypto-alerts/internal/storage"
)

func newTestHandler(t *testing.T) (*Handler, *alert.Registry, *storage.Store) {
	t.Helper()
	store, err := storage.Open(context.Background(), config.DatabaseConfig{
		Driver: storage.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "bot.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ids, err := alert.NewSnowflakeIDs(2)
	require.NoError(t, err)
	registry := alert.NewRegistry(store, store, ids)
	actions := alert.NewActions(registry, zerolog.Nop())
	return NewHandler(actions, registry, store, store), registry, store
}

func TestAlertCreateAndList(t *testing.T) {
	h, _, _ := newTestHandler(t)
	ctx := context.Background()

	reply := h.Handle(ctx, "100", "alert", "create threshold btc above 50000")
	assert.Contains(t, reply, "created")
	assert.Contains(t, reply, "BTC goes above 50000 USD")

	reply = h.Handle(ctx, "100", "alert", "create multi BTC,ETH below 5%")
	assert.Contains(t, reply, "any of BTC, ETH moves below -5%")

	list := h.Handle(ctx, "100", "alert", "list")
	assert.True(t, strings.HasPrefix(list, "Your alerts:"))
	assert.Equal(t, 2, strings.Count(list, "(active)"))

	assert.Equal(t, "You have no alerts.", h.Handle(ctx, "200", "alert", "list"))
}

func TestAlertCreateRejectsBadInput(t *testing.T) {
	h, _, _ := newTestHandler(t)
	ctx := context.Background()

	assert.Contains(t, h.Handle(ctx, "1", "alert", "create threshold BTC"), "Usage")
	assert.Contains(t, h.Handle(ctx, "1", "alert", "create sideways BTC above 1"), "unknown alert kind")
	assert.Contains(t, h.Handle(ctx, "1", "alert", "create threshold BTC around 1"), "unknown condition")
	assert.Contains(t, h.Handle(ctx, "1", "alert", "create threshold BTC above abc"), "invalid value")
	assert.Contains(t, h.Handle(ctx, "1", "alert", "create threshold BTC,ETH above 10"), "Could not create alert")
}

func TestPauseResumeUpdateDeleteRespectOwner(t *testing.T) {
	h, registry, _ := newTestHandler(t)
	ctx := context.Background()

	def, err := registry.Create(ctx, alert.CreateParams{Owner: "100", Symbols: []string{"ETH"}, Kind: alert.KindThreshold, Condition: alert.ConditionBelow, Value: 2000})
	require.NoError(t, err)

	assert.Equal(t, "Alert not found.", h.Handle(ctx, "999", "alert", "pause "+def.ID))
	assert.Equal(t, "Alert deleted successfully.", h.Handle(ctx, "999", "alert", "delete "+def.ID))
	kept, err := registry.Get(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", kept.Owner)

	assert.Contains(t, h.Handle(ctx, "100", "alert", "pause "+def.ID), "(paused)")
	assert.Contains(t, h.Handle(ctx, "100", "alert", "resume "+def.ID), "(active)")
	assert.Contains(t, h.Handle(ctx, "100", "alert", "update "+def.ID+" 1800"), "ETH goes below 1800 USD")

	assert.Equal(t, "Alert deleted successfully.", h.Handle(ctx, "100", "alert", "delete "+def.ID))
	_, err = registry.Get(ctx, def.ID)
	assert.ErrorIs(t, err, alert.ErrNotFound)

	// deleting again is not an error
	assert.Equal(t, "Alert deleted successfully.", h.Handle(ctx, "100", "alert", "delete "+def.ID))
	assert.Equal(t, "Alert deleted successfully.", h.Handle(ctx, "100", "alert", "delete 424242"))
	assert.Equal(t, "Alert not found.", h.Handle(ctx, "100", "alert", "pause "+def.ID))
}

func TestPriceAndNotifications(t *testing.T) {
	h, _, store := newTestHandler(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	require.NoError(t, store.Record(ctx, []market.Observation{{Symbol: "BTC", PriceUSD: 65000, PercentChange24h: 1.25, ObservedAt: now.Add(-2 * time.Minute)}}))
	reply := h.Handle(ctx, "1", "price", "btc doge")
	assert.Contains(t, reply, "BTC: $65,000.00 (+1.25% 24h, 2 minutes ago)")
	assert.Contains(t, reply, "DOGE: no data yet")

	assert.Equal(t, "No notifications yet.", h.Handle(ctx, "1", "notifications", ""))
	_, err := store.InsertNotification(ctx, storage.NotificationRecord{Owner: "1", AlertID: "a", Message: "BTC price is now 65000 USD (above 60000)", CreatedAt: now.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Contains(t, h.Handle(ctx, "1", "notifications", "3"), "BTC price is now 65000 USD (above 60000) (1 hour ago)")
	assert.Contains(t, h.Handle(ctx, "1", "notifications", "zero"), "Usage")
}

func TestUnknownCommandShowsHelp(t *testing.T) {
	h, _, _ := newTestHandler(t)
	assert.Equal(t, helpText, h.Handle(context.Background(), "1", "start", ""))
}

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func commandUpdate(chatID int64, text string) tgbotapi.Update {
	cmdLen := strings.IndexByte(text, ' ')
	if cmdLen < 0 {
		cmdLen = len(text)
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func TestHandleUpdateRepliesToCommands(t *testing.T) {
	h, _, _ := newTestHandler(t)
	sender := &fakeSender{}
	b := newBot(sender, h, zerolog.Nop())

	b.HandleUpdate(context.Background(), commandUpdate(42, "/alert list"))
	b.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}, Text: "hello"}})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Equal(t, 7, sender.sent[0].ReplyToMessageID)
	assert.Equal(t, "You have no alerts.", sender.sent[0].Text)
}

func TestNotifySendsToOwnerChat(t *testing.T) {
	sender := &fakeSender{}
	b := newBot(sender, nil, zerolog.Nop())

	note := alerting.Notification{OwnerID: "42", AlertID: "a1", Message: "ETH price is now 1800 USD (below 2000)", Prices: map[string]float64{"ETH": 1800}}
	require.NoError(t, b.Notify(context.Background(), note))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Contains(t, sender.sent[0].Text, "ETH price is now 1800 USD")

	note.OwnerID = "ops"
	require.NoError(t, b.Notify(context.Background(), note))
	assert.Len(t, sender.sent, 1)

	sender.err = errors.New("forbidden")
	note.OwnerID = "43"
	assert.Error(t, b.Notify(context.Background(), note))
}
