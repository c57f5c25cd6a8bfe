package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crypto-alerts/internal/format"
	"crypto-alerts/internal/market"
)

// Notification is what the poller hands to a sink when an alert fires.
type Notification struct {
	OwnerID     string             `json:"owner_id"`
	AlertID     string             `json:"alert_id"`
	Kind        string             `json:"kind,omitempty"`
	Message     string             `json:"message"`
	Prices      map[string]float64 `json:"prices"`
	TriggeredAt time.Time          `json:"triggered_at"`
}

// Notifier delivers notifications to an external collaborator.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, notification Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// IsChatOwner reports whether owner is a Telegram chat id.
func IsChatOwner(owner string) bool {
	_, err := strconv.ParseInt(owner, 10, 64)
	return err == nil
}

// SkipChatOwners passes on only notifications whose owner is not a chat id.
// Chat owners are served by the bot in their own chat.
func SkipChatOwners(next Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, note Notification) error {
		if IsChatOwner(note.OwnerID) {
			return nil
		}
		return next.Notify(ctx, note)
	})
}

// TelegramNotifier pushes notifications through the Bot API sendMessage call.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier builds a Telegram sink posting to chatID.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the rendered notification as a MarkdownV2 message.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id":    n.chatID,
		"text":       renderMarkdown(note),
		"parse_mode": "MarkdownV2",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && result.Description != "" {
			return fmt.Errorf("telegram status %d: %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	if decodeErr == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().Str("alert_id", note.AlertID).
		Str("owner", note.OwnerID).
		Msg("notification sent (telegram)")
	return nil
}

// RenderText is the plain-text form used by the log sink and CLI.
func RenderText(note Notification) string {
	var b strings.Builder
	b.WriteString("[Crypto Alert] ")
	b.WriteString(note.Message)
	for _, symbol := range market.SortedKeys(note.Prices) {
		fmt.Fprintf(&b, "\n%s: %s", symbol, format.USD(note.Prices[symbol]))
	}
	return b.String()
}

func renderMarkdown(note Notification) string {
	var b strings.Builder
	b.WriteString("*Crypto Alert*\n")
	b.WriteString(format.EscapeMarkdownV2(note.Message))
	for _, symbol := range market.SortedKeys(note.Prices) {
		fmt.Fprintf(&b, "\n▫️ %s: `%s`", format.EscapeMarkdownV2(symbol), format.USD(note.Prices[symbol]))
	}
	if !note.TriggeredAt.IsZero() {
		fmt.Fprintf(&b, "\n_%s UTC_", format.EscapeMarkdownV2(note.TriggeredAt.UTC().Format(time.DateTime)))
	}
	return b.String()
}
