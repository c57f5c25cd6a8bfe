package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crypto-alerts/internal/alert"
	"crypto-alerts/internal/format"
	"crypto-alerts/internal/market"
	"crypto-alerts/internal/storage"
)

const helpText = `Commands:
/alert create <threshold|percent|multi> <SYM[,SYM]> <above|below> <value>
/alert list
/alert delete <id>
/alert pause <id>
/alert resume <id>
/alert update <id> <value>
/notifications [limit]
/price <SYM> [SYM...]`

// AlertActions is the user-facing alert surface, *alert.Actions.
type AlertActions interface {
	Create(ctx context.Context, p alert.CreateParams) alert.ActionResult
	List(ctx context.Context, owner string, filter alert.ListFilter) alert.ActionResult
	Delete(ctx context.Context, id string) alert.ActionResult
	Update(ctx context.Context, id string, patch alert.Patch) alert.ActionResult
}

// AlertLookup resolves an alert id, *alert.Registry.
type AlertLookup interface {
	Get(ctx context.Context, id string) (alert.Definition, error)
}

// Handler turns chat commands into replies. It knows nothing about Telegram.
type Handler struct {
	actions       AlertActions
	lookup        AlertLookup
	notifications storage.NotificationStore
	prices        alert.PriceReader
	now           func() time.Time
}

// NewHandler wires a command handler.
func NewHandler(actions AlertActions, lookup AlertLookup, notifications storage.NotificationStore, prices alert.PriceReader) *Handler {
	return &Handler{
		actions:       actions,
		lookup:        lookup,
		notifications: notifications,
		prices:        prices,
		now:           time.Now,
	}
}

// Handle answers one command issued by owner.
func (h *Handler) Handle(ctx context.Context, owner, command, args string) string {
	fields := strings.Fields(args)
	switch strings.ToLower(command) {
	case "alert", "alerts":
		return h.alert(ctx, owner, fields)
	case "notifications", "history":
		return h.history(ctx, owner, fields)
	case "price", "p":
		return h.price(ctx, fields)
	default:
		return helpText
	}
}

func (h *Handler) alert(ctx context.Context, owner string, fields []string) string {
	if len(fields) == 0 {
		return helpText
	}
	sub, rest := strings.ToLower(fields[0]), fields[1:]
	switch sub {
	case "create", "add", "new":
		if len(rest) != 4 {
			return "Usage: /alert create <threshold|percent|multi> <SYM[,SYM]> <above|below> <value>"
		}
		kind, err := alert.ParseKind(rest[0])
		if err != nil {
			return err.Error()
		}
		cond, err := alert.ParseCondition(rest[2])
		if err != nil {
			return err.Error()
		}
		value, err := parseValue(rest[3])
		if err != nil {
			return err.Error()
		}
		return h.actions.Create(ctx, alert.CreateParams{
			Owner:     owner,
			Symbols:   market.SplitSymbols(rest[1]),
			Kind:      kind,
			Condition: cond,
			Value:     value,
		}).Message
	case "list", "ls":
		return h.actions.List(ctx, owner, alert.ListFilter{}).Message
	case "delete", "rm", "remove":
		if len(rest) != 1 {
			return "Usage: /alert delete <id>"
		}
		return h.deleteAlert(ctx, owner, rest[0])
	case "pause", "resume":
		if len(rest) != 1 {
			return fmt.Sprintf("Usage: /alert %s <id>", sub)
		}
		if msg, ok := h.owned(ctx, owner, rest[0]); !ok {
			return msg
		}
		active := sub == "resume"
		return h.actions.Update(ctx, rest[0], alert.Patch{Active: &active}).Message
	case "update", "set":
		if len(rest) != 2 {
			return "Usage: /alert update <id> <value>"
		}
		value, err := parseValue(rest[1])
		if err != nil {
			return err.Error()
		}
		if msg, ok := h.owned(ctx, owner, rest[0]); !ok {
			return msg
		}
		return h.actions.Update(ctx, rest[0], alert.Patch{Value: &value}).Message
	default:
		return helpText
	}
}

// owned reports whether id exists and belongs to owner. Alerts of other
// owners look the same as missing ones.
func (h *Handler) owned(ctx context.Context, owner, id string) (string, bool) {
	def, err := h.lookup.Get(ctx, id)
	switch {
	case errors.Is(err, alert.ErrNotFound):
		return "Alert not found.", false
	case err != nil:
		return "Could not look up alert: " + err.Error(), false
	case def.Owner != owner:
		return "Alert not found.", false
	}
	return "", true
}

// deleteAlert is idempotent: a missing id and another owner's id both get the
// success reply, and only the owner's own alerts are removed.
func (h *Handler) deleteAlert(ctx context.Context, owner, id string) string {
	def, err := h.lookup.Get(ctx, id)
	switch {
	case errors.Is(err, alert.ErrNotFound):
		return alert.DeletedMessage
	case err != nil:
		return "Could not look up alert: " + err.Error()
	case def.Owner != owner:
		return alert.DeletedMessage
	}
	return h.actions.Delete(ctx, id).Message
}

func (h *Handler) history(ctx context.Context, owner string, fields []string) string {
	limit := 5
	if len(fields) > 0 {
		n, err := strconv.Atoi(fields[0])
		if err != nil || n <= 0 {
			return "Usage: /notifications [limit]"
		}
		limit = min(n, 50)
	}
	records, err := h.notifications.ListNotifications(ctx, owner, limit)
	if err != nil {
		return "Could not load notifications: " + err.Error()
	}
	if len(records) == 0 {
		return "No notifications yet."
	}
	var b strings.Builder
	b.WriteString("Recent notifications:")
	now := h.now()
	for _, rec := range records {
		fmt.Fprintf(&b, "\n- %s (%s)", rec.Message, format.Ago(rec.CreatedAt, now))
	}
	return b.String()
}

func (h *Handler) price(ctx context.Context, fields []string) string {
	symbols := market.NormalizeSymbols(market.SplitSymbols(strings.Join(fields, ",")))
	if len(symbols) == 0 {
		return "Usage: /price <SYM> [SYM...]"
	}
	latest, err := h.prices.Latest(ctx, symbols)
	if err != nil {
		return "Could not load prices: " + err.Error()
	}
	var lines []string
	now := h.now()
	for _, symbol := range symbols {
		obs, ok := latest[symbol]
		if !ok {
			lines = append(lines, symbol+": no data yet")
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s (%s 24h, %s)",
			symbol, format.USD(obs.PriceUSD), format.Percent(obs.PercentChange24h), format.Ago(obs.ObservedAt, now)))
	}
	return strings.Join(lines, "\n")
}

func parseValue(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(raw), "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", raw)
	}
	return v, nil
}
