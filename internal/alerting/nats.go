package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Publisher is the part of *nats.Conn the sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes notifications as JSON on a subject.
type NATSNotifier struct {
	pub     Publisher
	subject string
	logger  zerolog.Logger
}

var _ Notifier = (*NATSNotifier)(nil)

// NewNATSNotifier wraps an established publisher.
func NewNATSNotifier(pub Publisher, subject string, logger zerolog.Logger) *NATSNotifier {
	return &NATSNotifier{
		pub:     pub,
		subject: subject,
		logger:  logger.With().Str("component", "alert_nats").Logger(),
	}
}

// DialNATS connects to url with reconnects enabled.
func DialNATS(url, name string, logger zerolog.Logger) (*nats.Conn, error) {
	l := logger.With().Str("component", "nats").Logger()
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			l.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return conn, nil
}

// Notify publishes the notification. The subject gets the owner appended so
// consumers can subscribe per owner with a wildcard.
func (n *NATSNotifier) Notify(ctx context.Context, note Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal nats payload: %w", err)
	}
	subject := n.subject
	if note.OwnerID != "" {
		subject = subject + "." + sanitizeToken(note.OwnerID)
	}
	if err := n.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	n.logger.Debug().Str("subject", subject).Str("alert_id", note.AlertID).Msg("notification published")
	return nil
}

// sanitizeToken replaces characters that carry meaning in NATS subjects.
func sanitizeToken(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			out[i] = '_'
		}
	}
	return string(out)
}
