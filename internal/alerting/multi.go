package alerting

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger zerolog.Logger
}

var _ Notifier = LogNotifier{}

func NewLogNotifier(logger zerolog.Logger) LogNotifier {
	return LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (l LogNotifier) Notify(_ context.Context, note Notification) error {
	l.logger.Info().
		Str("owner", note.OwnerID).
		Str("alert_id", note.AlertID).
		Str("kind", note.Kind).
		Interface("prices", note.Prices).
		Msg(note.Message)
	return nil
}

// DeliveryRecorder observes the outcome of each channel delivery.
type DeliveryRecorder interface {
	NotificationSent(channel string, err error)
}

// Channel names a notifier inside a Multi.
type Channel struct {
	Name     string
	Notifier Notifier
}

// Multi fans a notification out to every channel. One failing channel does
// not stop the others; all errors are returned joined.
type Multi struct {
	channels []Channel
	recorder DeliveryRecorder
	logger   zerolog.Logger
}

var _ Notifier = (*Multi)(nil)

// NewMulti builds a fan-out notifier. recorder may be nil.
func NewMulti(recorder DeliveryRecorder, logger zerolog.Logger, channels ...Channel) *Multi {
	return &Multi{
		channels: channels,
		recorder: recorder,
		logger:   logger.With().Str("component", "alert_router").Logger(),
	}
}

// Channels lists the configured channel names.
func (m *Multi) Channels() []string {
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name)
	}
	return names
}

func (m *Multi) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, ch := range m.channels {
		err := ch.Notifier.Notify(ctx, note)
		if m.recorder != nil {
			m.recorder.NotificationSent(ch.Name, err)
		}
		if err != nil {
			m.logger.Error().Err(err).Str("channel", ch.Name).Str("alert_id", note.AlertID).Msg("notification delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
		}
	}
	return errors.Join(errs...)
}
