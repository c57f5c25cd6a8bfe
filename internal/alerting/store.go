package alerting

import (
	"context"

	"crypto-alerts/internal/storage"
)

// StoreNotifier records every notification so owners can list past alerts.
type StoreNotifier struct {
	store storage.NotificationStore
}

var _ Notifier = (*StoreNotifier)(nil)

func NewStoreNotifier(store storage.NotificationStore) *StoreNotifier {
	return &StoreNotifier{store: store}
}

func (h *StoreNotifier) Notify(ctx context.Context, note Notification) error {
	_, err := h.store.InsertNotification(ctx, storage.NotificationRecord{
		Owner:     note.OwnerID,
		AlertID:   note.AlertID,
		Message:   note.Message,
		Prices:    note.Prices,
		CreatedAt: note.TriggeredAt,
	})
	return err
}
