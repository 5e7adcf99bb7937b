package services

import (
	"context"
	"fmt"
	"log/slog"

	"duit/internal/amqp"
	"duit/internal/core"
)

// NotificationService appends notifications to the store and best-effort
// publishes each one to AMQP for downstream consumers. Publish failures are
// logged and never block the primary write.
type NotificationService struct {
	store  NotificationStore
	events *amqp.Client
	clock  Clock
}

func NewNotificationService(store NotificationStore, events *amqp.Client, clock Clock) *NotificationService {
	return &NotificationService{
		store:  store,
		events: events,
		clock:  clock,
	}
}

// Create validates and persists a notification, then publishes it.
func (s *NotificationService) Create(ctx context.Context, n core.Notification) (core.Notification, error) {
	if err := n.Validate(); err != nil {
		return core.Notification{}, fmt.Errorf("validate notification: %w", err)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock.Now()
	}

	created, err := s.store.InsertNotification(ctx, n)
	if err != nil {
		return core.Notification{}, fmt.Errorf("insert notification: %w", err)
	}

	if err := s.publish(ctx, created); err != nil {
		slog.ErrorContext(ctx, "Failed to publish notification event",
			"id", created.ID,
			"type", created.Type,
			"error", err)
		// Don't fail - the notification is persisted
	}

	return created, nil
}

func (s *NotificationService) publish(ctx context.Context, n core.Notification) error {
	if s.events == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping notification event")
		return nil
	}
	return s.events.PublishNotification(ctx, amqp.NewNotificationMessage(n.UserID, n.Type, string(n.Severity), n.Title, n.Message, n.Data))
}
