// Package worker contains the AMQP consumer side: notification events
// published by the batch workers are picked up here and handed to a
// delivery channel.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"duit/internal/amqp"
)

// Deliverer pushes one notification event to its final channel (terminal,
// webhook, mail gateway). Errors requeue the event.
type Deliverer interface {
	Deliver(ctx context.Context, msg *amqp.NotificationMessage) error
}

// NotifyWorker consumes notification events and delivers them.
type NotifyWorker struct {
	deliverer Deliverer
}

func NewNotifyWorker(deliverer Deliverer) *NotifyWorker {
	return &NotifyWorker{deliverer: deliverer}
}

// HandleMessage processes a single notification event.
func (w *NotifyWorker) HandleMessage(ctx context.Context, msg *amqp.NotificationMessage) error {
	if msg.Type == "" || msg.Title == "" {
		return fmt.Errorf("malformed notification event: type=%q title=%q", msg.Type, msg.Title)
	}

	if err := w.deliverer.Deliver(ctx, msg); err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}

	slog.InfoContext(ctx, "Notification delivered",
		"user_id", msg.UserID,
		"type", msg.Type,
		"severity", msg.Severity)
	return nil
}

// LogDeliverer writes notifications to the structured log. It is the
// default channel for self-hosted setups without an outbound gateway.
type LogDeliverer struct{}

func (LogDeliverer) Deliver(ctx context.Context, msg *amqp.NotificationMessage) error {
	slog.InfoContext(ctx, msg.Title,
		"user_id", msg.UserID,
		"type", msg.Type,
		"severity", msg.Severity,
		"message", msg.Message)
	return nil
}
