package amqp

import (
	"encoding/json"
	"time"
)

// NotificationMessage is the event published for every notification the
// system creates. It carries the full payload so consumers never need to
// read the database.
type NotificationMessage struct {
	UserID    int64          `json:"user_id"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewNotificationMessage(userID int64, ntype, severity, title, message string, data map[string]any) *NotificationMessage {
	return &NotificationMessage{
		UserID:    userID,
		Type:      ntype,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// NotificationMessageFromJSON creates a message from JSON bytes
func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
