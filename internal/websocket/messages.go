package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeDeletionScheduled MessageType = "listing.deletion_scheduled"
	TypeDeletionCountdown MessageType = "listing.deletion_countdown"
	TypeDeletionCancelled MessageType = "listing.deletion_cancelled"
	TypeListingRemoved    MessageType = "listing.removed"
	TypeRemovalFailed     MessageType = "listing.removal_failed"
	TypeStatusChanged     MessageType = "listing.status_changed"
	TypeNotification      MessageType = "notification"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// DeletionPayload describes one listing in the deletion workflow.
type DeletionPayload struct {
	ListingID        string `json:"listing_id"`
	Name             string `json:"name,omitempty"`
	SecondsRemaining int    `json:"seconds_remaining"`
}

// CountdownPayload carries every active countdown after a tick.
type CountdownPayload struct {
	Countdowns map[string]int `json:"countdowns"`
}

// RemovalFailedPayload is the payload for listing.removal_failed events.
type RemovalFailedPayload struct {
	ListingID string `json:"listing_id"`
	Message   string `json:"message"`
}

// StatusPayload is the payload for listing.status_changed events.
type StatusPayload struct {
	ListingID      string `json:"listing_id"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
