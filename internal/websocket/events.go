package websocket

import (
	"log"
)

// EventBroadcaster turns deletion workflow events into WebSocket messages.
// A nil *EventBroadcaster is valid and drops every event.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	if hub == nil {
		return nil
	}
	return &EventBroadcaster{hub: hub}
}

// DeletionScheduled announces a new countdown.
func (b *EventBroadcaster) DeletionScheduled(listingID, name string, seconds int) {
	b.broadcast(NewMessage(TypeDeletionScheduled, DeletionPayload{
		ListingID:        listingID,
		Name:             name,
		SecondsRemaining: seconds,
	}))
}

// Countdown sends the remaining seconds of every draining listing.
func (b *EventBroadcaster) Countdown(countdowns map[string]int) {
	b.broadcast(NewMessage(TypeDeletionCountdown, CountdownPayload{Countdowns: countdowns}))
}

// DeletionCancelled announces a countdown that was cancelled.
func (b *EventBroadcaster) DeletionCancelled(listingID, name string) {
	b.broadcast(NewMessage(TypeDeletionCancelled, DeletionPayload{ListingID: listingID, Name: name}))
	b.Notification("success", "Deletion cancelled", "The listing is visible again.")
}

// ListingRemoved announces a permanent removal.
func (b *EventBroadcaster) ListingRemoved(listingID, name string) {
	b.broadcast(NewMessage(TypeListingRemoved, DeletionPayload{ListingID: listingID, Name: name}))
}

// RemovalFailed reports a permanent delete that will be retried.
func (b *EventBroadcaster) RemovalFailed(listingID string, err error) {
	b.broadcast(NewMessage(TypeRemovalFailed, RemovalFailedPayload{
		ListingID: listingID,
		Message:   err.Error(),
	}))
}

// StatusChanged announces a plain status write.
func (b *EventBroadcaster) StatusChanged(listingID, previous, current string) {
	b.broadcast(NewMessage(TypeStatusChanged, StatusPayload{
		ListingID:      listingID,
		PreviousStatus: previous,
		NewStatus:      current,
	}))
}

// Notification sends a dismissible banner to every admin client.
func (b *EventBroadcaster) Notification(level, title, message string) {
	b.broadcast(NewMessage(TypeNotification, NotificationPayload{
		Level:       level,
		Title:       title,
		Message:     message,
		Dismissible: true,
	}))
}

func (b *EventBroadcaster) broadcast(msg Message) {
	if b == nil {
		return
	}
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}
	b.hub.Broadcast(data)
}
