package models

import "time"

// DeletionLog records a listing that was permanently removed from the row store.
type DeletionLog struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	Name      string    `json:"name"`
	Area      string    `json:"area"`
	Reason    string    `json:"reason"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Deletion reason constants
const (
	DeletionReasonCountdown = "countdown_elapsed"
	DeletionReasonManual    = "manual"
)
