// Package models defines data structures for storage entities.
package models

import (
	"strconv"
	"strings"
	"time"
)

// Listing represents a hostel listing stored as one row in the row store.
type Listing struct {
	ID                  string     `json:"id"`
	Area                string     `json:"area"`
	Name                string     `json:"name"`
	Location            string     `json:"location"`
	ShortDescription    string     `json:"short_description"`
	Images              []string   `json:"images"`
	Video               string     `json:"video,omitempty"`
	Price               string     `json:"price"`
	Facilities          []string   `json:"facilities"`
	Contact             string     `json:"contact"`
	Status              string     `json:"status"`
	DeletionRequestedAt *time.Time `json:"deletion_requested_at,omitempty"`
}

// Listing status constants. Other values are tolerated by the store.
const (
	StatusActive          = "active"
	StatusPendingDeletion = "pending_deletion"
)

// MaxImages is the number of image columns in a listing row.
const MaxImages = 3

// IsPendingDeletion returns true if the listing is scheduled for removal.
func (l *Listing) IsPendingDeletion() bool {
	return l.Status == StatusPendingDeletion
}

// PriceValue returns the listing price parsed from its free-text form.
func (l *Listing) PriceValue() (int64, bool) {
	return ParsePrice(l.Price)
}

// HasFacilities reports whether the listing offers every facility in want.
// Comparison is case-insensitive.
func (l *Listing) HasFacilities(want []string) bool {
	have := make(map[string]bool, len(l.Facilities))
	for _, f := range l.Facilities {
		have[strings.ToLower(f)] = true
	}
	for _, w := range want {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if !have[w] {
			return false
		}
	}
	return true
}

// ParsePrice strips every non-digit character from a free-text price and
// parses the remainder. "KSh 5,000 / month" parses as 5000.
func ParsePrice(price string) (int64, bool) {
	var b strings.Builder
	for _, r := range price {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SplitFacilities parses the comma-joined storage form of a facility set.
// Entries are trimmed, empty entries dropped and duplicates (ignoring case)
// removed, keeping the first spelling.
func SplitFacilities(s string) []string {
	facilities := []string{}
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key := strings.ToLower(part)
		if seen[key] {
			continue
		}
		seen[key] = true
		facilities = append(facilities, part)
	}
	return facilities
}

// JoinFacilities produces the storage form of a facility set.
func JoinFacilities(facilities []string) string {
	return strings.Join(SplitFacilities(strings.Join(facilities, ",")), ", ")
}
