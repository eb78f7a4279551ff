package listing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hostel-listings/backend/internal/storage"
	"github.com/hostel-listings/backend/internal/storage/models"
)

// DeletionRecorder stores an audit entry for a permanently removed listing.
type DeletionRecorder interface {
	Record(ctx context.Context, entry *models.DeletionLog) error
}

// Service exposes the listing operations: create, read and the three status
// transitions. It keeps no cache; callers re-fetch or patch their own state.
type Service struct {
	adapter   *Adapter
	deletions DeletionRecorder
	now       func() time.Time
}

// NewService creates a listing service. deletions may be nil.
func NewService(adapter *Adapter, deletions DeletionRecorder) *Service {
	return &Service{
		adapter:   adapter,
		deletions: deletions,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput holds the fields a submitter provides for a new listing.
type CreateInput struct {
	Area             string   `json:"area"`
	Name             string   `json:"name"`
	Location         string   `json:"location"`
	ShortDescription string   `json:"short_description"`
	Images           []string `json:"images"`
	Video            string   `json:"video"`
	Price            string   `json:"price"`
	Facilities       []string `json:"facilities"`
	Contact          string   `json:"contact"`
}

// List returns all listings, or an empty slice if the store is unreachable.
func (s *Service) List(ctx context.Context) []models.Listing {
	return s.adapter.ReadAll(ctx)
}

// Fetch returns all listings, or ErrTransport if the store is unreachable.
func (s *Service) Fetch(ctx context.Context) ([]models.Listing, error) {
	return s.adapter.Fetch(ctx)
}

// Get returns a listing by id, including listings pending deletion.
func (s *Service) Get(ctx context.Context, id string) (*models.Listing, error) {
	return s.adapter.Get(ctx, id)
}

// Create assigns an id and writes a new active listing.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Listing, error) {
	l := &models.Listing{
		ID:               storage.GenerateID(),
		Area:             strings.TrimSpace(in.Area),
		Name:             strings.TrimSpace(in.Name),
		Location:         strings.TrimSpace(in.Location),
		ShortDescription: strings.TrimSpace(in.ShortDescription),
		Images:           in.Images,
		Video:            strings.TrimSpace(in.Video),
		Price:            strings.TrimSpace(in.Price),
		Facilities:       models.SplitFacilities(strings.Join(in.Facilities, ",")),
		Contact:          strings.TrimSpace(in.Contact),
		Status:           models.StatusActive,
	}

	if err := s.adapter.Append(ctx, l); err != nil {
		return nil, err
	}

	log.Printf("Created listing %s (%s, %s)", l.ID, l.Name, l.Area)
	return l, nil
}

// MarkPendingDeletion sets the listing to pending_deletion and stores the
// time of the request. It returns that time.
func (s *Service) MarkPendingDeletion(ctx context.Context, id string) (time.Time, error) {
	requestedAt := s.now().Truncate(time.Second)
	if err := s.adapter.UpdateStatus(ctx, id, models.StatusPendingDeletion, &requestedAt); err != nil {
		return time.Time{}, fmt.Errorf("marking listing %s for deletion: %w", id, err)
	}

	log.Printf("Listing %s marked for deletion", id)
	return requestedAt, nil
}

// SetStatus writes an arbitrary status. Any status other than
// pending_deletion clears the deletion timestamp.
func (s *Service) SetStatus(ctx context.Context, id, status string) error {
	status = strings.TrimSpace(status)
	if status == "" {
		return &ValidationError{Fields: []string{"status"}}
	}

	if status == models.StatusPendingDeletion {
		_, err := s.MarkPendingDeletion(ctx, id)
		return err
	}

	if err := s.adapter.UpdateStatus(ctx, id, status, nil); err != nil {
		return fmt.Errorf("setting status of listing %s: %w", id, err)
	}

	log.Printf("Listing %s status set to %s", id, status)
	return nil
}

// PermanentDelete removes the listing row from the store. Deleting an id
// that is already gone returns ErrNotFound and touches no other row.
func (s *Service) PermanentDelete(ctx context.Context, id, reason string) error {
	removed, err := s.adapter.DeleteRow(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting listing %s: %w", id, err)
	}

	log.Printf("Listing %s (%s) permanently deleted: %s", id, removed.Name, reason)

	if s.deletions != nil {
		entry := &models.DeletionLog{
			ListingID: removed.ID,
			Name:      removed.Name,
			Area:      removed.Area,
			Reason:    reason,
			DeletedAt: s.now(),
		}
		if err := s.deletions.Record(ctx, entry); err != nil {
			log.Printf("Failed to record deletion of listing %s: %v", id, err)
		}
	}

	return nil
}

// IsNotFound reports whether err means the listing does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
