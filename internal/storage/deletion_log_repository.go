package storage

import (
	"context"
	"fmt"

	"github.com/hostel-listings/backend/internal/storage/models"
)

// DeletionLogRepository records permanently removed listings.
type DeletionLogRepository struct {
	BaseRepository
}

// NewDeletionLogRepository creates a new deletion log repository.
func NewDeletionLogRepository(db *DB) *DeletionLogRepository {
	return &DeletionLogRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Record inserts a deletion log entry.
func (r *DeletionLogRepository) Record(ctx context.Context, entry *models.DeletionLog) error {
	if entry.ID == "" {
		entry.ID = GenerateID()
	}
	if entry.DeletedAt.IsZero() {
		entry.DeletedAt = r.Now()
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO deletion_log (id, listing_id, name, area, reason, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.ListingID, entry.Name, entry.Area, entry.Reason, entry.DeletedAt)
	if err != nil {
		return fmt.Errorf("inserting deletion log: %w", err)
	}

	return nil
}

// List returns the most recent deletion log entries, newest first.
func (r *DeletionLogRepository) List(ctx context.Context, limit int) ([]models.DeletionLog, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, listing_id, name, area, reason, deleted_at
		FROM deletion_log
		ORDER BY deleted_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying deletion log: %w", err)
	}
	defer rows.Close()

	entries := []models.DeletionLog{}
	for rows.Next() {
		var e models.DeletionLog
		if err := rows.Scan(&e.ID, &e.ListingID, &e.Name, &e.Area, &e.Reason, &e.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning deletion log: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
