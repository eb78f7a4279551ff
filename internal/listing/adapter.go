// Package listing maps row store rows to hostel listings and implements the
// listing status transitions and browse filtering on top of them.
package listing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/hostel-listings/backend/internal/storage"
	"github.com/hostel-listings/backend/internal/storage/models"
)

// RowStore is an ordered list of string rows, addressed by 0-based index.
// Row 0 is the header. Implementations: storage.SheetStore, sheets.Client.
type RowStore interface {
	Rows(ctx context.Context) ([][]string, error)
	AppendRow(ctx context.Context, cells []string) error
	UpdateCell(ctx context.Context, row, col int, value string) error
	DeleteRow(ctx context.Context, row int) error
}

// keyedRowStore is implemented by stores that can check, atomically with a
// write, that the row at a position still carries the expected id.
// storage.SheetStore implements it.
type keyedRowStore interface {
	UpdateCellIf(ctx context.Context, row, col int, value string, keyCol int, key string) error
	DeleteRowIf(ctx context.Context, row, keyCol int, key string) error
}

// locateAttempts bounds how often a mutation re-scans after its row moved.
const locateAttempts = 3

// Column positions of a listing row.
const (
	colID = iota
	colArea
	colName
	colLocation
	colDescription
	colImage1
	colImage2
	colImage3
	colVideo
	colPrice
	colFacilities
	colContact
	colStatus
	colDeletionRequestedAt
	columnCount
)

// Header is the header row written to an empty listings sheet.
var Header = []string{
	"id", "area", "name", "location", "description",
	"image1", "image2", "image3", "video", "price",
	"facilities", "contact", "status", "deletion_requested_at",
}

// Adapter translates between row store rows and listings. It never fails
// on missing optional cells, and every store call is bounded by timeout.
type Adapter struct {
	store        RowStore
	timeout      time.Duration
	mediaBaseURL string

	// writeMu is held from locating a row until the write to it completes,
	// so a structural delete cannot shift rows under another mutation.
	writeMu sync.Mutex
}

// NewAdapter creates an adapter over store. Relative image and video paths
// are resolved against mediaBaseURL when it is set.
func NewAdapter(store RowStore, timeout time.Duration, mediaBaseURL string) *Adapter {
	return &Adapter{
		store:        store,
		timeout:      timeout,
		mediaBaseURL: strings.TrimRight(mediaBaseURL, "/"),
	}
}

// ReadAll returns every listing in store order. Store failures degrade to an
// empty result and are logged.
func (a *Adapter) ReadAll(ctx context.Context) []models.Listing {
	listings, err := a.Fetch(ctx)
	if err != nil {
		log.Printf("Failed to read listings, serving empty result: %v", err)
		return []models.Listing{}
	}
	return listings
}

// Fetch returns every listing in store order, or ErrTransport.
func (a *Adapter) Fetch(ctx context.Context) ([]models.Listing, error) {
	rows, err := a.rows(ctx)
	if err != nil {
		return nil, err
	}
	return a.parseRows(rows), nil
}

// Get returns the listing with the given id.
func (a *Adapter) Get(ctx context.Context, id string) (*models.Listing, error) {
	rows, err := a.rows(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := locate(rows, id)
	if err != nil {
		return nil, err
	}
	l, _ := a.rowToListing(rows[idx])
	return &l, nil
}

// Append validates l and writes it as a new row.
func (a *Adapter) Append(ctx context.Context, l *models.Listing) error {
	if err := Validate(l); err != nil {
		return err
	}
	row := listingToRow(l)
	return a.call(ctx, "appending row", func(ctx context.Context) error {
		return a.store.AppendRow(ctx, row)
	})
}

// UpdateStatus writes the status and deletion timestamp cells of a listing.
// The timestamp is written first, so a half-applied update never leaves a
// pending listing with a stale timestamp from an earlier request.
func (a *Adapter) UpdateStatus(ctx context.Context, id, status string, requestedAt *time.Time) error {
	stamp := ""
	if requestedAt != nil {
		stamp = requestedAt.UTC().Format(time.RFC3339)
	}

	return a.withRow(ctx, id, func(idx int, _ []string) error {
		if err := a.call(ctx, "updating deletion timestamp", func(ctx context.Context) error {
			return a.updateCell(ctx, idx, colDeletionRequestedAt, stamp, id)
		}); err != nil {
			return err
		}
		return a.call(ctx, "updating status", func(ctx context.Context) error {
			return a.updateCell(ctx, idx, colStatus, status, id)
		})
	})
}

// DeleteRow structurally removes the row of a listing and returns the
// listing as it was before removal.
func (a *Adapter) DeleteRow(ctx context.Context, id string) (*models.Listing, error) {
	var removed models.Listing
	err := a.withRow(ctx, id, func(idx int, row []string) error {
		removed, _ = a.rowToListing(row)
		return a.call(ctx, "deleting row", func(ctx context.Context) error {
			if ks, ok := a.store.(keyedRowStore); ok {
				return ks.DeleteRowIf(ctx, idx, colID, id)
			}
			return a.store.DeleteRow(ctx, idx)
		})
	})
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

// withRow locates the row of id and runs fn on it while holding writeMu.
// If a keyed store reports the row moved, the scan is repeated.
func (a *Adapter) withRow(ctx context.Context, id string, fn func(idx int, row []string) error) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	var err error
	for attempt := 0; attempt < locateAttempts; attempt++ {
		var rows [][]string
		rows, err = a.rows(ctx)
		if err != nil {
			return err
		}
		idx, lerr := locate(rows, id)
		if lerr != nil {
			return lerr
		}

		err = fn(idx, rows[idx])
		if !errors.Is(err, storage.ErrRowMismatch) {
			return err
		}
		log.Printf("Row of listing %s moved during update, locating again", id)
	}
	return fmt.Errorf("%w: row of listing %s kept moving: %v", ErrTransport, id, err)
}

func (a *Adapter) updateCell(ctx context.Context, idx, col int, value, id string) error {
	if ks, ok := a.store.(keyedRowStore); ok {
		return ks.UpdateCellIf(ctx, idx, col, value, colID, id)
	}
	return a.store.UpdateCell(ctx, idx, col, value)
}

func (a *Adapter) rows(ctx context.Context) ([][]string, error) {
	var rows [][]string
	err := a.call(ctx, "reading rows", func(ctx context.Context) error {
		var err error
		rows, err = a.store.Rows(ctx)
		return err
	})
	return rows, err
}

// call runs fn with the remote timeout. The result is abandoned if fn does
// not return in time, even when the store ignores context cancellation.
func (a *Adapter) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		if errors.Is(err, storage.ErrRowMismatch) {
			return err
		}
		if err != nil {
			return transportError(op, err)
		}
		return nil
	case <-ctx.Done():
		return transportError(op, ctx.Err())
	}
}

// locate does a linear scan of the id column, skipping the header.
func locate(rows [][]string, id string) (int, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, ErrNotFound
	}
	for i := 1; i < len(rows); i++ {
		if cell(rows[i], colID) == id {
			return i, nil
		}
	}
	return 0, ErrNotFound
}

func (a *Adapter) parseRows(rows [][]string) []models.Listing {
	listings := []models.Listing{}
	if len(rows) < 2 {
		return listings
	}

	for i, row := range rows[1:] {
		l, ok := a.rowToListing(row)
		if !ok {
			log.Printf("Skipping listing row %d: empty id cell", i+1)
			continue
		}
		listings = append(listings, l)
	}
	return listings
}

func (a *Adapter) rowToListing(row []string) (models.Listing, bool) {
	l := models.Listing{
		ID:               cell(row, colID),
		Area:             cell(row, colArea),
		Name:             cell(row, colName),
		Location:         cell(row, colLocation),
		ShortDescription: cell(row, colDescription),
		Images:           []string{},
		Video:            a.resolveMedia(cell(row, colVideo)),
		Price:            cell(row, colPrice),
		Facilities:       models.SplitFacilities(cell(row, colFacilities)),
		Contact:          cell(row, colContact),
		Status:           cell(row, colStatus),
	}
	if l.ID == "" {
		return l, false
	}

	for _, col := range []int{colImage1, colImage2, colImage3} {
		if v := cell(row, col); v != "" {
			l.Images = append(l.Images, a.resolveMedia(v))
		}
	}

	if l.Status == "" {
		l.Status = models.StatusActive
	}

	if v := cell(row, colDeletionRequestedAt); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			t = t.UTC()
			l.DeletionRequestedAt = &t
		} else {
			log.Printf("Ignoring unparseable deletion timestamp %q on listing %s", v, l.ID)
		}
	}

	return l, true
}

func listingToRow(l *models.Listing) []string {
	row := make([]string, columnCount)
	row[colID] = l.ID
	row[colArea] = l.Area
	row[colName] = l.Name
	row[colLocation] = l.Location
	row[colDescription] = l.ShortDescription
	for i, img := range l.Images {
		if i >= models.MaxImages {
			break
		}
		row[colImage1+i] = img
	}
	row[colVideo] = l.Video
	row[colPrice] = l.Price
	row[colFacilities] = models.JoinFacilities(l.Facilities)
	row[colContact] = l.Contact
	row[colStatus] = l.Status
	if row[colStatus] == "" {
		row[colStatus] = models.StatusActive
	}
	if l.DeletionRequestedAt != nil {
		row[colDeletionRequestedAt] = l.DeletionRequestedAt.UTC().Format(time.RFC3339)
	}
	return row
}

// resolveMedia turns a media host path into an absolute URL.
func (a *Adapter) resolveMedia(v string) string {
	if v == "" || a.mediaBaseURL == "" {
		return v
	}
	if strings.Contains(v, "://") || strings.HasPrefix(v, "//") {
		return v
	}
	return a.mediaBaseURL + "/" + strings.TrimLeft(v, "/")
}

func cell(row []string, col int) string {
	if col < len(row) {
		return strings.TrimSpace(row[col])
	}
	return ""
}

// Validate checks the fields required before a listing may be written.
func Validate(l *models.Listing) error {
	var fields []string
	if strings.TrimSpace(l.ID) == "" {
		fields = append(fields, "id")
	}
	if strings.TrimSpace(l.Area) == "" {
		fields = append(fields, "area")
	}
	if strings.TrimSpace(l.Name) == "" {
		fields = append(fields, "name")
	}

	hasImage := false
	for _, img := range l.Images {
		if strings.TrimSpace(img) != "" {
			hasImage = true
		}
	}
	switch {
	case !hasImage:
		fields = append(fields, "images")
	case len(l.Images) > models.MaxImages:
		fields = append(fields, "images (at most 3)")
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
