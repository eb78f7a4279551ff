package listing

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/hostel-listings/backend/internal/storage"
	"github.com/hostel-listings/backend/internal/storage/models"
)

func newSheet(t *testing.T) *storage.SheetStore {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "listings.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := storage.RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	sheet := storage.NewSheetStore(db, "Hostels")
	if err := sheet.EnsureHeader(context.Background(), Header); err != nil {
		t.Fatalf("EnsureHeader: %v", err)
	}
	return sheet
}

func appendRows(t *testing.T, s RowStore, rows ...[]string) {
	t.Helper()
	for _, r := range rows {
		if err := s.AppendRow(context.Background(), r); err != nil {
			t.Fatalf("AppendRow: %v", err)
		}
	}
}

// failingStore simulates an unreachable backend.
type failingStore struct{}

var errUnreachable = errors.New("dial tcp: connection refused")

func (failingStore) Rows(context.Context) ([][]string, error) { return nil, errUnreachable }
func (failingStore) AppendRow(context.Context, []string) error { return errUnreachable }
func (failingStore) UpdateCell(context.Context, int, int, string) error { return errUnreachable }
func (failingStore) DeleteRow(context.Context, int) error { return errUnreachable }

// hungStore never answers and ignores cancellation.
type hungStore struct{ release chan struct{} }

func (h hungStore) Rows(context.Context) ([][]string, error) {
	<-h.release
	return nil, nil
}
func (h hungStore) AppendRow(context.Context, []string) error { <-h.release; return nil }
func (h hungStore) UpdateCell(context.Context, int, int, string) error { <-h.release; return nil }
func (h hungStore) DeleteRow(context.Context, int) error { <-h.release; return nil }

func TestReadAllSingleActiveListing(t *testing.T) {
	sheet := newSheet(t)
	appendRows(t, sheet, []string{
		"1", "Juja", "Sunrise Hostel", "Gate B", "Near campus",
		"a.jpg", "", "c.jpg", "", "KSh 6,000", "Wi-Fi, Security, Parking", "wa.me/254700000000", "active",
	})

	a := NewAdapter(sheet, time.Second, "")
	listings := a.ReadAll(context.Background())

	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}
	l := listings[0]
	if l.Status != models.StatusActive {
		t.Errorf("status = %q, want active", l.Status)
	}
	if !reflect.DeepEqual(l.Images, []string{"a.jpg", "c.jpg"}) {
		t.Errorf("images = %v, want gaps filtered", l.Images)
	}
	if !reflect.DeepEqual(l.Facilities, []string{"Wi-Fi", "Security", "Parking"}) {
		t.Errorf("facilities = %v", l.Facilities)
	}
	if l.Name != "Sunrise Hostel" || l.Contact != "wa.me/254700000000" {
		t.Errorf("unexpected listing %+v", l)
	}
}

func TestReadAllHeaderOnlyIsEmpty(t *testing.T) {
	a := NewAdapter(newSheet(t), time.Second, "")
	listings, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if listings == nil || len(listings) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", listings)
	}
}

func TestReadAllToleratesShortAndMalformedRows(t *testing.T) {
	sheet := newSheet(t)
	appendRows(t, sheet,
		[]string{"1", "Juja"},
		[]string{"", "Ruiru", "No id"},
		[]string{"3", "Kahawa", "Late", "", "", "", "", "", "", "", "", "", "pending_deletion", "not-a-time"},
	)

	listings := NewAdapter(sheet, time.Second, "").ReadAll(context.Background())
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}
	if listings[0].Status != models.StatusActive {
		t.Errorf("empty status cell should read as active, got %q", listings[0].Status)
	}
	if len(listings[0].Images) != 0 || len(listings[0].Facilities) != 0 {
		t.Errorf("missing cells should default to empty collections: %+v", listings[0])
	}
	if listings[1].DeletionRequestedAt != nil {
		t.Errorf("unparseable timestamp should be ignored")
	}
}

func TestReadAllDegradesOnTransportError(t *testing.T) {
	a := NewAdapter(failingStore{}, time.Second, "")

	if got := a.ReadAll(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
	if _, err := a.Fetch(context.Background()); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport from Fetch, got %v", err)
	}
}

func TestRemoteTimeoutIsEnforced(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	a := NewAdapter(hungStore{release: release}, 20*time.Millisecond, "")

	start := time.Now()
	_, err := a.Fetch(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout was not enforced")
	}
}

func TestMediaPathsResolveAgainstBaseURL(t *testing.T) {
	sheet := newSheet(t)
	appendRows(t, sheet, []string{
		"1", "Juja", "Sunrise", "", "", "/hostels/a.jpg", "https://cdn.example.com/b.jpg", "", "videos/tour.mp4",
	})

	l := NewAdapter(sheet, time.Second, "https://media.example.com/").ReadAll(context.Background())[0]
	want := []string{"https://media.example.com/hostels/a.jpg", "https://cdn.example.com/b.jpg"}
	if !reflect.DeepEqual(l.Images, want) {
		t.Errorf("images = %v, want %v", l.Images, want)
	}
	if l.Video != "https://media.example.com/videos/tour.mp4" {
		t.Errorf("video = %q", l.Video)
	}
}

func TestAppendRejectsInvalidListing(t *testing.T) {
	sheet := newSheet(t)
	a := NewAdapter(sheet, time.Second, "")

	err := a.Append(context.Background(), &models.Listing{ID: "1", Images: []string{"", ""}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !reflect.DeepEqual(verr.Fields, []string{"area", "name", "images"}) {
		t.Errorf("fields = %v", verr.Fields)
	}

	rows, _ := sheet.Rows(context.Background())
	if len(rows) != 1 {
		t.Fatalf("rejected listing must not be written, rows = %d", len(rows))
	}
}

func TestUpdateStatusWritesTimestampCell(t *testing.T) {
	sheet := newSheet(t)
	appendRows(t, sheet, []string{"42", "Juja", "Sunrise", "", "", "a.jpg"})
	a := NewAdapter(sheet, time.Second, "")

	at := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	if err := a.UpdateStatus(context.Background(), "42", models.StatusPendingDeletion, &at); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	l, err := a.Get(context.Background(), "42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if l.Status != models.StatusPendingDeletion {
		t.Errorf("status = %q", l.Status)
	}
	if l.DeletionRequestedAt == nil || !l.DeletionRequestedAt.Equal(at) {
		t.Errorf("deletion timestamp = %v, want %v", l.DeletionRequestedAt, at)
	}

	if err := a.UpdateStatus(context.Background(), "999", models.StatusActive, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
