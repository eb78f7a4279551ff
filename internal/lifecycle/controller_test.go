package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hostel-listings/backend/internal/listing"
	"github.com/hostel-listings/backend/internal/storage"
	"github.com/hostel-listings/backend/internal/storage/models"
)

type fixture struct {
	sheet *storage.SheetStore
	svc   *listing.Service
	log   *storage.DeletionLogRepository
}

func newFixture(t *testing.T, rows ...[]string) *fixture {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "listings.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := storage.RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	ctx := context.Background()
	sheet := storage.NewSheetStore(db, "Hostels")
	if err := sheet.EnsureHeader(ctx, listing.Header); err != nil {
		t.Fatalf("EnsureHeader: %v", err)
	}
	for _, r := range rows {
		if err := sheet.AppendRow(ctx, r); err != nil {
			t.Fatalf("AppendRow: %v", err)
		}
	}

	deletions := storage.NewDeletionLogRepository(db)
	adapter := listing.NewAdapter(sheet, time.Second, "")
	return &fixture{sheet: sheet, svc: listing.NewService(adapter, deletions), log: deletions}
}

func seedRows() [][]string {
	return [][]string{
		{"41", "Juja", "Sunrise", "", "", "a.jpg", "", "", "", "6000", "", "", "active"},
		{"42", "Juja", "Palm Court", "", "", "b.jpg", "", "", "", "4500", "", "", "active"},
		{"43", "Ruiru", "Green View", "", "", "c.jpg", "", "", "", "5000", "", "", "active"},
	}
}

func startedController(t *testing.T, svc ListingService) *Controller {
	t.Helper()
	c := NewController(svc, nil, 60)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return c
}

func tick(c *Controller, n int) {
	for i := 0; i < n; i++ {
		c.Tick(context.Background())
	}
}

func TestScheduleDeletionStartsFullWindow(t *testing.T) {
	f := newFixture(t, seedRows()...)
	c := startedController(t, f.svc)
	ctx := context.Background()

	if err := c.SetStatus(ctx, "42", models.StatusPendingDeletion); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	remaining, ok := c.Remaining("42")
	if !ok || remaining != 60 {
		t.Fatalf("remaining = %d, %v; want 60", remaining, ok)
	}

	res := listing.Browse(f.svc.List(ctx), listing.Filter{})
	if res.Total != 2 || res.PendingRemoval != 1 {
		t.Fatalf("browse total = %d, pending = %d", res.Total, res.PendingRemoval)
	}

	stored, err := f.svc.Get(ctx, "42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.DeletionRequestedAt == nil {
		t.Fatal("deletion timestamp was not persisted")
	}

	// Marking again keeps the running countdown.
	tick(c, 5)
	if got, _ := c.ScheduleDeletion(ctx, "42"); got != 55 {
		t.Fatalf("re-schedule reset the countdown to %d", got)
	}
}

func TestCancelStopsCountdown(t *testing.T) {
	f := newFixture(t, seedRows()...)
	c := startedController(t, f.svc)
	ctx := context.Background()

	if _, err := c.ScheduleDeletion(ctx, "42"); err != nil {
		t.Fatalf("ScheduleDeletion: %v", err)
	}
	tick(c, 23)
	if remaining, _ := c.Remaining("42"); remaining != 37 {
		t.Fatalf("remaining = %d, want 37", remaining)
	}

	if err := c.SetStatus(ctx, "42", models.StatusActive); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if _, ok := c.Remaining("42"); ok {
		t.Fatal("countdown still tracked after cancel")
	}

	tick(c, 60)
	l, err := f.svc.Get(ctx, "42")
	if err != nil {
		t.Fatalf("listing removed after cancel: %v", err)
	}
	if l.Status != models.StatusActive || l.DeletionRequestedAt != nil {
		t.Fatalf("listing not restored: %+v", l)
	}
	if len(listing.Browse(f.svc.List(ctx), listing.Filter{}).Listings) != 3 {
		t.Fatal("cancelled listing should be visible again")
	}
}

func TestCountdownExpiryDeletesExactlyOnce(t *testing.T) {
	f := newFixture(t, seedRows()...)
	counting := &countingService{ListingService: f.svc}
	c := startedController(t, counting)
	ctx := context.Background()

	if _, err := c.ScheduleDeletion(ctx, "42"); err != nil {
		t.Fatalf("ScheduleDeletion: %v", err)
	}
	tick(c, 59)
	if counting.deletes() != 0 {
		t.Fatal("deleted before the window elapsed")
	}
	tick(c, 1)
	tick(c, 10)

	if n := counting.deletes(); n != 1 {
		t.Fatalf("PermanentDelete called %d times, want 1", n)
	}
	if _, err := f.svc.Get(ctx, "42"); !errors.Is(err, listing.ErrNotFound) {
		t.Fatalf("expected listing to be gone, got %v", err)
	}
	for _, id := range []string{"41", "43"} {
		if _, err := f.svc.Get(ctx, id); err != nil {
			t.Fatalf("neighbour %s was affected: %v", id, err)
		}
	}
	for _, l := range c.Listings() {
		if l.ID == "42" {
			t.Fatal("removed listing still in local collection")
		}
	}

	entries, err := f.log.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Reason != models.DeletionReasonCountdown {
		t.Fatalf("deletion log = %+v", entries)
	}
}

func TestUnknownIDLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, seedRows()...)
	c := startedController(t, f.svc)
	ctx := context.Background()
	before := c.Listings()

	err := c.SetStatus(ctx, "999", models.StatusPendingDeletion)
	if !errors.Is(err, listing.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(c.Countdowns()) != 0 {
		t.Fatal("countdown created for unknown listing")
	}
	after := c.Listings()
	if len(after) != len(before) {
		t.Fatalf("local collection changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Status != after[i].Status {
			t.Fatalf("listing %s changed status", before[i].ID)
		}
	}
}

func TestCountdownIsMonotonic(t *testing.T) {
	f := newFixture(t, seedRows()...)
	c := startedController(t, f.svc)
	ctx := context.Background()

	if _, err := c.ScheduleDeletion(ctx, "41"); err != nil {
		t.Fatalf("ScheduleDeletion: %v", err)
	}
	last := 60
	for i := 0; i < 30; i++ {
		c.Tick(ctx)
		if err := c.Refresh(ctx); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		got, ok := c.Remaining("41")
		if !ok || got > last {
			t.Fatalf("countdown went from %d to %d", last, got)
		}
		last = got
	}
}

func TestRefreshRestoresCountdownFromTimestamp(t *testing.T) {
	requestedAt := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	rows := seedRows()
	rows[1] = append(rows[1][:12], models.StatusPendingDeletion, requestedAt.Format(time.RFC3339))
	rows = append(rows, []string{"44", "Kahawa", "Old Row", "", "", "d.jpg", "", "", "", "", "", "", "pending_deletion"})
	f := newFixture(t, rows...)

	c := NewController(f.svc, nil, 60)
	c.now = func() time.Time { return requestedAt.Add(25 * time.Second) }
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if got, _ := c.Remaining("42"); got != 35 {
		t.Errorf("restored countdown = %d, want 35", got)
	}
	if got, _ := c.Remaining("44"); got != 60 {
		t.Errorf("countdown without timestamp = %d, want full window", got)
	}

	c.now = func() time.Time { return requestedAt.Add(time.Hour) }
	c.timers = map[string]*timer{}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got, _ := c.Remaining("42"); got != 0 {
		t.Errorf("overdue countdown = %d, want 0", got)
	}
}

func TestFailedDeleteIsRetried(t *testing.T) {
	f := newFixture(t, seedRows()...)
	flaky := &countingService{ListingService: f.svc, failures: 2}
	c := startedController(t, flaky)
	ctx := context.Background()

	if _, err := c.ScheduleDeletion(ctx, "43"); err != nil {
		t.Fatalf("ScheduleDeletion: %v", err)
	}
	tick(c, 60)
	if _, ok := c.Remaining("43"); !ok {
		t.Fatal("countdown dropped after a failed delete")
	}
	tick(c, 2)

	if _, err := f.svc.Get(ctx, "43"); !errors.Is(err, listing.ErrNotFound) {
		t.Fatalf("expected listing removed after retries, got %v", err)
	}
	if n := flaky.deletes(); n != 3 {
		t.Fatalf("PermanentDelete called %d times, want 3", n)
	}
}

func TestRefreshFailureKeepsLocalState(t *testing.T) {
	f := newFixture(t, seedRows()...)
	svc := &countingService{ListingService: f.svc}
	c := startedController(t, svc)

	svc.fetchErr = listing.ErrTransport
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if len(c.Listings()) != 3 {
		t.Fatal("local collection wiped by failed refresh")
	}
}

func TestManualPermanentDelete(t *testing.T) {
	f := newFixture(t, seedRows()...)
	c := startedController(t, f.svc)
	ctx := context.Background()

	if _, err := c.ScheduleDeletion(ctx, "41"); err != nil {
		t.Fatalf("ScheduleDeletion: %v", err)
	}
	if err := c.PermanentDelete(ctx, "41"); err != nil {
		t.Fatalf("PermanentDelete: %v", err)
	}
	if _, ok := c.Remaining("41"); ok {
		t.Fatal("countdown survived manual delete")
	}
	if err := c.PermanentDelete(ctx, "41"); !errors.Is(err, listing.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}

	view := c.AdminView()
	if len(view) != 2 {
		t.Fatalf("admin view has %d listings, want 2", len(view))
	}
}

func TestAdminViewCarriesSecondsRemaining(t *testing.T) {
	f := newFixture(t, seedRows()...)
	c := startedController(t, f.svc)

	if _, err := c.ScheduleDeletion(context.Background(), "43"); err != nil {
		t.Fatalf("ScheduleDeletion: %v", err)
	}
	tick(c, 3)

	for _, tl := range c.AdminView() {
		switch tl.ID {
		case "43":
			if tl.SecondsRemaining == nil || *tl.SecondsRemaining != 57 {
				t.Fatalf("seconds remaining = %v", tl.SecondsRemaining)
			}
			if tl.Status != models.StatusPendingDeletion {
				t.Fatalf("status = %q", tl.Status)
			}
		default:
			if tl.SecondsRemaining != nil {
				t.Fatalf("listing %s should have no countdown", tl.ID)
			}
		}
	}
}

// countingService wraps a ListingService, counts permanent deletes and can
// fail the first few of them.
type countingService struct {
	ListingService

	mu       sync.Mutex
	calls    int
	failures int
	fetchErr error
}

func (s *countingService) Fetch(ctx context.Context) ([]models.Listing, error) {
	s.mu.Lock()
	err := s.fetchErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.ListingService.Fetch(ctx)
}

func (s *countingService) PermanentDelete(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return listing.ErrTransport
	}
	s.mu.Unlock()
	return s.ListingService.PermanentDelete(ctx, id, reason)
}

func (s *countingService) deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// gatedFetch holds Fetch after it has read the store until released.
type gatedFetch struct {
	ListingService
	fetched chan struct{}
	release chan struct{}
}

func (g *gatedFetch) Fetch(ctx context.Context) ([]models.Listing, error) {
	listings, err := g.ListingService.Fetch(ctx)
	if g.fetched != nil {
		close(g.fetched)
		<-g.release
	}
	return listings, err
}

func refreshAround(t *testing.T, c *Controller, g *gatedFetch, during func()) {
	t.Helper()
	g.fetched = make(chan struct{})
	g.release = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- c.Refresh(context.Background()) }()

	<-g.fetched
	during()
	close(g.release)
	if err := <-done; err != nil {
		t.Fatalf("Refresh: %v", err)
	}
}

func TestCancelDuringRefreshStaysCancelled(t *testing.T) {
	f := newFixture(t, seedRows()...)
	g := &gatedFetch{ListingService: f.svc}
	c := startedController(t, g)
	ctx := context.Background()

	if _, err := c.ScheduleDeletion(ctx, "42"); err != nil {
		t.Fatalf("ScheduleDeletion: %v", err)
	}
	tick(c, 23)

	refreshAround(t, c, g, func() {
		if err := c.CancelDeletion(ctx, "42"); err != nil {
			t.Errorf("CancelDeletion: %v", err)
		}
	})

	if remaining, ok := c.Remaining("42"); ok {
		t.Fatalf("cancelled listing tracked again with %ds remaining", remaining)
	}
	for _, tl := range c.AdminView() {
		if tl.ID == "42" && tl.Status != models.StatusActive {
			t.Fatalf("admin view status = %q, want active", tl.Status)
		}
	}

	tick(c, 61)
	if _, err := f.svc.Get(ctx, "42"); err != nil {
		t.Fatalf("cancelled listing was deleted: %v", err)
	}
}

func TestScheduleDuringRefreshKeepsCountdown(t *testing.T) {
	f := newFixture(t, seedRows()...)
	g := &gatedFetch{ListingService: f.svc}
	c := startedController(t, g)
	ctx := context.Background()

	refreshAround(t, c, g, func() {
		if _, err := c.ScheduleDeletion(ctx, "43"); err != nil {
			t.Errorf("ScheduleDeletion: %v", err)
		}
	})

	remaining, ok := c.Remaining("43")
	if !ok || remaining != 60 {
		t.Fatalf("countdown = %d, %v; want 60 after refresh", remaining, ok)
	}
	for _, tl := range c.AdminView() {
		if tl.ID == "43" && tl.Status != models.StatusPendingDeletion {
			t.Fatalf("admin view status = %q, want pending_deletion", tl.Status)
		}
	}

	// A later refresh sees the stored mark and keeps the countdown.
	g.fetched = nil
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, ok := c.Remaining("43"); !ok {
		t.Fatal("countdown dropped by a later refresh")
	}
}

func TestDeleteDuringRefreshStaysGone(t *testing.T) {
	f := newFixture(t, seedRows()...)
	g := &gatedFetch{ListingService: f.svc}
	c := startedController(t, g)
	ctx := context.Background()

	refreshAround(t, c, g, func() {
		if err := c.PermanentDelete(ctx, "41"); err != nil {
			t.Errorf("PermanentDelete: %v", err)
		}
	})

	for _, l := range c.Listings() {
		if l.ID == "41" {
			t.Fatal("deleted listing restored by a stale refresh")
		}
	}
}

func TestTickAndOperatorCallsRunConcurrently(t *testing.T) {
	f := newFixture(t, seedRows()...)
	c := startedController(t, f.svc)
	ctx := context.Background()

	for _, id := range []string{"41", "42", "43"} {
		if _, err := c.ScheduleDeletion(ctx, id); err != nil {
			t.Fatalf("ScheduleDeletion(%s): %v", id, err)
		}
	}
	tick(c, 59)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); tick(c, 2) }()
	go func() { defer wg.Done(); c.CancelDeletion(ctx, "42") }()
	go func() { defer wg.Done(); c.Refresh(ctx) }()
	wg.Wait()
	tick(c, 2)

	// 42 was either cancelled in time or removed; never both, never stuck.
	_, tracked := c.Remaining("42")
	_, err := f.svc.Get(ctx, "42")
	if tracked {
		t.Fatal("42 still counting down")
	}
	if err != nil && !errors.Is(err, listing.ErrNotFound) {
		t.Fatalf("Get(42): %v", err)
	}
	for _, id := range []string{"41", "43"} {
		if _, err := f.svc.Get(ctx, id); !errors.Is(err, listing.ErrNotFound) {
			t.Fatalf("%s should be removed, got %v", id, err)
		}
	}
}
