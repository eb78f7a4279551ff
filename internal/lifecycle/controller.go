// Package lifecycle runs the deletion grace period for hostel listings:
// mark for deletion, count down, then remove the row for good unless an
// operator cancels first.
package lifecycle

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hostel-listings/backend/internal/listing"
	"github.com/hostel-listings/backend/internal/storage/models"
	"github.com/hostel-listings/backend/internal/websocket"
)

// DefaultWindowSeconds is the grace period between marking a listing for
// deletion and removing it.
const DefaultWindowSeconds = 60

// ErrDeletionInProgress is returned when an operator acts on a listing whose
// permanent deletion is already running.
var ErrDeletionInProgress = errors.New("permanent deletion already in progress")

// ListingService is the status transition API the controller drives.
// *listing.Service implements it.
type ListingService interface {
	Fetch(ctx context.Context) ([]models.Listing, error)
	Get(ctx context.Context, id string) (*models.Listing, error)
	MarkPendingDeletion(ctx context.Context, id string) (time.Time, error)
	SetStatus(ctx context.Context, id, status string) error
	PermanentDelete(ctx context.Context, id, reason string) error
}

type timer struct {
	remaining int
	paused    bool // a cancel or status write is in flight
	firing    bool // permanent delete is in flight
}

// Controller owns the deletion countdowns and a local copy of the listing
// collection for the admin view. One cron job ticks every countdown, so the
// decrement and the zero check can never disagree.
type Controller struct {
	cron        *cron.Cron
	listings    ListingService
	broadcaster *websocket.EventBroadcaster
	window      int
	now         func() time.Time

	mu         sync.Mutex
	timers     map[string]*timer
	collection []models.Listing

	// gen counts local state changes. touched holds the generation of the
	// last change per id and removed the ids deleted locally, so a Refresh
	// whose fetch predates a change does not undo it.
	gen     uint64
	touched map[string]uint64
	removed map[string]bool
}

// NewController creates a lifecycle controller. hub may be nil.
func NewController(listings ListingService, hub *websocket.Hub, windowSeconds int) *Controller {
	if windowSeconds <= 0 {
		windowSeconds = DefaultWindowSeconds
	}

	return &Controller{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		listings:    listings,
		broadcaster: websocket.NewEventBroadcaster(hub),
		window:      windowSeconds,
		now:         func() time.Time { return time.Now().UTC() },
		timers:      make(map[string]*timer),
		collection:  []models.Listing{},
		touched:     make(map[string]uint64),
		removed:     make(map[string]bool),
	}
}

// Start loads the listings, rebuilds countdowns for listings already pending
// deletion and starts the one-second tick.
func (c *Controller) Start(ctx context.Context) error {
	log.Println("Starting deletion lifecycle controller...")

	if err := c.Refresh(ctx); err != nil {
		// The tick still runs; the next refresh picks up pending listings.
		log.Printf("Warning: initial listing refresh failed: %v", err)
	}

	if _, err := c.cron.AddFunc("@every 1s", func() {
		c.Tick(context.Background())
	}); err != nil {
		return err
	}

	c.cron.Start()
	log.Printf("Deletion lifecycle controller started (window %ds)", c.window)
	return nil
}

// Stop gracefully shuts down the tick, waiting for a running tick to finish.
func (c *Controller) Stop() {
	log.Println("Stopping deletion lifecycle controller...")
	ctx := c.cron.Stop()
	<-ctx.Done()
	log.Println("Deletion lifecycle controller stopped")
}

// Refresh reloads the listing collection and reconciles countdowns with it.
// A pending listing without a countdown gets one computed from its stored
// deletion timestamp; countdowns of listings that are no longer pending are
// dropped. Listings changed locally after the fetch started keep their local
// state. On a store failure local state is left untouched.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	since := c.gen
	c.mu.Unlock()

	fetched, err := c.listings.Fetch(ctx)
	if err != nil {
		return err
	}

	now := c.now()
	reconstructed := 0

	c.mu.Lock()
	changed := func(id string) bool { return c.touched[id] > since }

	local := make(map[string]models.Listing, len(c.collection))
	for _, l := range c.collection {
		local[l.ID] = l
	}

	collection := make([]models.Listing, 0, len(fetched))
	seen := make(map[string]bool, len(fetched))
	pending := make(map[string]bool)
	for _, l := range fetched {
		seen[l.ID] = true
		if changed(l.ID) {
			if c.removed[l.ID] {
				continue
			}
			if prev, ok := local[l.ID]; ok {
				l = prev
			}
			collection = append(collection, l)
			continue
		}
		collection = append(collection, l)

		if !l.IsPendingDeletion() {
			continue
		}
		pending[l.ID] = true
		if _, ok := c.timers[l.ID]; ok {
			continue
		}
		c.timers[l.ID] = &timer{remaining: c.remainingFor(&l, now)}
		reconstructed++
	}
	for _, l := range c.collection {
		if !seen[l.ID] && changed(l.ID) && !c.removed[l.ID] {
			collection = append(collection, l)
		}
	}
	c.collection = collection

	for id, t := range c.timers {
		if changed(id) {
			continue
		}
		if !pending[id] && !t.firing && !t.paused {
			delete(c.timers, id)
		}
	}

	// Changes older than this fetch are reflected in it.
	for id, g := range c.touched {
		if g <= since {
			delete(c.touched, id)
			delete(c.removed, id)
		}
	}
	c.mu.Unlock()

	if reconstructed > 0 {
		log.Printf("Restored %d deletion countdown(s) from the row store", reconstructed)
	}
	return nil
}

// remainingFor computes the countdown of a listing found pending on load.
// Listings without a stored timestamp get the full window.
func (c *Controller) remainingFor(l *models.Listing, now time.Time) int {
	if l.DeletionRequestedAt == nil {
		return c.window
	}
	elapsed := int(now.Sub(*l.DeletionRequestedAt) / time.Second)
	remaining := c.window - elapsed
	switch {
	case remaining < 0:
		return 0
	case remaining > c.window:
		return c.window
	}
	return remaining
}

// ScheduleDeletion marks a listing pending deletion and starts its
// countdown. Local state changes only after the store confirms. A listing
// that is already counting down keeps its current countdown.
func (c *Controller) ScheduleDeletion(ctx context.Context, id string) (int, error) {
	if remaining, ok := c.Remaining(id); ok {
		return remaining, nil
	}

	requestedAt, err := c.listings.MarkPendingDeletion(ctx, id)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	if t, ok := c.timers[id]; ok {
		remaining := t.remaining
		c.mu.Unlock()
		return remaining, nil
	}
	c.timers[id] = &timer{remaining: c.window}
	c.touchLocked(id)
	_, known := c.patchStatusLocked(id, models.StatusPendingDeletion, &requestedAt)
	c.mu.Unlock()

	if !known {
		c.adoptListing(ctx, id)
	}

	c.broadcaster.DeletionScheduled(id, c.nameOf(id), c.window)
	log.Printf("Deletion of listing %s scheduled in %ds", id, c.window)
	return c.window, nil
}

// CancelDeletion stops a countdown and restores the listing to active.
// The countdown is paused while the store call runs and resumes if it fails.
func (c *Controller) CancelDeletion(ctx context.Context, id string) error {
	if err := c.pause(id); err != nil {
		return err
	}

	if err := c.listings.SetStatus(ctx, id, models.StatusActive); err != nil {
		c.resume(id)
		return err
	}

	c.mu.Lock()
	delete(c.timers, id)
	c.touchLocked(id)
	c.patchStatusLocked(id, models.StatusActive, nil)
	c.mu.Unlock()

	c.broadcaster.DeletionCancelled(id, c.nameOf(id))
	log.Printf("Deletion of listing %s cancelled", id)
	return nil
}

// SetStatus applies an operator status change. pending_deletion starts a
// countdown, active on a counting-down listing cancels it, and anything else
// is written as is and drops any countdown.
func (c *Controller) SetStatus(ctx context.Context, id, status string) error {
	switch {
	case status == models.StatusPendingDeletion:
		_, err := c.ScheduleDeletion(ctx, id)
		return err
	case status == models.StatusActive && c.isDraining(id):
		return c.CancelDeletion(ctx, id)
	}

	if err := c.pause(id); err != nil {
		return err
	}

	if err := c.listings.SetStatus(ctx, id, status); err != nil {
		c.resume(id)
		return err
	}

	c.mu.Lock()
	delete(c.timers, id)
	c.touchLocked(id)
	previous, _ := c.patchStatusLocked(id, status, nil)
	c.mu.Unlock()

	c.broadcaster.StatusChanged(id, previous, status)
	return nil
}

// PermanentDelete removes a listing immediately, skipping any countdown.
func (c *Controller) PermanentDelete(ctx context.Context, id string) error {
	c.mu.Lock()
	t, tracked := c.timers[id]
	if tracked {
		if t.firing {
			c.mu.Unlock()
			return ErrDeletionInProgress
		}
		t.firing = true
	}
	c.mu.Unlock()

	err := c.listings.PermanentDelete(ctx, id, models.DeletionReasonManual)
	if err != nil && !errors.Is(err, listing.ErrNotFound) {
		c.mu.Lock()
		if t, ok := c.timers[id]; ok {
			t.firing = false
		}
		c.mu.Unlock()
		return err
	}

	// Removed now, or already gone: either way the local copy is stale.
	name := c.forget(id)
	if err != nil {
		return err
	}
	c.broadcaster.ListingRemoved(id, name)
	return nil
}

// Tick advances every countdown by one second and fires permanent deletes
// for the ones that reached zero. Failed deletes are retried on the next tick.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	var due []string
	for id, t := range c.timers {
		if t.paused || t.firing {
			continue
		}
		if t.remaining > 0 {
			t.remaining--
		}
		if t.remaining == 0 {
			t.firing = true
			due = append(due, id)
		}
	}
	countdowns := c.countdownsLocked()
	c.mu.Unlock()

	if len(countdowns) > 0 {
		c.broadcaster.Countdown(countdowns)
	}

	sort.Strings(due)
	for _, id := range due {
		c.fire(ctx, id)
	}
}

func (c *Controller) fire(ctx context.Context, id string) {
	err := c.listings.PermanentDelete(ctx, id, models.DeletionReasonCountdown)
	if err != nil && !errors.Is(err, listing.ErrNotFound) {
		log.Printf("Failed to remove listing %s, retrying next tick: %v", id, err)
		c.mu.Lock()
		if t, ok := c.timers[id]; ok {
			t.firing = false
		}
		c.mu.Unlock()
		c.broadcaster.RemovalFailed(id, err)
		return
	}

	if err != nil {
		log.Printf("Listing %s was already gone when its countdown ended", id)
	}
	name := c.forget(id)
	c.broadcaster.ListingRemoved(id, name)
}

// Remaining returns the seconds left for a listing counting down.
func (c *Controller) Remaining(id string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.timers[id]
	if !ok {
		return 0, false
	}
	return t.remaining, true
}

// Countdowns returns a copy of every active countdown.
func (c *Controller) Countdowns() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countdownsLocked()
}

// Listings returns a copy of the local listing collection.
func (c *Controller) Listings() []models.Listing {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Listing, len(c.collection))
	copy(out, c.collection)
	return out
}

// TrackedListing is a listing as the admin view shows it.
type TrackedListing struct {
	models.Listing
	SecondsRemaining *int `json:"seconds_remaining,omitempty"`
}

// AdminView returns the local collection with the countdown of each
// listing that is draining.
func (c *Controller) AdminView() []TrackedListing {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := make([]TrackedListing, 0, len(c.collection))
	for _, l := range c.collection {
		tl := TrackedListing{Listing: l}
		if t, ok := c.timers[l.ID]; ok {
			remaining := t.remaining
			tl.SecondsRemaining = &remaining
		}
		view = append(view, tl)
	}
	return view
}

func (c *Controller) countdownsLocked() map[string]int {
	out := make(map[string]int, len(c.timers))
	for id, t := range c.timers {
		out[id] = t.remaining
	}
	return out
}

func (c *Controller) isDraining(id string) bool {
	_, ok := c.Remaining(id)
	return ok
}

// pause holds a countdown while an operator write is in flight.
func (c *Controller) pause(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.timers[id]
	if !ok {
		return nil
	}
	if t.firing {
		return ErrDeletionInProgress
	}
	t.paused = true
	return nil
}

func (c *Controller) resume(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[id]; ok {
		t.paused = false
	}
}

// forget drops the countdown and the local copy of a listing and returns
// its name.
func (c *Controller) forget(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.timers, id)
	c.touchLocked(id)
	c.removed[id] = true
	name := ""
	kept := c.collection[:0]
	for _, l := range c.collection {
		if l.ID == id {
			name = l.Name
			continue
		}
		kept = append(kept, l)
	}
	c.collection = kept
	return name
}

// touchLocked records a local change of id.
func (c *Controller) touchLocked(id string) {
	c.gen++
	c.touched[id] = c.gen
}

// patchStatusLocked updates the local copy of a listing and returns its
// previous status and whether it was known locally.
func (c *Controller) patchStatusLocked(id, status string, requestedAt *time.Time) (string, bool) {
	for i := range c.collection {
		if c.collection[i].ID != id {
			continue
		}
		previous := c.collection[i].Status
		c.collection[i].Status = status
		c.collection[i].DeletionRequestedAt = requestedAt
		return previous, true
	}
	return "", false
}

// adoptListing adds a listing created after the last refresh to the local
// collection.
func (c *Controller) adoptListing(ctx context.Context, id string) {
	l, err := c.listings.Get(ctx, id)
	if err != nil {
		log.Printf("Failed to load listing %s into the admin view: %v", id, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.collection {
		if existing.ID == id {
			return
		}
	}
	c.collection = append(c.collection, *l)
}

func (c *Controller) nameOf(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.collection {
		if l.ID == id {
			return l.Name
		}
	}
	return ""
}
