// Package replay holds the single-entry pending navigation slot written by
// push handlers and drained when the app returns to the foreground.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/orionwholesale/storefront/internal/clock"
	"github.com/orionwholesale/storefront/internal/kvstore"
)

// ErrEmptyLink is returned when saving a blank link.
var ErrEmptyLink = errors.New("replay: empty link")

// Pending is the persisted PENDING_NAVIGATION value.
type Pending struct {
	Link string `json:"link"`

	// Timestamp is when the link was saved, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Slot reads and writes the PENDING_NAVIGATION key. A new save replaces any
// previous entry.
type Slot struct {
	store kvstore.Store
	clock clock.Clock
}

// NewSlot creates a Slot.
func NewSlot(store kvstore.Store, clk clock.Clock) *Slot {
	if clk == nil {
		clk = clock.Real()
	}
	return &Slot{store: store, clock: clk}
}

// Save stores link stamped with the current time.
func (s *Slot) Save(ctx context.Context, link string) error {
	link = strings.TrimSpace(link)
	if link == "" {
		return ErrEmptyLink
	}
	return kvstore.SetJSON(ctx, s.store, kvstore.KeyPendingNavigation, Pending{
		Link:      link,
		Timestamp: s.clock.Now().UnixMilli(),
	})
}

// Load returns the pending entry. present reports whether the key exists at
// all; ok reports whether it decoded to a usable entry.
func (s *Slot) Load(ctx context.Context) (p Pending, present, ok bool, err error) {
	_, err = s.store.Get(ctx, kvstore.KeyPendingNavigation)
	if errors.Is(err, kvstore.ErrNotFound) {
		return Pending{}, false, false, nil
	}
	if err != nil {
		return Pending{}, false, false, fmt.Errorf("reading pending navigation: %w", err)
	}

	found, err := kvstore.GetJSON(ctx, s.store, kvstore.KeyPendingNavigation, &p)
	if err != nil {
		return Pending{}, true, false, err
	}
	if !found || p.Link == "" {
		return Pending{}, true, false, nil
	}
	return p, true, true, nil
}

// Clear removes the entry.
func (s *Slot) Clear(ctx context.Context) error {
	return s.store.Delete(ctx, kvstore.KeyPendingNavigation)
}

// ClearIfLink removes the entry only when it still holds link. It is used
// after a link has been delivered by another path.
func (s *Slot) ClearIfLink(ctx context.Context, link string) error {
	p, _, ok, err := s.Load(ctx)
	if err != nil || !ok || p.Link != strings.TrimSpace(link) {
		return err
	}
	return s.Clear(ctx)
}
