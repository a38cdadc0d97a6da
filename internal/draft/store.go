package draft

import (
	"errors"
	"sort"
	"time"

	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

var (
	// ErrNotFound is returned when no draft exists for a key.
	ErrNotFound = errors.New("draft not found")
	// ErrVerify is returned when a write could not be read back intact.
	ErrVerify = errors.New("draft store: read-after-write verification failed")
)

// Store is the persistence interface for ticket drafts.
type Store interface {
	// Put creates or replaces a draft. CreatedAt is set if zero and
	// UpdatedAt is always refreshed on the passed draft.
	Put(d *protocol.Draft) error
	// Get retrieves a draft by key.
	Get(key string) (*protocol.Draft, error)
	// Update applies fn to the stored draft and persists the result as one
	// step. If fn returns an error nothing is written and that error is returned.
	Update(key string, fn func(d *protocol.Draft) error) (*protocol.Draft, error)
	// Delete removes a draft. Deleting a missing key is not an error.
	Delete(key string) error
	// DeleteIf removes the draft only if cond holds for its stored state,
	// checked and deleted as one step. It reports whether a draft was
	// removed; a missing key is not an error.
	DeleteIf(key string, cond func(d *protocol.Draft) bool) (bool, error)
	// List returns drafts matching the filter, newest first.
	List(filter Filter) ([]*protocol.Draft, error)
	// Close releases resources held by the store.
	Close() error
}

// Filter constrains draft list queries.
type Filter struct {
	Status        *protocol.DraftStatus
	UserID        string
	Mode          protocol.Mode
	UpdatedBefore time.Time // zero = no bound
	Limit         int       // 0 = no limit
}

// Match reports whether d satisfies the filter (Limit is ignored).
func (f Filter) Match(d *protocol.Draft) bool {
	if f.Status != nil && d.Status != *f.Status {
		return false
	}
	if f.UserID != "" && d.UserID != f.UserID {
		return false
	}
	if f.Mode != "" && d.Mode != f.Mode {
		return false
	}
	if !f.UpdatedBefore.IsZero() && !d.UpdatedAt.Before(f.UpdatedBefore) {
		return false
	}
	return true
}

// StatusPtr is a convenience for building filters.
func StatusPtr(s protocol.DraftStatus) *protocol.DraftStatus {
	return &s
}

func stamp(d *protocol.Draft, now time.Time) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
}

func sortNewestFirst(drafts []*protocol.Draft) {
	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].CreatedAt.After(drafts[j].CreatedAt)
	})
}
