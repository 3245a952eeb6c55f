// Package timeline holds the ordered clip list and the single mapping from
// global playback time to the active clip and its local time.
package timeline

import (
	"errors"

	"github.com/google/uuid"

	"github.com/ivlev/desktopdoc/internal/config"
	"github.com/ivlev/desktopdoc/internal/media"
)

var ErrEntryNotFound = errors.New("timeline entry not found")

// Library resolves the item an entry points at.
type Library interface {
	Item(id string) (*media.LibraryItem, bool)
}

// Entry is one placement of a library item.
type Entry struct {
	ID     string `json:"id"`
	ItemID string `json:"itemId"`
	// Duration is the user-set length for image entries. Video entries
	// always play for the item's intrinsic duration.
	Duration float64 `json:"duration"`
	Caption  string  `json:"caption"`
}

// Active is the result of a time lookup.
type Active struct {
	Index     int
	LocalTime float64
	Duration  float64
}

// NotFound is returned by ActiveAt when no entry covers t.
var NotFound = Active{Index: -1}

// Found reports whether the lookup hit an entry.
func (a Active) Found() bool {
	return a.Index >= 0
}

// Timeline is not safe for concurrent use; the owning session serializes access.
type Timeline struct {
	entries []Entry
	bounds  config.ImageDurationBounds
}

func New(bounds config.ImageDurationBounds) *Timeline {
	return &Timeline{bounds: bounds}
}

// Entries returns a copy of the sequence in playback order.
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) Len() int {
	return len(t.entries)
}

// Entry returns the entry at index i.
func (t *Timeline) Entry(i int) (Entry, bool) {
	if i < 0 || i >= len(t.entries) {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Add appends a placement of itemID with the default image duration.
func (t *Timeline) Add(itemID string) Entry {
	e := Entry{
		ID:       uuid.NewString(),
		ItemID:   itemID,
		Duration: t.bounds.Default,
	}
	t.entries = append(t.entries, e)
	return e
}

func (t *Timeline) Remove(id string) error {
	i := t.index(id)
	if i < 0 {
		return ErrEntryNotFound
	}
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	return nil
}

// RemoveItem drops every placement of itemID and returns how many went.
func (t *Timeline) RemoveItem(itemID string) int {
	kept := t.entries[:0]
	removed := 0
	for _, e := range t.entries {
		if e.ItemID == itemID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
	return removed
}

// SetImageDuration stores d clamped into the configured bounds and returns
// the stored value. For video entries the value is kept but never used.
func (t *Timeline) SetImageDuration(id string, d float64) (float64, error) {
	i := t.index(id)
	if i < 0 {
		return 0, ErrEntryNotFound
	}
	d = t.bounds.Clamp(d)
	t.entries[i].Duration = d
	return d, nil
}

func (t *Timeline) SetCaption(id, caption string) error {
	i := t.index(id)
	if i < 0 {
		return ErrEntryNotFound
	}
	t.entries[i].Caption = caption
	return nil
}

// Reorder moves entry id to target, an insertion index counted before the
// entry is removed ("drop before position target"). Dropping onto the
// entry's own slot or the slot right after it is a no-op.
func (t *Timeline) Reorder(id string, target int) error {
	from := t.index(id)
	if from < 0 {
		return ErrEntryNotFound
	}
	if target < 0 {
		target = 0
	}
	if target > len(t.entries) {
		target = len(t.entries)
	}
	if target == from || target-1 == from {
		return nil
	}

	e := t.entries[from]
	t.entries = append(t.entries[:from], t.entries[from+1:]...)
	if target > from {
		target--
	}
	t.entries = append(t.entries, Entry{})
	copy(t.entries[target+1:], t.entries[target:])
	t.entries[target] = e
	return nil
}

func (t *Timeline) index(id string) int {
	for i, e := range t.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// EntryDuration is the effective duration of e: the item's intrinsic length
// for video, the entry's own value for images, zero when the item is gone.
func EntryDuration(e Entry, lib Library) float64 {
	item, ok := lib.Item(e.ItemID)
	if !ok {
		return 0
	}
	switch item.Kind {
	case media.KindVideo:
		return item.Duration
	case media.KindImage:
		return e.Duration
	}
	return 0
}

// TotalDuration sums every entry's effective duration. It is recomputed on
// each call so it always reflects the current library and sequence.
func (t *Timeline) TotalDuration(lib Library) float64 {
	total := 0.0
	for _, e := range t.entries {
		total += EntryDuration(e, lib)
	}
	return total
}

// ActiveAt maps global time to the entry covering it. Intervals are
// [start, start+duration), so at a cut point the later entry wins.
func (t *Timeline) ActiveAt(lib Library, at float64) Active {
	if at < 0 || len(t.entries) == 0 {
		return NotFound
	}
	acc := 0.0
	for i, e := range t.entries {
		d := EntryDuration(e, lib)
		if at >= acc && at < acc+d {
			return Active{Index: i, LocalTime: at - acc, Duration: d}
		}
		acc += d
	}
	return NotFound
}
