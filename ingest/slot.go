package ingest

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SlotState is the lifecycle stage of a slot.
type SlotState string

const (
	StatePreviewing SlotState = "previewing"
	StateFetched    SlotState = "fetched"
	StateSaved      SlotState = "saved"
	StateDiscarded  SlotState = "discarded"
)

// Slot is one visible ingestion: a thumbnail plus the bytes it fetched.
// Until the fetch completes it shows the canonical URL directly.
type Slot struct {
	id           string
	canonicalURL string
	createdAt    time.Time

	mu        sync.RWMutex
	state     SlotState
	blob      *Blob
	ext       string
	name      string
	savedPath string
}

// NewSlot creates a slot in preview state.
func NewSlot(canonicalURL string) *Slot {
	return &Slot{
		id:           uuid.NewString(),
		canonicalURL: canonicalURL,
		createdAt:    time.Now(),
		state:        StatePreviewing,
	}
}

func (s *Slot) ID() string           { return s.id }
func (s *Slot) CanonicalURL() string { return s.canonicalURL }

func (s *Slot) State() SlotState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Blob returns the fetched bytes, or nil while the slot is previewing.
func (s *Slot) Blob() *Blob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blob
}

func (s *Slot) attach(blob *Blob, ext, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blob = blob
	s.ext = ext
	s.name = name
	s.state = StateFetched
}

func (s *Slot) markSaved(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedPath = path
	s.state = StateSaved
}

func (s *Slot) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blob = nil
	s.state = StateDiscarded
}

// SlotView is a read-only snapshot of a slot.
type SlotView struct {
	ID            string    `json:"id"`
	CanonicalURL  string    `json:"canonical_url"`
	State         SlotState `json:"state"`
	MIMEType      string    `json:"mime_type,omitempty"`
	Extension     string    `json:"extension,omitempty"`
	SuggestedName string    `json:"suggested_name,omitempty"`
	SavedPath     string    `json:"saved_path,omitempty"`
	Size          int       `json:"size,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *Slot) View() SlotView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := SlotView{
		ID:            s.id,
		CanonicalURL:  s.canonicalURL,
		State:         s.state,
		Extension:     s.ext,
		SuggestedName: s.name,
		SavedPath:     s.savedPath,
		CreatedAt:     s.createdAt,
	}
	if s.blob != nil {
		v.MIMEType = s.blob.MIMEType
		v.Size = len(s.blob.Data)
	}
	return v
}

// Display is the ordered set of visible slots, newest first. It is shared
// by concurrent pipeline runs.
type Display struct {
	mu    sync.RWMutex
	slots []*Slot
}

func NewDisplay() *Display {
	return &Display{}
}

// Prepend inserts a slot at the front of the display.
func (d *Display) Prepend(s *Slot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots = append([]*Slot{s}, d.slots...)
}

// Remove takes the slot with the given id off the display.
func (d *Display) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.slots {
		if s.id == id {
			d.slots = append(d.slots[:i], d.slots[i+1:]...)
			return true
		}
	}
	return false
}

func (d *Display) Get(id string) (*Slot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.slots {
		if s.id == id {
			return s, true
		}
	}
	return nil, false
}

// List returns the slots in display order.
func (d *Display) List() []*Slot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Slot, len(d.slots))
	copy(out, d.slots)
	return out
}

func (d *Display) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.slots)
}
