// Package metadata models color-combination metadata records. A record
// carries a small set of core attributes that are always resident and
// immutable after creation, plus named lazy attributes whose values are
// computed on first access and memoized for the lifetime of the instance.
package metadata

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLazyFieldImmutable is returned on any attempt to assign a lazy
	// attribute directly. Lazy attributes are write-once: they populate
	// through their bound compute function only.
	ErrLazyFieldImmutable = errors.New("metadata: lazy field is immutable")

	// ErrUnknownProperty is returned when a property name was not bound
	// at construction.
	ErrUnknownProperty = errors.New("metadata: unknown lazy property")
)

// ComputeFunc produces the value of one lazy attribute. It must be
// deterministic given the entity state it closes over; errors propagate
// directly to the Get caller.
type ComputeFunc func() (interface{}, error)

// CoreAttributes are the always-resident fields of a metadata record.
// They are fixed at construction.
type CoreAttributes struct {
	FrameColor           string  `json:"frame_color"`
	DrawerColor          string  `json:"drawer_color"`
	DeltaE               float64 `json:"delta_e"`
	SourceImagePath      string  `json:"source_image_path"`
	TransformedImagePath string  `json:"transformed_image_path"`
}

// Metadata is a color-combination record with core attributes and a set of
// named lazy attributes bound at construction.
type Metadata struct {
	id        uuid.UUID
	core      CoreAttributes
	createdAt time.Time

	// slots is fixed after New; the map itself is never mutated, so it is
	// safe for concurrent readers. Each slot does its own locking.
	slots map[string]*lazySlot
}

// New creates a metadata record with the given core attributes and one lazy
// slot per entry in computers. The set of lazy properties cannot change after
// construction.
func New(core CoreAttributes, computers map[string]ComputeFunc) (*Metadata, error) {
	slots := make(map[string]*lazySlot, len(computers))
	for name, fn := range computers {
		if fn == nil {
			return nil, fmt.Errorf("metadata: nil compute function for property %q", name)
		}
		slots[name] = newLazySlot(fn)
	}

	return &Metadata{
		id:        uuid.New(),
		core:      core,
		createdAt: time.Now(),
		slots:     slots,
	}, nil
}

// ID returns the stable identifier of the record.
func (m *Metadata) ID() uuid.UUID { return m.id }

// Core returns the core attributes. The returned struct is a copy.
func (m *Metadata) Core() CoreAttributes { return m.core }

// CreatedAt returns the creation timestamp.
func (m *Metadata) CreatedAt() time.Time { return m.createdAt }

// Properties returns the names of all lazy properties bound to this record.
func (m *Metadata) Properties() []string {
	names := make([]string, 0, len(m.slots))
	for name := range m.slots {
		names = append(names, name)
	}
	return names
}

// Get returns the value of the named lazy property, computing it on first
// access. Concurrent first accesses are deduplicated: exactly one compute
// runs and every caller observes its result. Subsequent calls return the
// memoized value.
func (m *Metadata) Get(property string) (interface{}, error) {
	slot, ok := m.slots[property]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, property)
	}
	return slot.get()
}

// Set rejects direct assignment of lazy properties.
func (m *Metadata) Set(property string, _ interface{}) error {
	if _, ok := m.slots[property]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProperty, property)
	}
	return fmt.Errorf("%w: %q", ErrLazyFieldImmutable, property)
}

// Computed reports whether the named property has been computed.
func (m *Metadata) Computed(property string) bool {
	slot, ok := m.slots[property]
	if !ok {
		return false
	}
	return slot.diagnostics().Computed
}

// FieldDiagnostics describes the observed lifecycle of one lazy property.
type FieldDiagnostics struct {
	Computed    bool      `json:"computed"`
	ComputedAt  time.Time `json:"computed_at,omitempty"`
	AccessCount int64     `json:"access_count"`
}

// Diagnostics returns per-property computed timestamps and access counts.
func (m *Metadata) Diagnostics() map[string]FieldDiagnostics {
	out := make(map[string]FieldDiagnostics, len(m.slots))
	for name, slot := range m.slots {
		out[name] = slot.diagnostics()
	}
	return out
}
