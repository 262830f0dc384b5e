// Package roster owns the six-slot party: its in-memory state, the file it is
// persisted to, and the watcher that picks up writes made by other processes.
package roster

import (
	"errors"

	"github.com/Seednode/partydisplay/catalog"
)

// Size is the number of party slots.
const Size = 6

var (
	ErrInvalidSlot   = errors.New("invalid party slot")
	ErrEmptySlot     = errors.New("no character in that slot")
	ErrUnknownEntity = errors.New("unknown character")
	ErrInvalidLength = errors.New("party must have exactly 6 slots")
	ErrPersistence   = errors.New("failed to save party data")
)

// Roster holds one entity identifier per slot; "" marks an empty slot.
// It is an array, so assigning or returning it always copies.
type Roster [Size]string

// ValidSlot reports whether i addresses a party slot.
func ValidSlot(i int) bool {
	return i >= 0 && i < Size
}

// Filled counts the occupied slots.
func (r Roster) Filled() int {
	n := 0
	for _, id := range r {
		if id != "" {
			n++
		}
	}

	return n
}

// Records resolves every slot against c. Empty slots, and identifiers c does
// not know, come back as nil.
func (r Roster) Records(c *catalog.Catalog) []*catalog.Entity {
	out := make([]*catalog.Entity, Size)
	for i, id := range r {
		if id == "" {
			continue
		}
		if e, ok := c.Get(id); ok {
			out[i] = &e
		}
	}

	return out
}

// Action names the kind of change an Event describes.
type Action string

const (
	ActionAdd         Action = "add"
	ActionRemove      Action = "remove"
	ActionMove        Action = "move"
	ActionFullReplace Action = "full_replace"
)

// Event describes one applied change to the party.
type Event struct {
	Roster       Roster
	ChangedSlots []int
	Action       Action
	// Actor is the subscriber that caused the change, or "" when it came
	// from outside the hub (HTTP callers, other processes).
	Actor string
	// Character is the entity added, removed or moved, if any.
	Character string
	// Version is the store version the change produced. Events with a lower
	// version describe an older party.
	Version uint64
}
