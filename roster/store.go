package roster

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/Seednode/partydisplay/catalog"
)

// Store is the single owner of the party. Every change is applied to a copy,
// persisted, and only then made visible, all under one lock; a failed write
// leaves the in-memory party untouched.
type Store struct {
	mu        sync.Mutex
	roster    Roster
	version   uint64
	catalog   *catalog.Catalog
	persister Persister
	logger    *zap.Logger
}

// Open loads the persisted party. A missing file is created empty; an
// unreadable one is treated as empty and left alone until the next change.
func Open(c *catalog.Catalog, p Persister, logger *zap.Logger) *Store {
	s := &Store{
		catalog:   c,
		persister: p,
		logger:    logger,
	}

	r, err := p.Load()
	switch {
	case err == nil:
		s.roster = r
		logger.Info("loaded party", zap.Int("members", r.Filled()))
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("party file does not exist, creating empty party")
		if err := p.Save(s.roster); err != nil {
			logger.Warn("unable to create party file", zap.Error(err))
		}
	default:
		logger.Warn("unable to load party, using empty party", zap.Error(err))
	}

	return s
}

func (s *Store) Catalog() *catalog.Catalog {
	return s.catalog
}

// Snapshot returns a copy of the current party.
func (s *Store) Snapshot() Roster {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.roster
}

// Version counts the changes applied since the store was opened.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.version
}

// Op is one requested change. Which fields matter depends on Action:
// ActionAdd uses Slot and ID, ActionRemove uses Slot, ActionMove uses Slot
// and To, ActionFullReplace uses IDs.
type Op struct {
	Action Action
	Slot   int
	To     int
	ID     string
	IDs    []string
}

func checkSlot(slot int) error {
	if !ValidSlot(slot) {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}

	return nil
}

func (s *Store) checkEntity(id string) error {
	if !s.catalog.Contains(id) {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}

	return nil
}

// validate checks everything that does not depend on the current party.
func (s *Store) validate(op Op) error {
	switch op.Action {
	case ActionAdd:
		if err := checkSlot(op.Slot); err != nil {
			return err
		}

		return s.checkEntity(op.ID)
	case ActionRemove:
		return checkSlot(op.Slot)
	case ActionMove:
		if err := checkSlot(op.Slot); err != nil {
			return err
		}

		return checkSlot(op.To)
	case ActionFullReplace:
		if len(op.IDs) != Size {
			return fmt.Errorf("%w (got %d)", ErrInvalidLength, len(op.IDs))
		}
		for _, id := range op.IDs {
			if id == "" {
				continue
			}
			if err := s.checkEntity(id); err != nil {
				return err
			}
		}

		return nil
	default:
		return fmt.Errorf("unsupported action %q", op.Action)
	}
}

// Apply validates op, applies it to a copy of the party, persists the copy
// and only then makes it current. actor is recorded on the returned Event.
func (s *Store) Apply(actor string, op Op) (Event, error) {
	if err := s.validate(op); err != nil {
		return Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.roster
	ev := Event{
		Action: op.Action,
		Actor:  actor,
	}

	switch op.Action {
	case ActionAdd:
		next[op.Slot] = op.ID
		ev.ChangedSlots = []int{op.Slot}
		ev.Character = op.ID
	case ActionRemove:
		if next[op.Slot] == "" {
			return Event{}, fmt.Errorf("%w: %d", ErrEmptySlot, op.Slot)
		}
		ev.Character = next[op.Slot]
		next[op.Slot] = ""
		ev.ChangedSlots = []int{op.Slot}
	case ActionMove:
		if next[op.Slot] == "" {
			return Event{}, fmt.Errorf("%w: %d", ErrEmptySlot, op.Slot)
		}
		ev.Character = next[op.Slot]
		next[op.Slot], next[op.To] = next[op.To], next[op.Slot]
		ev.ChangedSlots = []int{op.Slot, op.To}
	case ActionFullReplace:
		copy(next[:], op.IDs)
		for i := range Size {
			if next[i] != s.roster[i] {
				ev.ChangedSlots = append(ev.ChangedSlots, i)
			}
		}
	}

	if err := s.persister.Save(next); err != nil {
		s.logger.Error("unable to save party", zap.String("action", string(op.Action)), zap.Error(err))

		return Event{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.roster = next
	s.version++
	ev.Roster = next
	ev.Version = s.version

	s.logger.Info("party changed",
		zap.String("action", string(op.Action)),
		zap.Ints("slots", ev.ChangedSlots),
		zap.String("character", ev.Character),
		zap.String("actor", actor))

	return ev, nil
}

func (s *Store) apply(op Op) (Roster, error) {
	ev, err := s.Apply("", op)
	if err != nil {
		return Roster{}, err
	}

	return ev.Roster, nil
}

// Assign puts entity id into slot, replacing whatever was there.
func (s *Store) Assign(slot int, id string) (Roster, error) {
	return s.apply(Op{Action: ActionAdd, Slot: slot, ID: id})
}

// Clear empties slot.
func (s *Store) Clear(slot int) (Roster, error) {
	return s.apply(Op{Action: ActionRemove, Slot: slot})
}

// Move swaps the contents of two slots. The source must be occupied; the
// destination may be empty.
func (s *Store) Move(from, to int) (Roster, error) {
	return s.apply(Op{Action: ActionMove, Slot: from, To: to})
}

// Replace overwrites the whole party. ids must have exactly Size entries;
// "" marks an empty slot.
func (s *Store) Replace(ids []string) (Roster, error) {
	return s.apply(Op{Action: ActionFullReplace, IDs: ids})
}

// Reset empties every slot.
func (s *Store) Reset() (Roster, error) {
	return s.Replace(make([]string, Size))
}

// RandomOp builds a full replace with distinct characters drawn at random.
// With fewer than Size characters in the catalog the remaining slots stay empty.
func (s *Store) RandomOp(rng *rand.Rand) Op {
	ids := make([]string, Size)
	for i, e := range s.catalog.Sample(Size, rng) {
		ids[i] = e.ID()
	}

	return Op{Action: ActionFullReplace, IDs: ids}
}

// Randomize fills the party with random distinct characters.
func (s *Store) Randomize(rng *rand.Rand) (Roster, error) {
	return s.apply(s.RandomOp(rng))
}

// Reload replaces the in-memory party with the persisted one, reporting
// whether anything changed. It is how writes made by other processes are
// picked up; nothing is written back. A change is described as a full
// replace with no actor.
func (s *Store) Reload() (Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.persister.Load()
	if err != nil {
		return Event{Roster: s.roster, Version: s.version}, false, err
	}
	if r == s.roster {
		return Event{Roster: r, Version: s.version}, false, nil
	}

	ev := Event{
		Roster: r,
		Action: ActionFullReplace,
	}
	for i := range Size {
		if r[i] != s.roster[i] {
			ev.ChangedSlots = append(ev.ChangedSlots, i)
		}
	}

	s.roster = r
	s.version++
	ev.Version = s.version

	return ev, true, nil
}
