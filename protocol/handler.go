// Package protocol translates client requests into roster changes and
// roster changes into client messages.
//
// Every request is validated before the store is touched; a rejected request
// changes nothing and broadcasts nothing. Changes made by a connected client
// (add, remove, move) are broadcast to every subscriber including that
// client. A full replace from a client is broadcast to everyone except the
// sender, which already holds the party it sent.
package protocol

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/Seednode/partydisplay/catalog"
	"github.com/Seednode/partydisplay/hub"
	"github.com/Seednode/partydisplay/roster"
)

const (
	welcomeMessage = "Connected to party display server"

	sourceExternal = "external"
	actionFull     = "full_update"
)

type Handler struct {
	catalog *catalog.Catalog
	store   *roster.Store
	hub     *hub.Hub
	logger  *zap.Logger

	// mu orders publishes by store version; published is the last version
	// sent to the hub.
	mu        sync.Mutex
	published uint64
}

func New(store *roster.Store, h *hub.Hub, logger *zap.Logger) *Handler {
	return &Handler{
		catalog: store.Catalog(),
		store:   store,
		hub:     h,
		logger:  logger,
	}
}

func message(event string, data any) Message {
	return Message{Event: event, Data: data}
}

func errorMessage(err error) Message {
	return message(EventServerError, ErrorReply{
		Message: Describe(err),
		Code:    Code(err),
	})
}

// Welcome greets a newly connected subscriber.
func (h *Handler) Welcome(sub *hub.Subscriber) {
	h.hub.Send(sub, message(EventServerInfo, Notice{Message: welcomeMessage}))
}

// Dispatch handles one frame read from sub. Replies go to sub only;
// broadcasts go through the hub.
func (h *Handler) Dispatch(sub *hub.Subscriber, frame []byte) {
	reply, err := h.handle(sub.ID(), frame)
	if err != nil {
		h.logger.Info("request rejected",
			zap.String("subscriber", sub.ID()),
			zap.String("code", Code(err)),
			zap.Error(err))

		h.hub.Send(sub, errorMessage(err))

		return
	}

	h.hub.Send(sub, reply)
}

func (h *Handler) handle(actor string, frame []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Message{}, fmt.Errorf("%w: malformed frame", ErrInvalidPayload)
	}

	switch env.Event {
	case EventRequestInitialData:
		return message(EventInitialData, h.InitialData()), nil

	case EventSelectCharacter:
		req, err := DecodeSelect(env.Data)
		if err != nil {
			return Message{}, err
		}
		selected, err := h.Select(req)
		if err != nil {
			return Message{}, err
		}

		return message(EventCharacterSelected, selected), nil

	case EventAddToParty:
		req, err := DecodeAdd(env.Data)
		if err != nil {
			return Message{}, err
		}

		return success(h.Add(actor, req))

	case EventRemoveFromParty:
		req, err := DecodeRemove(env.Data)
		if err != nil {
			return Message{}, err
		}

		return success(h.Remove(actor, req))

	case EventMoveCharacter:
		req, err := DecodeMove(env.Data)
		if err != nil {
			return Message{}, err
		}

		return success(h.Move(actor, req))

	case EventExternalPartyUpdate:
		req, err := DecodeReplace(env.Data)
		if err != nil {
			return Message{}, err
		}

		return success(h.Replace(actor, req))

	case "":
		return Message{}, fmt.Errorf("%w: missing event", ErrInvalidPayload)

	default:
		return Message{}, fmt.Errorf("%w: unknown event %q", ErrInvalidPayload, env.Event)
	}
}

func success(n Notice, err error) (Message, error) {
	if err != nil {
		return Message{}, err
	}

	return message(EventUpdateSuccess, n), nil
}

// Party resolves the current party into records.
func (h *Handler) Party() []*catalog.Entity {
	return h.store.Snapshot().Records(h.catalog)
}

func (h *Handler) InitialData() InitialData {
	return InitialData{
		Characters: h.catalog.All(),
		Party:      h.Party(),
		Version:    h.store.Version(),
	}
}

func (h *Handler) Select(req SelectRequest) (CharacterSelected, error) {
	e, err := h.catalog.Find(req.CharacterName)
	if err != nil {
		return CharacterSelected{}, err
	}

	info := e.RecruitmentInfo
	if info == "" {
		info = catalog.DefaultRecruitmentInfo
	}

	return CharacterSelected{Character: e, RecruitmentInfo: info}, nil
}

func (h *Handler) resolve(name string) (string, error) {
	e, err := h.catalog.Find(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", roster.ErrUnknownEntity, name)
	}

	return e.ID(), nil
}

// Add puts a character into a slot. actor is the subscriber making the
// request, or "" for callers outside the hub.
func (h *Handler) Add(actor string, req AddRequest) (Notice, error) {
	id, err := h.resolve(req.CharacterName)
	if err != nil {
		return Notice{}, err
	}

	if _, err := h.commit(actor, roster.Op{Action: roster.ActionAdd, Slot: req.Slot, ID: id}); err != nil {
		return Notice{}, err
	}

	return Notice{Message: id + " added to party"}, nil
}

func (h *Handler) Remove(actor string, req RemoveRequest) (Notice, error) {
	ev, err := h.commit(actor, roster.Op{Action: roster.ActionRemove, Slot: req.Slot})
	if err != nil {
		return Notice{}, err
	}

	return Notice{Message: ev.Character + " removed from party"}, nil
}

func (h *Handler) Move(actor string, req MoveRequest) (Notice, error) {
	ev, err := h.commit(actor, roster.Op{Action: roster.ActionMove, Slot: req.FromSlot, To: req.ToSlot})
	if err != nil {
		return Notice{}, err
	}

	return Notice{Message: fmt.Sprintf("%s moved to slot %d", ev.Character, req.ToSlot+1)}, nil
}

func (h *Handler) Replace(actor string, req ReplaceRequest) (Notice, error) {
	if len(req.Party) != roster.Size {
		return Notice{}, fmt.Errorf("%w (got %d)", roster.ErrInvalidLength, len(req.Party))
	}

	ids := make([]string, roster.Size)
	for i, name := range req.Party {
		if name == "" {
			continue
		}
		id, err := h.resolve(name)
		if err != nil {
			return Notice{}, err
		}
		ids[i] = id
	}

	if _, err := h.commit(actor, roster.Op{Action: roster.ActionFullReplace, IDs: ids}); err != nil {
		return Notice{}, err
	}

	return Notice{Message: "Party updated successfully"}, nil
}

// Reset empties the party.
func (h *Handler) Reset(actor string) (Notice, error) {
	return h.Replace(actor, ReplaceRequest{Party: make([]string, roster.Size)})
}

// Randomize fills the party with random distinct characters.
func (h *Handler) Randomize(actor string, rng *rand.Rand) (Notice, error) {
	if _, err := h.commit(actor, h.store.RandomOp(rng)); err != nil {
		return Notice{}, err
	}

	return Notice{Message: "Random party selected"}, nil
}

// commit applies op and publishes the result before any other change can
// be published, so every subscriber sees changes in store order.
func (h *Handler) commit(actor string, op roster.Op) (roster.Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ev, err := h.store.Apply(actor, op)
	if err != nil {
		return roster.Event{}, err
	}
	h.publishLocked(ev)

	return ev, nil
}

// Publish broadcasts ev. Full replaces skip the subscriber that sent them;
// every other change reaches everyone, the actor included. Events older than
// the last one published are dropped and Publish returns 0.
func (h *Handler) Publish(ev roster.Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.publishLocked(ev)
}

func (h *Handler) publishLocked(ev roster.Event) int {
	if ev.Version <= h.published {
		h.logger.Debug("skipping stale party update",
			zap.Uint64("version", ev.Version),
			zap.Uint64("published", h.published))

		return 0
	}
	h.published = ev.Version

	exclude := ""
	if ev.Action == roster.ActionFullReplace {
		exclude = ev.Actor
	}

	n := h.hub.Publish(h.updateMessage(ev), exclude)

	h.logger.Debug("broadcast party update",
		zap.String("action", string(ev.Action)),
		zap.Int("subscribers", n))

	return n
}

func (h *Handler) updateMessage(ev roster.Event) Message {
	update := PartyUpdated{
		Party:   ev.Roster.Records(h.catalog),
		Action:  string(ev.Action),
		Version: ev.Version,
	}

	switch ev.Action {
	case roster.ActionAdd:
		slot := ev.ChangedSlots[0]
		update.UpdatedSlot = &slot
		if e, ok := h.catalog.Get(ev.Character); ok {
			update.Character = &e
		}
	case roster.ActionRemove:
		slot := ev.ChangedSlots[0]
		update.UpdatedSlot = &slot
		update.CharacterName = ev.Character
	case roster.ActionMove:
		update.UpdatedSlots = ev.ChangedSlots
		update.CharacterName = ev.Character
	case roster.ActionFullReplace:
		update.Action = actionFull
		update.Source = sourceExternal
		update.UpdatedSlots = ev.ChangedSlots
	}

	return message(EventPartyUpdated, update)
}

// Reloaded broadcasts a party picked up from disk to every subscriber.
func (h *Handler) Reloaded(ev roster.Event) {
	ev.Actor = ""
	h.Publish(ev)
}
