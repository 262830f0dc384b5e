package protocol

import (
	"encoding/json"

	"github.com/Seednode/partydisplay/catalog"
)

// Client to server events.
const (
	EventRequestInitialData  = "request_initial_data"
	EventSelectCharacter     = "select_character"
	EventAddToParty          = "add_to_party"
	EventRemoveFromParty     = "remove_from_party"
	EventMoveCharacter       = "move_character"
	EventExternalPartyUpdate = "external_party_update"
)

// Server to client events.
const (
	EventServerInfo        = "server_info"
	EventInitialData       = "initial_data"
	EventCharacterSelected = "character_selected"
	EventPartyUpdated      = "party_updated"
	EventUpdateSuccess     = "update_success"
	EventServerError       = "server_error"
)

// Envelope is the frame read from clients.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is the frame written to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Notice carries a human readable message (server_info, update_success).
type Notice struct {
	Message string `json:"message"`
}

type ErrorReply struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type InitialData struct {
	Characters []catalog.Entity  `json:"characters"`
	Party      []*catalog.Entity `json:"party"`
	Version    uint64            `json:"version"`
}

type CharacterSelected struct {
	Character       catalog.Entity `json:"character"`
	RecruitmentInfo string         `json:"recruitment_info"`
}

// PartyUpdated is broadcast after every applied change. Which of the optional
// fields are set depends on Action.
type PartyUpdated struct {
	Party         []*catalog.Entity `json:"party"`
	Action        string            `json:"action"`
	UpdatedSlot   *int              `json:"updated_slot,omitempty"`
	UpdatedSlots  []int             `json:"updated_slots,omitempty"`
	Character     *catalog.Entity   `json:"character,omitempty"`
	CharacterName string            `json:"character_name,omitempty"`
	Source        string            `json:"source,omitempty"`
	Version       uint64            `json:"version"`
}

// Requests, after validation.

type SelectRequest struct {
	CharacterName string
}

type AddRequest struct {
	CharacterName string
	Slot          int
}

type RemoveRequest struct {
	Slot int
}

type MoveRequest struct {
	FromSlot int
	ToSlot   int
}

// ReplaceRequest holds one character name per slot, "" for empty.
type ReplaceRequest struct {
	Party []string
}
