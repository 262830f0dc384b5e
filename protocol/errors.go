package protocol

import (
	"errors"
	"net/http"

	"github.com/Seednode/partydisplay/catalog"
	"github.com/Seednode/partydisplay/roster"
)

// ErrInvalidPayload is returned for frames or bodies that are malformed or
// missing fields.
var ErrInvalidPayload = errors.New("invalid payload")

// Code maps err to the code carried in server_error replies.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, roster.ErrInvalidSlot):
		return "invalid_slot"
	case errors.Is(err, roster.ErrEmptySlot):
		return "empty_slot"
	case errors.Is(err, roster.ErrInvalidLength):
		return "invalid_length"
	case errors.Is(err, roster.ErrUnknownEntity):
		return "unknown_entity"
	case errors.Is(err, catalog.ErrNotFound):
		return "not_found"
	case errors.Is(err, roster.ErrPersistence):
		return "persistence_error"
	default:
		return "internal"
	}
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch Code(err) {
	case "invalid_payload", "invalid_slot", "invalid_length":
		return http.StatusBadRequest
	case "empty_slot":
		return http.StatusConflict
	case "unknown_entity", "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Describe is the message shown to users for err. Storage failures are not
// spelled out to clients.
func Describe(err error) string {
	if errors.Is(err, roster.ErrPersistence) {
		return roster.ErrPersistence.Error()
	}

	return err.Error()
}
