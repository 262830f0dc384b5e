package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Seednode/partydisplay/roster"
)

type fields map[string]json.RawMessage

func decodeFields(data json.RawMessage) (fields, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}

	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: data must be an object", ErrInvalidPayload)
	}

	return f, nil
}

func (f fields) raw(key string) (json.RawMessage, error) {
	raw, ok := f[key]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidPayload, key)
	}

	return raw, nil
}

func (f fields) stringField(key string) (string, error) {
	raw, err := f.raw(key)
	if err != nil {
		return "", err
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidPayload, key)
	}
	if s == "" {
		return "", fmt.Errorf("%w: missing %s", ErrInvalidPayload, key)
	}

	return s, nil
}

// intField accepts JSON integers only: strings, fractions and exponents are rejected.
func (f fields) intField(key string) (int, error) {
	raw, err := f.raw(key)
	if err != nil {
		return 0, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidPayload, key)
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidPayload, key)
	}
	i, err := strconv.Atoi(n.String())
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidPayload, key)
	}

	return i, nil
}

func (f fields) slot(key string) (int, error) {
	i, err := f.intField(key)
	if err != nil {
		return 0, err
	}
	if !roster.ValidSlot(i) {
		return 0, fmt.Errorf("%w: %s %d", roster.ErrInvalidSlot, key, i)
	}

	return i, nil
}

func DecodeSelect(data json.RawMessage) (SelectRequest, error) {
	f, err := decodeFields(data)
	if err != nil {
		return SelectRequest{}, err
	}

	name, err := f.stringField("character_name")
	if err != nil {
		return SelectRequest{}, err
	}

	return SelectRequest{CharacterName: name}, nil
}

func DecodeAdd(data json.RawMessage) (AddRequest, error) {
	f, err := decodeFields(data)
	if err != nil {
		return AddRequest{}, err
	}

	name, err := f.stringField("character_name")
	if err != nil {
		return AddRequest{}, err
	}
	slot, err := f.slot("slot")
	if err != nil {
		return AddRequest{}, err
	}

	return AddRequest{CharacterName: name, Slot: slot}, nil
}

func DecodeRemove(data json.RawMessage) (RemoveRequest, error) {
	f, err := decodeFields(data)
	if err != nil {
		return RemoveRequest{}, err
	}

	slot, err := f.slot("slot")
	if err != nil {
		return RemoveRequest{}, err
	}

	return RemoveRequest{Slot: slot}, nil
}

func DecodeMove(data json.RawMessage) (MoveRequest, error) {
	f, err := decodeFields(data)
	if err != nil {
		return MoveRequest{}, err
	}

	from, err := f.slot("from_slot")
	if err != nil {
		return MoveRequest{}, err
	}
	to, err := f.slot("to_slot")
	if err != nil {
		return MoveRequest{}, err
	}

	return MoveRequest{FromSlot: from, ToSlot: to}, nil
}

func DecodeReplace(data json.RawMessage) (ReplaceRequest, error) {
	f, err := decodeFields(data)
	if err != nil {
		return ReplaceRequest{}, err
	}

	raw, err := f.raw("party")
	if err != nil {
		return ReplaceRequest{}, err
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return ReplaceRequest{}, fmt.Errorf("%w: party must be a list", ErrInvalidPayload)
	}
	if len(entries) != roster.Size {
		return ReplaceRequest{}, fmt.Errorf("%w (got %d)", roster.ErrInvalidLength, len(entries))
	}

	party := make([]string, len(entries))
	for i, entry := range entries {
		name, err := roster.ParseEntry(entry)
		if err != nil {
			return ReplaceRequest{}, fmt.Errorf("%w: party[%d]: %w", ErrInvalidPayload, i, err)
		}
		party[i] = name
	}

	return ReplaceRequest{Party: party}, nil
}

// ParseSlot reads a slot number given as text, such as a URL path segment.
func ParseSlot(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: slot must be an integer", ErrInvalidPayload)
	}
	if !roster.ValidSlot(i) {
		return 0, fmt.Errorf("%w: %d", roster.ErrInvalidSlot, i)
	}

	return i, nil
}
