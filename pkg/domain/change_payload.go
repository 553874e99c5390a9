package domain

import "encoding/json"

// ChangePayload wraps a JSON snapshot of a change's before/after state.
// Rules decode it with DecodeChangePayload.
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// NewChangePayload builds a payload wrapper from raw JSON. The bytes are cloned
// so callers cannot mutate recorded history.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	payload := ChangePayload{defined: true}
	if raw != nil {
		payload.raw = cloneRawMessage(raw)
	}
	return payload
}

// NewChangePayloadFromValue marshals a typed value into a ChangePayload.
func NewChangePayloadFromValue[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return NewChangePayload(raw), nil
}

// MustChangePayload is NewChangePayloadFromValue for values known to marshal.
// Domain entities contain only JSON-safe fields, so a failure is a programming error.
func MustChangePayload[T any](value T) ChangePayload {
	payload, err := NewChangePayloadFromValue(value)
	if err != nil {
		panic("domain: encode change payload: " + err.Error())
	}
	return payload
}

// UndefinedChangePayload returns an uninitialized payload wrapper.
func UndefinedChangePayload() ChangePayload {
	return ChangePayload{}
}

// Defined reports whether the payload has been initialized.
func (p ChangePayload) Defined() bool {
	return p.defined
}

// IsEmpty reports whether the payload contains no bytes.
func (p ChangePayload) IsEmpty() bool {
	if !p.defined {
		return true
	}
	return len(p.raw) == 0
}

// Raw returns a cloned copy of the underlying JSON bytes. Nil is returned when
// the payload is undefined or empty.
func (p ChangePayload) Raw() json.RawMessage {
	if !p.defined || len(p.raw) == 0 {
		return nil
	}
	return cloneRawMessage(p.raw)
}

// DecodeChangePayload decodes a payload into T. It reports false when the
// payload is undefined, empty, or not decodable as T.
func DecodeChangePayload[T any](payload ChangePayload) (T, bool) {
	var out T
	if payload.IsEmpty() {
		return out, false
	}
	if err := json.Unmarshal(payload.raw, &out); err != nil {
		return out, false
	}
	return out, true
}

func cloneRawMessage(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cloned := make(json.RawMessage, len(raw))
	copy(cloned, raw)
	return cloned
}
