package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// PartialEntity is the projection of an Entity carried by a change
// notification. The backing store elides large unchanged fields from the wire
// payload, so every field is a pointer and three states are distinguished:
//
//   - nil: the key was absent from the payload (field unchanged, leave the
//     local value untouched)
//   - pointer to the zero value: the key was present with a null value
//     (field cleared)
//   - pointer to a value: the key was present with that value
//
// Absence is not "set to empty"; the custom decoders below preserve the
// distinction by inspecting payload keys before decoding them.
//
// DeletedAt is the one exception: it is monotonic, so a null deleted_at
// carries no meaning and decodes as absent.
type PartialEntity struct {
	ID           *string
	Kind         *Kind
	ParentID     *string
	WorkspaceID  *string
	AssigneeID   *string
	AssigneeType *AssigneeType
	Body         *string
	DeletedAt    *time.Time
	CreatedAt    *time.Time
}

// Partial returns the full projection of e, with every key present.
func Partial(e Entity) PartialEntity {
	p := PartialEntity{
		ID:          &e.ID,
		WorkspaceID: &e.WorkspaceID,
		CreatedAt:   &e.CreatedAt,
		DeletedAt:   e.DeletedAt,
	}
	if e.Kind != "" {
		p.Kind = &e.Kind
	}
	p.ParentID = &e.ParentID
	p.AssigneeID = &e.AssigneeID
	if e.AssigneeType != "" {
		p.AssigneeType = &e.AssigneeType
	}
	p.Body = &e.Body
	return p
}

// fieldDecoder decodes one raw payload value into dst.
// null reports whether the raw value is the encoding's null.
type fieldDecoder struct {
	null      func(raw []byte) bool
	unmarshal func(raw []byte, dst any) error
}

var (
	jsonNull = []byte("null")
	cborNull = []byte{0xf6}
)

// UnmarshalJSON decodes a JSON object into p, recording key presence.
func (p *PartialEntity) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("partial entity: %w", err)
	}
	fields := make(map[string][]byte, len(raw))
	for k, v := range raw {
		fields[k] = v
	}
	return p.decode(fields, fieldDecoder{
		null:      func(raw []byte) bool { return bytes.Equal(raw, jsonNull) },
		unmarshal: json.Unmarshal,
	})
}

// UnmarshalCBOR decodes a CBOR map into p, recording key presence.
func (p *PartialEntity) UnmarshalCBOR(data []byte) error {
	var raw map[string]cbor.RawMessage
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("partial entity: %w", err)
	}
	fields := make(map[string][]byte, len(raw))
	for k, v := range raw {
		fields[k] = v
	}
	return p.decode(fields, fieldDecoder{
		null:      func(raw []byte) bool { return bytes.Equal(raw, cborNull) },
		unmarshal: cbor.Unmarshal,
	})
}

func (p *PartialEntity) decode(fields map[string][]byte, dec fieldDecoder) error {
	if err := decodeField(fields, dec, "id", &p.ID); err != nil {
		return err
	}
	if err := decodeField(fields, dec, "kind", &p.Kind); err != nil {
		return err
	}
	if err := decodeField(fields, dec, "parent_id", &p.ParentID); err != nil {
		return err
	}
	if err := decodeField(fields, dec, "workspace_id", &p.WorkspaceID); err != nil {
		return err
	}
	if err := decodeField(fields, dec, "assignee_id", &p.AssigneeID); err != nil {
		return err
	}
	if err := decodeField(fields, dec, "assignee_type", &p.AssigneeType); err != nil {
		return err
	}
	if err := decodeField(fields, dec, "body", &p.Body); err != nil {
		return err
	}
	if err := decodeField(fields, dec, "deleted_at", &p.DeletedAt); err != nil {
		return err
	}
	if err := decodeField(fields, dec, "created_at", &p.CreatedAt); err != nil {
		return err
	}
	// A null deleted_at would decode as a zero time; the marker is monotonic,
	// so treat it as absent instead of "deleted at the zero time".
	if p.DeletedAt != nil && p.DeletedAt.IsZero() {
		p.DeletedAt = nil
	}
	return nil
}

func decodeField[T any](fields map[string][]byte, dec fieldDecoder, key string, dst **T) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	v := new(T)
	if !dec.null(raw) {
		if err := dec.unmarshal(raw, v); err != nil {
			return fmt.Errorf("partial entity: field %q: %w", key, err)
		}
	}
	*dst = v
	return nil
}

// present returns the wire representation of p: a map holding only the
// present keys. Used by both marshalers so encode and decode agree on the
// key set.
func (p PartialEntity) present() map[string]any {
	m := make(map[string]any, 9)
	if p.ID != nil {
		m["id"] = *p.ID
	}
	if p.Kind != nil {
		m["kind"] = *p.Kind
	}
	if p.ParentID != nil {
		m["parent_id"] = *p.ParentID
	}
	if p.WorkspaceID != nil {
		m["workspace_id"] = *p.WorkspaceID
	}
	if p.AssigneeID != nil {
		m["assignee_id"] = *p.AssigneeID
	}
	if p.AssigneeType != nil {
		m["assignee_type"] = *p.AssigneeType
	}
	if p.Body != nil {
		m["body"] = *p.Body
	}
	if p.DeletedAt != nil {
		m["deleted_at"] = *p.DeletedAt
	}
	if p.CreatedAt != nil {
		m["created_at"] = *p.CreatedAt
	}
	return m
}

// MarshalJSON encodes only the present keys.
func (p PartialEntity) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.present())
}

// MarshalCBOR encodes only the present keys.
func (p PartialEntity) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(p.present())
}
