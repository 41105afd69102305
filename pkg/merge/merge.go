// Package merge reconstructs full entities from partial change-notification
// payloads.
//
// The backing store elides large unchanged fields from the wire, so a payload
// key being absent means "unchanged", not "empty". Merge overwrites exactly
// the present keys and leaves the rest of the old entity intact.
package merge

import (
	"errors"
	"fmt"

	"github.com/taskboardhq/boardsync.go/pkg/entity"
)

// ErrMalformed reports a notification whose payload cannot produce a valid
// entity: required invariant fields are missing after the merge. Such
// notifications are dropped by the caller, never repaired by guessing.
var ErrMalformed = errors.New("malformed notification payload")

// Merge builds the next value of an entity from its current value and an
// incoming partial payload.
//
// old is nil for a cold insert, in which case the payload must be complete
// enough to stand alone: id, workspace id and created-at are required, and
// the merge fails closed when any is missing. On an existing entity the
// immutable fields keep their current values; a payload disagreeing on
// workspace id is ignored rather than applied, and deleted-at is monotonic.
//
// Bodies containing signed resource references are stabilized against the
// old body so that token rotation alone never changes the merged value; see
// StabilizeBody.
func Merge(old *entity.Entity, in entity.PartialEntity) (entity.Entity, error) {
	var out entity.Entity
	if old != nil {
		out = *old
	}

	if in.ID != nil {
		if old != nil && *in.ID != old.ID {
			return entity.Entity{}, fmt.Errorf("%w: payload id %q does not match entity %q", ErrMalformed, *in.ID, old.ID)
		}
		out.ID = *in.ID
	}
	if in.Kind != nil && out.Kind == "" {
		out.Kind = *in.Kind
	}
	if in.ParentID != nil {
		out.ParentID = *in.ParentID
	}
	if in.WorkspaceID != nil && (old == nil || old.WorkspaceID == "") {
		out.WorkspaceID = *in.WorkspaceID
	}
	if in.AssigneeID != nil {
		out.AssigneeID = *in.AssigneeID
	}
	if in.AssigneeType != nil {
		out.AssigneeType = *in.AssigneeType
	}
	if in.Body != nil {
		next := *in.Body
		if old != nil && old.Body != "" && next != "" {
			next = StabilizeBody(old.Body, next)
		}
		out.Body = next
	}
	if in.DeletedAt != nil && out.DeletedAt == nil {
		t := *in.DeletedAt
		out.DeletedAt = &t
	}
	if in.CreatedAt != nil && out.CreatedAt.IsZero() {
		out.CreatedAt = *in.CreatedAt
	}

	if out.ID == "" {
		return entity.Entity{}, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if out.WorkspaceID == "" {
		return entity.Entity{}, fmt.Errorf("%w: missing workspace id for %q", ErrMalformed, out.ID)
	}
	if old == nil && out.CreatedAt.IsZero() {
		return entity.Entity{}, fmt.Errorf("%w: cold payload for %q lacks created_at", ErrMalformed, out.ID)
	}

	return out, nil
}
