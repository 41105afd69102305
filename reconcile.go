package boardsync

import (
	"fmt"

	"github.com/taskboardhq/boardsync.go/pkg/access"
	"github.com/taskboardhq/boardsync.go/pkg/entity"
	"github.com/taskboardhq/boardsync.go/pkg/merge"
	"github.com/taskboardhq/boardsync.go/pkg/store"
)

// Reduce applies one change notification to a collection and returns the
// next collection. It is pure: col is never mutated, and the same input
// always produces the same output, which is what makes at-least-once
// delivery safe. Re-applying any notification is a no-op.
//
// The collection holds exactly the entities visible to the session, so
// presence in col is the "visibility before" side of the transition table
// and access.Visible over the merged result is the "visibility after" side:
//
//	INSERT/UPDATE, now visible      -> merge, upsert
//	UPDATE, was visible, now not    -> remove (reassigned out of view)
//	UPDATE carrying deleted_at      -> remove unconditionally
//	DELETE                          -> remove
//	anything else                   -> ignore
//
// Cross-entity ordering is not required: notifications for different ids
// commute. A child arriving before its parent is inserted as-is; the store's
// read path promotes it to a top-level item until the parent shows up.
//
// companies carries the pre-resolved client-to-company directory; Reduce
// itself performs no I/O.
func Reduce(
	col store.Collection,
	n entity.ChangeNotification,
	actx access.Context,
	companies access.Companies,
) (store.Collection, error) {
	id := n.EntityID()
	if id == "" {
		return col, fmt.Errorf("%w: notification without id", ErrMalformedNotification)
	}

	old, present := col[id]

	if n.EventType == entity.EventDelete {
		return removeIfPresent(col, id, present), nil
	}

	var oldRef *entity.Entity
	if present {
		oldRef = &old
	}
	merged, err := merge.Merge(oldRef, n.Next)
	if err != nil {
		return col, err
	}
	if merged.Kind == "" {
		merged.Kind = n.Kind
	}

	if merged.Deleted() {
		return removeIfPresent(col, id, present), nil
	}

	if !access.Visible(merged, actx, companies) {
		// Present means it was visible before: this update rescoped the
		// entity out of view. Absent means it never was: ignore.
		return removeIfPresent(col, id, present), nil
	}

	if present && old == merged {
		return col, nil
	}
	next := col.Clone()
	next[id] = merged
	return next, nil
}

func removeIfPresent(col store.Collection, id string, present bool) store.Collection {
	if !present {
		return col
	}
	next := col.Clone()
	delete(next, id)
	return next
}
