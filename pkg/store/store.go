// Package store holds the local collection of entities the rest of the
// application reads.
//
// It is a single-writer container: only the reconciliation loop mutates it,
// and every mutation for one notification lands as one unit, so a reader
// never observes a half-applied change.
package store

import (
	"sort"
	"sync"

	"github.com/taskboardhq/boardsync.go/pkg/entity"
)

// Collection is an id-keyed set of entities. The id key makes inserts
// de-duplicating by construction.
type Collection map[string]entity.Entity

// Clone returns a shallow copy of the collection.
func (c Collection) Clone() Collection {
	next := make(Collection, len(c))
	for id, e := range c {
		next[id] = e
	}
	return next
}

// Store is the mutable local collection behind a reader guard.
type Store struct {
	mu       sync.RWMutex
	entities Collection
}

// New returns an empty store.
func New() *Store {
	return &Store{entities: make(Collection)}
}

// Snapshot returns a copy of the current collection.
func (s *Store) Snapshot() Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.entities.Clone()
}

// Get returns the entity with the given id.
func (s *Store) Get(id string) (entity.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	return e, ok
}

// Len returns the number of entities held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entities)
}

// Insert adds e to the collection. Inserting an id that is already present
// replaces it: the collection is id-keyed, which is what de-duplicates a
// promoted child against its re-delivered self.
func (s *Store) Insert(e entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities[e.ID] = e
}

// Replace swaps the stored value for e.ID in place.
func (s *Store) Replace(e entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities[e.ID] = e
}

// Remove drops the entity with the given id, if present.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entities, id)
}

// Adopt atomically makes col the store's collection. The caller hands over
// ownership and must not mutate col afterwards; the reconciliation loop uses
// this to land a whole reduced collection as one unit.
func (s *Store) Adopt(col Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities = col
}

// Roots returns the top-level view of the collection: entities with no
// parent, plus children whose parent is not present for this principal.
// Such children are promoted to disjoint top-level items rather than
// silently hidden, and demote automatically on a later read once their
// parent arrives.
func (s *Store) Roots() []entity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roots := make([]entity.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		if e.Root() {
			roots = append(roots, e)
			continue
		}
		if _, ok := s.entities[e.ParentID]; !ok {
			roots = append(roots, e)
		}
	}
	sortEntities(roots)
	return roots
}

// Children returns the entities nested under parentID.
func (s *Store) Children(parentID string) []entity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	children := make([]entity.Entity, 0)
	for _, e := range s.entities {
		if e.ParentID == parentID {
			children = append(children, e)
		}
	}
	sortEntities(children)
	return children
}

// sortEntities orders by creation time, then id for a stable tie-break.
func sortEntities(list []entity.Entity) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
