// Package ledger tracks locally created entities between the moment a write
// is issued and the moment the matching server notification is reconciled.
//
// Its one job is identity: the rendering layer keys lists and animations by
// the stable key the ledger hands out, so an item does not jump identity when
// it flips from its temporary id to the server-assigned one.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrIdentityConflict reports an attempt to bind one server id to two
// distinct optimistic entries. The later binding is rejected; merging two
// logical entities by guessing is never acceptable.
var ErrIdentityConflict = errors.New("optimistic identity conflict")

// ErrUnknownEntry reports a confirm for a temp id that was never begun.
var ErrUnknownEntry = errors.New("unknown optimistic entry")

type entry struct {
	tempID         string
	serverID       string
	createdAtLocal time.Time
}

// Ledger maps temporary ids of pending local writes to the server ids that
// eventually confirm them.
//
// Entries survive confirmation: they are retained until Prune so the stable
// key stays on the temporary id for as long as the render layer needs it.
// The ledger never evicts on a timer; rolling back a failed write is the
// writer's responsibility.
type Ledger struct {
	mu       sync.RWMutex
	byTemp   map[string]*entry
	byServer map[string]string
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		byTemp:   make(map[string]*entry),
		byServer: make(map[string]string),
	}
}

// Begin registers a pending local write under tempID. Registering an id that
// is already pending is a no-op.
func (l *Ledger) Begin(tempID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byTemp[tempID]; ok {
		return
	}
	l.byTemp[tempID] = &entry{tempID: tempID, createdAtLocal: time.Now()}
}

// Confirm records the server id returned by the write API for tempID.
//
// It does not touch the local collection; the authoritative mutation arrives
// as the matching INSERT notification. Confirming a server id that is
// already bound to a different entry, or re-confirming an entry with a
// different server id, fails with ErrIdentityConflict.
func (l *Ledger) Confirm(tempID, serverID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byTemp[tempID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, tempID)
	}
	if owner, ok := l.byServer[serverID]; ok && owner != tempID {
		return fmt.Errorf("%w: server id %s already confirmed for %s", ErrIdentityConflict, serverID, owner)
	}
	if e.serverID != "" && e.serverID != serverID {
		return fmt.Errorf("%w: entry %s already confirmed as %s, got %s", ErrIdentityConflict, tempID, e.serverID, serverID)
	}

	e.serverID = serverID
	l.byServer[serverID] = tempID
	return nil
}

// StableKeyFor returns the identity the render layer should use for the
// entity with the given id: the temp id when a ledger entry maps to it
// (directly or through a confirmed server id), else the id itself.
func (l *Ledger) StableKeyFor(id string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.byTemp[id]; ok {
		return id
	}
	if tempID, ok := l.byServer[id]; ok {
		return tempID
	}
	return id
}

// TempFor returns the temp id confirmed for serverID, if any.
func (l *Ledger) TempFor(serverID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tempID, ok := l.byServer[serverID]
	return tempID, ok
}

// Prune drops the entry for tempID. Safe to call for ids the ledger does not
// hold.
func (l *Ledger) Prune(tempID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byTemp[tempID]
	if !ok {
		return
	}
	if e.serverID != "" {
		delete(l.byServer, e.serverID)
	}
	delete(l.byTemp, tempID)
}

// Len returns the number of live entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.byTemp)
}
