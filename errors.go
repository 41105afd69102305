package boardsync

import (
	"errors"

	"github.com/taskboardhq/boardsync.go/pkg/ledger"
	"github.com/taskboardhq/boardsync.go/pkg/merge"
)

// The engine's failure taxonomy. All of these are handled locally by
// dropping and logging; none is surfaced to the user. The worst observable
// symptom of a dropped notification is a stale list entry until the next
// successful one arrives.
var (
	// ErrMalformedNotification reports a payload missing required invariant
	// fields after merge.
	ErrMalformedNotification = merge.ErrMalformed

	// ErrIdentityConflict reports a notification or confirmation that would
	// merge two distinct logical entities under one id.
	ErrIdentityConflict = ledger.ErrIdentityConflict

	// ErrClosed reports an operation on an engine whose session has been
	// torn down.
	ErrClosed = errors.New("boardsync: engine closed")
)
