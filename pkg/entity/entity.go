package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which board collection an entity belongs to.
//
// Tasks and templates share one shape; the engine treats them uniformly and
// keeps them apart only by Kind.
type Kind string

const (
	KindTask     Kind = "task"
	KindTemplate Kind = "template"
)

// AssigneeType identifies what kind of principal an entity is assigned to.
type AssigneeType string

const (
	AssigneeInternalUser AssigneeType = "internal_user"
	AssigneeClient       AssigneeType = "client"
	AssigneeCompany      AssigneeType = "company"
)

// Entity is a single work item: a task or a template.
//
// ID is unique within a local collection. WorkspaceID never changes after
// creation. DeletedAt is monotonic: once set, the engine never clears it.
type Entity struct {
	ID           string       `json:"id"`
	Kind         Kind         `json:"kind,omitempty"`
	ParentID     string       `json:"parent_id,omitempty"`
	WorkspaceID  string       `json:"workspace_id"`
	AssigneeID   string       `json:"assignee_id,omitempty"`
	AssigneeType AssigneeType `json:"assignee_type,omitempty"`
	Body         string       `json:"body,omitempty"`
	DeletedAt    *time.Time   `json:"deleted_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Deleted reports whether the entity carries a soft-delete marker.
func (e Entity) Deleted() bool {
	return e.DeletedAt != nil && !e.DeletedAt.IsZero()
}

// Root reports whether the entity declares no parent of its own.
func (e Entity) Root() bool {
	return e.ParentID == ""
}

// tempIDPrefix distinguishes locally generated ids from server-assigned
// UUIDs. The server never assigns ids in this namespace.
const tempIDPrefix = "tmp_"

// NewTempID returns a fresh local id for an optimistic write.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was generated locally by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}
