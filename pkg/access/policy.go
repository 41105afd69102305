// Package access decides which entities a principal may see.
//
// Visibility is a pure function over an entity, the session's access context
// and a pre-resolved client-to-company directory. Keeping the company lookup
// out of the policy keeps it callable twice per update, against the before
// and after projections, to detect visibility transitions.
package access

import (
	"slices"

	"github.com/taskboardhq/boardsync.go/pkg/entity"
)

// Role is the kind of principal a session belongs to.
type Role string

const (
	RoleInternalUser Role = "internal_user"
	RoleClient       Role = "client"
)

// Context is the access scope of one session. It is supplied once at engine
// open and read-only afterwards.
type Context struct {
	// PrincipalID is the signed-in user's id.
	PrincipalID string

	// Role is the principal's role.
	Role Role

	// CompanyID is the company a client principal belongs to. Unused for
	// internal users.
	CompanyID string

	// WorkspaceID scopes the session to one tenant. Entities from any other
	// workspace are never visible.
	WorkspaceID string

	// CompanyAccessList restricts an internal user to entities whose
	// effective company is in the list. nil means unrestricted; an empty
	// non-nil list means restricted to nothing.
	CompanyAccessList []string
}

// Restricted reports whether the context is an internal user limited to a
// company access list.
func (c Context) Restricted() bool {
	return c.Role == RoleInternalUser && c.CompanyAccessList != nil
}

// Companies maps a client id to its resolved company id.
//
// An entry with an empty value records a lookup that failed: the client's
// company is unknown, and visibility fails closed for it.
type Companies map[string]string

// Visible reports whether e is visible to the session described by ctx.
//
// The workspace filter is evaluated first and is absolute: a missing or
// mismatched workspace id hides the entity regardless of role. Company
// resolution for client-assigned entities is read from companies; when the
// needed entry is missing or empty the answer is false rather than a guess.
func Visible(e entity.Entity, ctx Context, companies Companies) bool {
	if e.WorkspaceID == "" || e.WorkspaceID != ctx.WorkspaceID {
		return false
	}

	switch ctx.Role {
	case RoleClient:
		if e.AssigneeID == "" {
			return false
		}
		return e.AssigneeID == ctx.PrincipalID || (ctx.CompanyID != "" && e.AssigneeID == ctx.CompanyID)

	case RoleInternalUser:
		if ctx.CompanyAccessList == nil {
			return true
		}
		// A restricted internal user still sees their own assignments.
		if e.AssigneeType == entity.AssigneeInternalUser {
			return e.AssigneeID == ctx.PrincipalID
		}
		company := EffectiveCompany(e, companies)
		if company == "" {
			return false
		}
		return slices.Contains(ctx.CompanyAccessList, company)
	}

	return false
}

// EffectiveCompany returns the company an entity belongs to for scoping:
// the assignee itself when assigned to a company, the client's resolved
// company when assigned to a client, and "" otherwise.
func EffectiveCompany(e entity.Entity, companies Companies) string {
	switch e.AssigneeType {
	case entity.AssigneeCompany:
		return e.AssigneeID
	case entity.AssigneeClient:
		return companies[e.AssigneeID]
	}
	return ""
}
