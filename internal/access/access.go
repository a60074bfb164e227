// Package access holds herald's closed role set and the role x action
// permission table consulted by the approval engine and mode controller.
package access

import (
	"fmt"

	"frameworks/herald/internal/apperr"
)

// Role is the closed set of actor roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleReviewer Role = "reviewer"
	RoleClient   Role = "client"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleReviewer, RoleClient}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleReviewer, RoleClient:
		return true
	}
	return false
}

// ParseRole validates s as a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Actor identifies who is performing an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// System is the actor recorded for changes made by herald itself, such as
// persisting the default mode on first start.
var System = Actor{ID: "system", Role: RoleAdmin}

// Action is the closed set of operations subject to authorization.
type Action string

const (
	ActionCreate         Action = "create"
	ActionView           Action = "view"
	ActionEdit           Action = "edit"
	ActionSubmit         Action = "submit"
	ActionResubmit       Action = "resubmit"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionRequestChanges Action = "request_changes"
	ActionSchedule       Action = "schedule"
	ActionPublish        Action = "publish"
	ActionArchive        Action = "archive"
	ActionViewMode       Action = "view_mode"
	ActionControlMode    Action = "control_mode"
	ActionReadAudit      Action = "read_audit"
	ActionReadAnalytics  Action = "read_analytics"
)

// Grant is the outcome of a permission lookup.
type Grant int

const (
	// Deny refuses the action outright.
	Deny Grant = iota
	// AllowOwner permits the action only on items the actor owns.
	AllowOwner
	// Allow permits the action on any item.
	Allow
)

func (g Grant) String() string {
	switch g {
	case Allow:
		return "allow"
	case AllowOwner:
		return "allow_owner"
	default:
		return "deny"
	}
}

var table = map[Action]map[Role]Grant{
	ActionCreate:         {RoleAdmin: Allow, RoleClient: Allow},
	ActionView:           {RoleAdmin: Allow, RoleReviewer: Allow, RoleClient: AllowOwner},
	ActionEdit:           {RoleAdmin: AllowOwner, RoleReviewer: AllowOwner, RoleClient: AllowOwner},
	ActionSubmit:         {RoleAdmin: AllowOwner, RoleReviewer: AllowOwner, RoleClient: AllowOwner},
	ActionResubmit:       {RoleAdmin: AllowOwner, RoleReviewer: AllowOwner, RoleClient: AllowOwner},
	ActionApprove:        {RoleAdmin: Allow, RoleReviewer: Allow},
	ActionReject:         {RoleAdmin: Allow, RoleReviewer: Allow},
	ActionRequestChanges: {RoleAdmin: Allow, RoleReviewer: Allow},
	ActionSchedule:       {RoleAdmin: Allow, RoleReviewer: Allow, RoleClient: AllowOwner},
	ActionPublish:        {RoleAdmin: Allow, RoleReviewer: Allow, RoleClient: AllowOwner},
	ActionArchive:        {RoleAdmin: Allow},
	ActionViewMode:       {RoleAdmin: Allow, RoleReviewer: Allow, RoleClient: Allow},
	ActionControlMode:    {RoleAdmin: Allow},
	ActionReadAudit:      {RoleAdmin: Allow, RoleReviewer: Allow},
	ActionReadAnalytics:  {RoleAdmin: Allow, RoleReviewer: Allow},
}

// Lookup returns the grant for role performing action. Unknown roles and
// actions are denied.
func Lookup(role Role, action Action) Grant {
	return table[action][role]
}

// Authorize checks the role half of a permission and returns the grant so
// the caller can apply the ownership half once the target is loaded.
func Authorize(actor Actor, action Action) (Grant, error) {
	g := Lookup(actor.Role, action)
	if g == Deny {
		return Deny, apperr.Forbidden(string(actor.Role), string(action))
	}
	return g, nil
}

// CheckOwner enforces an AllowOwner grant against the target's owner.
func CheckOwner(actor Actor, g Grant, action Action, ownerID string) error {
	if g == AllowOwner && ownerID != actor.ID {
		return apperr.Forbidden(string(actor.Role), string(action)).
			With("reason", "not owner")
	}
	return nil
}

// Check runs Authorize and CheckOwner in one step.
func Check(actor Actor, action Action, ownerID string) error {
	g, err := Authorize(actor, action)
	if err != nil {
		return err
	}
	return CheckOwner(actor, g, action, ownerID)
}
