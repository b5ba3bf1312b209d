// Package auth holds the two authorization layers: casbin-backed RBAC for
// API actions (who may decide, who may replace an entry) and the field-level
// write resolver driven by the edit-request ledger.
package auth

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Role is the actor class. OWNER has unrestricted writes; STAFF writes are
// gated by approvals. Anything else is denied everywhere.
type Role string

const (
	RoleOwner Role = "OWNER"
	RoleStaff Role = "STAFF"
)

// ParseRole normalizes and validates a role string from the identity layer.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleOwner:
		return RoleOwner, nil
	case RoleStaff:
		return RoleStaff, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Actor is the authenticated caller as yielded by the identity collaborator.
type Actor struct {
	ID   string
	Name string
	Role Role
}

// Objects and actions for the RBAC layer.
const (
	ObjectEntry   = "entry"
	ObjectRequest = "request"

	ActionCreate = "create"
	ActionRead   = "read"
	ActionList   = "list"
	// ActionReplace is the OWNER's unconditional full-document write.
	ActionReplace = "replace"
	// ActionApply is the STAFF change-set write, gated per field by CanWrite.
	ActionApply  = "apply"
	ActionDecide = "decide"
	ActionCount  = "count"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

// rbacPolicies maps roles to permitted (object, action) pairs. Held in code
// rather than a policy file: the two roles are fixed by the domain.
var rbacPolicies = [][]string{
	{"OWNER", ObjectEntry, ActionCreate},
	{"OWNER", ObjectEntry, ActionRead},
	{"OWNER", ObjectEntry, ActionList},
	{"OWNER", ObjectEntry, ActionReplace},
	{"OWNER", ObjectRequest, ActionRead},
	{"OWNER", ObjectRequest, ActionList},
	{"OWNER", ObjectRequest, ActionDecide},
	{"OWNER", ObjectRequest, ActionCount},

	{"STAFF", ObjectEntry, ActionRead},
	{"STAFF", ObjectEntry, ActionList},
	{"STAFF", ObjectEntry, ActionApply},
	{"STAFF", ObjectRequest, ActionCreate},
	{"STAFF", ObjectRequest, ActionRead},
	{"STAFF", ObjectRequest, ActionList},
	{"STAFF", ObjectRequest, ActionCount},
}

// Authorizer answers role-level permission questions at the API boundary.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

func NewAuthorizer() (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("parse rbac model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	for _, p := range rbacPolicies {
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("add policy %v: %w", p, err)
		}
	}

	return &Authorizer{enforcer: enforcer}, nil
}

// Can reports whether the actor's role permits the action on the object.
// Evaluation errors deny.
func (a *Authorizer) Can(actor Actor, object, action string) bool {
	ok, err := a.enforcer.Enforce(string(actor.Role), object, action)
	if err != nil {
		return false
	}
	return ok
}
