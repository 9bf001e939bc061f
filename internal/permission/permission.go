// Package permission authorizes handoff-related actions.
//
// The Manager interface is the seam to an external authorization service;
// the in-process Policy implementation covers single-machine deployments
// where the rule set is small and static.
package permission

import (
	"fmt"

	apperr "github.com/framestack/framestack/internal/errors"
)

// Context describes one authorization check.
type Context struct {
	Actor      string `json:"actor"`
	Action     string `json:"action"`
	Resource   string `json:"resource"`
	ResourceID string `json:"resource_id,omitempty"`
}

// NewContext builds an authorization context for an action on a resource.
func NewContext(actor, action, resource, resourceID string) Context {
	return Context{Actor: actor, Action: action, Resource: resource, ResourceID: resourceID}
}

// Manager authorizes actions. Enforce returns ErrPermissionDenied when the
// actor may not perform the action.
type Manager interface {
	Enforce(ctx Context) error
}

// Actions checked by the handoff workflow.
const (
	ActionInitiate = "handoff.initiate"
	ActionApprove  = "handoff.approve"
	ActionCancel   = "handoff.cancel"
)

// Policy is a rule-based Manager: each actor maps to the set of actions it
// may perform. An actor absent from the rule table is denied everything.
type Policy struct {
	rules map[string]map[string]bool
}

// NewPolicy creates an empty policy. Use Grant to add rules.
func NewPolicy() *Policy {
	return &Policy{rules: make(map[string]map[string]bool)}
}

// Grant allows an actor to perform an action.
func (p *Policy) Grant(actor, action string) {
	if p.rules[actor] == nil {
		p.rules[actor] = make(map[string]bool)
	}
	p.rules[actor][action] = true
}

// Enforce implements Manager.
func (p *Policy) Enforce(ctx Context) error {
	if p.rules[ctx.Actor][ctx.Action] {
		return nil
	}
	return fmt.Errorf("%w: actor %q may not perform %q on %s %q",
		apperr.ErrPermissionDenied, ctx.Actor, ctx.Action, ctx.Resource, ctx.ResourceID)
}

// allowAll authorizes everything; the default for local single-user use.
type allowAll struct{}

func (allowAll) Enforce(Context) error { return nil }

// AllowAll returns a Manager that authorizes every action.
func AllowAll() Manager { return allowAll{} }
