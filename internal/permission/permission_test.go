package permission_test

import (
	"testing"

	apperr "github.com/framestack/framestack/internal/errors"
	"github.com/framestack/framestack/internal/permission"
)

func TestPolicy_GrantedActionAllowed(t *testing.T) {
	p := permission.NewPolicy()
	p.Grant("alice", permission.ActionInitiate)

	err := p.Enforce(permission.NewContext("alice", permission.ActionInitiate, "handoff", "team"))
	if err != nil {
		t.Errorf("granted action denied: %v", err)
	}
}

func TestPolicy_UngrantedActionDenied(t *testing.T) {
	p := permission.NewPolicy()
	p.Grant("alice", permission.ActionInitiate)

	tests := []struct {
		name  string
		actor string
		act   string
	}{
		{"unknown actor", "mallory", permission.ActionInitiate},
		{"ungranted action", "alice", permission.ActionApprove},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Enforce(permission.NewContext(tt.actor, tt.act, "handoff", "r1"))
			if !apperr.Is(err, apperr.ErrPermissionDenied) {
				t.Errorf("error = %v, want ErrPermissionDenied", err)
			}
		})
	}
}

func TestAllowAll(t *testing.T) {
	m := permission.AllowAll()
	if err := m.Enforce(permission.NewContext("anyone", "anything", "handoff", "")); err != nil {
		t.Errorf("AllowAll denied: %v", err)
	}
}
