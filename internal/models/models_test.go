package models

import (
	"errors"
	"testing"
)

func TestRole(t *testing.T) {
	tc := []struct {
		role    Role
		valid   bool
		session bool
	}{
		{role: RoleSuperAdmin, valid: true, session: true},
		{role: RoleAdmin, valid: true, session: true},
		{role: RoleContributor, valid: true, session: true},
		{role: RoleEditor, valid: true, session: false},
		{role: Role("VIEWER"), valid: false, session: false},
		{role: Role(""), valid: false, session: false},
	}

	for _, tt := range tc {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := tt.role.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
			if got := tt.role.CanHoldSession(); got != tt.session {
				t.Errorf("CanHoldSession() = %v, want %v", got, tt.session)
			}
		})
	}

	t.Run("ParseRole", func(t *testing.T) {
		if got := ParseRole(" admin "); got != RoleAdmin {
			t.Errorf("ParseRole() = %q, want %q", got, RoleAdmin)
		}
	})
}

func TestIdentity(t *testing.T) {
	t.Run("Validate", func(t *testing.T) {
		valid := &Identity{ID: "1", Email: "a@example.com", Role: RoleAdmin}
		if err := valid.Validate(); err != nil {
			t.Errorf("expected valid identity, got %v", err)
		}

		invalid := &Identity{Role: "NOPE"}
		if err := invalid.Validate(); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("DisplayName", func(t *testing.T) {
		id := &Identity{Email: "a@example.com"}
		if id.DisplayName() != "a@example.com" {
			t.Errorf("expected email fallback, got %s", id.DisplayName())
		}
		id.Name = "Ada"
		if id.DisplayName() != "Ada" {
			t.Errorf("expected name, got %s", id.DisplayName())
		}
	})
}

func TestClassify(t *testing.T) {
	tc := []struct {
		name string
		id   Identity
		want VerificationKind
	}{
		{name: "admin active", id: Identity{Role: RoleAdmin, IsActive: true}, want: VerifyEligible},
		{name: "contributor active", id: Identity{Role: RoleContributor, IsActive: true}, want: VerifyEligible},
		{name: "editor active", id: Identity{Role: RoleEditor, IsActive: true}, want: VerifyRoleRejected},
		{name: "editor inactive", id: Identity{Role: RoleEditor, IsActive: false}, want: VerifyRoleRejected},
		{name: "admin inactive", id: Identity{Role: RoleAdmin, IsActive: false}, want: VerifyInactive},
		{name: "unknown role", id: Identity{Role: "GUEST", IsActive: true}, want: VerifyRoleRejected},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.id
			got := Classify(&id)
			if got.Kind != tt.want {
				t.Errorf("Classify() = %v, want %v", got.Kind, tt.want)
			}
			if got.Identity != &id {
				t.Error("expected identity to be carried on the result")
			}
		})
	}

	t.Run("failure variants", func(t *testing.T) {
		cause := errors.New("dial tcp: connection refused")
		if v := Unreachable(cause); v.Kind != VerifyUnreachable || !errors.Is(v.Err, cause) {
			t.Errorf("unexpected unreachable result %v", v)
		}
		if v := Failed(cause); v.Kind != VerifyFailed || v.String() != "failed: dial tcp: connection refused" {
			t.Errorf("unexpected failed result %v", v)
		}
	})
}
