// package models defines the data model shared by the session manager and the dashboard client
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the dashboard role assigned to an admin account by the backend.
type Role string

const (
	RoleSuperAdmin  Role = "SUPER_ADMIN"
	RoleAdmin       Role = "ADMIN"
	RoleContributor Role = "CONTRIBUTOR"
	RoleEditor      Role = "EDITOR"
)

// ParseRole normalizes s into a [Role]. Unknown values are returned as-is so callers can reject them.
func ParseRole(s string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(s)))
}

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleContributor, RoleEditor:
		return true
	default:
		return false
	}
}

// CanHoldSession reports whether the role may hold an active dashboard session.
//
// EDITOR accounts exist at the identity provider but are rejected here.
func (r Role) CanHoldSession() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleContributor:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// Identity is the authenticated admin user as returned by the backend verification endpoint.
type Identity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	IsActive    bool   `json:"isActive"`
	ProviderUID string `json:"providerUid,omitempty"`
}

// Validate checks the fields the session layer relies on.
func (i *Identity) Validate() error {
	var errs []error
	if i.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if i.Email == "" {
		errs = append(errs, errors.New("email is required"))
	}
	if !i.Role.IsValid() {
		errs = append(errs, fmt.Errorf("unknown role %q", i.Role))
	}
	return errors.Join(errs...)
}

// DisplayName returns the name, falling back to the email.
func (i *Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Email
}
