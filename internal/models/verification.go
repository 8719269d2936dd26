package models

import "fmt"

// VerificationKind tags the outcome of a backend identity check.
type VerificationKind int

const (
	VerifyEligible VerificationKind = iota
	VerifyRoleRejected
	VerifyInactive
	VerifyUnreachable // connectivity failure, eligible for the cached snapshot
	VerifyFailed      // any other error, terminal for the attempt
)

func (k VerificationKind) String() string {
	switch k {
	case VerifyEligible:
		return "eligible"
	case VerifyRoleRejected:
		return "role_rejected"
	case VerifyInactive:
		return "inactive"
	case VerifyUnreachable:
		return "unreachable"
	case VerifyFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Verification is the single typed result of checking a principal against the backend.
//
// Identity is set for Eligible, RoleRejected and Inactive. Err is set for Unreachable and Failed.
type Verification struct {
	Kind     VerificationKind
	Identity *Identity
	Err      error
}

// Eligible builds an eligible result.
func Eligible(id *Identity) Verification {
	return Verification{Kind: VerifyEligible, Identity: id}
}

// Classify turns a decoded backend identity into a verification result.
//
// Role eligibility is checked before the active flag.
func Classify(id *Identity) Verification {
	switch {
	case !id.Role.CanHoldSession():
		return Verification{Kind: VerifyRoleRejected, Identity: id}
	case !id.IsActive:
		return Verification{Kind: VerifyInactive, Identity: id}
	default:
		return Eligible(id)
	}
}

// Unreachable builds a connectivity failure result.
func Unreachable(err error) Verification {
	return Verification{Kind: VerifyUnreachable, Err: err}
}

// Failed builds a terminal failure result.
func Failed(err error) Verification {
	return Verification{Kind: VerifyFailed, Err: err}
}

func (v Verification) String() string {
	if v.Err != nil {
		return fmt.Sprintf("%s: %v", v.Kind, v.Err)
	}
	return v.Kind.String()
}
