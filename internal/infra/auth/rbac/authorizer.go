package rbac

import (
	"errors"
	"strings"

	"bloodlink/internal/domain"
)

const (
	RoleDonor    = "bloodlink_donor"
	RoleReviewer = "bloodlink_reviewer"
	RoleAdmin    = "bloodlink_admin"

	AdminScope = "admin:*"

	PermissionSubmit     = "certificates:submit"
	PermissionReview     = "certificates:review"
	PermissionLedgerRead = "ledger:read"
	PermissionAdmin      = "admin:ledger"
)

// permissionRoles maps each permission onto the roles that satisfy it.
// Reviewers may do everything donors may; admin is granted everything.
var permissionRoles = map[string][]string{
	PermissionSubmit:     {RoleDonor, RoleReviewer},
	PermissionReview:     {RoleReviewer},
	PermissionLedgerRead: {RoleReviewer},
	PermissionAdmin:      {},
}

type AuthzError struct {
	Code string
	Err  error
}

func (e *AuthzError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code
}

func (e *AuthzError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type Authorizer struct {
	adminRole string
}

func NewAuthorizer() *Authorizer {
	return &Authorizer{adminRole: RoleAdmin}
}

func (a *Authorizer) Require(principal domain.Principal, permission string) error {
	if principal.Subject == "" {
		return domain.ErrUnauthorized
	}
	if permission == "" {
		return nil
	}
	if a.hasAdmin(principal) {
		return nil
	}
	if strings.HasPrefix(permission, "admin:") {
		return &AuthzError{Code: "MISSING_ROLE", Err: domain.ErrForbidden}
	}
	for _, role := range permissionRoles[permission] {
		if hasRole(principal, role) {
			return nil
		}
	}
	if hasScope(principal, permission) {
		return nil
	}
	return &AuthzError{Code: "MISSING_ROLE", Err: domain.ErrForbidden}
}

func (a *Authorizer) hasAdmin(principal domain.Principal) bool {
	if hasRole(principal, a.adminRole) {
		return true
	}
	return hasScope(principal, AdminScope)
}

func hasRole(principal domain.Principal, role string) bool {
	for _, r := range principal.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func hasScope(principal domain.Principal, scope string) bool {
	if scope == "" {
		return false
	}
	for _, s := range principal.Scopes {
		if s == scope || s == AdminScope {
			return true
		}
	}
	return false
}

func IsAuthzError(err error) (*AuthzError, bool) {
	var authz *AuthzError
	if errors.As(err, &authz) {
		return authz, true
	}
	return nil, false
}
