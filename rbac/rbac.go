// Package rbac holds the role policy applied to every document operation.
// The store never filters by role; everything that reaches a user passes
// through here first.
package rbac

import (
	"errors"
	"fmt"

	"paperpulse/types"
)

// ErrDenied marks policy violations so transports can map them to 403.
var ErrDenied = errors.New("permission denied")

var rank = map[types.Role]int{
	types.RoleEmployee:  1,
	types.RoleManager:   2,
	types.RoleExecutive: 3,
}

// GrantableRoles returns the ACL entries a user with the given role may
// assign to a document. This is also the default ACL on upload.
func GrantableRoles(role types.Role) []types.Role {
	switch role {
	case types.RoleExecutive:
		return []types.Role{types.RoleExecutive, types.RoleManager, types.RoleEmployee}
	case types.RoleManager:
		return []types.Role{types.RoleManager, types.RoleEmployee}
	default:
		return []types.Role{types.RoleEmployee}
	}
}

// CheckGrant verifies that every role in the requested ACL is grantable by
// the uploader.
func CheckGrant(uploader types.Role, acl []types.Role) error {
	for _, granted := range acl {
		if rank[granted] > rank[uploader] {
			return fmt.Errorf("%w: %s cannot assign %s-level access", ErrDenied, uploader, granted)
		}
	}
	return nil
}

// CanView reports whether a user sees a document. Executives see every
// document; everyone else needs their role in the ACL and a department
// match with the uploader.
func CanView(user types.Role, department string, acl []types.Role, docDepartment string) bool {
	if user == types.RoleExecutive {
		return true
	}
	if department != docDepartment {
		return false
	}
	for _, role := range acl {
		if role == user {
			return true
		}
	}
	return false
}

// CanUpload reports whether the role may ingest documents at all.
func CanUpload(role types.Role) bool {
	return role == types.RoleExecutive || role == types.RoleManager
}

// CanDelete reports whether the role may delete a document with the given
// ACL. Employees never delete; Managers cannot delete Executive-tagged
// documents.
func CanDelete(role types.Role, acl []types.Role) bool {
	switch role {
	case types.RoleExecutive:
		return true
	case types.RoleManager:
		for _, r := range acl {
			if r == types.RoleExecutive {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// CanManageUsers gates user creation and listing.
func CanManageUsers(role types.Role) bool {
	return role == types.RoleExecutive
}

// CanReadAudit gates the audit-log endpoint.
func CanReadAudit(role types.Role) bool {
	return role == types.RoleExecutive
}
