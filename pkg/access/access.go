package access

import (
	"github.com/Range-Software/range-cloud/pkg/types"
)

// Authorize decides whether user may access a resource guarded by rights in
// the requested mode.
//
// ModeNone is an ownership check: only root or the owning user pass. Any
// rwx mode passes for root and members of the root group, otherwise the
// owner/group/other mask matching the user's relation to the rights must
// contain the requested mode.
func Authorize(user types.UserInfo, rights types.AccessRights, mode types.Mode) bool {
	if mode == types.ModeNone {
		return user.IsUser(types.RootUser) || user.Name == rights.Owner.User
	}

	if user.IsUser(types.RootUser) || user.HasGroup(types.RootGroup) {
		return true
	}

	if user.Name == rights.Owner.User && rights.Mode.User&mode != 0 {
		return true
	}
	if user.HasGroup(rights.Owner.Group) && rights.Mode.Group&mode != 0 {
		return true
	}
	return rights.Mode.Other&mode != 0
}
