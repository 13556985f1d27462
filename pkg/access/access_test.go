package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Range-Software/range-cloud/pkg/types"
)

func TestAuthorize(t *testing.T) {
	rights := types.AccessRights{
		Owner: types.AccessOwner{User: "alice", Group: "staff"},
		Mode: types.AccessMode{
			User:  types.ModeRead | types.ModeWrite,
			Group: types.ModeRead,
			Other: types.ModeNone,
		},
	}

	root := types.UserInfo{Name: "root", GroupNames: []string{"root"}}
	rootGroupMember := types.UserInfo{Name: "admin", GroupNames: []string{"root"}}
	owner := types.UserInfo{Name: "alice", GroupNames: []string{"staff"}}
	groupMember := types.UserInfo{Name: "bob", GroupNames: []string{"staff"}}
	other := types.UserInfo{Name: "carol", GroupNames: []string{"users"}}

	tests := []struct {
		name     string
		user     types.UserInfo
		mode     types.Mode
		expected bool
	}{
		{"root reads", root, types.ModeRead, true},
		{"root writes", root, types.ModeWrite, true},
		{"root group member writes", rootGroupMember, types.ModeWrite, true},
		{"owner reads", owner, types.ModeRead, true},
		{"owner writes", owner, types.ModeWrite, true},
		{"owner executes", owner, types.ModeExecute, false},
		{"group member reads", groupMember, types.ModeRead, true},
		{"group member writes", groupMember, types.ModeWrite, false},
		{"other reads", other, types.ModeRead, false},
		{"other writes", other, types.ModeWrite, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Authorize(tt.user, rights, tt.mode))
		})
	}
}

func TestAuthorizeOwnershipCheck(t *testing.T) {
	rights := types.AccessRights{
		Owner: types.AccessOwner{User: "alice", Group: "staff"},
		Mode: types.AccessMode{
			User:  types.ModeRead | types.ModeWrite,
			Group: types.ModeRead | types.ModeWrite,
			Other: types.ModeRead | types.ModeWrite,
		},
	}

	tests := []struct {
		name     string
		user     types.UserInfo
		expected bool
	}{
		{"root passes ownership", types.UserInfo{Name: "root"}, true},
		{"owner passes ownership", types.UserInfo{Name: "alice"}, true},
		{"root group member fails ownership", types.UserInfo{Name: "admin", GroupNames: []string{"root"}}, false},
		{"group member fails ownership", types.UserInfo{Name: "bob", GroupNames: []string{"staff"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Authorize(tt.user, rights, types.ModeNone))
		})
	}
}

func TestAuthorizeOtherMask(t *testing.T) {
	rights := types.AccessRights{
		Owner: types.AccessOwner{User: "alice", Group: "staff"},
		Mode: types.AccessMode{
			User:  types.ModeRead | types.ModeWrite,
			Group: types.ModeRead,
			Other: types.ModeRead,
		},
	}
	stranger := types.UserInfo{Name: "dave", GroupNames: []string{"users"}}

	assert.True(t, Authorize(stranger, rights, types.ModeRead))
	assert.False(t, Authorize(stranger, rights, types.ModeWrite))
}
