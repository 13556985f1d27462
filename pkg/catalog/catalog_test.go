package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Range-Software/range-cloud/pkg/log"
	"github.com/Range-Software/range-cloud/pkg/types"
)

func init() {
	_ = log.Init(log.Config{Level: "error"})
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "actions.json"))
	require.NoError(t, err)
	return c
}

func TestDefaultPolicyCoversActionNamespace(t *testing.T) {
	c := newTestCatalog(t)

	for _, name := range types.ActionNames() {
		assert.True(t, c.ContainsAction(name), name)
	}
	assert.Len(t, c.Actions(), len(types.ActionNames()))
}

func TestDefaultPolicyOwnership(t *testing.T) {
	c := newTestCatalog(t)

	tests := []struct {
		action string
		group  string
		other  types.Mode
	}{
		{types.ActionStop, types.RootGroup, types.ModeNone},
		{types.ActionUserAdd, types.RootGroup, types.ModeNone},
		{types.ActionFileUpdateAccessOwner, types.RootGroup, types.ModeNone},
		{types.ActionFileUpload, types.UserGroup, types.ModeNone},
		{types.ActionTest, types.UserGroup, types.ModeExecute},
		{types.ActionFileDownload, types.UserGroup, types.ModeExecute},
		{types.ActionProcess, types.RootGroup, types.ModeExecute},
		{types.ActionReportSubmit, types.UserGroup, types.ModeExecute},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			info := c.FindAction(tt.action)
			assert.Equal(t, types.RootUser, info.AccessRights.Owner.User)
			assert.Equal(t, tt.group, info.AccessRights.Owner.Group)
			assert.Equal(t, types.ModeExecute, info.AccessRights.Mode.User)
			assert.Equal(t, types.ModeExecute, info.AccessRights.Mode.Group)
			assert.Equal(t, tt.other, info.AccessRights.Mode.Other)
		})
	}
}

func TestOnDiskEntriesTakePrecedence(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "actions.json")

	custom := types.ActionInfo{
		Name: types.ActionTest,
		AccessRights: types.AccessRights{
			Owner: types.AccessOwner{User: "alice", Group: "staff"},
			Mode:  types.AccessMode{User: types.ModeExecute},
		},
	}
	data, err := json.Marshal(map[string]interface{}{"actions": []types.ActionInfo{custom}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(fileName, data, 0o600))

	c, err := New(fileName)
	require.NoError(t, err)

	assert.Equal(t, custom, c.FindAction(types.ActionTest))
	// The rest of the namespace was filled in.
	assert.Len(t, c.Actions(), len(types.ActionNames()))
}

func TestAuthorizeUser(t *testing.T) {
	c := newTestCatalog(t)

	root := types.UserInfo{Name: types.RootUser, GroupNames: []string{types.RootGroup}}
	user := types.UserInfo{Name: "alice", GroupNames: []string{types.UserGroup}}
	guest := types.UserInfo{Name: types.GuestUser, GroupNames: []string{types.GuestGroup}}

	assert.True(t, c.AuthorizeUser(root, types.ActionStop))
	assert.False(t, c.AuthorizeUser(user, types.ActionStop))
	assert.True(t, c.AuthorizeUser(user, types.ActionFileUpload))
	assert.False(t, c.AuthorizeUser(guest, types.ActionFileUpload))
	assert.True(t, c.AuthorizeUser(guest, types.ActionTest))
	assert.False(t, c.AuthorizeUser(user, "no.such.action"))
}

func TestUpdateAccessRights(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "actions.json")
	c, err := New(fileName)
	require.NoError(t, err)

	rights := types.AccessRights{
		Owner: types.AccessOwner{User: types.RootUser, Group: types.UserGroup},
		Mode:  types.AccessMode{User: types.ModeExecute, Group: types.ModeExecute, Other: types.ModeExecute},
	}
	updated, err := c.UpdateAccessRights(types.ActionStop, rights)
	require.NoError(t, err)
	assert.Equal(t, rights, updated.AccessRights)

	// Persisted: a reloaded catalog carries the update.
	reloaded, err := New(fileName)
	require.NoError(t, err)
	assert.Equal(t, rights, reloaded.FindAction(types.ActionStop).AccessRights)

	_, err = c.UpdateAccessRights("no.such.action", rights)
	assert.Error(t, err)

	_, err = c.UpdateAccessRights(types.ActionStop, types.AccessRights{})
	assert.Error(t, err)
}
