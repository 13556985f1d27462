package directory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Range-Software/range-cloud/pkg/log"
	"github.com/Range-Software/range-cloud/pkg/types"
)

func init() {
	_ = log.Init(log.Config{Level: "error"})
}

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	return d
}

func TestSeedOnFirstBoot(t *testing.T) {
	d := newTestDirectory(t)

	assert.True(t, d.ContainsUser(types.RootUser))
	assert.True(t, d.ContainsUser(types.GuestUser))
	assert.True(t, d.ContainsGroup(types.RootGroup))
	assert.True(t, d.ContainsGroup(types.UserGroup))
	assert.True(t, d.ContainsGroup(types.GuestGroup))

	root := d.FindUser(types.RootUser)
	assert.True(t, root.HasGroup(types.RootGroup))
}

func TestAddUserValidation(t *testing.T) {
	d := newTestDirectory(t)

	tests := []struct {
		name    string
		user    types.UserInfo
		wantErr bool
	}{
		{"valid user", types.UserInfo{Name: "alice", GroupNames: []string{types.UserGroup}}, false},
		{"invalid name", types.UserInfo{Name: "not a name"}, true},
		{"duplicate name", types.UserInfo{Name: "root"}, true},
		{"unknown group", types.UserInfo{Name: "bob", GroupNames: []string{"ghosts"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.AddUser(tt.user)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.ErrInvalidInput, types.TypeOf(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSetAndRemoveUser(t *testing.T) {
	d := newTestDirectory(t)

	require.NoError(t, d.AddUser(types.UserInfo{Name: "alice", GroupNames: []string{types.UserGroup}}))

	updated := types.UserInfo{Name: "alice", GroupNames: []string{types.UserGroup, types.GuestGroup}}
	require.NoError(t, d.SetUser("alice", updated))
	assert.Equal(t, updated, d.FindUser("alice"))

	assert.Error(t, d.SetUser("nobody", updated))

	require.NoError(t, d.RemoveUser("alice"))
	assert.False(t, d.ContainsUser("alice"))
	assert.Error(t, d.RemoveUser("alice"))
}

func TestPersistenceRoundTrip(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "users.json")

	d, err := New(fileName)
	require.NoError(t, err)

	require.NoError(t, d.AddGroup(types.GroupInfo{Name: "staff"}))
	require.NoError(t, d.AddUser(types.UserInfo{Name: "alice", GroupNames: []string{types.UserGroup, "staff"}}))
	require.NoError(t, d.AddToken(types.AuthToken{
		ID:           uuid.New(),
		ResourceName: "alice",
		Content:      "secret",
		ValidityDate: time.Now().Add(time.Hour).Unix(),
	}))

	reloaded, err := New(fileName)
	require.NoError(t, err)

	assert.Equal(t, d.Users(), reloaded.Users())
	assert.Equal(t, d.Groups(), reloaded.Groups())
	assert.Equal(t, d.Tokens(), reloaded.Tokens())
}

func TestTokenDuplicates(t *testing.T) {
	d := newTestDirectory(t)

	token := types.AuthToken{
		ID:           uuid.New(),
		ResourceName: "alice",
		Content:      "secret",
		ValidityDate: time.Now().Add(time.Hour).Unix(),
	}
	require.NoError(t, d.AddToken(token))

	duplicateID := token
	assert.Error(t, d.AddToken(duplicateID))

	duplicatePair := token
	duplicatePair.ID = uuid.New()
	assert.Error(t, d.AddToken(duplicatePair))

	assert.Error(t, d.AddToken(types.AuthToken{}))
}

func TestValidateTokenIsOneShot(t *testing.T) {
	d := newTestDirectory(t)

	token := types.AuthToken{
		ID:           uuid.New(),
		ResourceName: "alice",
		Content:      "secret",
		ValidityDate: time.Now().Add(time.Hour).Unix(),
	}
	require.NoError(t, d.AddToken(token))

	assert.True(t, d.ValidateToken("alice", "secret"))
	// Consumed on first validation.
	assert.False(t, d.ValidateToken("alice", "secret"))
	assert.False(t, d.ContainsToken("alice", "secret"))
}

func TestValidateExpiredTokenIsConsumed(t *testing.T) {
	d := newTestDirectory(t)

	token := types.AuthToken{
		ID:           uuid.New(),
		ResourceName: "alice",
		Content:      "stale",
		ValidityDate: time.Now().Add(-time.Hour).Unix(),
	}
	require.NoError(t, d.AddToken(token))

	assert.False(t, d.ValidateToken("alice", "stale"))
	assert.False(t, d.ContainsToken("alice", "stale"))
}

func TestGroupRemovalCascade(t *testing.T) {
	d := newTestDirectory(t)

	var changed []types.UserInfo
	d.OnUserChanged(func(u types.UserInfo) { changed = append(changed, u) })

	require.NoError(t, d.AddGroup(types.GroupInfo{Name: "g1"}))
	require.NoError(t, d.AddUser(types.UserInfo{Name: "u1", GroupNames: []string{types.UserGroup, "g1"}}))

	require.NoError(t, d.RemoveGroup("g1"))

	u1 := d.FindUser("u1")
	assert.Equal(t, []string{types.UserGroup}, u1.GroupNames)
	require.Len(t, changed, 1)
	assert.Equal(t, "u1", changed[0].Name)

	assert.Error(t, d.RemoveGroup("g1"))
}

func TestStatisticsCounters(t *testing.T) {
	d := newTestDirectory(t)

	doc := d.Statistics()
	counters, ok := doc["counters"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(2), counters["users"])
	assert.Equal(t, int64(3), counters["groups"])
}
