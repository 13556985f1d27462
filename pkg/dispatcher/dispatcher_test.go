package dispatcher

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Range-Software/range-cloud/pkg/catalog"
	"github.com/Range-Software/range-cloud/pkg/directory"
	"github.com/Range-Software/range-cloud/pkg/filestore"
	"github.com/Range-Software/range-cloud/pkg/log"
	"github.com/Range-Software/range-cloud/pkg/mailer"
	"github.com/Range-Software/range-cloud/pkg/process"
	"github.com/Range-Software/range-cloud/pkg/report"
	"github.com/Range-Software/range-cloud/pkg/types"
)

func init() {
	_ = log.Init(log.Config{Level: "error"})
}

type fixture struct {
	dir     *directory.Directory
	disp    *Dispatcher
	replies chan types.Action
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()

	dir, err := directory.New(filepath.Join(base, "users.json"))
	require.NoError(t, err)

	actions, err := catalog.New(filepath.Join(base, "actions.json"))
	require.NoError(t, err)

	processes, err := process.New(process.Settings{
		ProcessesFile:      filepath.Join(base, "processes.json"),
		ProcessesDirectory: filepath.Join(base, "processes"),
		WorkingDirectory:   base,
		LogDirectory:       base,
		CaDirectory:        base,
	})
	require.NoError(t, err)

	files, err := filestore.New(filestore.Settings{
		StorePath: filepath.Join(base, "store"),
	}, dir)
	require.NoError(t, err)

	reports := report.New(report.Settings{
		ReportDirectory:  base,
		MaxReportLength:  10000,
		MaxCommentLength: 1000,
	})

	mail := mailer.New(mailer.Settings{Command: "/bin/true", SendTimeout: time.Second})

	disp := New(dir, actions, processes, files, reports, mail, "1.0.0-test")

	f := &fixture{
		dir:     dir,
		disp:    disp,
		replies: make(chan types.Action, 16),
	}
	disp.OnResolved(func(a types.Action) { f.replies <- a })

	files.Start()
	t.Cleanup(files.Stop)

	return f
}

func (f *fixture) resolve(t *testing.T, action types.Action) types.Action {
	t.Helper()
	f.disp.ResolveAction(action, "tester@127.0.0.1")
	select {
	case reply := <-f.replies:
		require.Equal(t, action.ID, reply.ID)
		return reply
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reply")
		return types.Action{}
	}
}

func action(name, executor string) types.Action {
	return types.Action{ID: uuid.New(), Name: name, Executor: executor}
}

func TestAnonymousTestActionEchoesData(t *testing.T) {
	f := newFixture(t)

	a := action(types.ActionTest, "")
	a.Data = []byte("ping")
	reply := f.resolve(t, a)

	assert.Equal(t, types.ErrNone, reply.ErrorType)
	assert.Equal(t, []byte("ping"), reply.Data)
}

func TestUnknownExecutorIsRejected(t *testing.T) {
	f := newFixture(t)

	reply := f.resolve(t, action(types.ActionTest, "nobody"))
	assert.Equal(t, types.ErrInvalidInput, reply.ErrorType)
}

func TestUnauthorizedActionIsRejected(t *testing.T) {
	f := newFixture(t)

	reply := f.resolve(t, action(types.ActionStop, "guest"))
	assert.Equal(t, types.ErrUnauthorized, reply.ErrorType)
}

func TestUnknownActionProducesInvalidInputReply(t *testing.T) {
	f := newFixture(t)

	reply := f.resolve(t, action("file.explode", "root"))
	assert.Equal(t, types.ErrInvalidInput, reply.ErrorType)
}

func TestUploadDownloadAuthorization(t *testing.T) {
	f := newFixture(t)

	// Admin uploads.
	upload := action(types.ActionFileUpload, "root")
	upload.ResourceName = "docs/readme.txt"
	upload.Data = []byte("hello")
	reply := f.resolve(t, upload)
	require.Equal(t, types.ErrNone, reply.ErrorType)

	var info types.FileInfo
	require.NoError(t, json.Unmarshal(reply.Data, &info))
	assert.Equal(t, "root", info.AccessRights.Owner.User)
	assert.Equal(t, types.UserGroup, info.AccessRights.Owner.Group)

	// Guest is "other" with an empty mask.
	download := action(types.ActionFileDownload, "guest")
	download.ResourceID = info.ID
	reply = f.resolve(t, download)
	assert.Equal(t, types.ErrUnauthorized, reply.ErrorType)

	// A member of the users group passes the group read mask.
	require.NoError(t, f.dir.AddUser(types.UserInfo{Name: "alice", GroupNames: []string{types.UserGroup}}))
	download = action(types.ActionFileDownload, "alice")
	download.ResourceID = info.ID
	reply = f.resolve(t, download)
	require.Equal(t, types.ErrNone, reply.ErrorType)
	assert.Equal(t, []byte("hello"), reply.Data)
}

func TestTokenGenerateIsOneShot(t *testing.T) {
	f := newFixture(t)

	generate := action(types.ActionUserTokenGenerate, "root")
	generate.ResourceName = "alice"
	reply := f.resolve(t, generate)
	require.Equal(t, types.ErrNone, reply.ErrorType)

	var token types.AuthToken
	require.NoError(t, json.Unmarshal(reply.Data, &token))
	assert.Equal(t, "alice", token.ResourceName)
	assert.NotEmpty(t, token.Content)
	assert.Greater(t, token.ValidityDate, time.Now().Unix())

	assert.True(t, f.dir.ValidateToken("alice", token.Content))
	assert.False(t, f.dir.ValidateToken("alice", token.Content))
}

func TestTokenOperationsAreSelfOrRootOnly(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.dir.AddUser(types.UserInfo{Name: "alice", GroupNames: []string{types.UserGroup}}))
	require.NoError(t, f.dir.AddUser(types.UserInfo{Name: "mallory", GroupNames: []string{types.UserGroup}}))

	// Catalog-wise the action is open to the users group, but the token
	// gate still rejects a foreign resource name.
	generate := action(types.ActionUserTokenGenerate, "mallory")
	generate.ResourceName = "alice"
	reply := f.resolve(t, generate)
	assert.Equal(t, types.ErrUnauthorized, reply.ErrorType)

	list := action(types.ActionUserTokenList, "mallory")
	list.ResourceName = "alice"
	reply = f.resolve(t, list)
	assert.Equal(t, types.ErrUnauthorized, reply.ErrorType)

	// The user itself passes.
	generate = action(types.ActionUserTokenGenerate, "alice")
	generate.ResourceName = "alice"
	reply = f.resolve(t, generate)
	assert.Equal(t, types.ErrNone, reply.ErrorType)

	list = action(types.ActionUserTokenList, "alice")
	list.ResourceName = "alice"
	reply = f.resolve(t, list)
	require.Equal(t, types.ErrNone, reply.ErrorType)

	var listing struct {
		Tokens []types.AuthToken `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(reply.Data, &listing))
	assert.Len(t, listing.Tokens, 1)
}

func TestGroupCascadeThroughActions(t *testing.T) {
	f := newFixture(t)

	add := action(types.ActionGroupAdd, "root")
	add.ResourceName = "g1"
	require.Equal(t, types.ErrNone, f.resolve(t, add).ErrorType)

	addUser := action(types.ActionUserAdd, "root")
	addUser.ResourceName = "u1"
	require.Equal(t, types.ErrNone, f.resolve(t, addUser).ErrorType)

	update := action(types.ActionUserUpdate, "root")
	update.ResourceName = "u1"
	update.Data, _ = json.Marshal(types.UserInfo{Name: "u1", GroupNames: []string{types.UserGroup, "g1"}})
	require.Equal(t, types.ErrNone, f.resolve(t, update).ErrorType)

	remove := action(types.ActionGroupRemove, "root")
	remove.ResourceName = "g1"
	require.Equal(t, types.ErrNone, f.resolve(t, remove).ErrorType)

	assert.Equal(t, []string{types.UserGroup}, f.dir.FindUser("u1").GroupNames)
}

func TestUserRegisterCreatesUsersGroupMember(t *testing.T) {
	f := newFixture(t)

	register := action(types.ActionUserRegister, "guest")
	register.ResourceName = "newcomer"
	reply := f.resolve(t, register)
	require.Equal(t, types.ErrNone, reply.ErrorType)

	user := f.dir.FindUser("newcomer")
	assert.Equal(t, []string{types.UserGroup}, user.GroupNames)
}

func TestStatisticsDocumentShape(t *testing.T) {
	f := newFixture(t)

	reply := f.resolve(t, action(types.ActionStatistics, "root"))
	require.Equal(t, types.ErrNone, reply.ErrorType)

	var doc struct {
		General struct {
			Version string `json:"version"`
		} `json:"general"`
		DateTime struct {
			Start   string `json:"start"`
			Current string `json:"current"`
			UpTime  string `json:"upTime"`
		} `json:"dateTime"`
		Services []map[string]interface{} `json:"services"`
	}
	require.NoError(t, json.Unmarshal(reply.Data, &doc))

	assert.Equal(t, "1.0.0-test", doc.General.Version)
	assert.Contains(t, doc.DateTime.UpTime, "days,")
	assert.Len(t, doc.Services, 6)

	names := map[string]bool{}
	for _, svc := range doc.Services {
		if name, ok := svc["name"].(string); ok {
			names[name] = true
		}
	}
	for _, expected := range []string{"fileService", "actionService", "processService", "reportService", "userService", "mailerService"} {
		assert.True(t, names[expected], expected)
	}
}

func TestStopActionResolvesAndTriggersShutdown(t *testing.T) {
	f := newFixture(t)

	stopped := make(chan struct{}, 1)
	f.disp.OnStop(func() { stopped <- struct{}{} })

	reply := f.resolve(t, action(types.ActionStop, "root"))
	assert.Equal(t, types.ErrNone, reply.ErrorType)
	assert.Equal(t, []byte("Stop server triggered"), reply.Data)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop callback was not invoked")
	}
}

func TestReportSubmitThroughAction(t *testing.T) {
	f := newFixture(t)

	submit := action(types.ActionReportSubmit, "guest")
	submit.Data, _ = json.Marshal(types.ReportRecord{Report: "broken", Comment: "c", CreatedAt: time.Now().Unix()})
	reply := f.resolve(t, submit)

	require.Equal(t, types.ErrNone, reply.ErrorType)
	assert.Contains(t, string(reply.Data), "has been stored")
}

func TestActionCatalogRightsUpdateThroughActions(t *testing.T) {
	f := newFixture(t)

	updateMode := action(types.ActionUpdateAccessMode, "root")
	updateMode.ResourceName = types.ActionFileUpload
	updateMode.Data, _ = json.Marshal(types.AccessMode{User: types.ModeExecute, Group: types.ModeExecute, Other: types.ModeExecute})
	reply := f.resolve(t, updateMode)
	require.Equal(t, types.ErrNone, reply.ErrorType)

	var info types.ActionInfo
	require.NoError(t, json.Unmarshal(reply.Data, &info))
	assert.Equal(t, types.ModeExecute, info.AccessRights.Mode.Other)
	// The owner is untouched by a mode update.
	assert.Equal(t, types.RootUser, info.AccessRights.Owner.User)
}

func TestFileListThroughActions(t *testing.T) {
	f := newFixture(t)

	upload := action(types.ActionFileUpload, "root")
	upload.ResourceName = "a.txt"
	upload.Data = []byte("x")
	require.Equal(t, types.ErrNone, f.resolve(t, upload).ErrorType)

	list := action(types.ActionFileList, "root")
	reply := f.resolve(t, list)
	require.Equal(t, types.ErrNone, reply.ErrorType)

	var listing struct {
		Files []types.FileInfo `json:"files"`
	}
	require.NoError(t, json.Unmarshal(reply.Data, &listing))
	assert.Len(t, listing.Files, 1)
}

func TestPendingRequestsDrainToZero(t *testing.T) {
	f := newFixture(t)

	upload := action(types.ActionFileUpload, "root")
	upload.ResourceName = "a.txt"
	upload.Data = []byte("x")
	require.Equal(t, types.ErrNone, f.resolve(t, upload).ErrorType)

	assert.Equal(t, 0, f.disp.PendingRequests())
}
