package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Range-Software/range-cloud/pkg/directory"
	"github.com/Range-Software/range-cloud/pkg/log"
	"github.com/Range-Software/range-cloud/pkg/types"
)

func init() {
	_ = log.Init(log.Config{Level: "error"})
}

// echoDispatcher resolves every action immediately, echoing the payload.
type echoDispatcher struct {
	hub  *Hub
	last types.Action
	from string
}

func (d *echoDispatcher) ResolveAction(action types.Action, from string) {
	d.last = action
	d.from = from
	d.hub.Deliver(action.Reply(action.Data, types.ErrNone))
}

func newTestListener(settings Settings, validator TokenValidator) (*Listener, *echoDispatcher) {
	hub := NewHub()
	disp := &echoDispatcher{hub: hub}
	return NewListener(settings, disp, hub, validator), disp
}

func TestActionRoundTrip(t *testing.T) {
	l, disp := newTestListener(Settings{Kind: Public}, nil)
	srv := httptest.NewServer(l.Handler())
	defer srv.Close()

	actionID := uuid.New()
	resourceID := uuid.New()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/action/test", bytes.NewReader([]byte("ping")))
	require.NoError(t, err)
	req.Header.Set(HeaderActionID, actionID.String())
	req.Header.Set(HeaderResourceName, "docs/readme.txt")
	req.Header.Set(HeaderResourceID, resourceID.String())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "None", resp.Header.Get(HeaderError))
	assert.Equal(t, actionID.String(), resp.Header.Get(HeaderActionID))

	assert.Equal(t, "test", disp.last.Name)
	assert.Equal(t, actionID, disp.last.ID)
	assert.Equal(t, "docs/readme.txt", disp.last.ResourceName)
	assert.Equal(t, resourceID, disp.last.ResourceID)
	assert.Equal(t, []byte("ping"), disp.last.Data)
	// Anonymous clients resolve to an empty executor; the dispatcher maps
	// that to guest.
	assert.Empty(t, disp.last.Executor)
	assert.Contains(t, disp.from, "guest@")
}

func TestGeneratedActionID(t *testing.T) {
	l, disp := newTestListener(Settings{Kind: Public}, nil)
	srv := httptest.NewServer(l.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/action/test", "application/octet-stream", bytes.NewReader(nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, uuid.Nil, disp.last.ID)
}

func TestInvalidHeadersAreRejected(t *testing.T) {
	l, _ := newTestListener(Settings{Kind: Public}, nil)
	srv := httptest.NewServer(l.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/action/test", bytes.NewReader(nil))
	require.NoError(t, err)
	req.Header.Set(HeaderActionID, "not-a-uuid")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimiting(t *testing.T) {
	l, _ := newTestListener(Settings{Kind: Public, RateLimitPerSecond: 2}, nil)
	srv := httptest.NewServer(l.Handler())
	defer srv.Close()

	var throttled bool
	for i := 0; i < 10; i++ {
		resp, err := http.Post(srv.URL+"/action/test", "application/octet-stream", bytes.NewReader(nil))
		require.NoError(t, err)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			throttled = true
		}
	}
	assert.True(t, throttled, "expected the burst to hit the rate limit")
}

func TestBearerTokenIsValidatedAndConsumed(t *testing.T) {
	dir, err := directory.New(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)

	content, err := types.GenerateTokenContent()
	require.NoError(t, err)
	require.NoError(t, dir.AddToken(types.AuthToken{
		ID:           uuid.New(),
		ResourceName: "alice",
		Content:      content,
		ValidityDate: types.ValidityMonthsFromNow(1),
	}))

	l, disp := newTestListener(Settings{Kind: Public}, dir)
	srv := httptest.NewServer(l.Handler())
	defer srv.Close()

	send := func() *http.Response {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/action/test", bytes.NewReader(nil))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+content)
		req.Header.Set(HeaderExecutor, "alice")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := send()
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", disp.last.Executor)

	// The token was consumed on first validation.
	resp = send()
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerTokenWithoutValidatorFails(t *testing.T) {
	l, _ := newTestListener(Settings{Kind: Public}, nil)
	srv := httptest.NewServer(l.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/action/test", bytes.NewReader(nil))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer whatever")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHubDeliverUnknownIDIsDropped(t *testing.T) {
	hub := NewHub()
	// No handler is waiting; Deliver must not panic or block.
	hub.Deliver(types.Action{ID: uuid.New()})
}
