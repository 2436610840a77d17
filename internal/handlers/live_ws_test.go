package handlers_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AnshRaj112/taskverse-backend/internal/handlers"
	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/session"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

type liveClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialLive(t *testing.T, srv *httptest.Server, query string) *liveClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/live" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return &liveClient{t: t, conn: conn}
}

func (c *liveClient) send(msg handlers.LiveClientMessage) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// await reads until match accepts a message, failing after a few seconds.
func (c *liveClient) await(what string, match func(handlers.LiveServerMessage) bool) handlers.LiveServerMessage {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg handlers.LiveServerMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.t.Fatalf("waiting for %s: %v", what, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func (c *liveClient) awaitPhase(phase session.Phase) handlers.LiveServerMessage {
	c.t.Helper()
	return c.await(string(phase), func(m handlers.LiveServerMessage) bool {
		return m.Type == "session" && m.Session != nil && m.Session.Phase == phase
	})
}

func TestGatewaySessionAndWatches(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()
	defer h.gateway.Close()

	uid, token := h.signUp("ada@example.com")
	other, _ := h.signUp("bob@example.com")
	h.seedProfile(other, "bob@example.com", models.RoleUser, 0)

	c := dialLive(t, srv, "")
	defer c.conn.Close()

	c.awaitPhase(session.PhaseAnonymous)

	// Signing in provisions the missing profile.
	c.send(handlers.LiveClientMessage{Type: "auth", Token: token})
	ready := c.awaitPhase(session.PhaseReady)
	require.NotNil(t, ready.Session.Profile)
	assert.Equal(t, uid, ready.Session.Profile.ID)
	assert.Equal(t, models.RoleUser, ready.Session.Profile.Role)
	assert.Equal(t, 1, ready.Session.Profile.Level)
	assert.Equal(t, "ada@example.com", ready.Session.Principal.Email)

	c.send(handlers.LiveClientMessage{Type: "watch_doc", ID: "me", Path: store.UserPath(uid)})
	doc := c.await("own profile", func(m handlers.LiveServerMessage) bool {
		return m.Type == "doc" && m.ID == "me" && m.State != nil && !m.State.Loading
	})
	assert.Nil(t, doc.State.Error)
	data, ok := doc.State.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", data["email"])

	// Someone else's profile is refused: one toast and an error state.
	c.send(handlers.LiveClientMessage{Type: "watch_doc", ID: "bob", Path: store.UserPath(other)})
	var toast, denied bool
	c.await("denial", func(m handlers.LiveServerMessage) bool {
		switch {
		case m.Type == "permission-error":
			require.NotNil(t, m.Permission)
			assert.Equal(t, store.UserPath(other), m.Permission.Path)
			assert.Equal(t, models.OpReadOne, m.Permission.Operation)
			toast = true
		case m.Type == "doc" && m.ID == "bob" && m.State != nil && m.State.Error != nil:
			require.NotNil(t, m.State.Error.Permission)
			assert.Nil(t, m.State.Data)
			denied = true
		}
		return toast && denied
	})

	c.send(handlers.LiveClientMessage{Type: "ping"})
	c.await("pong", func(m handlers.LiveServerMessage) bool { return m.Type == "pong" })

	c.send(handlers.LiveClientMessage{Type: "unwatch", ID: "me"})
	c.await("unwatched", func(m handlers.LiveServerMessage) bool { return m.Type == "unwatched" && m.ID == "me" })

	// Signing out drops the remaining watch and returns to anonymous.
	c.send(handlers.LiveClientMessage{Type: "sign_out"})
	c.awaitPhase(session.PhaseAnonymous)
}

func TestGatewayRejectsBadToken(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()
	defer h.gateway.Close()

	c := dialLive(t, srv, "?token=tok-missing")
	defer c.conn.Close()

	msg := c.awaitPhase(session.PhaseError)
	require.NotNil(t, msg.Session.Error)
	assert.Nil(t, msg.Session.Principal)

	c.send(handlers.LiveClientMessage{Type: "bogus"})
	errMsg := c.await("error", func(m handlers.LiveServerMessage) bool { return m.Type == "error" })
	assert.Equal(t, "unknown message type", errMsg.Error)
}

func TestGatewayCloseEndsConnections(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	c := dialLive(t, srv, "")
	defer c.conn.Close()
	c.awaitPhase(session.PhaseAnonymous)

	h.gateway.Close()

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			return
		}
	}
}

func TestGatewayResentWatchKeepsBinding(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()
	defer h.gateway.Close()

	uid, token := h.signUp("ada@example.com")
	h.seedProfile(uid, "ada@example.com", models.RoleUser, 0)

	c := dialLive(t, srv, "?token="+token)
	defer c.conn.Close()
	c.awaitPhase(session.PhaseReady)

	q := store.NewQuery(store.CollectionTransactions).Where("userId", store.OpEq, uid)
	c.send(handlers.LiveClientMessage{Type: "watch_query", ID: "txs", Query: &q})
	first := c.await("transactions", func(m handlers.LiveServerMessage) bool {
		return m.Type == "query" && m.ID == "txs" && m.State != nil && !m.State.Loading
	})
	assert.Nil(t, first.State.Error)

	c.send(handlers.LiveClientMessage{Type: "watch_query", ID: "txs", Query: &q})
	c.send(handlers.LiveClientMessage{Type: "watch_doc", ID: "me", Path: store.UserPath(uid)})
	c.send(handlers.LiveClientMessage{Type: "watch_doc", ID: "me", Path: store.UserPath(uid)})
	c.send(handlers.LiveClientMessage{Type: "ping"})

	docFrames := 0
	c.await("pong", func(m handlers.LiveServerMessage) bool {
		switch {
		case m.Type == "query" && m.ID == "txs":
			t.Errorf("re-sent query produced a new frame: %+v", m.State)
		case m.Type == "unwatched":
			t.Errorf("re-sent watch was torn down: %s", m.ID)
		case m.Type == "doc" && m.ID == "me":
			docFrames++
		}
		return m.Type == "pong"
	})
	assert.LessOrEqual(t, docFrames, 2, "one loading frame and one data frame for the first watch_doc only")

	// A different kind under the same id replaces the watch.
	c.send(handlers.LiveClientMessage{Type: "watch_doc", ID: "txs", Path: store.UserPath(uid)})
	c.await("doc under reused id", func(m handlers.LiveServerMessage) bool {
		return m.Type == "doc" && m.ID == "txs" && m.State != nil && !m.State.Loading
	})
}
