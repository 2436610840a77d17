package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/internal/auth"
	"github.com/AnshRaj112/taskverse-backend/internal/events"
	"github.com/AnshRaj112/taskverse-backend/internal/live"
	"github.com/AnshRaj112/taskverse-backend/internal/middleware"
	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/services"
	"github.com/AnshRaj112/taskverse-backend/internal/session"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 90 * time.Second
	livePingPeriod = 30 * time.Second
	liveReadLimit  = 64 * 1024
	liveSendBuffer = 128
	maxLiveWatches = 32
)

// Client message types.
const (
	msgAuth       = "auth"
	msgSignOut    = "sign_out"
	msgWatchDoc   = "watch_doc"
	msgWatchQuery = "watch_query"
	msgUnwatch    = "unwatch"
	msgPing       = "ping"
)

// Server message types.
const (
	msgSession         = "session"
	msgDoc             = "doc"
	msgQuery           = "query"
	msgUnwatched       = "unwatched"
	msgPermissionError = "permission-error"
	msgError           = "error"
	msgPong            = "pong"
)

// LiveClientMessage is a message coming from the browser.
type LiveClientMessage struct {
	Type  string       `json:"type"`
	ID    string       `json:"id,omitempty"`    // watch id chosen by the client
	Token string       `json:"token,omitempty"` // auth
	Path  string       `json:"path,omitempty"`  // watch_doc
	Query *store.Query `json:"query,omitempty"` // watch_query; null unbinds
}

// LiveServerMessage is a message sent to the browser.
type LiveServerMessage struct {
	Type       string                    `json:"type"`
	ID         string                    `json:"id,omitempty"`
	Session    *SessionView              `json:"session,omitempty"`
	State      *StateView                `json:"state,omitempty"`
	Permission *models.PermissionContext `json:"permission,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

// ErrorView is the wire form of a binding error.
type ErrorView struct {
	Message    string                    `json:"message"`
	Permission *models.PermissionContext `json:"permission,omitempty"`
}

// StateView is the wire form of a live binding state.
type StateView struct {
	Data    any        `json:"data"`
	Loading bool       `json:"loading"`
	Error   *ErrorView `json:"error,omitempty"`
}

// SessionView is the wire form of a session snapshot.
type SessionView struct {
	Phase     session.Phase       `json:"phase"`
	Principal *models.Principal   `json:"principal,omitempty"`
	Profile   *models.UserProfile `json:"profile,omitempty"`
	Loading   bool                `json:"loading"`
	Error     *ErrorView          `json:"error,omitempty"`
}

func errorView(err error) *ErrorView {
	if err == nil {
		return nil
	}
	v := &ErrorView{Message: err.Error()}
	var permErr *models.PermissionError
	if errors.As(err, &permErr) {
		c := permErr.Context()
		v.Permission = &c
	}
	return v
}

// GatewayOptions configure a Gateway. Roles and Avatar feed profile
// provisioning.
type GatewayOptions struct {
	Roles          session.RolePolicy
	Avatar         session.AvatarFunc
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Gateway serves /ws/live. Each connection gets its own event loop, error
// channel, auth state and session binding, and may hold live document and
// query watches.
type Gateway struct {
	store    store.Store
	auth     *auth.Service
	audit    *services.DenialAudit
	opts     GatewayOptions
	logger   *zap.Logger
	upgrader websocket.Upgrader

	base     context.Context
	shutdown context.CancelFunc
}

// NewGateway wires the gateway. s must be the unguarded store: live bindings
// report their own denials. audit may be nil.
func NewGateway(s store.Store, authSvc *auth.Service, audit *services.DenialAudit, opts GatewayOptions) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{store: s, auth: authSvc, audit: audit, opts: opts, logger: logger}
	g.base, g.shutdown = context.WithCancel(context.Background())
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// Close ends every open connection. Register it with http.Server.RegisterOnShutdown:
// hijacked connections are not closed by Shutdown.
func (g *Gateway) Close() {
	g.shutdown()
}

// checkOrigin admits non-browser clients (no Origin) and the CORS allow-list.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(g.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.opts.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}

// closer is a live watch.
type closer interface {
	Close()
}

// liveConn is one WebSocket client. Fields below loop are owned by the loop.
type liveConn struct {
	g      *Gateway
	ctx    context.Context
	cancel context.CancelFunc
	out    chan LiveServerMessage
	state  *auth.State
	bus    *events.Bus
	loop   *live.Loop

	binding *session.Binding
	watches map[string]closer
	owner   string // uid/role the watches were opened as
}

// ServeHTTP upgrades the request. An optional bearer token (header or ?token=)
// signs the connection in straight away; otherwise it starts anonymous and
// can send an auth message later.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(g.base)
	defer cancel()

	c := &liveConn{
		g:       g,
		ctx:     ctx,
		cancel:  cancel,
		out:     make(chan LiveServerMessage, liveSendBuffer),
		state:   auth.NewState(g.auth),
		bus:     events.NewBus(g.logger),
		loop:    live.NewLoop(),
		watches: make(map[string]closer),
	}

	// Toast forwarder and audit for every denial on this connection.
	c.bus.On(events.TopicPermissionError, func(err *models.PermissionError) {
		pc := err.Context()
		c.send(LiveServerMessage{Type: msgPermissionError, Permission: &pc})
	})
	if g.audit != nil {
		c.bus.On(events.TopicPermissionError, g.audit.Listener(c.uid))
	}

	c.binding = session.New(ctx, c.loop, g.store, c.bus, c.state, session.Options{
		Roles:    g.opts.Roles,
		Avatar:   g.opts.Avatar,
		OnChange: c.sessionChanged,
		Logger:   g.logger,
	})
	c.loop.Post(c.binding.Start)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		c.loop.Run(ctx)
	}()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(conn)
	}()

	c.signIn(token)
	c.readLoop(conn)

	cancel()
	<-loopDone
	<-writerDone
	// The loop has stopped, so its state can be released from here.
	c.binding.Close()
	c.closeWatches(false)
}

func (c *liveConn) uid() string {
	if p := c.state.Principal(); p != nil {
		return p.UID
	}
	return ""
}

// send queues msg for the writer. A client that cannot keep up is dropped.
func (c *liveConn) send(msg LiveServerMessage) {
	select {
	case c.out <- msg:
	case <-c.ctx.Done():
	default:
		c.g.logger.Warn("Live client too slow, closing connection", zap.String("uid", c.uid()))
		c.cancel()
	}
}

func (c *liveConn) writeLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()
	defer conn.Close() // unblocks the reader once the connection is cancelled

	for {
		select {
		case msg := <-c.out:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (c *liveConn) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(liveReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(livePongWait))

		var msg LiveClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(LiveServerMessage{Type: msgError, Error: "invalid message"})
			continue
		}
		c.handle(msg)
		if c.ctx.Err() != nil {
			return
		}
	}
}

func (c *liveConn) handle(msg LiveClientMessage) {
	switch msg.Type {
	case msgAuth:
		c.signIn(msg.Token)
	case msgSignOut:
		if err := c.state.SignOut(c.ctx); err != nil {
			c.g.logger.Warn("Live sign out failed", zap.Error(err))
		}
	case msgWatchDoc:
		if msg.ID == "" {
			c.send(LiveServerMessage{Type: msgError, Error: "watch id is required"})
			return
		}
		id, path := msg.ID, strings.TrimSpace(msg.Path)
		c.loop.Post(func() { c.watchDoc(id, path) })
	case msgWatchQuery:
		if msg.ID == "" {
			c.send(LiveServerMessage{Type: msgError, Error: "watch id is required"})
			return
		}
		id, q := msg.ID, msg.Query
		c.loop.Post(func() { c.watchQuery(id, q) })
	case msgUnwatch:
		id := msg.ID
		c.loop.Post(func() { c.unwatch(id) })
	case msgPing:
		c.send(LiveServerMessage{Type: msgPong})
	default:
		c.send(LiveServerMessage{Type: msgError, Error: "unknown message type"})
	}
}

// signIn resolves token on the reader goroutine; the session binding picks
// the result up on the loop. Resolution failures reach the client through the
// session error phase.
func (c *liveConn) signIn(token string) {
	if _, err := c.state.SignInWithToken(c.ctx, strings.TrimSpace(token)); err != nil {
		c.g.logger.Debug("Live sign in failed", zap.Error(err))
	}
}

func (c *liveConn) sessionChanged(s session.Snapshot) {
	owner := ""
	if s.Principal != nil {
		role := models.RoleUser
		if s.Profile != nil && s.Profile.Role != "" {
			role = s.Profile.Role
		}
		owner = s.Principal.UID + "/" + role
	}
	if owner != c.owner {
		// Watches were authorized as someone else; the client re-subscribes.
		c.closeWatches(true)
		c.owner = owner
	}

	c.send(LiveServerMessage{Type: msgSession, Session: &SessionView{
		Phase:     s.Phase,
		Principal: s.Principal,
		Profile:   s.Profile,
		Loading:   s.Loading,
		Error:     errorView(s.Err),
	}})
}

// callerContext carries the current principal and profile role for store rules.
func (c *liveConn) callerContext() context.Context {
	snap := c.binding.Snapshot()
	if snap.Principal == nil {
		return c.ctx
	}
	role := models.RoleUser
	if snap.Profile != nil && snap.Profile.Role != "" {
		role = snap.Profile.Role
	}
	return store.WithCaller(c.ctx, store.Caller{UID: snap.Principal.UID, Email: snap.Principal.Email, Role: role})
}

// admit makes room for a new watch under id. A watch of another kind already
// using the id is closed first.
func (c *liveConn) admit(id string) bool {
	if old, ok := c.watches[id]; ok {
		old.Close()
		delete(c.watches, id)
	}
	if len(c.watches) >= maxLiveWatches {
		c.send(LiveServerMessage{Type: msgError, ID: id, Error: "too many watches"})
		return false
	}
	return true
}

// watchDoc rebinds an existing document watch in place, so re-sending the
// same path keeps its subscription and state.
func (c *liveConn) watchDoc(id, path string) {
	if doc, ok := c.watches[id].(*live.Document); ok {
		doc.SetPath(path)
		return
	}
	if !c.admit(id) {
		return
	}
	doc := live.NewDocument(c.callerContext(), c.loop, c.g.store, c.bus, func(st live.DocState) {
		var data any
		if st.Data != nil {
			data = st.Data
		}
		c.send(LiveServerMessage{Type: msgDoc, ID: id, State: &StateView{Data: data, Loading: st.Loading, Error: errorView(st.Err)}})
	})
	c.watches[id] = doc
	doc.SetPath(path)
}

func (c *liveConn) watchQuery(id string, q *store.Query) {
	if coll, ok := c.watches[id].(*live.Collection); ok {
		coll.SetQuery(q)
		return
	}
	if !c.admit(id) {
		return
	}
	coll := live.NewCollection(c.callerContext(), c.loop, c.g.store, c.bus, func(st live.CollectionState) {
		var data any
		if st.Data != nil {
			data = st.Data
		}
		c.send(LiveServerMessage{Type: msgQuery, ID: id, State: &StateView{Data: data, Loading: st.Loading, Error: errorView(st.Err)}})
	})
	c.watches[id] = coll
	coll.SetQuery(q)
}

func (c *liveConn) unwatch(id string) {
	if w, ok := c.watches[id]; ok {
		w.Close()
		delete(c.watches, id)
		c.send(LiveServerMessage{Type: msgUnwatched, ID: id})
	}
}

func (c *liveConn) closeWatches(notify bool) {
	for id, w := range c.watches {
		w.Close()
		delete(c.watches, id)
		if notify {
			c.send(LiveServerMessage{Type: msgUnwatched, ID: id})
		}
	}
}
