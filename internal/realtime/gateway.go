package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"boardsesh_daemon/internal/catalog"
	"boardsesh_daemon/internal/identity"
	"boardsesh_daemon/internal/protocol"
	"boardsesh_daemon/internal/session"
)

const catalogTimeout = 2 * time.Second

type connState int

const (
	connStateConnecting connState = iota
	connStateJoined
	connStateClosed
)

// conn is the per-connection state machine driven by dispatch. All of
// its fields are touched only by the connection's own read loop.
type conn struct {
	id        string
	transport session.Conn
	state     connState
	sessionID string
	userID    string
	username  string
	left      bool
}

// Gateway is the single entry point turning inbound connections into
// registry calls and broadcasts.
type Gateway struct {
	registry  *session.Registry
	broadcast *Broadcaster
	catalog   catalog.Resolver

	mu       sync.Mutex
	conns    map[string]session.Conn
	draining bool
	wg       sync.WaitGroup
}

func NewGateway(registry *session.Registry, broadcast *Broadcaster, resolver catalog.Resolver) *Gateway {
	return &Gateway{
		registry:  registry,
		broadcast: broadcast,
		catalog:   resolver,
		conns:     make(map[string]session.Conn),
	}
}

// Serve owns one connection from accept to close. It blocks until the
// peer disappears, the client sends leave, or the gateway drains; the
// registry sees at most one Leave per connection.
func (g *Gateway) Serve(client *Client, user identity.User) {
	g.mu.Lock()
	if g.draining {
		g.mu.Unlock()
		client.Close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	g.conns[client.ID()] = client
	g.wg.Add(1)
	g.mu.Unlock()

	cs := &conn{
		id:        client.ID(),
		transport: client,
		userID:    user.UserID,
		username:  user.Username,
	}

	client.prepareRead()
	go client.WritePump()

	defer func() {
		g.leave(cs)
		client.Close(websocket.CloseNormalClosure, "bye")

		g.mu.Lock()
		delete(g.conns, client.ID())
		g.mu.Unlock()
		g.wg.Done()
	}()

	for {
		data, err := client.Read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info().Str("client", client.ID()).Err(err).Msg("Client disconnected unexpectedly.")
			}
			return
		}
		if !g.handleFrame(cs, data) {
			return
		}
	}
}

// handleFrame decodes one inbound frame and advances the connection
// state machine. It reports whether the read loop should continue.
func (g *Gateway) handleFrame(cs *conn, data []byte) bool {
	msg, err := protocol.Decode(data)
	if err != nil {
		code := protocol.CodeMalformed
		if errors.Is(err, protocol.ErrUnknownType) {
			code = protocol.CodeUnknownType
		}
		cs.transport.Enqueue(protocol.EncodeError(code, err.Error()))
		if cs.state != connStateJoined {
			// Nothing but a valid join is tolerated before the handshake.
			cs.transport.Close(websocket.ClosePolicyViolation, "join required")
			cs.state = connStateClosed
			return false
		}
		return true
	}
	return g.dispatch(cs, msg)
}

func (g *Gateway) dispatch(cs *conn, msg protocol.Message) bool {
	switch cs.state {
	case connStateConnecting:
		if msg.Type != protocol.KindJoin {
			cs.transport.Enqueue(protocol.EncodeError(protocol.CodeNotJoined, "join required before other messages"))
			cs.transport.Close(websocket.ClosePolicyViolation, "join required")
			cs.state = connStateClosed
			return false
		}
		g.handleJoin(cs, msg.Join)
		return true

	case connStateJoined:
		switch msg.Type {
		case protocol.KindJoin:
			// Re-join switches sessions: leave the old room first.
			g.leave(cs)
			cs.left = false
			g.handleJoin(cs, msg.Join)
		case protocol.KindLeave:
			g.leave(cs)
			cs.transport.Close(websocket.CloseNormalClosure, "bye")
			cs.state = connStateClosed
			return false
		case protocol.KindQueueUpdate:
			g.handleQueueUpdate(cs, msg.QueueUpdate)
		case protocol.KindTransferLeader:
			g.handleTransferLeader(cs, msg.TransferLeader)
		case protocol.KindUpdateUsername:
			g.handleUpdateUsername(cs, msg.UpdateUsername)
		case protocol.KindHeartbeat:
			cs.transport.Enqueue(protocol.EncodeHeartbeat())
		default:
			cs.transport.Enqueue(protocol.EncodeError(protocol.CodeUnsupported, "clients may not send "+string(msg.Type)))
		}
		return true
	}
	return false
}

func (g *Gateway) handleJoin(cs *conn, p *protocol.JoinPayload) {
	if cs.username == "" {
		cs.username = p.Username
	}
	if cs.username == "" {
		cs.username = "User-" + shortID(cs.id)
	}
	if cs.userID == "" {
		cs.userID = cs.id
	}

	member := &session.Member{
		ID:       cs.id,
		UserID:   cs.userID,
		Username: cs.username,
		JoinedAt: time.Now(),
		Conn:     cs.transport,
	}
	res := g.registry.Join(p.SessionID, p.BoardPath, member)
	cs.sessionID = p.SessionID
	cs.state = connStateJoined

	g.broadcast.SendToOne(cs.transport, protocol.EncodeQueueState(res.Snapshot))
	g.broadcast.BroadcastExcept(p.SessionID, protocol.EncodeSessionUsers(res.Snapshot.Users), cs.id)
}

// leave detaches the connection from its room exactly once and emits the
// resulting presence and leadership broadcasts.
func (g *Gateway) leave(cs *conn) {
	if cs.left || cs.sessionID == "" {
		return
	}
	cs.left = true

	res, ok := g.registry.Leave(cs.sessionID, cs.id)
	if !ok {
		return
	}
	g.broadcast.BroadcastAll(cs.sessionID, protocol.EncodeSessionUsers(res.Snapshot.Users))
	if res.NewLeaderID != "" {
		g.broadcast.BroadcastAll(cs.sessionID, protocol.EncodeLeaderChange(res.NewLeaderID))
	}
}

func (g *Gateway) handleQueueUpdate(cs *conn, p *protocol.QueueUpdatePayload) {
	op := session.QueueOp{
		Kind:     p.Op,
		ItemUUID: p.ItemUUID,
		ToIndex:  p.ToIndex,
		UserID:   p.UserID,
	}
	if op.UserID == "" {
		op.UserID = cs.userID
	}
	if p.Item != nil {
		item := *p.Item
		if item.UUID == "" {
			item.UUID = uuid.NewString()
		}
		if item.AddedBy == "" {
			item.AddedBy = cs.username
		}
		g.attachClimb(&item)
		op.Item = &item
	}

	snap, err := g.registry.MutateQueue(cs.sessionID, op)
	if err != nil {
		cs.transport.Enqueue(protocol.EncodeError(errCode(err), err.Error()))
		return
	}
	g.broadcast.BroadcastAll(cs.sessionID, protocol.EncodeQueueState(snap))
}

// attachClimb fills in the denormalized climb snapshot from the catalog
// when the submitter only sent a reference, and feeds full submissions
// back into the catalog cache. Missing catalog data is not an error; the
// item is queued with whatever the client supplied.
func (g *Gateway) attachClimb(item *session.QueueItem) {
	if g.catalog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()

	if item.Climb.Name == "" && item.Climb.Frames == "" && item.Climb.UUID != "" {
		climb, err := g.catalog.Resolve(ctx, item.Climb.UUID)
		if err == nil {
			item.Climb = climb
		}
		return
	}
	g.catalog.Cache(ctx, item.Climb)
}

func (g *Gateway) handleTransferLeader(cs *conn, p *protocol.TransferLeaderPayload) {
	snap, err := g.registry.TransferLeader(cs.sessionID, cs.id, p.NewLeaderID)
	if err != nil {
		cs.transport.Enqueue(protocol.EncodeError(errCode(err), err.Error()))
		return
	}
	g.broadcast.BroadcastAll(cs.sessionID, protocol.EncodeLeaderChange(p.NewLeaderID))
	g.broadcast.BroadcastAll(cs.sessionID, protocol.EncodeSessionUsers(snap.Users))
}

func (g *Gateway) handleUpdateUsername(cs *conn, p *protocol.UpdateUsernamePayload) {
	snap, err := g.registry.SetUsername(cs.sessionID, cs.id, p.Username)
	if err != nil {
		cs.transport.Enqueue(protocol.EncodeError(errCode(err), err.Error()))
		return
	}
	cs.username = p.Username
	g.broadcast.BroadcastAll(cs.sessionID, protocol.EncodeSessionUsers(snap.Users))
}

// Shutdown drains the gateway: no new connections are accepted, every
// open connection gets an orderly going-away close, and the call returns
// once all read loops finished or the context expired.
func (g *Gateway) Shutdown(ctx context.Context) {
	g.mu.Lock()
	g.draining = true
	open := make([]session.Conn, 0, len(g.conns))
	for _, c := range g.conns {
		open = append(open, c)
	}
	g.mu.Unlock()

	for _, c := range open {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Int("connections", len(open)).Msg("Gateway drained.")
	case <-ctx.Done():
		log.Warn().Msg("Gateway drain grace period expired, abandoning open connections.")
	}
}

func errCode(err error) string {
	switch {
	case errors.Is(err, session.ErrRoomNotFound):
		return protocol.CodeRoomNotFound
	case errors.Is(err, session.ErrNotLeader):
		return protocol.CodeNotLeader
	case errors.Is(err, session.ErrClientNotInRoom):
		return protocol.CodeClientNotInRoom
	case errors.Is(err, session.ErrInvalidQueueOp):
		return protocol.CodeInvalidQueueOp
	default:
		return protocol.CodeUnsupported
	}
}

func shortID(id string) string {
	if len(id) > 6 {
		return id[:6]
	}
	return id
}
