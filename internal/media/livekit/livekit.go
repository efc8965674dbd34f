package livekit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	"github.com/rs/zerolog"

	"github.com/driftchat/driftchat-server/internal/config"
	"github.com/driftchat/driftchat-server/internal/media"
)

// JoinInfo contains LiveKit connection credentials for one participant.
type JoinInfo struct {
	URL      string `json:"url"`
	Token    string `json:"token"`
	RoomName string `json:"room_name"`
	Identity string `json:"identity"`
}

// Engine implements media.Signaler with LiveKit as the media backend.
// Rendezvous ids are registered in-process; pairing two ids produces a
// LiveKit room both sides join with minted tokens. The actual media never
// touches this server.
type Engine struct {
	cfg config.LiveKitConfig
	log *zerolog.Logger

	mu    sync.Mutex
	conns map[string]*conn

	// onJoinInfo, when set, receives credentials for each side of a call
	// the moment the callee answers. The transport routes them to clients.
	onJoinInfo func(rendezvousID string, info *JoinInfo)
}

// New creates a LiveKit engine.
func New(cfg config.LiveKitConfig, logger *zerolog.Logger) *Engine {
	return &Engine{
		cfg:   cfg,
		log:   logger,
		conns: make(map[string]*conn),
	}
}

// SetJoinInfoFunc installs the join-info delivery callback.
func (e *Engine) SetJoinInfoFunc(fn func(rendezvousID string, info *JoinInfo)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onJoinInfo = fn
}

// Open registers a rendezvous id and returns its signaling connection.
// Reopening an id displaces the previous registration.
func (e *Engine) Open(_ context.Context, localRendezvousID string) (media.Conn, error) {
	if localRendezvousID == "" {
		return nil, fmt.Errorf("empty rendezvous id")
	}

	c := &conn{
		engine:   e,
		id:       localRendezvousID,
		incoming: make(chan media.Call, 4),
	}

	e.mu.Lock()
	if old, ok := e.conns[localRendezvousID]; ok {
		old.closeLocked()
	}
	e.conns[localRendezvousID] = c
	e.mu.Unlock()

	return c, nil
}

// mintToken creates a LiveKit access token for one participant.
func (e *Engine) mintToken(room, identity string) (string, error) {
	at := auth.NewAccessToken(e.cfg.APIKey, e.cfg.APISecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetValidFor(time.Hour)

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// deliverJoinInfo mints and pushes credentials for one side of the call.
func (e *Engine) deliverJoinInfo(rendezvousID, room string) {
	e.mu.Lock()
	fn := e.onJoinInfo
	e.mu.Unlock()
	if fn == nil {
		return
	}

	token, err := e.mintToken(room, rendezvousID)
	if err != nil {
		e.log.Error().Err(err).Str("room", room).Msg("failed to mint livekit token")
		return
	}

	fn(rendezvousID, &JoinInfo{
		URL:      e.cfg.WSURL,
		Token:    token,
		RoomName: room,
		Identity: rendezvousID,
	})
}

// conn is one registered rendezvous id.
type conn struct {
	engine   *Engine
	id       string
	incoming chan media.Call
	closed   bool
}

// Place starts a call: an inbound leg is delivered to the remote conn and a
// LiveKit room name is agreed for the pair.
func (c *conn) Place(_ context.Context, remoteRendezvousID string, _ *media.Stream) (media.Call, error) {
	c.engine.mu.Lock()
	remote, ok := c.engine.conns[remoteRendezvousID]
	if !ok || remote.closed {
		c.engine.mu.Unlock()
		return nil, fmt.Errorf("rendezvous id %s not registered", remoteRendezvousID)
	}

	room := "driftchat-" + uuid.New().String()
	outbound := newCall(c.engine, room, c.id)
	inbound := newCall(c.engine, room, remoteRendezvousID)
	outbound.peer = inbound
	inbound.peer = outbound

	select {
	case remote.incoming <- inbound:
	default:
		c.engine.mu.Unlock()
		return nil, fmt.Errorf("rendezvous id %s not accepting calls", remoteRendezvousID)
	}
	c.engine.mu.Unlock()

	return outbound, nil
}

// Incoming delivers inbound calls.
func (c *conn) Incoming() <-chan media.Call {
	return c.incoming
}

// Reachable reports whether the remote rendezvous id is registered.
func (c *conn) Reachable(remoteRendezvousID string) bool {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	remote, ok := c.engine.conns[remoteRendezvousID]
	return ok && !remote.closed
}

// Close unregisters the rendezvous id.
func (c *conn) Close() error {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.closeLocked()
	if c.engine.conns[c.id] == c {
		delete(c.engine.conns, c.id)
	}
	return nil
}

func (c *conn) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.incoming)
}

// call is one leg of a paired call. Answering connects both legs: each side
// receives a remote stream handle for the shared room and its join info.
type call struct {
	engine   *Engine
	room     string
	identity string
	peer     *call

	remote   chan *media.Stream
	done     chan struct{}
	doneOnce sync.Once
}

func newCall(engine *Engine, room, identity string) *call {
	return &call{
		engine:   engine,
		room:     room,
		identity: identity,
		remote:   make(chan *media.Stream, 1),
		done:     make(chan struct{}),
	}
}

// Answer accepts the inbound leg and connects both sides.
func (c *call) Answer(_ *media.Stream) error {
	select {
	case <-c.done:
		return fmt.Errorf("call already ended")
	default:
	}

	c.remote <- media.NewStream(c.room)
	c.peer.remote <- media.NewStream(c.room)

	c.engine.deliverJoinInfo(c.identity, c.room)
	c.engine.deliverJoinInfo(c.peer.identity, c.room)
	return nil
}

// Remote delivers the remote stream handle.
func (c *call) Remote() <-chan *media.Stream {
	return c.remote
}

// Done is closed when either side hangs up.
func (c *call) Done() <-chan struct{} {
	return c.done
}

// Hangup ends both legs. Safe to call more than once.
func (c *call) Hangup() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
	if c.peer != nil {
		c.peer.doneOnce.Do(func() {
			close(c.peer.done)
		})
	}
}

var _ media.Signaler = (*Engine)(nil)
