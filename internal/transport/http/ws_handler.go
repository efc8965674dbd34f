package http

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/driftchat/driftchat-server/internal/chat"
	"github.com/driftchat/driftchat-server/internal/config"
	"github.com/driftchat/driftchat-server/internal/match"
	"github.com/driftchat/driftchat-server/internal/media"
	"github.com/driftchat/driftchat-server/internal/media/livekit"
	"github.com/driftchat/driftchat-server/internal/presence"
	"github.com/driftchat/driftchat-server/internal/proto"
	"github.com/driftchat/driftchat-server/internal/session"
	"github.com/driftchat/driftchat-server/internal/store"
)

// JoinInfoRouter fans LiveKit join credentials out to the websocket
// connection currently holding each rendezvous id. Install Deliver as the
// engine's join-info callback.
type JoinInfoRouter struct {
	mu   sync.Mutex
	subs map[string]chan *livekit.JoinInfo
}

// NewJoinInfoRouter builds an empty router.
func NewJoinInfoRouter() *JoinInfoRouter {
	return &JoinInfoRouter{subs: make(map[string]chan *livekit.JoinInfo)}
}

// Deliver routes credentials to the subscriber of the rendezvous id, if any.
func (r *JoinInfoRouter) Deliver(rendezvousID string, info *livekit.JoinInfo) {
	r.mu.Lock()
	ch := r.subs[rendezvousID]
	r.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- info:
	default:
	}
}

func (r *JoinInfoRouter) subscribe(rendezvousID string, ch chan *livekit.JoinInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[rendezvousID] = ch
}

func (r *JoinInfoRouter) unsubscribe(rendezvousID string, ch chan *livekit.JoinInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[rendezvousID] == ch {
		delete(r.subs, rendezvousID)
	}
}

// SessionDeps bundles everything a websocket connection needs to stand up
// one user session.
type SessionDeps struct {
	Store    store.Store
	Resolver *match.Resolver
	Registry *session.Registry
	Signaler media.Signaler
	Source   media.Source
	JoinInfo *JoinInfoRouter // nil when the media backend is disabled
	MatchCfg config.MatchConfig
	MediaCfg config.MediaConfig
	// FrameLimit caps inbound frames per connection per minute; zero means
	// unlimited.
	FrameLimit int
	Log        *zerolog.Logger
}

// announcer forwards rendezvous changes to the presence publisher and moves
// the join-info subscription along with them.
type announcer struct {
	publisher *presence.Publisher
	router    *JoinInfoRouter
	joinCh    chan *livekit.JoinInfo

	mu      sync.Mutex
	current string
}

func (a *announcer) SetRendezvous(rendezvousID string) {
	if a.router != nil {
		a.mu.Lock()
		previous := a.current
		a.current = rendezvousID
		a.mu.Unlock()

		if previous != "" {
			a.router.unsubscribe(previous, a.joinCh)
		}
		if rendezvousID != "" {
			a.router.subscribe(rendezvousID, a.joinCh)
		}
	}
	a.publisher.SetRendezvous(rendezvousID)
}

func (a *announcer) close() {
	a.mu.Lock()
	current := a.current
	a.mu.Unlock()
	if a.router != nil && current != "" {
		a.router.unsubscribe(current, a.joinCh)
	}
}

// NewWSHandler returns the gin handler serving GET /ws. Each accepted
// connection owns one session: presence heartbeats, the matching state
// machine, the message channel, and the media bridge all live and die with
// the socket.
func NewWSHandler(deps SessionDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetInt64(ContextKeyUserID)
		logger := deps.Log.With().Int64("user_id", userID).Logger()

		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warn().Err(err).Msg("websocket accept failed")
			return
		}
		defer conn.Close(websocket.StatusInternalError, "closing")

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		publisher := presence.NewPublisher(userID, deps.Store, deps.MatchCfg, &logger)
		go publisher.Run(ctx)
		defer publisher.Stop()

		ann := &announcer{
			publisher: publisher,
			router:    deps.JoinInfo,
			joinCh:    make(chan *livekit.JoinInfo, 2),
		}
		defer ann.close()

		bridge := media.NewBridge(deps.Signaler, deps.Source, deps.MediaCfg, &logger)

		var sess *session.Session
		channel := chat.NewChannel(userID, deps.Store, deps.MatchCfg, &logger, func(m chat.Message) {
			sess.DeliverChannelMessage(m)
		})
		sess = session.New(session.Config{
			UserID:   userID,
			Resolver: deps.Resolver,
			Bridge:   bridge,
			Store:    deps.Store,
			Registry: deps.Registry,
			Presence: ann,
			Channel:  channel,
			Logger:   &logger,
		})
		deps.Registry.Register(sess)
		go sess.Run(ctx)
		defer sess.Shutdown()

		go writeLoop(ctx, conn, sess, ann.joinCh, &logger)

		// Searching starts as soon as the socket is up.
		sess.FindPartner()

		limiter := newRateLimiter(deps.FrameLimit, time.Minute)
		limiter.startReset(ctx.Done())

		readLoop(ctx, conn, sess, bridge, limiter, &logger)
		conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

// readLoop translates inbound frames into session commands until the socket
// dies or the context ends.
func readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session, bridge *media.Bridge, limiter *rateLimiter, logger *zerolog.Logger) {
	for {
		var in proto.Inbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			logger.Debug().Err(err).Msg("websocket read ended")
			return
		}

		if !limiter.allow() {
			writeError(ctx, conn, "rate_limited", "too many messages, slow down")
			continue
		}

		switch in.Type {
		case proto.InboundTypeFind:
			sess.FindPartner()

		case proto.InboundTypeCancel:
			sess.CancelSearch()

		case proto.InboundTypeSkip:
			sess.FindNewPartner()

		case proto.InboundTypeReport:
			var data proto.ReportData
			if err := unmarshal(in.Data, &data); err != nil {
				writeError(ctx, conn, "bad_request", "invalid report payload")
				continue
			}
			sess.ReportPartner(data.Reason)

		case proto.InboundTypeDirect:
			var data proto.DirectData
			if err := unmarshal(in.Data, &data); err != nil || data.UserID == 0 {
				writeError(ctx, conn, "bad_request", "invalid direct payload")
				continue
			}
			if data.Video {
				sess.StartVideoCall(data.UserID)
			} else {
				sess.StartDirectChat(data.UserID)
			}

		case proto.InboundTypeMsg:
			var data proto.MsgData
			if err := unmarshal(in.Data, &data); err != nil || data.Text == "" {
				writeError(ctx, conn, "bad_request", "invalid message payload")
				continue
			}
			sess.SendMessage(data.Text)

		case proto.InboundTypeGame:
			var data proto.GameData
			if err := unmarshal(in.Data, &data); err != nil {
				writeError(ctx, conn, "bad_request", "invalid game payload")
				continue
			}
			sess.SendGameAction(chat.GameAction{
				Action:   chat.GameActionKind(data.Action),
				GameType: data.GameType,
				Category: data.Category,
				ItemID:   data.ItemID,
				Liked:    data.Liked,
			})

		case proto.InboundTypeTyping:
			var data proto.TypingData
			if err := unmarshal(in.Data, &data); err != nil {
				continue
			}
			sess.SetTyping(data.Typing)

		case proto.InboundTypeVideo:
			var data proto.VideoData
			if err := unmarshal(in.Data, &data); err != nil {
				continue
			}
			if data.Video != nil {
				bridge.ToggleVideo()
			}
			if data.Audio != nil {
				bridge.ToggleAudio()
			}

		default:
			writeError(ctx, conn, "unknown_type", "unknown message type: "+in.Type)
		}
	}
}

// writeLoop pushes session events and join credentials to the client.
func writeLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session, joinCh <-chan *livekit.JoinInfo, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sess.Events():
			if err := wsjson.Write(ctx, conn, toOutbound(ev)); err != nil {
				logger.Debug().Err(err).Msg("websocket write ended")
				return
			}
		case info := <-joinCh:
			out := &proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventJoinInfo, Data: info}
			if err := wsjson.Write(ctx, conn, out); err != nil {
				logger.Debug().Err(err).Msg("websocket write ended")
				return
			}
		}
	}
}

func toOutbound(ev *session.Event) *proto.Outbound {
	out := &proto.Outbound{Type: proto.OutboundTypeEvent}

	switch ev.Kind {
	case session.EventSearching:
		out.Event = proto.EventSearching

	case session.EventMatched:
		out.Event = proto.EventMatched
		out.Data = proto.EventPartner{
			UserID:      ev.Partner.UserID,
			SyntheticID: ev.Partner.SyntheticID,
			DisplayName: ev.Partner.DisplayName,
			Country:     ev.Partner.Country,
			Language:    ev.Partner.Language,
		}

	case session.EventCancelled:
		out.Event = proto.EventCancelled

	case session.EventMessage:
		out.Event = proto.EventMessage
		out.Data = proto.EventChatMessage{
			ID:     ev.Message.ID,
			Sender: ev.Message.SenderID,
			Text:   ev.Message.Text,
			TS:     ev.Message.Timestamp.Unix(),
			Own:    ev.Message.Own,
		}

	case session.EventCallLive:
		out.Event = proto.EventCallLive

	case session.EventNotice:
		out.Event = proto.EventNotice
		out.Data = proto.EventNoticeData{Text: ev.Notice}
	}

	return out
}

func unmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(raw, v)
}

func writeError(ctx context.Context, conn *websocket.Conn, code, msg string) {
	out := &proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: code, Msg: msg}}
	_ = wsjson.Write(ctx, conn, out)
}
