package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driftchat/driftchat-server/internal/chat"
	"github.com/driftchat/driftchat-server/internal/match"
	"github.com/driftchat/driftchat-server/internal/media"
	"github.com/driftchat/driftchat-server/internal/store"
	"github.com/driftchat/driftchat-server/internal/utils"
)

// Store is the storage surface the session needs directly.
type Store interface {
	store.UserStore
	store.ReportStore
}

// PresenceAnnouncer receives the session's current rendezvous id so the
// presence publisher keeps the pool and user row consistent with reality.
type PresenceAnnouncer interface {
	SetRendezvous(rendezvousID string)
}

// Session owns the idle -> searching -> connected state machine for one
// logged-in user. All mutations funnel through the single command loop;
// external callbacks (resolver completions, media events, synthetic replies)
// are posted as commands rather than mutating state from their goroutines.
type Session struct {
	userID   int64
	resolver *match.Resolver
	channel  *chat.Channel
	bridge   *media.Bridge
	store    Store
	registry *Registry
	presence PresenceAnnouncer
	log      *zerolog.Logger

	// loop-owned state, touched only inside Run
	phase     Phase
	partner   *match.Partner
	isFinding bool
	gen       uint64

	cmds   chan command
	events chan *Event
	done   chan struct{}
}

// Config bundles session dependencies.
type Config struct {
	UserID   int64
	Resolver *match.Resolver
	Bridge   *media.Bridge
	Store    Store
	Registry *Registry
	Presence PresenceAnnouncer
	Channel  *chat.Channel
	Logger   *zerolog.Logger
}

// New builds a session. The channel's append callback is expected to be
// wired to DeliverChannelMessage by the caller (see NewChannelFor).
func New(cfg Config) *Session {
	return &Session{
		userID:   cfg.UserID,
		resolver: cfg.Resolver,
		channel:  cfg.Channel,
		bridge:   cfg.Bridge,
		store:    cfg.Store,
		registry: cfg.Registry,
		presence: cfg.Presence,
		log:      cfg.Logger,
		phase:    PhaseIdle,
		cmds:     make(chan command, 32),
		events:   make(chan *Event, 32),
		done:     make(chan struct{}),
	}
}

// UserID returns the owning user's id.
func (s *Session) UserID() int64 {
	return s.userID
}

// Events delivers session notifications to the transport.
func (s *Session) Events() <-chan *Event {
	return s.events
}

// Run drives the command loop until ctx is cancelled. It also kicks off the
// one-time local stream acquisition; a final acquisition failure is a notice,
// not a session error.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	defer s.teardown()

	go func() {
		if _, err := s.bridge.AcquireLocalStream(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn().Err(err).Int64("user_id", s.userID).Msg("media acquisition failed, session is text-only")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.cmds:
			if cmd.kind == cmdShutdown {
				return
			}
			s.apply(ctx, cmd)
		case ev := <-s.bridge.Events():
			s.applyMediaEvent(ctx, ev)
		}
	}
}

// ==== public command surface ====

// FindPartner enters searching and resolves a partner. A call while a
// resolution is already in flight is a no-op.
func (s *Session) FindPartner() { s.post(command{kind: cmdFind}) }

// CancelSearch aborts an in-flight search. Only meaningful from searching;
// calling it twice is the same as calling it once.
func (s *Session) CancelSearch() { s.post(command{kind: cmdCancel}) }

// FindNewPartner ("skip") drops the current partner and searches again.
func (s *Session) FindNewPartner() { s.post(command{kind: cmdSkip}) }

// ReportPartner records the reason and then behaves like FindNewPartner.
func (s *Session) ReportPartner(reason string) { s.post(command{kind: cmdReport, reason: reason}) }

// StartDirectChat connects to a known user, bypassing the waiting pool.
func (s *Session) StartDirectChat(userID int64) {
	s.post(command{kind: cmdDirect, targetID: userID})
}

// StartVideoCall connects to a known user and places a call immediately.
func (s *Session) StartVideoCall(userID int64) {
	s.post(command{kind: cmdDirect, targetID: userID, video: true})
}

// SendMessage appends an own message and routes it to a real partner.
func (s *Session) SendMessage(text string) { s.post(command{kind: cmdSend, text: text}) }

// SendGameAction translates a game move into a system message.
func (s *Session) SendGameAction(action chat.GameAction) {
	s.post(command{kind: cmdGame, action: action})
}

// SetTyping flips the local typing indicator.
func (s *Session) SetTyping(typing bool) { s.post(command{kind: cmdTyping, typing: typing}) }

// DeliverPartnerMessage is called by the registry when the partner's session
// routes a message here.
func (s *Session) DeliverPartnerMessage(fromUserID int64, text string) {
	s.post(command{kind: cmdPartnerMessage, senderID: fromUserID, text: text})
}

// DeliverChannelMessage is the chat channel's append callback (synthetic
// replies land here so their delivery goes through the loop).
func (s *Session) DeliverChannelMessage(msg chat.Message) {
	s.post(command{kind: cmdChannelAppend, message: msg})
}

// Shutdown stops the loop. Idempotent.
func (s *Session) Shutdown() { s.post(command{kind: cmdShutdown}) }

func (s *Session) post(cmd command) {
	select {
	case s.cmds <- cmd:
	case <-s.done:
	}
}

// ==== transition function ====

func (s *Session) apply(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdFind:
		s.startSearch(ctx)

	case cmdCancel:
		s.cancelSearch(ctx)

	case cmdSkip:
		s.skip(ctx)

	case cmdReport:
		s.report(ctx, cmd.reason)

	case cmdDirect:
		s.startDirect(ctx, cmd.targetID, cmd.video)

	case cmdSend:
		// Messages only exist inside a conversation.
		if s.phase != PhaseConnected {
			return
		}
		s.sendMessage(ctx, cmd.text)

	case cmdPartnerMessage:
		s.partnerMessage(cmd.senderID, cmd.text)

	case cmdGame:
		if s.phase != PhaseConnected {
			return
		}
		msg := s.channel.SendGameAction(cmd.action)
		s.emit(&Event{Kind: EventMessage, Phase: s.phase, Message: msg})

	case cmdTyping:
		s.channel.SetTyping(cmd.typing)

	case cmdResolved:
		s.resolved(ctx, cmd)

	case cmdChannelAppend:
		s.emit(&Event{Kind: EventMessage, Phase: s.phase, Message: cmd.message})
	}
}

// startSearch clears any current partner and kicks off a resolution.
// Guarded by isFinding: concurrent triggers coalesce into one in-flight
// resolution.
func (s *Session) startSearch(ctx context.Context) {
	if s.isFinding {
		return
	}

	s.partner = nil
	s.channel.Clear()
	s.bridge.ClearPartner()
	s.phase = PhaseSearching
	s.isFinding = true
	s.gen++
	gen := s.gen

	s.emit(&Event{Kind: EventSearching, Phase: s.phase})

	go func() {
		result, err := s.resolver.Find(ctx, s.userID)
		s.post(command{kind: cmdResolved, gen: gen, result: result, err: err})
	}()
}

// resolved applies a resolver completion. Results issued under an older
// generation are discarded: a cancellation or a newer search has made them
// stale, and they must not clobber the state the user has moved on to.
func (s *Session) resolved(ctx context.Context, cmd command) {
	if cmd.gen != s.gen {
		s.log.Debug().Int64("user_id", s.userID).Msg("discarding stale partner resolution")
		if s.phase != PhaseSearching {
			// The stale search may have re-entered us into the pool while
			// degrading; undo that.
			if err := s.resolver.Cancel(ctx, s.userID); err != nil {
				s.log.Warn().Err(err).Int64("user_id", s.userID).Msg("failed to remove stale pool entry")
			}
		}
		return
	}
	s.isFinding = false

	if cmd.err != nil {
		// Only context cancellation reaches here; the resolver absorbs
		// everything else through its fallback chain.
		s.phase = PhaseIdle
		return
	}
	if s.phase != PhaseSearching {
		return
	}

	result := cmd.result
	s.phase = PhaseConnected
	s.partner = result.Partner
	s.channel.Reset(result.Partner, result.SystemMessage)

	if s.presence != nil {
		s.presence.SetRendezvous(result.SelfRendezvousID)
	}
	if err := s.bridge.Open(ctx, result.SelfRendezvousID); err != nil {
		s.log.Warn().Err(err).Int64("user_id", s.userID).Msg("failed to open signaling")
	}
	if result.Partner.Real() && result.Partner.RendezvousID != "" {
		s.bridge.SetPartner(ctx, result.Partner.RendezvousID)
	} else {
		s.bridge.ClearPartner()
	}

	s.emit(&Event{Kind: EventMatched, Phase: s.phase, Partner: result.Partner})
	for _, msg := range s.channel.Messages() {
		s.emit(&Event{Kind: EventMessage, Phase: s.phase, Message: msg})
	}
}

// cancelSearch is only valid from searching; anywhere else it is a no-op.
func (s *Session) cancelSearch(ctx context.Context) {
	if s.phase != PhaseSearching {
		return
	}

	s.gen++ // the in-flight resolution, if any, is now stale
	s.isFinding = false
	s.phase = PhaseIdle
	s.partner = nil
	s.channel.Clear()

	if err := s.resolver.Cancel(ctx, s.userID); err != nil {
		s.log.Warn().Err(err).Int64("user_id", s.userID).Msg("failed to leave waiting pool")
	}

	s.emit(&Event{Kind: EventCancelled, Phase: s.phase})
}

// skip drops the current partner and searches again.
func (s *Session) skip(ctx context.Context) {
	if s.isFinding {
		return
	}
	if err := s.resolver.Cancel(ctx, s.userID); err != nil {
		s.log.Warn().Err(err).Int64("user_id", s.userID).Msg("failed to release pool entry")
	}
	s.startSearch(ctx)
}

// report records the reason, then rematches exactly like skip.
func (s *Session) report(ctx context.Context, reason string) {
	partner := s.partner
	s.log.Info().
		Int64("user_id", s.userID).
		Str("reason", reason).
		Msg("partner reported")

	if partner.Real() {
		report := &store.Report{
			ID:         uuid.New().String(),
			ReporterID: s.userID,
			PartnerID:  partner.UserID,
			Reason:     reason,
			CreatedAt:  time.Now(),
		}
		go func() {
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.store.SaveReport(saveCtx, report); err != nil {
				s.log.Warn().Err(err).Str("report_id", report.ID).Msg("failed to persist report")
			}
		}()
	}

	s.skip(ctx)
}

// startDirect connects to a known user (friend), skipping the waiting pool
// entirely. This is its own entry path, not a special case of matching.
func (s *Session) startDirect(ctx context.Context, targetID int64, video bool) {
	profile, err := s.store.GetUserByID(ctx, targetID)
	if err != nil {
		s.log.Warn().Err(err).Int64("target_id", targetID).Msg("direct chat target not found")
		s.emit(&Event{Kind: EventNotice, Phase: s.phase, Notice: "User is not available right now."})
		return
	}

	s.gen++ // discard any in-flight resolution
	s.isFinding = false

	partner := &match.Partner{
		Kind:         match.PartnerReal,
		UserID:       profile.ID,
		DisplayName:  profile.DisplayName,
		Country:      profile.Country,
		RendezvousID: profile.RendezvousID,
	}
	s.partner = partner
	s.phase = PhaseConnected
	s.channel.Reset(partner, fmt.Sprintf("You are now chatting with %s.", partner.DisplayName))

	selfRendezvous := utils.NewRendezvousID(s.userID)
	if s.presence != nil {
		s.presence.SetRendezvous(selfRendezvous)
	}
	if err := s.bridge.Open(ctx, selfRendezvous); err != nil {
		s.log.Warn().Err(err).Int64("user_id", s.userID).Msg("failed to open signaling")
	}
	if video && partner.RendezvousID != "" {
		s.bridge.SetPartner(ctx, partner.RendezvousID)
	} else {
		s.bridge.ClearPartner()
	}

	s.emit(&Event{Kind: EventMatched, Phase: s.phase, Partner: partner})
	for _, msg := range s.channel.Messages() {
		s.emit(&Event{Kind: EventMessage, Phase: s.phase, Message: msg})
	}
}

func (s *Session) sendMessage(ctx context.Context, text string) {
	if text == "" {
		return
	}

	msg := s.channel.SendOwn(ctx, text)
	s.emit(&Event{Kind: EventMessage, Phase: s.phase, Message: msg})

	if s.partner.Real() && s.registry != nil {
		s.registry.Deliver(s.partner.UserID, s.userID, text)
	}
}

func (s *Session) partnerMessage(fromUserID int64, text string) {
	if s.phase != PhaseConnected || !s.partner.Real() || s.partner.UserID != fromUserID {
		// Message from someone who is not the current partner; drop it.
		return
	}
	msg := s.channel.AppendPartner(fromUserID, text)
	s.emit(&Event{Kind: EventMessage, Phase: s.phase, Message: msg})
}

// applyMediaEvent folds media bridge notifications into the state machine.
func (s *Session) applyMediaEvent(ctx context.Context, ev media.Event) {
	switch ev.Kind {
	case media.EventRemoteStream:
		s.emit(&Event{Kind: EventCallLive, Phase: s.phase})

	case media.EventCallClosed:
		if s.phase != PhaseConnected {
			return
		}
		s.emit(&Event{Kind: EventNotice, Phase: s.phase, Notice: "Partner disconnected. Finding someone new..."})
		s.skip(ctx)

	case media.EventCallFailed:
		if s.phase != PhaseConnected {
			return
		}
		s.emit(&Event{Kind: EventNotice, Phase: s.phase, Notice: "Partner not available for video. Finding someone else..."})
		s.skip(ctx)

	case media.EventMediaError:
		// Session stays connected; text chat remains usable.
		s.emit(&Event{Kind: EventNotice, Phase: s.phase, Notice: "Could not access camera or microphone. Continuing with text only."})
	}
}

// teardown releases everything the session holds.
func (s *Session) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.resolver.Cancel(ctx, s.userID); err != nil {
		s.log.Warn().Err(err).Int64("user_id", s.userID).Msg("failed to remove pool entry on teardown")
	}
	s.bridge.Close()
	if s.registry != nil {
		s.registry.Unregister(s)
	}
}

func (s *Session) emit(ev *Event) {
	select {
	case s.events <- ev:
	default:
		// Drop if slow consumer.
	}
}
