package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftchat/driftchat-server/internal/config"
)

// Phase is the media bridge's own state, independent of the session phase.
type Phase int

const (
	PhaseNoStream Phase = iota
	PhaseLocalReady
	PhaseCalling
	PhaseInCall
	PhaseClosed
)

// EventKind classifies bridge notifications to the session.
type EventKind int

const (
	// EventRemoteStream means the remote stream arrived; the call is live.
	EventRemoteStream EventKind = iota
	// EventCallClosed means the current call ended (remote hangup or drop).
	EventCallClosed
	// EventCallFailed means the outbound call could not be placed
	// (unreachable rendezvous id); the session should rematch.
	EventCallFailed
	// EventMediaError means local stream acquisition failed for good.
	// Non-fatal: the session stays connected text-only.
	EventMediaError
)

// Event is a bridge notification.
type Event struct {
	Kind   EventKind
	Stream *Stream
	Err    error
}

// ErrNoLocalStream is reported when acquisition exhausts its retries.
var ErrNoLocalStream = errors.New("local stream unavailable")

// Bridge wraps the signaling layer for one session. Placing the outbound
// call is a join, not a sequence: the partner's rendezvous id and the local
// stream may become ready in either order, and the call is placed exactly
// once when both hold.
type Bridge struct {
	signaler Signaler
	source   Source
	cfg      config.MediaConfig
	log      *zerolog.Logger

	mu      sync.Mutex
	phase   Phase
	conn    Conn
	local   *Stream
	remote  string // partner rendezvous id, "" when no partner
	placed  bool
	callGen uint64 // bumped on partner change; stale call events are dropped
	call    Call

	events chan Event
}

// NewBridge builds a bridge. Events carries at most 8 pending notifications;
// excess is dropped the same way slow websocket consumers are.
func NewBridge(signaler Signaler, source Source, cfg config.MediaConfig, logger *zerolog.Logger) *Bridge {
	return &Bridge{
		signaler: signaler,
		source:   source,
		cfg:      cfg,
		log:      logger,
		events:   make(chan Event, 8),
	}
}

// Events delivers bridge notifications to the session loop.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// Phase reports the current bridge phase.
func (b *Bridge) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// Open registers the local rendezvous id with the signaling layer and starts
// answering inbound calls.
func (b *Bridge) Open(ctx context.Context, localRendezvousID string) error {
	conn, err := b.signaler.Open(ctx, localRendezvousID)
	if err != nil {
		return fmt.Errorf("open signaling: %w", err)
	}

	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.conn = conn
	b.mu.Unlock()

	go b.answerLoop(conn)
	b.tryPlace(ctx)
	return nil
}

// AcquireLocalStream requests the camera+microphone stream, retrying with
// backoff. On final failure it emits EventMediaError and leaves the bridge
// in PhaseNoStream; the session continues text-only.
func (b *Bridge) AcquireLocalStream(ctx context.Context) (*Stream, error) {
	var lastErr error
	for attempt := 0; attempt < b.cfg.AcquireRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(b.cfg.AcquireBackoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
			timer.Stop()
		}

		stream, err := b.source.Acquire(ctx)
		if err == nil {
			b.mu.Lock()
			b.local = stream
			if b.phase == PhaseNoStream {
				b.phase = PhaseLocalReady
			}
			b.mu.Unlock()
			b.tryPlace(ctx)
			return stream, nil
		}
		lastErr = err
		b.log.Warn().Err(err).Int("attempt", attempt+1).Msg("local stream acquisition failed")
	}

	err := fmt.Errorf("%w: %v", ErrNoLocalStream, lastErr)
	b.emit(Event{Kind: EventMediaError, Err: err})
	return nil, err
}

// SetPartner arms the outbound half of the join barrier with the partner's
// rendezvous id. An empty id disarms it (synthetic partner, text-only).
func (b *Bridge) SetPartner(ctx context.Context, remoteRendezvousID string) {
	b.mu.Lock()
	b.remote = remoteRendezvousID
	b.placed = false
	b.callGen++
	if b.call != nil {
		b.call.Hangup()
		b.call = nil
	}
	if b.local != nil {
		b.phase = PhaseLocalReady
	} else {
		b.phase = PhaseNoStream
	}
	b.mu.Unlock()

	if remoteRendezvousID != "" {
		b.tryPlace(ctx)
	}
}

// ClearPartner hangs up the current call and discards the remote stream.
// The local stream is kept for the next partner.
func (b *Bridge) ClearPartner() {
	b.SetPartner(context.Background(), "")
}

// ToggleVideo flips the local video track. No-op without a local stream.
func (b *Bridge) ToggleVideo() bool {
	b.mu.Lock()
	local := b.local
	b.mu.Unlock()
	if local == nil {
		return false
	}
	return local.ToggleVideo()
}

// ToggleAudio flips the local audio track. No-op without a local stream.
func (b *Bridge) ToggleAudio() bool {
	b.mu.Lock()
	local := b.local
	b.mu.Unlock()
	if local == nil {
		return false
	}
	return local.ToggleAudio()
}

// Close tears down the call and the signaling connection.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.callGen++
	if b.call != nil {
		b.call.Hangup()
		b.call = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.phase = PhaseClosed
}

// tryPlace places the outbound call iff partner, local stream, and signaling
// connection are all present and no call was placed for this partner yet.
func (b *Bridge) tryPlace(ctx context.Context) {
	b.mu.Lock()
	if b.placed || b.local == nil || b.remote == "" || b.conn == nil {
		b.mu.Unlock()
		return
	}
	b.placed = true
	conn := b.conn
	local := b.local
	remote := b.remote
	gen := b.callGen
	b.phase = PhaseCalling
	b.mu.Unlock()

	go b.place(ctx, conn, remote, local, gen)
}

func (b *Bridge) place(ctx context.Context, conn Conn, remote string, local *Stream, gen uint64) {
	if !conn.Reachable(remote) {
		// The rendezvous id is stale; do not retry against it.
		b.log.Info().Str("remote", remote).Msg("partner unreachable, requesting rematch")
		b.emitForGen(gen, Event{Kind: EventCallFailed, Err: fmt.Errorf("partner %s not reachable", remote)})
		return
	}

	call, err := conn.Place(ctx, remote, local)
	if err != nil {
		b.log.Warn().Err(err).Str("remote", remote).Msg("call placement failed")
		b.emitForGen(gen, Event{Kind: EventCallFailed, Err: err})
		return
	}

	b.mu.Lock()
	if b.callGen != gen {
		b.mu.Unlock()
		call.Hangup()
		return
	}
	b.call = call
	b.mu.Unlock()

	b.watch(call, gen)
}

// answerLoop answers every inbound call immediately with the current local
// stream. Without a local stream the call is dropped, not queued.
// Answering does not touch the session's partner: a caller who resolved this
// user out of the pool can reach them mid-conversation with someone else, and
// the session keeps showing the old partner until the next match.
func (b *Bridge) answerLoop(conn Conn) {
	for call := range conn.Incoming() {
		b.mu.Lock()
		local := b.local
		gen := b.callGen
		b.mu.Unlock()

		if local == nil {
			call.Hangup()
			continue
		}
		if err := call.Answer(local); err != nil {
			b.log.Warn().Err(err).Msg("failed to answer inbound call")
			continue
		}

		b.mu.Lock()
		if b.callGen == gen {
			b.call = call
			b.phase = PhaseCalling
		}
		b.mu.Unlock()

		go b.watch(call, gen)
	}
}

// watch forwards remote-stream and close events for one call, dropping them
// once the partner generation has moved on.
func (b *Bridge) watch(call Call, gen uint64) {
	remoteCh := call.Remote()
	for {
		select {
		case stream, ok := <-remoteCh:
			if !ok {
				remoteCh = nil // call ended before a remote stream arrived
				continue
			}
			b.mu.Lock()
			if b.callGen == gen {
				b.phase = PhaseInCall
			}
			b.mu.Unlock()
			b.emitForGen(gen, Event{Kind: EventRemoteStream, Stream: stream})
		case <-call.Done():
			b.mu.Lock()
			if b.callGen == gen {
				b.phase = PhaseClosed
				b.call = nil
			}
			b.mu.Unlock()
			b.emitForGen(gen, Event{Kind: EventCallClosed})
			return
		}
	}
}

func (b *Bridge) emitForGen(gen uint64, ev Event) {
	b.mu.Lock()
	current := b.callGen == gen
	b.mu.Unlock()
	if !current {
		return
	}
	b.emit(ev)
}

func (b *Bridge) emit(ev Event) {
	select {
	case b.events <- ev:
	default:
		// Drop if the session loop is not draining.
	}
}
