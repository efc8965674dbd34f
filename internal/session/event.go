package session

import (
	"github.com/driftchat/driftchat-server/internal/chat"
	"github.com/driftchat/driftchat-server/internal/match"
)

// Phase is the logical chat session state. There is no error phase: every
// path terminates in PhaseConnected or PhaseIdle.
type Phase int

const (
	// PhaseIdle means not searching (pre-search or after cancel).
	PhaseIdle Phase = iota
	// PhaseSearching means a resolution is in flight.
	PhaseSearching
	// PhaseConnected means a partner is assigned and messaging is active.
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSearching:
		return "searching"
	case PhaseConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// EventKind is a notification the session emits to its client.
type EventKind int

const (
	// EventSearching signals the search started (or restarted).
	EventSearching EventKind = iota
	// EventMatched signals a partner was assigned.
	EventMatched
	// EventCancelled signals the search was cancelled; back to idle.
	EventCancelled
	// EventMessage delivers a conversation message (own, partner, system).
	EventMessage
	// EventCallLive signals the remote stream arrived.
	EventCallLive
	// EventNotice carries a user-visible informational toast. Never fatal.
	EventNotice
)

// Event is sent to the client to describe what happened in the session.
type Event struct {
	Kind    EventKind
	Phase   Phase
	Partner *match.Partner
	Message chat.Message
	Notice  string
}
