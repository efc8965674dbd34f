package session

import (
	"github.com/driftchat/driftchat-server/internal/chat"
	"github.com/driftchat/driftchat-server/internal/match"
)

// commandKind describes what the client (or an internal callback) wants the
// session to do. Every state change funnels through the command loop.
type commandKind int

const (
	cmdFind commandKind = iota
	cmdCancel
	cmdSkip
	cmdReport
	cmdDirect
	cmdSend
	cmdPartnerMessage
	cmdGame
	cmdTyping
	cmdResolved
	cmdChannelAppend
	cmdShutdown
)

// command is one unit of work for the session loop.
type command struct {
	kind commandKind

	text     string
	reason   string
	typing   bool
	targetID int64
	video    bool

	senderID int64

	action chat.GameAction

	// resolver completion
	gen    uint64
	result *match.Result
	err    error

	// channel-side append (synthetic reply)
	message chat.Message
}
