package chat

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driftchat/driftchat-server/internal/config"
	"github.com/driftchat/driftchat-server/internal/match"
	"github.com/driftchat/driftchat-server/internal/store"
)

// SystemSender is the sender id used for system messages.
const SystemSender = "system"

// Message is one entry of the per-session conversation log.
type Message struct {
	ID        string
	SenderID  string // numeric user id, synthetic id, or "system"
	Text      string
	Timestamp time.Time
	Own       bool
}

// Channel is the per-session message log. It is cleared whenever the partner
// changes and always starts with exactly one system message announcing the
// new partner. Real-partner messages are mirrored to persistent storage
// fire-and-forget; synthetic-partner messages stay session-local.
type Channel struct {
	mu       sync.Mutex
	messages []Message
	partner  *match.Partner
	typing   bool
	gen      uint64 // bumped on Reset; pending synthetic replies check it

	selfID  int64
	persist store.MessageStore
	cfg     config.MatchConfig
	log     *zerolog.Logger

	// onAppend is invoked (outside the lock) for every message appended by
	// the channel itself: synthetic replies and game system messages.
	onAppend func(Message)
}

// NewChannel builds an empty channel for one user's session.
func NewChannel(selfID int64, persist store.MessageStore, cfg config.MatchConfig, logger *zerolog.Logger, onAppend func(Message)) *Channel {
	if onAppend == nil {
		onAppend = func(Message) {}
	}
	return &Channel{
		selfID:   selfID,
		persist:  persist,
		cfg:      cfg,
		log:      logger,
		onAppend: onAppend,
	}
}

// Reset clears the log for a new partner and seeds the system message.
// Any synthetic reply still pending for the previous partner is dropped.
func (c *Channel) Reset(partner *match.Partner, systemMessage string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.partner = partner
	c.typing = false
	c.messages = c.messages[:0]
	if systemMessage != "" {
		c.messages = append(c.messages, Message{
			ID:        uuid.New().String(),
			SenderID:  SystemSender,
			Text:      systemMessage,
			Timestamp: time.Now(),
		})
	}
}

// Clear drops the log and partner entirely (cancel, logout).
func (c *Channel) Clear() {
	c.Reset(nil, "")
}

// SendOwn appends the user's message immediately (optimistic, no round-trip
// wait). Real-partner messages are persisted asynchronously; persistence
// failure is logged and never surfaced to the sender. Synthetic partners get
// a canned reply scheduled after a randomized delay.
func (c *Channel) SendOwn(ctx context.Context, text string) Message {
	c.mu.Lock()
	msg := Message{
		ID:        uuid.New().String(),
		SenderID:  formatSender(c.selfID),
		Text:      text,
		Timestamp: time.Now(),
		Own:       true,
	}
	c.messages = append(c.messages, msg)
	partner := c.partner
	gen := c.gen
	c.mu.Unlock()

	switch {
	case partner == nil:
		// Message without a partner: kept locally, nothing else to do.
	case partner.Real():
		go c.persistMessage(partner.UserID, msg)
	default:
		go c.scheduleSyntheticReply(ctx, partner, gen)
	}

	return msg
}

// AppendPartner records a message from the real partner, delivered by the
// realtime transport. Append order is whatever order the transport delivers.
func (c *Channel) AppendPartner(senderID int64, text string) Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := Message{
		ID:        uuid.New().String(),
		SenderID:  formatSender(senderID),
		Text:      text,
		Timestamp: time.Now(),
	}
	c.messages = append(c.messages, msg)
	return msg
}

// Messages returns a copy of the log in append order.
func (c *Channel) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// SetTyping flips the local typing indicator. It is not transmitted to the
// partner.
func (c *Channel) SetTyping(typing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typing = typing
}

// Typing reports the local typing indicator.
func (c *Channel) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

func (c *Channel) persistMessage(receiverID int64, msg Message) {
	if c.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.persist.SaveMessage(ctx, &store.Message{
		ID:         msg.ID,
		SenderID:   c.selfID,
		ReceiverID: receiverID,
		Body:       msg.Text,
		CreatedAt:  msg.Timestamp,
	})
	if err != nil {
		// Optimistic local state is authoritative; no retry, no surfacing.
		c.log.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to persist message")
	}
}

func (c *Channel) scheduleSyntheticReply(ctx context.Context, partner *match.Partner, gen uint64) {
	delay := c.cfg.ReplyDelayMin
	if spread := c.cfg.ReplyDelayMax - c.cfg.ReplyDelayMin; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread)))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		// Partner changed while the reply was pending.
		c.mu.Unlock()
		return
	}
	msg := Message{
		ID:        uuid.New().String(),
		SenderID:  partner.SyntheticID,
		Text:      cannedReplies[rand.Intn(len(cannedReplies))],
		Timestamp: time.Now(),
	}
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	c.onAppend(msg)
}

func formatSender(id int64) string {
	return "u" + strconv.FormatInt(id, 10)
}
