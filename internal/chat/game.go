package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GameActionKind enumerates the turn-based mini-game actions.
type GameActionKind string

const (
	GameActionStart  GameActionKind = "start"
	GameActionNext   GameActionKind = "next"
	GameActionReveal GameActionKind = "reveal"
	GameActionRate   GameActionKind = "rate"
	GameActionAnswer GameActionKind = "answer"
)

// GameAction is a mini-game move sent through the messaging channel.
type GameAction struct {
	Action   GameActionKind
	GameType string
	Category string
	ItemID   string
	Liked    *bool
}

// SendGameAction translates a game action into a system message. No game
// rules are enforced here; that belongs to the game feature itself.
func (c *Channel) SendGameAction(action GameAction) Message {
	var text string
	switch action.Action {
	case GameActionStart:
		text = fmt.Sprintf("Game started: %s", action.GameType)
	case GameActionNext:
		text = fmt.Sprintf("Next round in %s", action.GameType)
	case GameActionReveal:
		text = fmt.Sprintf("Answer revealed for item %s", action.ItemID)
	case GameActionRate:
		if action.Liked != nil && *action.Liked {
			text = fmt.Sprintf("Item %s was liked", action.ItemID)
		} else {
			text = fmt.Sprintf("Item %s was passed", action.ItemID)
		}
	case GameActionAnswer:
		text = fmt.Sprintf("Answer submitted for %s", action.Category)
	default:
		text = fmt.Sprintf("Game action: %s", action.Action)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	msg := Message{
		ID:        uuid.New().String(),
		SenderID:  SystemSender,
		Text:      text,
		Timestamp: time.Now(),
	}
	c.messages = append(c.messages, msg)
	return msg
}
