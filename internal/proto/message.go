package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeFind   = "find"
	InboundTypeCancel = "cancel"
	InboundTypeSkip   = "skip"
	InboundTypeReport = "report"
	InboundTypeDirect = "direct"
	InboundTypeMsg    = "msg"
	InboundTypeGame   = "game"
	InboundTypeTyping = "typing"
	InboundTypeVideo  = "video"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventSearching = "searching"
	EventMatched   = "matched"
	EventCancelled = "cancelled"
	EventMessage   = "message"
	EventCallLive  = "call_live"
	EventJoinInfo  = "join_info"
	EventNotice    = "notice"
)

// ReportData carries the reason for reporting the current partner.
type ReportData struct {
	Reason string `json:"reason"`
}

// DirectData requests a direct chat or call with a known user.
type DirectData struct {
	UserID int64 `json:"user_id"`
	Video  bool  `json:"video,omitempty"`
}

// MsgData is a chat message from the client.
type MsgData struct {
	Text string `json:"text"`
}

// GameData is a mini-game move from the client.
type GameData struct {
	Action   string `json:"action"`
	GameType string `json:"game_type,omitempty"`
	Category string `json:"category,omitempty"`
	ItemID   string `json:"item_id,omitempty"`
	Liked    *bool  `json:"liked,omitempty"`
}

// TypingData flips the typing indicator.
type TypingData struct {
	Typing bool `json:"typing"`
}

// VideoData toggles local tracks.
type VideoData struct {
	Video *bool `json:"video,omitempty"`
	Audio *bool `json:"audio,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventPartner describes the matched partner to the client. Synthetic
// partners carry their synthetic id; real partners their numeric id.
type EventPartner struct {
	UserID      int64  `json:"user_id,omitempty"`
	SyntheticID string `json:"synthetic_id,omitempty"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country,omitempty"`
	Language    string `json:"language,omitempty"`
}

// EventChatMessage is one conversation entry pushed to the client.
type EventChatMessage struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	TS     int64  `json:"ts"`
	Own    bool   `json:"own,omitempty"`
}

// EventNoticeData is a user-visible informational toast.
type EventNoticeData struct {
	Text string `json:"text"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
