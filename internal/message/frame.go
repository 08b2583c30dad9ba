package message

import (
	"encoding/json"
	"errors"

	"github.com/sfurman3/vectorchat/internal/vectorclock"
)

// Frame type names.
const (
	// Inbound (client -> hub)
	FrameJoin           = "join"
	FrameChat           = "chat"
	FrameTyping         = "typing"
	FrameRequestHistory = "request_history"
	FrameGetUsers       = "get_users"
	FramePing           = "ping"

	// Outbound (hub -> client)
	FrameInit             = "init"
	FrameJoinSuccess      = "join_success"
	FrameUserList         = "user_list"
	FrameSystem           = "system"
	FrameHistory          = "history"
	FrameUserTyping       = "user_typing"
	FrameMessageDelivered = "message_delivered"
	FramePong             = "pong"
)

// ErrMissingType is returned by Decode when a frame lacks a `type` field.
var ErrMissingType = errors.New("message: frame missing required \"type\" field")

// Frame is the self-describing wire envelope for every frame kind. Fields
// not relevant to a given Type are simply absent: encoding/json ignores
// unknown/empty fields on the wire in both directions, which keeps the
// codec forward-compatible with fields added later.
type Frame struct {
	Type string `json:"type"`

	// join (inbound)
	Username string `json:"username,omitempty"`
	RoomID   string `json:"room_id,omitempty"`

	// chat (inbound + outbound)
	Text        string                 `json:"text,omitempty"`
	VectorClock vectorclock.Snapshot   `json:"vector_clock,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	ID          string                 `json:"id,omitempty"`
	UserID      string                 `json:"user_id,omitempty"`
	Timestamp   int64                  `json:"timestamp,omitempty"`

	// typing (inbound + outbound)
	IsTyping bool `json:"is_typing,omitempty"`

	// init (outbound)
	ClientID    string `json:"client_id,omitempty"`
	ServerTime  int64  `json:"server_time,omitempty"`
	DefaultRoom string `json:"default_room,omitempty"`

	// join_success (outbound)
	Room         *RoomView  `json:"room,omitempty"`
	Users        []UserView `json:"users,omitempty"`
	MessageCount int        `json:"message_count,omitempty"`

	// system (outbound)
	Message string `json:"message,omitempty"`

	// history (outbound)
	Messages []*Frame `json:"messages,omitempty"`
	Total    int      `json:"total,omitempty"`

	// message_delivered (outbound)
	MessageID string `json:"message_id,omitempty"`
}

// Decode parses a single wire record into a Frame, rejecting frames lacking
// a `type` field and tolerating unrecognized extra fields.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Type == "" {
		return nil, ErrMissingType
	}
	return &f, nil
}

// Encode serializes a Frame to its wire representation.
func Encode(f *Frame) ([]byte, error) {
	return json.Marshal(f)
}
