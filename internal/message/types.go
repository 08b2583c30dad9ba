// Package message defines the domain types (messages, rooms, user views) and
// the wire frame codec shared between the hub and its clients.
package message

import (
	"time"

	"github.com/sfurman3/vectorchat/internal/vectorclock"
)

// Message is the domain representation of a chat message: constructed by
// the hub on receipt of a chat frame, appended to a room's history window,
// broadcast, then offered to each recipient's causal delivery engine.
type Message struct {
	ID                string                 `json:"id"`
	RoomID            string                 `json:"room_id"`
	SenderID          string                 `json:"sender_id"`
	SenderDisplayName string                 `json:"sender_display_name"`
	Text              string                 `json:"text"`
	SentClock         vectorclock.Snapshot   `json:"sent_clock"`
	WallTimestamp     time.Time              `json:"wall_timestamp"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// SimulateDelay reports whether this message's metadata asks the hub to
// defer its broadcast, and for how long.
func (m Message) SimulateDelay() (delay time.Duration, ok bool) {
	if m.Metadata == nil {
		return 0, false
	}
	simulate, _ := m.Metadata["simulate_delay"].(bool)
	if !simulate {
		return 0, false
	}
	switch v := m.Metadata["delay_ms"].(type) {
	case float64:
		return time.Duration(v) * time.Millisecond, true
	case int:
		return time.Duration(v) * time.Millisecond, true
	default:
		return 0, true
	}
}

// ToFrame renders m as the outbound `chat` frame.
func (m Message) ToFrame() *Frame {
	return &Frame{
		Type:        FrameChat,
		ID:          m.ID,
		UserID:      m.SenderID,
		Username:    m.SenderDisplayName,
		Text:        m.Text,
		VectorClock: m.SentClock,
		Timestamp:   m.WallTimestamp.UnixMilli(),
		RoomID:      m.RoomID,
		Metadata:    m.Metadata,
	}
}

// UserView is the per-participant projection sent in `user_list` and
// `join_success` frames.
type UserView struct {
	ID          string               `json:"id"`
	Username    string               `json:"username"`
	JoinedAt    int64                `json:"joined_at"`
	VectorClock vectorclock.Snapshot `json:"vector_clock"`
}

// RoomView is the room summary sent in a `join_success` frame.
type RoomView struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}
