package hub

import (
	"sync"
	"time"

	"github.com/sfurman3/vectorchat/internal/message"
)

// historyWindowSize bounds each room's in-memory recent-history window at
// 50 messages, dropping the oldest on overflow.
const historyWindowSize = 50

// Room is a broadcast domain: a membership set, an in-memory recent
// history window, and nothing else. Room state is guarded by a single
// mutex held only for the duration of a set mutation or snapshot copy,
// never across I/O: callers take a snapshot, release the lock, then
// perform any network sends.
type Room struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time

	mu         sync.Mutex
	members    map[string]*Session
	history    []message.Message
	historyCap int
}

func newRoom(id, displayName string) *Room {
	return &Room{
		ID:          id,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
		members:     make(map[string]*Session),
		historyCap:  historyWindowSize,
	}
}

func (r *Room) addMember(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[s.ID()] = s
}

func (r *Room) removeMember(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
}

// membersSnapshot returns a copy of the current member sessions, safe to
// range over after the room's lock is released.
func (r *Room) membersSnapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.members))
	for _, s := range r.members {
		out = append(out, s)
	}
	return out
}

// appendHistory records m in the room's history window, dropping the
// oldest entry if the window is full.
func (r *Room) appendHistory(m message.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, m)
	if len(r.history) > r.historyCap {
		r.history = r.history[len(r.history)-r.historyCap:]
	}
}

// historySnapshot returns a copy of up to the last N history messages.
func (r *Room) historySnapshot() []message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]message.Message, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Room) historyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

// userViews projects the current membership as a user_list payload.
func (r *Room) userViews() []message.UserView {
	members := r.membersSnapshot()
	views := make([]message.UserView, 0, len(members))
	for _, s := range members {
		views = append(views, message.UserView{
			ID:          s.ID(),
			Username:    s.DisplayName(),
			JoinedAt:    s.JoinedAt().UnixMilli(),
			VectorClock: s.ClockSnapshot(),
		})
	}
	return views
}
