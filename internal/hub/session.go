package hub

import (
	"sync"
	"time"

	"github.com/sfurman3/vectorchat/internal/delivery"
	"github.com/sfurman3/vectorchat/internal/logging"
	"github.com/sfurman3/vectorchat/internal/message"
	"github.com/sfurman3/vectorchat/internal/transport"
	"github.com/sfurman3/vectorchat/internal/vectorclock"
)

// outboundQueueSize bounds each session's outbound frame queue. A session
// whose peer can't keep up overflows this queue and is closed: the hub
// drops the session, never a message out of someone else's history.
const outboundQueueSize = 256

// Session is the hub's server-side state for one connected participant:
// identity, current room, the hub-side vector clock it owns, and a
// single-writer outbound path to its transport.Conn.
type Session struct {
	id          string
	conn        transport.Conn
	log         logging.Logger
	joinedAt    time.Time

	mu          sync.Mutex
	displayName string
	roomID      string
	clock       *vectorclock.Clock
	engine      *delivery.Engine

	out       chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(id string, conn transport.Conn, log logging.Logger) *Session {
	return &Session{
		id:       id,
		conn:     conn,
		log:      log,
		joinedAt: time.Now(),
		out:      make(chan []byte, outboundQueueSize),
		closed:   make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

func (s *Session) JoinedAt() time.Time { return s.joinedAt }

func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// join binds the session to a room with its freshly seeded clock and a
// causal delivery engine driven by that same clock: one participant clock
// serves both as the stamp on outgoing sends and as the local state the
// delivery engine checks incoming messages against. A session may only
// join once; join returns false if it already belongs to a room.
func (s *Session) join(roomID, displayName string, clock *vectorclock.Clock) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomID != "" {
		return false
	}
	s.roomID = roomID
	s.displayName = displayName
	s.clock = clock
	s.engine = delivery.New(clock)
	return true
}

func (s *Session) clockOrNil() *vectorclock.Clock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

func (s *Session) engineOrNil() *delivery.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// ClockSnapshot returns a value-copy of the session's hub-side vector
// clock, or an empty snapshot if the session hasn't joined a room yet.
func (s *Session) ClockSnapshot() vectorclock.Snapshot {
	c := s.clockOrNil()
	if c == nil {
		return vectorclock.Snapshot{}
	}
	return c.Snapshot()
}

// tick advances the session's own clock entry and returns the resulting
// snapshot, to be stamped onto a chat message it sends.
func (s *Session) tick() vectorclock.Snapshot {
	return s.clockOrNil().Tick()
}

// enqueue encodes and queues f for delivery on the session's single writer
// goroutine. If the outbound queue is full the session can't keep up with
// its own peer, so enqueue drops the session rather than silently dropping
// the message out of someone else's history, and reports false.
func (s *Session) enqueue(f *message.Frame) bool {
	data, err := message.Encode(f)
	if err != nil {
		s.log.Errorf("encode frame for session %s: %v", s.id, err)
		return false
	}
	select {
	case s.out <- data:
		return true
	case <-s.closed:
		return false
	default:
		s.log.Warnf("outbound queue full for session %s, closing", s.id)
		s.Close()
		return false
	}
}

// writePump is the session's single writer: every outbound frame is
// serialized through this one goroutine onto the underlying transport.Conn,
// so exactly one goroutine ever calls WriteFrame on a given connection,
// grounded in the teacher's per-client writer goroutine.
func (s *Session) writePump() {
	for {
		select {
		case data, ok := <-s.out:
			if !ok {
				return
			}
			if err := s.conn.WriteFrame(data); err != nil {
				s.log.Warnf("write to session %s failed: %v", s.id, err)
				s.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

// Close tears the session down exactly once: it signals the writer to stop
// and closes the underlying transport. The outbound channel itself is left
// open, and frames still waiting in it are not flushed first.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}
