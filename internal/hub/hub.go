// Package hub implements the broadcast hub: the room and session
// registries, the join/chat/typing/history/get_users/ping frame lifecycle,
// and the per-recipient causal delivery that guarantees every client sees
// chat messages in an order consistent with their vector clocks, no matter
// what order the network or a simulated delay deliver them to the hub in.
//
// Grounded on the teacher's src/server/server.go command dispatch loop and
// heartbeat handling, generalized from its fixed "/nick", "/quit",
// "/master" command set to a JSON frame taxonomy, and on the streamspace
// websocket/hub.go Hub/Client registration pattern (retrieved corpus,
// other_examples) for the connection registry and broadcast path.
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sfurman3/vectorchat/internal/logging"
	"github.com/sfurman3/vectorchat/internal/message"
	"github.com/sfurman3/vectorchat/internal/metrics"
	"github.com/sfurman3/vectorchat/internal/transport"
	"github.com/sfurman3/vectorchat/internal/vectorclock"
)

// leaveSettleDelay is the brief pause between a departure's "system" notice
// and the follow-up fresh user_list broadcast, long enough that a client
// which reconnects immediately still sees a single coherent membership
// transition rather than a flicker.
const leaveSettleDelay = 50 * time.Millisecond

// Hub owns every room and session in one server process. Its two registries
// (rooms, sessions) are each guarded by their own mutex, held only for the
// duration of a lookup or a set mutation, never across network I/O.
type Hub struct {
	defaultRoom string
	log         logging.Logger
	metrics     *metrics.Registry

	roomsMu sync.Mutex
	rooms   map[string]*Room

	sessionsMu sync.Mutex
	sessions   map[string]*Session
}

// Option configures a Hub at construction time.
type Option func(*Hub)

// WithDefaultRoom sets the room ID new connections are told to use when
// they join without naming one explicitly.
func WithDefaultRoom(roomID string) Option {
	return func(h *Hub) { h.defaultRoom = roomID }
}

// WithLogger overrides the hub's logger (default: logging.New()).
func WithLogger(log logging.Logger) Option {
	return func(h *Hub) { h.log = log }
}

// WithMetrics overrides the hub's metrics registry (default: metrics.New()).
func WithMetrics(reg *metrics.Registry) Option {
	return func(h *Hub) { h.metrics = reg }
}

// New constructs a Hub ready to accept connections.
func New(opts ...Option) *Hub {
	h := &Hub{
		defaultRoom: "lobby",
		log:         logging.New(),
		metrics:     metrics.New(),
		rooms:       make(map[string]*Room),
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(h)
	}
	// The default room exists from hub start; any other room is created on
	// its first join.
	h.getOrCreateRoom(h.defaultRoom)
	return h
}

func (h *Hub) getOrCreateRoom(id string) *Room {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	r, ok := h.rooms[id]
	if !ok {
		r = newRoom(id, id)
		h.rooms[id] = r
		h.metrics.Rooms.Set(float64(len(h.rooms)))
	}
	return r
}

func (h *Hub) roomByID(id string) (*Room, bool) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	r, ok := h.rooms[id]
	return r, ok
}

// Accept registers a new connection, assigns it an ID, sends the initial
// `init` frame, and starts its write pump. The returned Session must be
// handed to Serve to process inbound frames.
func (h *Hub) Accept(conn transport.Conn) *Session {
	id := uuid.NewString()
	sess := newSession(id, conn, h.log)

	h.sessionsMu.Lock()
	h.sessions[id] = sess
	h.sessionsMu.Unlock()

	h.metrics.Connections.Inc()
	go sess.writePump()

	sess.enqueue(&message.Frame{
		Type:        message.FrameInit,
		ClientID:    id,
		ServerTime:  time.Now().UnixMilli(),
		DefaultRoom: h.defaultRoom,
	})
	return sess
}

// Serve reads and dispatches frames from sess until its connection fails or
// closes, then tears the session down. It is meant to run on its own
// goroutine per connection, mirroring the teacher's one-goroutine-per-client
// accept loop.
func (h *Hub) Serve(sess *Session) {
	defer h.disconnect(sess)
	for {
		data, err := sess.conn.ReadFrame()
		if err != nil {
			return
		}
		frame, err := message.Decode(data)
		if err != nil {
			h.log.Warnf("dropping malformed frame from %s: %v", sess.ID(), err)
			continue
		}
		h.dispatch(sess, frame)
	}
}

func (h *Hub) dispatch(sess *Session, f *message.Frame) {
	switch f.Type {
	case message.FrameJoin:
		h.handleJoin(sess, f)
	case message.FrameChat:
		h.handleChat(sess, f)
	case message.FrameTyping:
		h.handleTyping(sess, f)
	case message.FrameRequestHistory:
		h.handleRequestHistory(sess, f)
	case message.FrameGetUsers:
		h.handleGetUsers(sess, f)
	case message.FramePing:
		sess.enqueue(&message.Frame{Type: message.FramePong, Timestamp: time.Now().UnixMilli()})
	default:
		h.log.Warnf("unknown frame type %q from %s", f.Type, sess.ID())
	}
}

func (h *Hub) handleJoin(sess *Session, f *message.Frame) {
	roomID := f.RoomID
	if roomID == "" {
		roomID = h.defaultRoom
	}
	displayName := f.Username
	if displayName == "" {
		displayName = "anonymous-" + sess.ID()[:8]
	}

	room := h.getOrCreateRoom(roomID)
	existing := room.membersSnapshot()

	clock := vectorclock.New(sess.ID())
	for _, m := range existing {
		clock.AddPeer(m.ID())
		clock.Merge(vectorclock.Snapshot{m.ID(): m.clockOrNil().SelfCount()})
	}

	if !sess.join(roomID, displayName, clock) {
		sess.enqueue(&message.Frame{
			Type:    message.FrameSystem,
			Message: "already joined a room",
		})
		return
	}
	room.addMember(sess)

	sess.enqueue(&message.Frame{
		Type:         message.FrameJoinSuccess,
		Room:         &message.RoomView{ID: room.ID, DisplayName: room.DisplayName},
		Users:        room.userViews(),
		MessageCount: room.historyCount(),
	})

	h.broadcastExcept(room, sess.ID(), &message.Frame{
		Type:    message.FrameSystem,
		Message: displayName + " joined",
	})
	h.broadcastAll(room, &message.Frame{Type: message.FrameUserList, Users: room.userViews()})
}

func (h *Hub) handleChat(sess *Session, f *message.Frame) {
	if sess.RoomID() == "" {
		sess.enqueue(&message.Frame{Type: message.FrameSystem, Message: "join a room before sending chat"})
		return
	}
	room, ok := h.roomByID(sess.RoomID())
	if !ok {
		return
	}

	snapshot := sess.tick()
	msg := message.Message{
		ID:                uuid.NewString(),
		RoomID:            room.ID,
		SenderID:          sess.ID(),
		SenderDisplayName: sess.DisplayName(),
		Text:              f.Text,
		SentClock:         snapshot,
		WallTimestamp:     time.Now(),
		Metadata:          f.Metadata,
	}
	room.appendHistory(msg)

	sess.enqueue(&message.Frame{
		Type:      message.FrameMessageDelivered,
		MessageID: msg.ID,
		Timestamp: msg.WallTimestamp.UnixMilli(),
	})

	broadcast := func() { h.broadcastChat(room, msg) }
	if delay, ok := msg.SimulateDelay(); ok && delay > 0 {
		// Each delayed send gets its own timer so multiple simulated
		// delays remain independently schedulable rather than serialized
		// behind one another.
		time.AfterFunc(delay, broadcast)
		return
	}
	broadcast()
}

// broadcastChat delivers msg to every member of room except its sender,
// routing each recipient's copy through that recipient's own causal
// delivery engine, so the frame it receives, and anything its arrival
// unblocks, always reaches the wire in causal order.
func (h *Hub) broadcastChat(room *Room, msg message.Message) {
	for _, recipient := range room.membersSnapshot() {
		if recipient.ID() == msg.SenderID {
			continue
		}
		h.deliverToRecipient(recipient, msg)
	}
	h.metrics.MessagesBroadcast.WithLabelValues(room.ID).Inc()
}

func (h *Hub) deliverToRecipient(recipient *Session, msg message.Message) {
	engine := recipient.engineOrNil()
	clock := recipient.clockOrNil()
	if engine == nil || clock == nil {
		return
	}

	result := engine.Offer(msg)
	if !result.DeliveredNow {
		h.metrics.DeliveryBufferSize.WithLabelValues(recipient.ID()).Set(float64(engine.Stats().CurrentBufferSize))
		return
	}

	clock.Merge(msg.SentClock)
	engine.MarkDelivered(msg)
	recipient.enqueue(msg.ToFrame())

	for _, released := range engine.Drain() {
		recipient.enqueue(released.ToFrame())
	}
	h.metrics.DeliveryBufferSize.WithLabelValues(recipient.ID()).Set(float64(engine.Stats().CurrentBufferSize))
}

func (h *Hub) handleTyping(sess *Session, f *message.Frame) {
	room, ok := h.roomByID(sess.RoomID())
	if !ok {
		return
	}
	h.broadcastExcept(room, sess.ID(), &message.Frame{
		Type:     message.FrameUserTyping,
		UserID:   sess.ID(),
		Username: sess.DisplayName(),
		IsTyping: f.IsTyping,
	})
}

func (h *Hub) handleRequestHistory(sess *Session, f *message.Frame) {
	room, ok := h.roomByID(sess.RoomID())
	if !ok {
		return
	}
	// History is returned straight from the room log rather than replayed
	// through sess's delivery engine: a joiner's clock is seeded at join
	// time from every current member's own tick count, so it already covers
	// every logged message whose clock names only current members, and
	// offering those messages to the engine would wedge them forever on the
	// exact local+1 check. Entries for participants who left before the
	// join are never merged into the joiner's clock. See DESIGN.md's
	// "history and causality" note.
	history := room.historySnapshot()
	frames := make([]*message.Frame, 0, len(history))
	for _, m := range history {
		frames = append(frames, m.ToFrame())
	}
	sess.enqueue(&message.Frame{
		Type:     message.FrameHistory,
		Messages: frames,
		Total:    len(frames),
	})
}

func (h *Hub) handleGetUsers(sess *Session, f *message.Frame) {
	room, ok := h.roomByID(sess.RoomID())
	if !ok {
		return
	}
	sess.enqueue(&message.Frame{
		Type:      message.FrameUserList,
		Users:     room.userViews(),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *Hub) disconnect(sess *Session) {
	h.sessionsMu.Lock()
	delete(h.sessions, sess.ID())
	h.sessionsMu.Unlock()

	h.metrics.Connections.Dec()
	h.metrics.SessionsClosed.WithLabelValues("disconnect").Inc()
	sess.Close()

	roomID := sess.RoomID()
	if roomID == "" {
		return
	}
	room, ok := h.roomByID(roomID)
	if !ok {
		return
	}
	room.removeMember(sess.ID())

	h.broadcastAll(room, &message.Frame{
		Type:    message.FrameSystem,
		Message: sess.DisplayName() + " left",
	})
	time.AfterFunc(leaveSettleDelay, func() {
		h.broadcastAll(room, &message.Frame{Type: message.FrameUserList, Users: room.userViews()})
	})
}

func (h *Hub) broadcastAll(room *Room, f *message.Frame) {
	for _, m := range room.membersSnapshot() {
		m.enqueue(f)
	}
}

func (h *Hub) broadcastExcept(room *Room, exceptID string, f *message.Frame) {
	for _, m := range room.membersSnapshot() {
		if m.ID() == exceptID {
			continue
		}
		m.enqueue(f)
	}
}
