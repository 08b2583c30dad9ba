// Package delivery implements the per-participant causal delivery engine:
// it decides whether an incoming message is deliverable now, buffers those
// that are not, and re-scans the buffer whenever the clock advances,
// guaranteeing a deterministic, causally-consistent delivery order.
//
// This generalizes the teacher's vector.MessageReceptacle
// (Receive/Deliverables/deliver) from a fixed-size counter array keyed by a
// statically-known process index to the map-based vectorclock.Clock keyed
// by opaque participant ID, and adds observability (attempts, received-at,
// stats) and a deterministic tie-break on top.
package delivery

import (
	"sort"
	"sync"
	"time"

	"github.com/sfurman3/vectorchat/internal/message"
	"github.com/sfurman3/vectorchat/internal/vectorclock"
)

// Reason explains why Offer did not deliver a message immediately.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonDuplicate      Reason = "duplicate"
	ReasonWaiting        Reason = "waiting_for_causal_dependencies"
	ReasonBufferOverflow Reason = "buffer_overflow"
)

// OfferResult is the result of Offer.
type OfferResult struct {
	DeliveredNow bool
	Reason       Reason
}

// BufferedEntryView is the observability projection of a single buffered
// message, returned by Buffered().
type BufferedEntryView struct {
	MessageID  string
	ReceivedAt time.Time
	Attempts   int
	WaitTime   time.Duration
}

// Stats are the engine's running counters.
type Stats struct {
	TotalOffered         int
	DeliveredImmediately int
	BufferedTotal        int
	MaxBufferSize        int
	CurrentBufferSize    int
	TotalDelivered       int
}

type bufferedEntry struct {
	msg        message.Message
	receivedAt time.Time
	attempts   int
}

// Engine is the per-participant causal delivery buffer and readiness
// evaluator. An Engine is safe for concurrent use.
type Engine struct {
	mu            sync.Mutex
	clock         *vectorclock.Clock
	buffer        map[string]*bufferedEntry
	delivered     map[string]struct{}
	maxBufferSize int // 0 means unbounded
	stats         Stats
}

// New returns an Engine that evaluates readiness against clock, with an
// unbounded buffer.
func New(clock *vectorclock.Clock) *Engine {
	return NewBounded(clock, 0)
}

// NewBounded returns an Engine with a buffer capped at maxBufferSize
// entries (0 means unbounded). Offers that would exceed the cap return
// ReasonBufferOverflow rather than silently dropping the message.
func NewBounded(clock *vectorclock.Clock, maxBufferSize int) *Engine {
	return &Engine{
		clock:         clock,
		buffer:        make(map[string]*bufferedEntry),
		delivered:     make(map[string]struct{}),
		maxBufferSize: maxBufferSize,
	}
}

// Offer presents msg to the engine. If msg is causally ready at the
// engine's current clock, it returns {DeliveredNow: true}; the CALLER is
// then responsible for merging msg.SentClock into the clock and for
// emitting the message downstream (e.g. to the UI), and should follow up
// with Drain() to release any buffered messages that merge makes ready.
//
// A message whose ID has already been delivered or is already buffered is
// a no-op returning {false, ReasonDuplicate}.
func (e *Engine) Offer(msg message.Message) OfferResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.TotalOffered++

	if _, ok := e.delivered[msg.ID]; ok {
		return OfferResult{false, ReasonDuplicate}
	}
	if _, ok := e.buffer[msg.ID]; ok {
		return OfferResult{false, ReasonDuplicate}
	}

	if e.clock.ReadyForDelivery(msg.SenderID, msg.SentClock) {
		e.stats.DeliveredImmediately++
		return OfferResult{true, ReasonNone}
	}

	if e.maxBufferSize > 0 && len(e.buffer) >= e.maxBufferSize {
		return OfferResult{false, ReasonBufferOverflow}
	}

	e.buffer[msg.ID] = &bufferedEntry{msg: msg, receivedAt: time.Now()}
	e.stats.BufferedTotal++
	if len(e.buffer) > e.stats.MaxBufferSize {
		e.stats.MaxBufferSize = len(e.buffer)
	}
	e.stats.CurrentBufferSize = len(e.buffer)
	return OfferResult{false, ReasonWaiting}
}

// MarkDelivered records that msg (already handed to the caller via an
// immediate Offer or external means) has been delivered, so a later
// duplicate Offer of the same ID is rejected. It does NOT merge the clock;
// callers merge msg.SentClock themselves per the Offer contract.
func (e *Engine) MarkDelivered(msg message.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delivered[msg.ID] = struct{}{}
	e.stats.TotalDelivered++
}

// Drain re-scans the buffer and releases every message that is now
// deliverable, transitively: after releasing a message, its clock is
// merged and the buffer is rescanned, repeating until no further message
// becomes ready. Messages are returned in an order that respects their
// causal happens-before relation, breaking ties by received-at then
// message ID.
//
// Entries that remain buffered after a full drain have their attempt
// counters incremented.
func (e *Engine) Drain() []message.Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	var released []message.Message
	for {
		id, ok := e.nextReadyLocked()
		if !ok {
			break
		}
		entry := e.buffer[id]
		delete(e.buffer, id)
		e.clock.Merge(entry.msg.SentClock)
		e.delivered[entry.msg.ID] = struct{}{}
		e.stats.TotalDelivered++
		released = append(released, entry.msg)
	}

	for _, entry := range e.buffer {
		entry.attempts++
	}
	e.stats.CurrentBufferSize = len(e.buffer)
	return released
}

// nextReadyLocked returns the ID of the single buffered entry that should
// be delivered next, per the tie-break rule in less, or ok=false if
// nothing in the buffer is currently ready.
func (e *Engine) nextReadyLocked() (string, bool) {
	var candidates []string
	for id, entry := range e.buffer {
		if e.clock.ReadyForDelivery(entry.msg.SenderID, entry.msg.SentClock) {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := e.buffer[candidates[i]], e.buffer[candidates[j]]
		return less(a, b)
	})
	return candidates[0], true
}

// less orders two buffered entries: happens-before order first, then
// received-at ascending, then message ID lexicographically.
func less(a, b *bufferedEntry) bool {
	if vectorclock.HappensBefore(a.msg.SentClock, b.msg.SentClock) {
		return true
	}
	if vectorclock.HappensBefore(b.msg.SentClock, a.msg.SentClock) {
		return false
	}
	if !a.receivedAt.Equal(b.receivedAt) {
		return a.receivedAt.Before(b.receivedAt)
	}
	return a.msg.ID < b.msg.ID
}

// Buffered enumerates the current buffer contents for observability.
func (e *Engine) Buffered() []BufferedEntryView {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	views := make([]BufferedEntryView, 0, len(e.buffer))
	for id, entry := range e.buffer {
		views = append(views, BufferedEntryView{
			MessageID:  id,
			ReceivedAt: entry.receivedAt,
			Attempts:   entry.attempts,
			WaitTime:   now.Sub(entry.receivedAt),
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].MessageID < views[j].MessageID })
	return views
}

// Reset clears all engine state (buffer, delivered-ID set, and stats) but
// leaves the underlying clock untouched.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = make(map[string]*bufferedEntry)
	e.delivered = make(map[string]struct{})
	e.stats = Stats{}
}

// Stats returns a copy of the engine's current counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
