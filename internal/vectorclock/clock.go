// Package vectorclock implements per-participant vector clocks: creation,
// local ticks, merges on receipt, and the causal-readiness predicate that
// the delivery engine uses to decide whether a message can be delivered.
//
// An event e causally precedes e' (e -> e', "happens before") when e may
// have influenced e': a local event precedes every later local event in
// the same participant, and a send precedes its matching receive. Two
// events are concurrent when neither precedes the other. A vector clock
// timestamps each event so that e -> e' implies clock(e) < clock(e')
// componentwise; causal delivery is the discipline of presenting received
// messages to a participant only in an order consistent with that
// relation, which is what ReadyForDelivery and the delivery package
// enforce.
package vectorclock

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/sfurman3/vectorchat/internal/logical"
)

// Snapshot is a value-copy of a vector clock's entries, keyed by
// participant ID. Snapshots are immune to later mutation of the clock they
// were taken from.
type Snapshot map[string]*logical.Counter

// entry returns the counter for id, or a zero counter if id is absent,
// without mutating s. Entries missing from a snapshot always read as 0.
func (s Snapshot) entry(id string) *logical.Counter {
	if c, ok := s[id]; ok {
		return c
	}
	return logical.NewCounter()
}

// Text returns the base-10 textual value of id's counter, or "0" if id is
// absent from the snapshot.
func (s Snapshot) Text(id string) string {
	return s.entry(id).Text(10)
}

// Clone returns an independent deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, c := range s {
		out[id] = c.Clone()
	}
	return out
}

// MarshalJSON encodes the snapshot as an ordered sequence of [id, count]
// pairs, each count written as a base-10 string. The ordering is a display
// convention only; readiness and merge semantics never depend on it.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pairs := make([][2]string, 0, len(ids))
	for _, id := range ids {
		pairs = append(pairs, [2]string{id, s[id].Text(10)})
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON decodes a snapshot from the [id, count] pair sequence
// produced by MarshalJSON.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var pairs [][2]string
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	out := make(Snapshot, len(pairs))
	for _, p := range pairs {
		c, ok := new(logical.Counter).SetString(p[1], 10)
		if !ok {
			return &logical.InvalidCounterError{Value: p[1]}
		}
		out[p[0]] = c
	}
	*s = out
	return nil
}

// Clock is a single participant's vector clock: a mapping from participant
// ID to a non-negative counter, with a distinguished self entry that only
// this clock's owner may tick.
//
// A Clock is safe for concurrent use.
type Clock struct {
	mu      sync.Mutex
	self    string
	entries Snapshot
}

// New returns a Clock for participant self, initialized to {self: 0}.
func New(self string) *Clock {
	c := &Clock{
		self:    self,
		entries: make(Snapshot),
	}
	c.entries[self] = logical.NewCounter()
	return c
}

// Self returns the ID of the participant that owns this clock.
func (c *Clock) Self() string {
	return c.self
}

// AddPeer ensures id is present in the clock, inserting it with value 0 if
// absent. Idempotent.
func (c *Clock) AddPeer(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addPeerLocked(id)
}

func (c *Clock) addPeerLocked(id string) {
	if _, ok := c.entries[id]; !ok {
		c.entries[id] = logical.NewCounter()
	}
}

// Tick increments the self entry by one and returns a snapshot of the
// resulting clock.
func (c *Clock) Tick() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.self].Tick()
	return c.entries.Clone()
}

// Merge applies a componentwise maximum of this clock with snap. Unknown
// IDs in snap are implicitly added. Merge is commutative, associative, and
// idempotent.
func (c *Clock) Merge(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, v := range snap {
		c.addPeerLocked(id)
		c.entries[id].Max(v)
	}
}

// SelfCount returns a clone of this clock's own entry, independent of
// later ticks. Used to seed a late joiner's clock with exactly what each
// existing member currently knows about itself, not that member's full
// transitive knowledge of the room.
func (c *Clock) SelfCount() *logical.Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[c.self].Clone()
}

// Snapshot returns a value-copy of the clock's current entries.
func (c *Clock) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Clone()
}

// Len reports how many participant entries the clock currently tracks.
func (c *Clock) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ReadyForDelivery reports whether a message stamped with msgClock from
// senderID is deliverable at this clock's current state, which holds iff
//
//  1. msgClock[senderID] == local[senderID] + 1, and
//  2. for every other participant p, msgClock[p] <= local[p].
func (c *Clock) ReadyForDelivery(senderID string, msgClock Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return readyForDelivery(c.entries, senderID, msgClock)
}

func readyForDelivery(local Snapshot, senderID string, msgClock Snapshot) bool {
	expectNext := local.entry(senderID).Clone()
	expectNext.Tick()
	if msgClock.entry(senderID).Cmp(expectNext) != 0 {
		return false
	}
	for p, v := range msgClock {
		if p == senderID {
			continue
		}
		if v.Cmp(local.entry(p)) > 0 {
			return false
		}
	}
	return true
}

// HappensBefore reports whether a causally precedes b: a <= b componentwise
// over the union of their keys (missing entries read as 0) with at least
// one strict inequality.
func HappensBefore(a, b Snapshot) bool {
	if a == nil || b == nil {
		return false
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	for id := range a {
		seen[id] = struct{}{}
	}
	for id := range b {
		seen[id] = struct{}{}
	}

	strictlyLess := false
	for id := range seen {
		av := a.entry(id)
		bv := b.entry(id)
		switch av.Cmp(bv) {
		case 1:
			return false
		case -1:
			strictlyLess = true
		}
	}
	return strictlyLess
}

// Concurrent reports whether neither a nor b happens-before the other.
func Concurrent(a, b Snapshot) bool {
	return !HappensBefore(a, b) && !HappensBefore(b, a)
}
