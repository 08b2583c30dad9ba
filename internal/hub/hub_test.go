package hub_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sfurman3/vectorchat/internal/hub"
	"github.com/sfurman3/vectorchat/internal/message"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const recvTimeout = 2 * time.Second

// connect accepts a fake connection on h, drains its init frame, and
// returns the connection for further scripting. The caller is responsible
// for joining a room.
func connect(t *testing.T, h *hub.Hub, remote string) *fakeConn {
	t.Helper()
	conn := newFakeConn(remote)
	sess := h.Accept(conn)
	go h.Serve(sess)
	init := conn.recv(t, recvTimeout)
	require.Equal(t, message.FrameInit, init.Type)
	conn.id = init.ClientID
	return conn
}

func join(t *testing.T, conn *fakeConn, username, roomID string) *message.Frame {
	t.Helper()
	conn.send(t, &message.Frame{Type: message.FrameJoin, Username: username, RoomID: roomID})
	return conn.recvType(t, message.FrameJoinSuccess, recvTimeout)
}

func TestJoinLifecycleSendsSuccessAndRoster(t *testing.T) {
	h := hub.New(hub.WithDefaultRoom("lobby"))
	alice := connect(t, h, "alice-addr")

	js := join(t, alice, "alice", "room1")
	assert.Equal(t, "room1", js.Room.ID)
	assert.Len(t, js.Users, 1)
	assert.Equal(t, 0, js.MessageCount)

	bob := connect(t, h, "bob-addr")
	bobJoin := join(t, bob, "bob", "room1")
	assert.Len(t, bobJoin.Users, 2)

	// Alice is notified of Bob's arrival.
	sys := alice.recvType(t, message.FrameSystem, recvTimeout)
	assert.Contains(t, sys.Message, "bob")
	assert.Contains(t, sys.Message, "joined")

	alice.Close()
	bob.Close()
}

func TestBroadcastExcludesSender(t *testing.T) {
	h := hub.New()
	alice := connect(t, h, "alice-addr")
	bob := connect(t, h, "bob-addr")
	join(t, alice, "alice", "room1")
	join(t, bob, "bob", "room1")
	drainSystemAndRoster(t, alice)

	alice.send(t, &message.Frame{Type: message.FrameChat, Text: "hi bob"})

	ack := alice.recvType(t, message.FrameMessageDelivered, recvTimeout)
	assert.NotEmpty(t, ack.MessageID)

	chat := bob.recvType(t, message.FrameChat, recvTimeout)
	assert.Equal(t, "hi bob", chat.Text)
	assert.Equal(t, "alice", chat.Username)

	// Alice must not receive her own chat frame echoed back.
	select {
	case <-time.After(150 * time.Millisecond):
	case data := <-alice.toClient:
		f, _ := message.Decode(data)
		t.Fatalf("sender received unexpected frame: %+v", f)
	}

	alice.Close()
	bob.Close()
}

func TestRequestHistoryReturnsPriorMessages(t *testing.T) {
	h := hub.New()
	alice := connect(t, h, "alice-addr")
	join(t, alice, "alice", "room1")

	for i := 0; i < 3; i++ {
		alice.send(t, &message.Frame{Type: message.FrameChat, Text: fmt.Sprintf("msg-%d", i)})
		alice.recvType(t, message.FrameMessageDelivered, recvTimeout)
	}

	alice.send(t, &message.Frame{Type: message.FrameRequestHistory})
	hist := alice.recvType(t, message.FrameHistory, recvTimeout)
	assert.Equal(t, 3, hist.Total)
	assert.Len(t, hist.Messages, 3)

	alice.Close()
}

func TestHistoryWindowBoundedAt50(t *testing.T) {
	h := hub.New()
	alice := connect(t, h, "alice-addr")
	join(t, alice, "alice", "room1")

	for i := 0; i < 60; i++ {
		alice.send(t, &message.Frame{Type: message.FrameChat, Text: fmt.Sprintf("msg-%d", i)})
		alice.recvType(t, message.FrameMessageDelivered, recvTimeout)
	}

	alice.send(t, &message.Frame{Type: message.FrameRequestHistory})
	hist := alice.recvType(t, message.FrameHistory, recvTimeout)
	assert.Equal(t, 50, hist.Total)
	assert.Equal(t, "msg-10", hist.Messages[0].Text)
	assert.Equal(t, "msg-59", hist.Messages[len(hist.Messages)-1].Text)

	alice.Close()
}

func TestLateJoinerClockSeededFromExistingMembers(t *testing.T) {
	h := hub.New()
	alice := connect(t, h, "alice-addr")
	join(t, alice, "alice", "room1")

	// Alice sends two chat messages, ticking her own clock to 2.
	for i := 0; i < 2; i++ {
		alice.send(t, &message.Frame{Type: message.FrameChat, Text: "hi"})
		alice.recvType(t, message.FrameMessageDelivered, recvTimeout)
	}

	bob := connect(t, h, "bob-addr")
	bobJoin := join(t, bob, "bob", "room1")

	var aliceView *message.UserView
	for i := range bobJoin.Users {
		if bobJoin.Users[i].Username == "alice" {
			aliceView = &bobJoin.Users[i]
		}
	}
	require.NotNil(t, aliceView)
	assert.Equal(t, "2", aliceView.VectorClock.Text(alice.id))

	alice.Close()
	bob.Close()
}

func TestSimulatedDelaysReleasedInSendOrder(t *testing.T) {
	h := hub.New()
	alice := connect(t, h, "alice-addr")
	bob := connect(t, h, "bob-addr")
	join(t, alice, "alice", "room1")
	join(t, bob, "bob", "room1")
	drainSystemAndRoster(t, alice)

	start := time.Now()
	alice.send(t, &message.Frame{
		Type: message.FrameChat, Text: "slow",
		Metadata: map[string]interface{}{"simulate_delay": true, "delay_ms": 300},
	})
	alice.recvType(t, message.FrameMessageDelivered, recvTimeout)
	alice.send(t, &message.Frame{
		Type: message.FrameChat, Text: "fast",
		Metadata: map[string]interface{}{"simulate_delay": true, "delay_ms": 20},
	})
	alice.recvType(t, message.FrameMessageDelivered, recvTimeout)

	// "fast" must be held back behind "slow" regardless of its own shorter
	// delay, because delivery is causally ordered per-sender: bob cannot
	// receive alice's second chat before her first.
	first := bob.recvType(t, message.FrameChat, recvTimeout)
	elapsed := time.Since(start)
	assert.Equal(t, "slow", first.Text)
	assert.GreaterOrEqual(t, elapsed, 280*time.Millisecond)

	second := bob.recvType(t, message.FrameChat, recvTimeout)
	assert.Equal(t, "fast", second.Text)

	alice.Close()
	bob.Close()
}

func TestDisconnectBroadcastsLeaveThenFreshRoster(t *testing.T) {
	h := hub.New()
	alice := connect(t, h, "alice-addr")
	bob := connect(t, h, "bob-addr")
	join(t, alice, "alice", "room1")
	join(t, bob, "bob", "room1")
	drainSystemAndRoster(t, alice)

	bob.Close()

	sys := alice.recvType(t, message.FrameSystem, recvTimeout)
	assert.Contains(t, sys.Message, "left")

	roster := alice.recvType(t, message.FrameUserList, recvTimeout)
	assert.Len(t, roster.Users, 1)

	alice.Close()
}

// drainSystemAndRoster discards the join-notice/user_list pair a room
// member receives whenever someone else joins, so later tests on the same
// connection can wait for a specific frame type without tripping over
// membership-change noise.
func drainSystemAndRoster(t *testing.T, conn *fakeConn) {
	t.Helper()
	conn.recvType(t, message.FrameSystem, recvTimeout)
	conn.recvType(t, message.FrameUserList, recvTimeout)
}
