// Package ws implements transport.Conn over a real gorilla/websocket
// connection.
//
// Reads and writes go straight to the websocket (there are no read/write
// pumps here; the hub's Session owns the outbound queue). The
// write-deadline-on-every-write discipline, the ping ticker, and the
// pong-handler read-deadline reset are grounded in
// the streamspace websocket/hub.go file's Client.readPump/writePump
// (retrieved corpus, other_examples); the Transport-interface-over-a-
// concrete-channel split itself is grounded in
// chaitanyaphalak-go-mcast's core/transport.go Transport interface.
package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sfurman3/vectorchat/internal/transport"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn adapts a *websocket.Conn to transport.Conn, running a background
// ping ticker so idle connections are kept alive and dead ones detected.
type Conn struct {
	ws     *websocket.Conn
	done   chan struct{}
	closed bool
}

// Upgrade upgrades an HTTP request to a websocket connection and wraps it
// as a transport.Conn.
func Upgrade(w http.ResponseWriter, r *http.Request) (transport.Conn, error) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return wrap(raw), nil
}

func wrap(raw *websocket.Conn) *Conn {
	c := &Conn{ws: raw, done: make(chan struct{})}
	raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go c.pingLoop()
	return c
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadFrame blocks for the next text/binary frame.
func (c *Conn) ReadFrame() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteFrame writes one frame, bounded by a write deadline so a stalled
// peer cannot block the caller indefinitely: a write that can't complete
// in time surfaces as an error so the session can be torn down.
func (c *Conn) WriteFrame(data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close tears down the ping loop and the underlying connection.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return c.ws.Close()
}

// RemoteAddr returns the underlying TCP peer address.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
