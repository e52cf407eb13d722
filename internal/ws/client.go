package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/duochat/duochat/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var errUnknownEvent = errors.New("unknown event")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The mobile client connects cross-origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one websocket connection bound to a username.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	username string
	send     chan []byte

	// done is closed by the hub when it drops this client as a slow
	// consumer; the write pump exits on it. Only unregister closes send.
	done chan struct{}

	// dropped is guarded by hub.mu; once set, no further frames are
	// written to send on the client's behalf.
	dropped bool
}

// ServeWS upgrades an HTTP request to a websocket connection. The username
// query parameter must name an existing account.
func ServeWS(hub *Hub, st store.Store, w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}
	if _, err := st.Get(username); err != nil {
		http.Error(w, "unknown username", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		username: username,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
	}
	hub.register(client)
	hub.log.Debug().Str("username", username).Msg("client connected")

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		c.hub.log.Debug().Str("username", c.username).Msg("client disconnected")
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn().Err(err).Str("username", c.username).Msg("read error")
			}
			return
		}
		c.hub.dispatch(c, frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// Dropped by the hub as a slow consumer. Closing the
			// connection unblocks the read pump, which then unregisters.
			return
		}
	}
}
