// Package ws is the realtime gateway: it routes inbound client events to the
// chat state engine and fans resulting events out to every live connection
// of the addressed user. Addressing is logical by username, not by physical
// connection; a user may have zero, one, or many connections, and a client
// that reconnects reconciles via the fetch endpoints.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/duochat/duochat/internal/engine"
	"github.com/duochat/duochat/internal/models"
	"github.com/duochat/duochat/internal/notify"
	"github.com/duochat/duochat/internal/presence"
	"github.com/duochat/duochat/internal/telemetry"
)

// Frame is the wire shape in both directions. Inbound frames may carry an ID
// which is echoed back in an ack so clients can tell "delivered to server"
// from "applied".
type Frame struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type ackData struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type sendMessagePayload struct {
	From    string           `json:"from"`
	To      string           `json:"to"`
	Message string           `json:"message"`
	File    string           `json:"file,omitempty"`
	ReplyTo *models.ReplyRef `json:"replyTo,omitempty"`
}

type typingPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type messageSeenPayload struct {
	Viewer string `json:"viewer"`
	Sender string `json:"sender"`
}

type viewingPagePayload struct {
	Username    string `json:"username"`
	ViewingUser string `json:"viewingUser"`
}

type exitPagePayload struct {
	Username string `json:"username"`
}

// Hub is the per-user subscriber registry.
type Hub struct {
	engine   *engine.Engine
	presence *presence.Tracker
	notifier *notify.Dispatcher
	log      zerolog.Logger

	// clearPresenceOnDisconnect controls whether a user's viewing state is
	// dropped when their last connection goes away. Off by default: a brief
	// reconnect should not stop seen-receipts for a screen that is still
	// open. See the config key realtime.clear_presence_on_disconnect.
	clearPresenceOnDisconnect bool

	mu      sync.RWMutex
	clients map[string]map[*Client]bool
}

func NewHub(eng *engine.Engine, tracker *presence.Tracker, notifier *notify.Dispatcher, clearPresenceOnDisconnect bool, log zerolog.Logger) *Hub {
	return &Hub{
		engine:                    eng,
		presence:                  tracker,
		notifier:                  notifier,
		log:                       log,
		clearPresenceOnDisconnect: clearPresenceOnDisconnect,
		clients:                   make(map[string]map[*Client]bool),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.username] == nil {
		h.clients[c.username] = make(map[*Client]bool)
	}
	h.clients[c.username][c] = true
	telemetry.Connections.Inc()
}

// unregister runs once per client, from its read goroutine. It is the sole
// closer of c.send; every other path that removes a client only signals
// c.done and leaves the channel open.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if conns := h.clients[c.username]; conns[c] {
		delete(conns, c)
		telemetry.Connections.Dec()
		if len(conns) == 0 {
			delete(h.clients, c.username)
		}
	}
	c.dropped = true
	close(c.send)
	lastConn := len(h.clients[c.username]) == 0
	h.mu.Unlock()

	if lastConn && h.clearPresenceOnDisconnect {
		h.presence.ClearViewing(c.username)
	}
}

// Publish delivers an event to every live connection of username. A client
// whose send buffer is full is dropped rather than allowed to stall the
// others.
func (h *Hub) Publish(username, event string, data any) {
	frame, err := json.Marshal(outboundFrame{Event: event, Data: data})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encode outbound frame")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[username] {
		select {
		case c.send <- frame:
			telemetry.EventsDelivered.WithLabelValues(event).Inc()
		default:
			// Slow consumer: remove it and signal its pumps to shut down.
			// c.send stays open so the client's read goroutine can still be
			// mid-ack; unregister closes it once that goroutine exits.
			c.dropped = true
			delete(h.clients[username], c)
			if len(h.clients[username]) == 0 {
				delete(h.clients, username)
			}
			close(c.done)
			telemetry.Connections.Dec()
		}
	}
}

// dispatch routes one inbound frame. Handlers run on the connection's read
// goroutine; the engine's per-pair locks keep concurrent sends consistent.
func (h *Hub) dispatch(c *Client, frame Frame) {
	switch frame.Event {
	case "send-message":
		var p sendMessagePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			h.ack(c, frame, err)
			return
		}
		h.handleSendMessage(c, frame, p)

	case "typing":
		var p typingPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			h.ack(c, frame, err)
			return
		}
		h.Publish(p.To, "typing", map[string]string{"from": p.From})
		h.ack(c, frame, nil)

	case "message-seen":
		var p messageSeenPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			h.ack(c, frame, err)
			return
		}
		h.handleMessageSeen(c, frame, p)

	case "viewing-page":
		var p viewingPagePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			h.ack(c, frame, err)
			return
		}
		h.presence.SetViewing(p.Username, p.ViewingUser)
		h.ack(c, frame, nil)

	case "exit-page":
		var p exitPagePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			h.ack(c, frame, err)
			return
		}
		h.presence.ClearViewing(p.Username)
		h.ack(c, frame, nil)

	default:
		h.log.Debug().Str("event", frame.Event).Msg("unknown inbound event")
		h.ack(c, frame, errUnknownEvent)
	}
}

func (h *Hub) handleSendMessage(c *Client, frame Frame, p sendMessagePayload) {
	msg, senderUpd, recipientUpd, err := h.engine.RecordMessage(p.From, p.To, p.Message, p.File, p.ReplyTo)
	if err != nil {
		h.log.Warn().Err(err).Str("from", p.From).Str("to", p.To).Msg("send-message rejected")
		h.ack(c, frame, err)
		return
	}
	telemetry.MessagesRecorded.Inc()

	h.Publish(p.To, "message-received", map[string]any{
		"from":    p.From,
		"message": msg,
	})
	h.Publish(p.To, "chat-list-updated", recipientUpd)
	h.Publish(p.From, "chat-list-updated", senderUpd)

	h.notifier.Schedule(msg, p.From, p.To)
	h.ack(c, frame, nil)
}

func (h *Hub) handleMessageSeen(c *Client, frame Frame, p messageSeenPayload) {
	applied, err := h.engine.MarkSeen(p.Viewer, p.Sender)
	if err != nil {
		h.ack(c, frame, err)
		return
	}
	if applied {
		// The receipt covers everything pending from this sender, so the
		// delayed push checks for the pair can be dropped early.
		h.notifier.CancelPair(p.Sender, p.Viewer)
		h.Publish(p.Sender, "message-seen", map[string]string{"viewer": p.Viewer})
	}
	h.ack(c, frame, nil)
}

func (h *Hub) ack(c *Client, frame Frame, err error) {
	if frame.ID == "" {
		return
	}
	h.mu.RLock()
	dropped := c.dropped
	h.mu.RUnlock()
	if dropped {
		return
	}
	data := ackData{ID: frame.ID, OK: err == nil}
	if err != nil {
		data.Error = err.Error()
	}
	out, mErr := json.Marshal(outboundFrame{Event: "ack", Data: data})
	if mErr != nil {
		return
	}
	select {
	case c.send <- out:
	default:
	}
}
