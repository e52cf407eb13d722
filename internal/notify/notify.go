// Package notify schedules the delayed "still unseen?" check that follows
// every recorded message and, when it fires, hands a push notification to an
// external transport. The check is best-effort and at-most-once per message:
// failures are logged and swallowed, never surfaced to the sender.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/duochat/duochat/internal/models"
	"github.com/duochat/duochat/internal/store"
	"github.com/duochat/duochat/internal/telemetry"
)

// Notification is the payload handed to a Pusher.
type Notification struct {
	To    string            `json:"to"`
	Sound string            `json:"sound"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// Pusher is one external push transport. Handles reports whether the token
// shape belongs to this transport; the dispatcher picks the first match.
type Pusher interface {
	Handles(token string) bool
	Push(ctx context.Context, note Notification) error
}

type pairKey struct {
	from, to string
}

// Dispatcher owns the pending timers, keyed by message ID so an early
// seen-receipt can cancel them instead of letting every check fire.
type Dispatcher struct {
	store   store.Store
	pushers []Pusher
	delay   time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	byPair  map[pairKey]map[string]struct{}
	closed  bool
}

func NewDispatcher(st store.Store, pushers []Pusher, delay time.Duration, log zerolog.Logger) *Dispatcher {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Dispatcher{
		store:   st,
		pushers: pushers,
		delay:   delay,
		log:     log,
		pending: make(map[string]*time.Timer),
		byPair:  make(map[pairKey]map[string]struct{}),
	}
}

// Schedule arms the delayed check for one message from `from` to `to`.
func (d *Dispatcher) Schedule(msg models.Message, from, to string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	key := pairKey{from: from, to: to}
	timer := time.AfterFunc(d.delay, func() {
		d.forget(msg.ID, key)
		d.check(msg, from, to)
	})
	d.pending[msg.ID] = timer
	if d.byPair[key] == nil {
		d.byPair[key] = make(map[string]struct{})
	}
	d.byPair[key][msg.ID] = struct{}{}
}

// CancelPair drops every pending check for messages from `from` to `to`.
// Called when the recipient's seen-receipt arrives before the delay elapses.
func (d *Dispatcher) CancelPair(from, to string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := pairKey{from: from, to: to}
	for id := range d.byPair[key] {
		if t, ok := d.pending[id]; ok {
			t.Stop()
			delete(d.pending, id)
		}
	}
	delete(d.byPair, key)
}

// Close stops all pending checks.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id, t := range d.pending {
		t.Stop()
		delete(d.pending, id)
	}
	d.byPair = make(map[pairKey]map[string]struct{})
}

func (d *Dispatcher) forget(msgID string, key pairKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, msgID)
	if ids := d.byPair[key]; ids != nil {
		delete(ids, msgID)
		if len(ids) == 0 {
			delete(d.byPair, key)
		}
	}
}

// check re-reads current state at fire time, not a snapshot taken at send
// time: the message may have been seen, or the whole chat deleted, since.
func (d *Dispatcher) check(msg models.Message, from, to string) {
	acct, err := d.store.Get(to)
	if err != nil {
		d.log.Warn().Err(err).Str("to", to).Msg("notification check: recipient lookup failed")
		return
	}
	if acct.PushToken == "" {
		return
	}

	current, ok := findMessage(acct.Messages[from], msg.ID)
	if !ok || current.Seen {
		return
	}

	note := Notification{
		To:    acct.PushToken,
		Sound: "default",
		Title: from + " sent you a message",
		Body:  msg.Text,
		Data:  map[string]string{"from": from},
	}

	pusher := d.pusherFor(acct.PushToken)
	if pusher == nil {
		d.log.Debug().Str("to", to).Msg("no pusher handles token shape, skipping")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pusher.Push(ctx, note); err != nil {
		telemetry.PushesFailed.Inc()
		d.log.Error().Err(err).Str("to", to).Str("msg_id", msg.ID).Msg("push dispatch failed")
		return
	}
	telemetry.PushesSent.Inc()
	d.log.Debug().Str("to", to).Str("msg_id", msg.ID).Msg("push dispatched")
}

func (d *Dispatcher) pusherFor(token string) Pusher {
	for _, p := range d.pushers {
		if p.Handles(token) {
			return p
		}
	}
	return nil
}

func findMessage(msgs []models.Message, id string) (models.Message, bool) {
	for _, m := range msgs {
		if m.ID == id {
			return m, true
		}
	}
	return models.Message{}, false
}
