// Package engine applies chat-list, message, and unread mutations to the
// account store. All coupled mutations for a pair happen under that pair's
// locks, so independent pairs proceed concurrently while no operation ever
// observes a half-applied message send.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/duochat/duochat/internal/models"
	"github.com/duochat/duochat/internal/store"
)

// ErrSelfPair is returned for pair operations naming the same user twice.
var ErrSelfPair = errors.New("both usernames refer to the same account")

// Viewership answers whether a viewer currently has a peer's conversation
// open. Satisfied by presence.Tracker.
type Viewership interface {
	IsViewing(viewer, peer string) bool
}

// ChatListUpdate is the delta broadcast to one user after a mutation.
type ChatListUpdate struct {
	Username string         `json:"-"`
	ChatList []string       `json:"chatList"`
	Unread   map[string]int `json:"unread"`
}

type Engine struct {
	store    store.Store
	presence Viewership
	log      zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// stamps tracks the last timestamp issued per sender so message
	// timestamps never go backwards even if the wall clock does.
	stampMu sync.Mutex
	stamps  map[string]time.Time
}

func New(st store.Store, presence Viewership, log zerolog.Logger) *Engine {
	return &Engine{
		store:    st,
		presence: presence,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
		stamps:   make(map[string]time.Time),
	}
}

// AddToChatList inserts each user at the front of the other's chat list if
// absent. Idempotent: an existing entry keeps its position.
func (e *Engine) AddToChatList(userA, userB string) (ChatListUpdate, ChatListUpdate, error) {
	unlock, err := e.lockPair(userA, userB)
	if err != nil {
		return ChatListUpdate{}, ChatListUpdate{}, err
	}
	defer unlock()

	a, b, err := e.loadPair(userA, userB)
	if err != nil {
		return ChatListUpdate{}, ChatListUpdate{}, err
	}

	changedA := insertFront(a, userB)
	changedB := insertFront(b, userA)
	if changedA {
		if err := e.store.Save(a); err != nil {
			return ChatListUpdate{}, ChatListUpdate{}, err
		}
	}
	if changedB {
		if err := e.store.Save(b); err != nil {
			return ChatListUpdate{}, ChatListUpdate{}, err
		}
	}
	return updateFor(a), updateFor(b), nil
}

// RecordMessage appends a message to both sides of the pair, moves each user
// to the front of the other's chat list, and increments the recipient's
// unread counter — one logical unit under the pair locks, durable before it
// returns.
func (e *Engine) RecordMessage(from, to, text, file string, replyTo *models.ReplyRef) (models.Message, ChatListUpdate, ChatListUpdate, error) {
	unlock, err := e.lockPair(from, to)
	if err != nil {
		return models.Message{}, ChatListUpdate{}, ChatListUpdate{}, err
	}
	defer unlock()

	sender, recipient, err := e.loadPair(from, to)
	if err != nil {
		return models.Message{}, ChatListUpdate{}, ChatListUpdate{}, err
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		Sender:    from,
		Text:      text,
		File:      file,
		Timestamp: e.stamp(from),
		Seen:      false,
		ReplyTo:   replyTo,
	}

	// Each side appends its own copy.
	sender.Messages[to] = append(sender.Messages[to], msg)
	recipient.Messages[from] = append(recipient.Messages[from], msg)

	promote(sender, to)
	promote(recipient, from)
	recipient.Unread[from]++

	if err := e.store.Save(recipient); err != nil {
		return models.Message{}, ChatListUpdate{}, ChatListUpdate{}, err
	}
	if err := e.store.Save(sender); err != nil {
		return models.Message{}, ChatListUpdate{}, ChatListUpdate{}, err
	}

	e.log.Debug().Str("from", from).Str("to", to).Str("msg_id", msg.ID).Msg("message recorded")
	return msg, updateFor(sender), updateFor(recipient), nil
}

// MarkSeen flips every unseen message in sender's copy of the viewer
// conversation. It is a no-op unless the viewer currently has that exact
// conversation open; the returned bool reports whether the gate passed.
func (e *Engine) MarkSeen(viewer, sender string) (bool, error) {
	if !e.presence.IsViewing(viewer, sender) {
		return false, nil
	}

	unlock, err := e.lockPair(viewer, sender)
	if err != nil {
		return false, err
	}
	defer unlock()

	if _, err := e.store.Get(viewer); err != nil {
		return false, err
	}
	acct, err := e.store.Get(sender)
	if err != nil {
		return false, err
	}

	msgs := acct.Messages[viewer]
	changed := false
	for i := range msgs {
		if !msgs[i].Seen {
			msgs[i].Seen = true
			changed = true
		}
	}
	if changed {
		acct.Messages[viewer] = msgs
		if err := e.store.Save(acct); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ClearUnread zeroes viewer's unread counter for peer. The bool reports
// whether the counter actually changed; callers only broadcast on change.
func (e *Engine) ClearUnread(viewer, peer string) (ChatListUpdate, bool, error) {
	unlock, err := e.lockPair(viewer, peer)
	if err != nil {
		return ChatListUpdate{}, false, err
	}
	defer unlock()

	if _, err := e.store.Get(peer); err != nil {
		return ChatListUpdate{}, false, err
	}
	acct, err := e.store.Get(viewer)
	if err != nil {
		return ChatListUpdate{}, false, err
	}

	if acct.Unread[peer] == 0 {
		return updateFor(acct), false, nil
	}
	acct.Unread[peer] = 0
	if err := e.store.Save(acct); err != nil {
		return ChatListUpdate{}, false, err
	}
	return updateFor(acct), true, nil
}

// DeleteChat removes each user from the other's chat list and drops both
// copies of the pair's message history. Irreversible; no tombstone.
func (e *Engine) DeleteChat(userA, userB string) (ChatListUpdate, ChatListUpdate, error) {
	unlock, err := e.lockPair(userA, userB)
	if err != nil {
		return ChatListUpdate{}, ChatListUpdate{}, err
	}
	defer unlock()

	a, b, err := e.loadPair(userA, userB)
	if err != nil {
		return ChatListUpdate{}, ChatListUpdate{}, err
	}

	a.ChatList = remove(a.ChatList, userB)
	b.ChatList = remove(b.ChatList, userA)
	delete(a.Messages, userB)
	delete(b.Messages, userA)

	if err := e.store.Save(a); err != nil {
		return ChatListUpdate{}, ChatListUpdate{}, err
	}
	if err := e.store.Save(b); err != nil {
		return ChatListUpdate{}, ChatListUpdate{}, err
	}
	e.log.Info().Str("user1", userA).Str("user2", userB).Msg("chat deleted")
	return updateFor(a), updateFor(b), nil
}

// History returns owner's copy of the conversation with peer. A missing
// account or an empty history both yield an empty slice; the fetch endpoint
// never errors on absent pairs.
func (e *Engine) History(owner, peer string) ([]models.Message, error) {
	acct, err := e.store.Get(owner)
	if errors.Is(err, store.ErrNotFound) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	msgs := acct.Messages[peer]
	if msgs == nil {
		return []models.Message{}, nil
	}
	return msgs, nil
}

// stamp issues an ISO-8601 timestamp that never decreases per sender.
func (e *Engine) stamp(sender string) string {
	e.stampMu.Lock()
	defer e.stampMu.Unlock()
	now := time.Now().UTC()
	if last, ok := e.stamps[sender]; ok && now.Before(last) {
		now = last
	}
	e.stamps[sender] = now
	return now.Format(time.RFC3339Nano)
}

// lockPair acquires both account locks in lexicographic order so two
// handlers touching the same pair can never deadlock.
func (e *Engine) lockPair(userA, userB string) (func(), error) {
	if userA == userB {
		return nil, fmt.Errorf("%w: %s", ErrSelfPair, userA)
	}
	first, second := userA, userB
	if second < first {
		first, second = second, first
	}
	l1, l2 := e.lockFor(first), e.lockFor(second)
	l1.Lock()
	l2.Lock()
	return func() {
		l2.Unlock()
		l1.Unlock()
	}, nil
}

func (e *Engine) lockFor(username string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[username]
	if !ok {
		l = &sync.Mutex{}
		e.locks[username] = l
	}
	return l
}

func (e *Engine) loadPair(userA, userB string) (*models.Account, *models.Account, error) {
	a, err := e.store.Get(userA)
	if err != nil {
		return nil, nil, err
	}
	b, err := e.store.Get(userB)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// insertFront adds peer at the front of acct's chat list if absent. An
// existing entry keeps its position.
func insertFront(acct *models.Account, peer string) bool {
	for _, u := range acct.ChatList {
		if u == peer {
			return false
		}
	}
	acct.ChatList = append([]string{peer}, acct.ChatList...)
	return true
}

// promote moves peer to the front of acct's chat list, inserting if absent.
func promote(acct *models.Account, peer string) {
	acct.ChatList = append([]string{peer}, remove(acct.ChatList, peer)...)
}

func remove(list []string, name string) []string {
	out := make([]string, 0, len(list))
	for _, u := range list {
		if u != name {
			out = append(out, u)
		}
	}
	return out
}

func updateFor(acct *models.Account) ChatListUpdate {
	return ChatListUpdate{
		Username: acct.Username,
		ChatList: acct.ChatList,
		Unread:   acct.Unread,
	}
}
