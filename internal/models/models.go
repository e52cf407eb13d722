package models

// Account is the durable per-user record. Chat state (chat list, unread
// counters, message histories) is mutated only through the engine; handlers
// read it for the fetch endpoints.
type Account struct {
	Username  string `json:"username"`
	Password  string `json:"-"`
	PushToken string `json:"-"`

	// ChatList holds conversation partners, most recently active first,
	// no duplicates.
	ChatList []string `json:"chatList"`

	// Unread maps peer username to the count of messages from that peer
	// not yet cleared by the owner.
	Unread map[string]int `json:"unread"`

	// Messages maps peer username to this account's own copy of the pair's
	// history. Both directions of a pair live in the same slice; each side
	// keeps an independent copy of every message.
	Messages map[string][]Message `json:"messages"`
}

// NewAccount returns an account with initialized chat state.
func NewAccount(username, password string) *Account {
	return &Account{
		Username: username,
		Password: password,
		ChatList: []string{},
		Unread:   map[string]int{},
		Messages: map[string][]Message{},
	}
}

type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	File      string    `json:"file,omitempty"`
	Timestamp string    `json:"timestamp"`
	Seen      bool      `json:"seen"`
	ReplyTo   *ReplyRef `json:"replyTo,omitempty"`
}

// ReplyRef is a snapshot of the message being replied to, not a live link;
// it survives deletion of the original.
type ReplyRef struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// ChatListEntry is the fetch-chat-list wire shape.
type ChatListEntry struct {
	Username string `json:"username"`
	Unread   int    `json:"unread"`
}
