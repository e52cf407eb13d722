// Package kvstore implements the account store on top of pebble. Each
// account is a single JSON value under a "user/" key; writes are synced so a
// mutation is durable before its broadcast goes out.
package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/duochat/duochat/internal/models"
	"github.com/duochat/duochat/internal/store"
)

const keyPrefix = "user/"

type KVStore struct {
	db *pebble.DB
}

// record is the persisted account shape. Password and push token are kept
// here rather than on the wire-facing model.
type record struct {
	Username  string                      `json:"username"`
	Password  string                      `json:"password"`
	PushToken string                      `json:"pushToken,omitempty"`
	ChatList  []string                    `json:"chatList"`
	Unread    map[string]int              `json:"unread"`
	Messages  map[string][]models.Message `json:"messages"`
}

func New(path string) (*KVStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &KVStore{db: db}, nil
}

func (s *KVStore) Get(username string) (*models.Account, error) {
	val, closer, err := s.db.Get(key(username))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", username, err)
	}
	defer closer.Close()

	var rec record
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", username, err)
	}
	return rec.account(), nil
}

func (s *KVStore) Create(username, credential string) (*models.Account, error) {
	_, closer, err := s.db.Get(key(username))
	if err == nil {
		closer.Close()
		return nil, store.ErrAlreadyExists
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("probe %s: %w", username, err)
	}

	acct := models.NewAccount(username, credential)
	if err := s.Save(acct); err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *KVStore) Save(acct *models.Account) error {
	data, err := json.Marshal(fromAccount(acct))
	if err != nil {
		return fmt.Errorf("encode account %s: %w", acct.Username, err)
	}
	if err := s.db.Set(key(acct.Username), data, pebble.Sync); err != nil {
		return fmt.Errorf("save account %s: %w", acct.Username, err)
	}
	return nil
}

func (s *KVStore) Close() error {
	return s.db.Close()
}

func key(username string) []byte {
	return []byte(keyPrefix + username)
}

func fromAccount(a *models.Account) record {
	return record{
		Username:  a.Username,
		Password:  a.Password,
		PushToken: a.PushToken,
		ChatList:  a.ChatList,
		Unread:    a.Unread,
		Messages:  a.Messages,
	}
}

func (r record) account() *models.Account {
	a := &models.Account{
		Username:  r.Username,
		Password:  r.Password,
		PushToken: r.PushToken,
		ChatList:  r.ChatList,
		Unread:    r.Unread,
		Messages:  r.Messages,
	}
	if a.ChatList == nil {
		a.ChatList = []string{}
	}
	if a.Unread == nil {
		a.Unread = map[string]int{}
	}
	if a.Messages == nil {
		a.Messages = map[string][]models.Message{}
	}
	return a
}
