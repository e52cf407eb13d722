// Package sqlstore implements the account store on sqlite. Credentials and
// push tokens live in their own columns; the mutable chat state is a JSON
// blob replaced whole on Save, matching the whole-account-replace contract.
package sqlstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/duochat/duochat/internal/models"
	"github.com/duochat/duochat/internal/store"
)

type SQLStore struct {
	db *sql.DB
}

// chatState is the JSON column payload.
type chatState struct {
	ChatList []string                    `json:"chatList"`
	Unread   map[string]int              `json:"unread"`
	Messages map[string][]models.Message `json:"messages"`
}

func New(dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases coherent and sidesteps
	// sqlite's writer lock; account writes are already serialized upstream.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLStore{db: db}
	if err := s.createTables(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS accounts (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		push_token TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLStore) Get(username string) (*models.Account, error) {
	var acct models.Account
	var stateJSON string
	err := s.db.QueryRow(
		"SELECT username, password, push_token, state FROM accounts WHERE username = ?",
		username,
	).Scan(&acct.Username, &acct.Password, &acct.PushToken, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", username, err)
	}

	var st chatState
	if err := json.Unmarshal([]byte(stateJSON), &st); err != nil {
		return nil, fmt.Errorf("decode state for %s: %w", username, err)
	}
	acct.ChatList = st.ChatList
	acct.Unread = st.Unread
	acct.Messages = st.Messages
	if acct.ChatList == nil {
		acct.ChatList = []string{}
	}
	if acct.Unread == nil {
		acct.Unread = map[string]int{}
	}
	if acct.Messages == nil {
		acct.Messages = map[string][]models.Message{}
	}
	return &acct, nil
}

func (s *SQLStore) Create(username, credential string) (*models.Account, error) {
	acct := models.NewAccount(username, credential)
	stateJSON, err := marshalState(acct)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(
		"INSERT INTO accounts (username, password, push_token, state) VALUES (?, ?, '', ?)",
		username, credential, stateJSON,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, store.ErrAlreadyExists
		}
		return nil, fmt.Errorf("create account %s: %w", username, err)
	}
	return acct, nil
}

func (s *SQLStore) Save(acct *models.Account) error {
	stateJSON, err := marshalState(acct)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(
		"UPDATE accounts SET password = ?, push_token = ?, state = ? WHERE username = ?",
		acct.Password, acct.PushToken, stateJSON, acct.Username,
	)
	if err != nil {
		return fmt.Errorf("save account %s: %w", acct.Username, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func marshalState(acct *models.Account) (string, error) {
	data, err := json.Marshal(chatState{
		ChatList: acct.ChatList,
		Unread:   acct.Unread,
		Messages: acct.Messages,
	})
	if err != nil {
		return "", fmt.Errorf("encode state for %s: %w", acct.Username, err)
	}
	return string(data), nil
}
