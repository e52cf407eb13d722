package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/duochat/duochat/internal/engine"
	"github.com/duochat/duochat/internal/models"
	"github.com/duochat/duochat/internal/notify"
	"github.com/duochat/duochat/internal/presence"
	"github.com/duochat/duochat/internal/store"
	"github.com/duochat/duochat/internal/store/sqlstore"
	"github.com/duochat/duochat/internal/ws"
)

func newChatHandler(t *testing.T) (*ChatHandler, store.Store, *engine.Engine) {
	t.Helper()
	st, err := sqlstore.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	for _, u := range []string{"alice", "bob"} {
		if _, err := st.Create(u, "hash"); err != nil {
			t.Fatal(err)
		}
	}

	tracker := presence.NewTracker()
	eng := engine.New(st, tracker, zerolog.Nop())
	notifier := notify.NewDispatcher(st, nil, time.Minute, zerolog.Nop())
	t.Cleanup(notifier.Close)
	hub := ws.NewHub(eng, tracker, notifier, false, zerolog.Nop())

	return &ChatHandler{Store: st, Engine: eng, Hub: hub, Log: zerolog.Nop()}, st, eng
}

func TestUpdateChatList(t *testing.T) {
	h, st, _ := newChatHandler(t)

	rr := postJSON(t, h.UpdateChatList, map[string]string{"user1": "alice", "user2": "bob"})
	if rr.Code != http.StatusOK {
		t.Errorf("update chat list: got %v want %v", rr.Code, http.StatusOK)
	}

	alice, _ := st.Get("alice")
	bob, _ := st.Get("bob")
	if len(alice.ChatList) != 1 || alice.ChatList[0] != "bob" {
		t.Errorf("unexpected chat list for alice: %v", alice.ChatList)
	}
	if len(bob.ChatList) != 1 || bob.ChatList[0] != "alice" {
		t.Errorf("unexpected chat list for bob: %v", bob.ChatList)
	}

	rr = postJSON(t, h.UpdateChatList, map[string]string{"user1": "alice", "user2": "nobody"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("update chat list with unknown user: got %v want %v", rr.Code, http.StatusBadRequest)
	}
}

func TestFetchChatList(t *testing.T) {
	h, _, eng := newChatHandler(t)

	if _, _, _, err := eng.RecordMessage("alice", "bob", "hey", "", nil); err != nil {
		t.Fatal(err)
	}

	rr := postJSON(t, h.FetchChatList, map[string]string{"username": "bob"})
	if rr.Code != http.StatusOK {
		t.Fatalf("fetch chat list: got %v want %v", rr.Code, http.StatusOK)
	}

	var resp struct {
		ChatList []models.ChatListEntry `json:"chatList"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.ChatList) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(resp.ChatList))
	}
	if resp.ChatList[0].Username != "alice" || resp.ChatList[0].Unread != 1 {
		t.Errorf("unexpected entry: %+v", resp.ChatList[0])
	}

	rr = postJSON(t, h.FetchChatList, map[string]string{"username": "nobody"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("fetch chat list for unknown user: got %v want %v", rr.Code, http.StatusBadRequest)
	}
}

func TestFetchMessages(t *testing.T) {
	h, _, eng := newChatHandler(t)

	if _, _, _, err := eng.RecordMessage("alice", "bob", "hey", "", nil); err != nil {
		t.Fatal(err)
	}

	rr := postJSON(t, h.FetchMessages, map[string]string{"user1": "alice", "user2": "bob"})
	if rr.Code != http.StatusOK {
		t.Fatalf("fetch messages: got %v want %v", rr.Code, http.StatusOK)
	}

	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Messages) != 1 || resp.Messages[0].Text != "hey" {
		t.Errorf("unexpected messages: %+v", resp.Messages)
	}

	// Absent pair yields an empty list, not an error.
	rr = postJSON(t, h.FetchMessages, map[string]string{"user1": "bob", "user2": "nobody"})
	if rr.Code != http.StatusOK {
		t.Fatalf("fetch messages for absent pair: got %v want %v", rr.Code, http.StatusOK)
	}
	resp.Messages = nil
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Messages) != 0 {
		t.Errorf("expected no messages, got %+v", resp.Messages)
	}
}

func TestClearUnread(t *testing.T) {
	h, st, eng := newChatHandler(t)

	if _, _, _, err := eng.RecordMessage("alice", "bob", "hey", "", nil); err != nil {
		t.Fatal(err)
	}

	rr := postJSON(t, h.ClearUnread, map[string]string{"viewer": "bob", "chatWith": "alice"})
	if rr.Code != http.StatusOK {
		t.Errorf("clear unread: got %v want %v", rr.Code, http.StatusOK)
	}

	bob, _ := st.Get("bob")
	if bob.Unread["alice"] != 0 {
		t.Errorf("expected unread cleared, got %d", bob.Unread["alice"])
	}

	// Clearing again is safe.
	rr = postJSON(t, h.ClearUnread, map[string]string{"viewer": "bob", "chatWith": "alice"})
	if rr.Code != http.StatusOK {
		t.Errorf("clear unread again: got %v want %v", rr.Code, http.StatusOK)
	}
}

func TestDeleteChat(t *testing.T) {
	h, st, eng := newChatHandler(t)

	if _, _, _, err := eng.RecordMessage("alice", "bob", "hey", "", nil); err != nil {
		t.Fatal(err)
	}

	rr := postJSON(t, h.DeleteChat, map[string]string{"user1": "alice", "user2": "bob"})
	if rr.Code != http.StatusOK {
		t.Errorf("delete chat: got %v want %v", rr.Code, http.StatusOK)
	}

	alice, _ := st.Get("alice")
	if len(alice.ChatList) != 0 {
		t.Errorf("expected empty chat list, got %v", alice.ChatList)
	}
	if _, ok := alice.Messages["bob"]; ok {
		t.Error("expected message history removed")
	}

	rr = postJSON(t, h.FetchMessages, map[string]string{"user1": "alice", "user2": "bob"})
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Messages) != 0 {
		t.Errorf("expected no messages after delete, got %+v", resp.Messages)
	}
}
