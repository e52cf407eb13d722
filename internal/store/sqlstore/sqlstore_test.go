package sqlstore

import (
	"errors"
	"testing"

	"github.com/duochat/duochat/internal/models"
	"github.com/duochat/duochat/internal/store"
)

func TestCreateAndGet(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.Create("alice", "hash"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	acct, err := s.Get("alice")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if acct.Username != "alice" || acct.Password != "hash" {
		t.Errorf("unexpected account: %+v", acct)
	}
	if acct.ChatList == nil || acct.Unread == nil || acct.Messages == nil {
		t.Error("expected chat state to be initialized")
	}
}

func TestCreateDuplicate(t *testing.T) {
	s, _ := New(":memory:")
	defer s.Close()

	s.Create("alice", "hash")
	if _, err := s.Create("alice", "other"); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := New(":memory:")
	defer s.Close()

	if _, err := s.Get("nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveReplacesState(t *testing.T) {
	s, _ := New(":memory:")
	defer s.Close()

	acct, _ := s.Create("alice", "hash")
	acct.PushToken = "token"
	acct.ChatList = []string{"bob"}
	acct.Unread["bob"] = 1
	acct.Messages["bob"] = []models.Message{{ID: "m1", Sender: "alice", Text: "hi", Timestamp: "2026-01-01T00:00:00Z"}}

	if err := s.Save(acct); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get("alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.PushToken != "token" {
		t.Errorf("expected push token to persist, got %q", got.PushToken)
	}
	if len(got.ChatList) != 1 || got.ChatList[0] != "bob" {
		t.Errorf("unexpected chat list: %v", got.ChatList)
	}
	if got.Unread["bob"] != 1 {
		t.Errorf("expected unread 1, got %d", got.Unread["bob"])
	}
	if len(got.Messages["bob"]) != 1 || got.Messages["bob"][0].Text != "hi" {
		t.Errorf("unexpected messages: %v", got.Messages["bob"])
	}
}

func TestSaveMissing(t *testing.T) {
	s, _ := New(":memory:")
	defer s.Close()

	acct := models.NewAccount("ghost", "hash")
	if err := s.Save(acct); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
