package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/duochat/duochat/internal/engine"
	"github.com/duochat/duochat/internal/models"
	"github.com/duochat/duochat/internal/store"
	"github.com/duochat/duochat/internal/ws"
)

type ChatHandler struct {
	Store  store.Store
	Engine *engine.Engine
	Hub    *ws.Hub
	Log    zerolog.Logger
}

type pairRequest struct {
	User1 string `json:"user1"`
	User2 string `json:"user2"`
}

func (h *ChatHandler) FetchChatList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeMessage(w, http.StatusBadRequest, "Invalid username")
		return
	}

	acct, err := h.Store.Get(req.Username)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid username")
		return
	}

	entries := make([]models.ChatListEntry, 0, len(acct.ChatList))
	for _, peer := range acct.ChatList {
		entries = append(entries, models.ChatListEntry{
			Username: peer,
			Unread:   acct.Unread[peer],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"chatList": entries})
}

func (h *ChatHandler) UpdateChatList(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User1 == "" || req.User2 == "" {
		writeMessage(w, http.StatusBadRequest, "Both users are required")
		return
	}

	upd1, upd2, err := h.Engine.AddToChatList(req.User1, req.User2)
	if err != nil {
		h.pairError(w, err, "Both users are required")
		return
	}

	h.Hub.Publish(upd1.Username, "chat-list-updated", upd1)
	h.Hub.Publish(upd2.Username, "chat-list-updated", upd2)
	writeMessage(w, http.StatusOK, "Chat list updated successfully")
}

// FetchMessages returns user1's copy of the pair's history. Absent accounts
// or pairs yield an empty list, not an error.
func (h *ChatHandler) FetchMessages(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User1 == "" || req.User2 == "" {
		writeMessage(w, http.StatusBadRequest, "Both users are required")
		return
	}

	msgs, err := h.Engine.History(req.User1, req.User2)
	if err != nil {
		h.Log.Error().Err(err).Msg("fetch messages failed")
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *ChatHandler) ClearUnread(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Viewer   string `json:"viewer"`
		ChatWith string `json:"chatWith"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Viewer == "" || req.ChatWith == "" {
		writeMessage(w, http.StatusBadRequest, "Invalid users")
		return
	}

	upd, changed, err := h.Engine.ClearUnread(req.Viewer, req.ChatWith)
	if err != nil {
		h.pairError(w, err, "Invalid users")
		return
	}
	if changed {
		h.Hub.Publish(upd.Username, "chat-list-updated", upd)
	}
	writeMessage(w, http.StatusOK, "Unread count cleared for specific sender")
}

func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User1 == "" || req.User2 == "" {
		writeMessage(w, http.StatusBadRequest, "Invalid users")
		return
	}

	upd1, upd2, err := h.Engine.DeleteChat(req.User1, req.User2)
	if err != nil {
		h.pairError(w, err, "Invalid users")
		return
	}

	h.Hub.Publish(upd1.Username, "chat-list-updated", upd1)
	h.Hub.Publish(upd2.Username, "chat-list-updated", upd2)
	writeMessage(w, http.StatusOK, "Chat deleted successfully")
}

func (h *ChatHandler) pairError(w http.ResponseWriter, err error, badRequestMsg string) {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, engine.ErrSelfPair) {
		writeMessage(w, http.StatusBadRequest, badRequestMsg)
		return
	}
	h.Log.Error().Err(err).Msg("chat operation failed")
	writeMessage(w, http.StatusInternalServerError, "Internal server error")
}
