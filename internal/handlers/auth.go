package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/duochat/duochat/internal/auth"
	"github.com/duochat/duochat/internal/store"
)

type AuthHandler struct {
	Store  store.Store
	Signer *auth.Signer

	// AllowEmptyPassword preserves the legacy client behavior of
	// revalidating a locally stored session by logging in with an empty
	// password. With the flag off, an empty password is only accepted
	// alongside a valid session token for the same username.
	AllowEmptyPassword bool

	Log zerolog.Logger
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Session  string `json:"session,omitempty"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if creds.Username == "" || creds.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if _, err := h.Store.Create(creds.Username, string(hashed)); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			writeMessage(w, http.StatusBadRequest, "Username is already taken")
			return
		}
		h.Log.Error().Err(err).Str("username", creds.Username).Msg("register failed")
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.Log.Info().Str("username", creds.Username).Msg("user registered")
	writeMessage(w, http.StatusCreated, "User registered successfully")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if creds.Username == "" {
		writeMessage(w, http.StatusBadRequest, "Username is required")
		return
	}

	acct, err := h.Store.Get(creds.Username)
	if err != nil {
		// Never reveals which of username/password was wrong.
		writeMessage(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	if creds.Password == "" {
		if !h.emptyPasswordAllowed(creds) {
			writeMessage(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
	} else if bcrypt.CompareHashAndPassword([]byte(acct.Password), []byte(creds.Password)) != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Login successful",
		"chatList": acct.ChatList,
		"session":  h.Signer.Sign(acct.Username),
	})
}

func (h *AuthHandler) emptyPasswordAllowed(creds credentials) bool {
	if h.AllowEmptyPassword {
		return true
	}
	if creds.Session == "" {
		return false
	}
	username, err := h.Signer.Verify(creds.Session)
	return err == nil && username == creds.Username
}

func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeMessage(w, http.StatusBadRequest, "Username is required")
		return
	}

	if _, err := h.Store.Get(req.Username); err != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid username")
		return
	}
	writeMessage(w, http.StatusOK, "Username valid")
}

func (h *AuthHandler) SaveToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Token    string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Token == "" {
		writeMessage(w, http.StatusBadRequest, "Username and token are required")
		return
	}

	acct, err := h.Store.Get(req.Username)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid username")
		return
	}
	acct.PushToken = req.Token
	if err := h.Store.Save(acct); err != nil {
		h.Log.Error().Err(err).Str("username", req.Username).Msg("save token failed")
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeMessage(w, http.StatusOK, "Token saved")
}
