package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Signer issues and verifies HMAC-signed session tokens in the format
// "base64(username)|base64(signature)". The token only attests that this
// server previously authenticated the username; it carries no expiry.
type Signer struct {
	key []byte
}

func NewSigner(key string) *Signer {
	return &Signer{key: []byte(key)}
}

// Sign creates a session token for username.
func (s *Signer) Sign(username string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(username))
	signature := mac.Sum(nil)
	return fmt.Sprintf("%s|%s",
		base64.URLEncoding.EncodeToString([]byte(username)),
		base64.URLEncoding.EncodeToString(signature))
}

// Verify checks a token and returns the username it was issued for.
func (s *Signer) Verify(token string) (string, error) {
	parts := strings.Split(token, "|")
	if len(parts) != 2 {
		return "", errors.New("invalid token format")
	}

	usernameBytes, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", errors.New("invalid token encoding")
	}
	username := string(usernameBytes)

	signature, err := base64.URLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", errors.New("invalid signature encoding")
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(username))
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return "", errors.New("invalid signature")
	}
	return username, nil
}
