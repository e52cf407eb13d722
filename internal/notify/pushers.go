package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultExpoURL = "https://exp.host/--/api/v2/push/send"

// ExpoPusher delivers through Expo's push API. It claims tokens in the
// ExponentPushToken[...] format.
type ExpoPusher struct {
	URL    string
	Client *http.Client
}

func NewExpoPusher(url string) *ExpoPusher {
	if url == "" {
		url = defaultExpoURL
	}
	return &ExpoPusher{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *ExpoPusher) Handles(token string) bool {
	return strings.HasPrefix(token, "ExponentPushToken[")
}

func (p *ExpoPusher) Push(ctx context.Context, note Notification) error {
	// Expo accepts a batch; we always send a batch of one.
	body, err := json.Marshal([]Notification{note})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("expo push: status %d", resp.StatusCode)
	}
	return nil
}

// WebhookPusher posts the notification to a configured URL for any token
// shape Expo doesn't claim. With no URL configured it claims nothing, so
// unknown tokens are skipped rather than failed.
type WebhookPusher struct {
	URL    string
	Client *http.Client
}

func NewWebhookPusher(url string) *WebhookPusher {
	return &WebhookPusher{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *WebhookPusher) Handles(token string) bool {
	return p.URL != "" && token != ""
}

func (p *WebhookPusher) Push(ctx context.Context, note Notification) error {
	body, err := json.Marshal(note)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook push: status %d", resp.StatusCode)
	}
	return nil
}
