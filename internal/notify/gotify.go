// Package notify provides push notification helpers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/msebastian100/universal-downloader/internal/api"
)

// Gotify posts messages to a Gotify server through the HTTP gateway.
type Gotify struct {
	Client    *api.Client
	ServerURL string
	Token     string
}

// Enabled reports whether both the server URL and token are set.
func (g *Gotify) Enabled() bool {
	return g != nil && g.ServerURL != "" && g.Token != ""
}

// Send posts a message. It is a no-op when the notifier is not configured.
func (g *Gotify) Send(ctx context.Context, title, message string, priority int) error {
	if !g.Enabled() {
		return nil
	}

	url := strings.TrimRight(g.ServerURL, "/") + "/message"

	body, err := json.Marshal(map[string]any{
		"title":    title,
		"message":  message,
		"priority": priority,
	})
	if err != nil {
		return fmt.Errorf("gotify: marshal failed: %w", err)
	}

	// A notification is not worth retrying against a struggling server.
	resp, err := g.Client.DoOnce(ctx, "gotify.message", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Gotify-Token", g.Token)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("gotify: send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gotify: server returned %d", resp.StatusCode)
	}
	return nil
}

// BuildNotifier returns a Notify function wired to the given Gotify server.
// Returns nil (disabling notifications) if url or token are empty.
func BuildNotifier(client *api.Client, serverURL, token string) func(ctx context.Context, title, message string, priority int) error {
	g := &Gotify{Client: client, ServerURL: serverURL, Token: token}
	if !g.Enabled() {
		return nil
	}
	return g.Send
}
