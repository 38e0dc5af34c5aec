package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/msebastian100/universal-downloader/internal/api"
)

func testClient() *api.Client {
	return api.NewClient(api.Options{MaxRetries: 1})
}

func TestBuildNotifier_DisabledWithoutCredentials(t *testing.T) {
	tests := []struct {
		name, url, token string
	}{
		{"no url", "", "tok"},
		{"no token", "https://gotify.example", ""},
		{"neither", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if fn := BuildNotifier(testClient(), tt.url, tt.token); fn != nil {
				t.Fatal("expected nil notifier")
			}
		})
	}
}

func TestSend_PostsMessage(t *testing.T) {
	var (
		gotToken string
		gotPath  string
		payload  map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Gotify-Token")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notify := BuildNotifier(testClient(), srv.URL+"/", "secret")
	if notify == nil {
		t.Fatal("expected notifier")
	}
	if err := notify(context.Background(), "udl queue finished", "3 done", 5); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotToken != "secret" || gotPath != "/message" {
		t.Fatalf("token=%q path=%q", gotToken, gotPath)
	}
	if payload["title"] != "udl queue finished" || payload["message"] != "3 done" || payload["priority"] != float64(5) {
		t.Fatalf("payload = %v", payload)
	}
}

func TestSend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := &Gotify{Client: testClient(), ServerURL: srv.URL, Token: "bad"}
	err := g.Send(context.Background(), "t", "m", 1)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v, want 401", err)
	}
}
