package browser

import (
	"testing"

	"github.com/chromedp/cdproto/network"
)

func TestMatchesDomain(t *testing.T) {
	tests := []struct {
		domain   string
		suffixes []string
		want     bool
	}{
		{".audible.de", []string{"audible.de"}, true},
		{"www.audible.de", []string{".audible.de"}, true},
		{"notaudible.de", []string{"audible.de"}, false},
		{".amazon.de", []string{"audible.de", "amazon.de"}, true},
		{".deezer.com", nil, true},
	}
	for _, tt := range tests {
		if got := matchesDomain(tt.domain, tt.suffixes); got != tt.want {
			t.Errorf("matchesDomain(%q, %v) = %v, want %v", tt.domain, tt.suffixes, got, tt.want)
		}
	}
}

func TestFilterCookies(t *testing.T) {
	raw := []*network.Cookie{
		{Name: "arl", Value: "abc", Domain: ".deezer.com", Path: "/", Secure: true, HTTPOnly: true, Expires: 1893456000},
		{Name: "session-token", Value: "x", Domain: ".audible.de", Path: "/"},
		{Name: "sid", Value: "y", Domain: "www.deezer.com", Path: "/", Expires: -1},
	}
	got := filterCookies(raw, []string{"deezer.com"})
	if len(got) != 2 {
		t.Fatalf("got %d cookies, want 2", len(got))
	}
	if got[0].Name != "arl" || !got[0].Secure || !got[0].HTTPOnly || got[0].Expires.Year() != 2030 {
		t.Fatalf("unexpected first cookie: %+v", got[0])
	}
	if !got[1].Expires.IsZero() {
		t.Fatalf("session cookie should have zero expiry: %+v", got[1])
	}
}
