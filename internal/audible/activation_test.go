package audible

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/msebastian100/universal-downloader/internal/api"
	"github.com/msebastian100/universal-downloader/internal/config"
	"github.com/msebastian100/universal-downloader/internal/model"
)

func keyRecord(first ...byte) []byte {
	rec := make([]byte, activationRecordSize)
	for i := range rec {
		rec[i] = 0xEE
	}
	copy(rec, first)
	return rec
}

func blob(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func TestPlayerID(t *testing.T) {
	if got, want := PlayerID(), "2jmj7l5rSw0yVb/vlWAYkK/YBwk="; got != want {
		t.Fatalf("PlayerID() = %q, want %q", got, want)
	}
}

func TestParseActivationBlob(t *testing.T) {
	rec := keyRecord(0x1a, 0x2b, 0x3c, 0x4d)

	tests := []struct {
		name    string
		blob    []byte
		want    string
		wantErr bool
	}{
		{
			name: "single group",
			blob: blob([]byte("hdr group_id=(9) "), rec),
			want: "4d3c2b1a",
		},
		{
			name: "uses last group_id",
			blob: blob([]byte("group_id=(1) "), keyRecord(0xff, 0xff, 0xff, 0xff), []byte(" group_id=(2) "), rec),
			want: "4d3c2b1a",
		},
		{
			name: "extra records after the first",
			blob: blob([]byte("group_id=(3) "), rec, keyRecord(0x01, 0x02, 0x03, 0x04)),
			want: "4d3c2b1a",
		},
		{
			name: "uppercase bytes come out lowercase",
			blob: blob([]byte("group_id=(4) "), keyRecord(0xAB, 0xCD, 0xEF, 0x01)),
			want: "01efcdab",
		},
		{name: "html page", blob: []byte("  <!DOCTYPE html><html>group_id) " + strings.Repeat("x", 80)), wantErr: true},
		{name: "bad login", blob: blob([]byte("BAD_LOGIN group_id=(1) "), rec), wantErr: true},
		{name: "whoops", blob: blob([]byte("Whoops group_id=(1) "), rec), wantErr: true},
		{name: "no marker", blob: blob([]byte("nothing here) "), rec), wantErr: true},
		{name: "no paren", blob: blob([]byte("group_id "), rec), wantErr: true},
		{name: "short record", blob: blob([]byte("group_id=(1) "), rec[:69]), wantErr: true},
		{name: "empty", blob: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseActivationBlob(tt.blob)
			if tt.wantErr {
				if !errors.Is(err, model.ErrBlobInvalid) {
					t.Fatalf("err = %v, want ErrBlobInvalid", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseActivationBlob() error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseActivationBlob() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseActivationBlob_ExactRecordLength(t *testing.T) {
	b := blob([]byte("group_id)X"), keyRecord(0x11, 0x22, 0x33, 0x44))
	got, err := ParseActivationBlob(b)
	if err != nil {
		t.Fatalf("ParseActivationBlob() error: %v", err)
	}
	if got != "44332211" {
		t.Fatalf("got %q, want 44332211", got)
	}
}

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestExtractPlayerToken(t *testing.T) {
	tests := []struct {
		name      string
		final     string
		redirects []string
		body      string
		want      string
		wantErr   bool
	}{
		{
			name:  "final url query wins",
			final: "https://www.audible.de/done?playerToken=fromQuery",
			redirects: []string{
				"https://www.audible.de/x?playerToken=fromRedirect",
			},
			body: `{"playerToken":"fromJSON"}`,
			want: "fromQuery",
		},
		{
			name:  "fragment of final url",
			final: "https://www.audible.de/done#playerToken=fromFragment&x=1",
			body:  `{"playerToken":"fromJSON"}`,
			want:  "fromFragment",
		},
		{
			name:      "last redirect location",
			final:     "https://www.audible.de/done",
			redirects: []string{"/a?playerToken=first", "/b?playerToken=last%2Bone"},
			body:      `{"playerToken":"fromJSON"}`,
			want:      "last+one",
		},
		{
			name:  "body query string",
			final: "https://www.audible.de/done",
			body:  `<a href="/go?playerToken=inBody&next=1">`,
			want:  "inBody",
		},
		{
			name:  "body json-like property",
			final: "https://www.audible.de/done",
			body:  `<script>var cfg = {"playerToken" : "inScript"};</script>`,
			want:  "inScript",
		},
		{
			name:  "hidden input",
			final: "https://www.audible.de/done",
			body:  `<input type="hidden" name="playerToken" value="inForm">`,
			want:  "inForm",
		},
		{
			name:    "nothing",
			final:   "https://www.audible.de/done",
			body:    `<html>no token</html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractPlayerToken(mustURL(t, tt.final), tt.redirects, []byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, model.ErrPlayerTokenNotFound) {
					t.Fatalf("err = %v, want ErrPlayerTokenNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractPlayerToken() error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ExtractPlayerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActivationStateString(t *testing.T) {
	if StateBlobFetched.String() != "blob fetched" {
		t.Fatalf("String() = %q", StateBlobFetched.String())
	}
	if ActivationState(99).String() != "unknown" {
		t.Fatal("out of range state should be unknown")
	}
}

// fakeStore is the Audible storefront surface the activation flow touches.
type fakeStore struct {
	srv         *httptest.Server
	token       string
	validCookie string
	deregisters atomic.Int32
	licenseUA   atomic.Value
	blob        []byte
	// deregisterStatus, when set, is the status every de-register call gets.
	deregisterStatus int
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	fs := &fakeStore{
		token:       "TOKEN-123",
		validCookie: "good",
		blob:        blob([]byte("license data group_id=(7) "), keyRecord(0xca, 0xfe, 0xba, 0xbe)),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/player-auth-token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("playerType") != "software" || r.URL.Query().Get("playerId") != PlayerID() {
			http.Error(w, "bad player", http.StatusBadRequest)
			return
		}
		if c, err := r.Cookie("session-token"); err != nil || c.Value != fs.validCookie {
			http.Redirect(w, r, "/ap/signin?openid.return_to=x", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/player-done?playerToken="+fs.token, http.StatusFound)
	})
	mux.HandleFunc("/player-done", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>ok</html>"))
	})
	mux.HandleFunc("/ap/signin", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>sign in</html>"))
	})
	mux.HandleFunc("/license/licenseForCustomerToken", func(w http.ResponseWriter, r *http.Request) {
		fs.licenseUA.Store(r.UserAgent())
		if r.URL.Query().Get("customer_token") != fs.token {
			_, _ = w.Write([]byte("BAD_LOGIN"))
			return
		}
		if r.URL.Query().Get("action") == "de-register" {
			fs.deregisters.Add(1)
			if fs.deregisterStatus != 0 {
				http.Error(w, "unavailable", fs.deregisterStatus)
			}
			return
		}
		_, _ = w.Write(fs.blob)
	})
	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func newTestAuth(t *testing.T, base string, sessionValue string) *Auth {
	t.Helper()
	client := api.NewClient(api.Options{Timeout: 5 * time.Second})
	a := NewAuth(config.NewStore(t.TempDir()), client, "de")
	a.BaseURL = base
	if sessionValue != "" {
		a.Config.Cookies = []model.Cookie{{Name: "session-token", Value: sessionValue, Domain: "127.0.0.1", Path: "/"}}
		client.SetCookies(a.Config.Cookies)
	}
	return a
}

func TestExtract_DirectHTTP(t *testing.T) {
	fs := newFakeStore(t)
	a := newTestAuth(t, fs.srv.URL, fs.validCookie)
	ex := NewExtractor(a, nil, true)

	key, err := ex.Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if key != "bebafeca" {
		t.Fatalf("key = %q, want bebafeca", key)
	}
	if ex.State() != StateKeyExtracted {
		t.Fatalf("state = %v", ex.State())
	}
	if n := fs.deregisters.Load(); n != 2 {
		t.Fatalf("de-register calls = %d, want 2", n)
	}
	if ua, _ := fs.licenseUA.Load().(string); ua != licenseUserAgent {
		t.Fatalf("license User-Agent = %q", ua)
	}

	var stored model.AudibleConfig
	found, err := a.Store.Load(model.ProviderAudible, &stored)
	if err != nil || !found {
		t.Fatalf("stored config: found=%v err=%v", found, err)
	}
	if stored.ActivationBytes != "bebafeca" {
		t.Fatalf("stored activation_bytes = %q", stored.ActivationBytes)
	}
}

func TestExtract_DeregisterFailureIgnored(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"server error", http.StatusInternalServerError},
		{"bad gateway", http.StatusBadGateway},
		{"forbidden", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeStore(t)
			fs.deregisterStatus = tt.status
			a := newTestAuth(t, fs.srv.URL, fs.validCookie)
			ex := NewExtractor(a, nil, true)

			key, err := ex.Extract(context.Background())
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			if key != "bebafeca" {
				t.Fatalf("key = %q, want bebafeca", key)
			}
			// One attempt before the license fetch and one after, no retries.
			if n := fs.deregisters.Load(); n != 2 {
				t.Fatalf("de-register requests = %d, want 2", n)
			}
		})
	}
}

func TestDeregister_SingleAttempt(t *testing.T) {
	fs := newFakeStore(t)
	fs.deregisterStatus = http.StatusServiceUnavailable
	a := newTestAuth(t, fs.srv.URL, fs.validCookie)
	ex := NewExtractor(a, nil, true)

	if err := ex.Deregister(context.Background(), fs.token); err == nil {
		t.Fatal("expected an error for a 503 de-register")
	}
	if n := fs.deregisters.Load(); n != 1 {
		t.Fatalf("de-register requests = %d, want 1", n)
	}
}

func TestExtract_KeyKeptWhenSaveFails(t *testing.T) {
	fs := newFakeStore(t)
	a := newTestAuth(t, fs.srv.URL, fs.validCookie)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	a.Store.Dir = filepath.Join(blocker, "config")

	browserOpened := false
	opener := func(context.Context, bool) (Browser, error) {
		browserOpened = true
		return nil, errors.New("unexpected browser")
	}
	ex := NewExtractor(a, opener, true)

	key, err := ex.Extract(context.Background())
	if !errors.Is(err, model.ErrActivationNotSaved) {
		t.Fatalf("err = %v, want ErrActivationNotSaved", err)
	}
	if key != "bebafeca" {
		t.Fatalf("key = %q, want bebafeca", key)
	}
	if ex.State() != StateKeyExtracted {
		t.Fatalf("state = %v, want key extracted", ex.State())
	}
	if browserOpened {
		t.Fatal("browser replay must not run once a key was extracted")
	}
	if n := fs.deregisters.Load(); n != 2 {
		t.Fatalf("de-register requests = %d, want 2", n)
	}
	if a.Config.ActivationBytes != "bebafeca" {
		t.Fatalf("in-memory activation bytes = %q", a.Config.ActivationBytes)
	}
}

func TestFetchPlayerToken_SignInRedirect(t *testing.T) {
	fs := newFakeStore(t)
	a := newTestAuth(t, fs.srv.URL, "expired")
	ex := NewExtractor(a, nil, true)

	if _, err := ex.FetchPlayerToken(context.Background()); !errors.Is(err, model.ErrSignInRedirect) {
		t.Fatalf("err = %v, want ErrSignInRedirect", err)
	}
}

func TestExtract_NoCookies(t *testing.T) {
	a := newTestAuth(t, "http://127.0.0.1:1", "")
	ex := NewExtractor(a, nil, true)
	if _, err := ex.Extract(context.Background()); !errors.Is(err, model.ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
	if ex.State() != StateFailed {
		t.Fatalf("state = %v", ex.State())
	}
}

func TestExtract_AllMethodsFail(t *testing.T) {
	fs := newFakeStore(t)
	a := newTestAuth(t, fs.srv.URL, "expired")
	ex := NewExtractor(a, nil, true)

	_, err := ex.Extract(context.Background())
	if !errors.Is(err, model.ErrActivationNotFound) {
		t.Fatalf("err = %v, want ErrActivationNotFound", err)
	}
	if !errors.Is(err, model.ErrSignInRedirect) {
		t.Fatalf("err = %v, want the sign-in cause kept", err)
	}
	if fs.deregisters.Load() != 0 {
		t.Fatal("no device slot should be touched without a token")
	}
}

func TestExtract_BadBlob(t *testing.T) {
	fs := newFakeStore(t)
	fs.blob = []byte("<html>Whoops</html>")
	a := newTestAuth(t, fs.srv.URL, fs.validCookie)
	ex := NewExtractor(a, nil, true)

	_, err := ex.Extract(context.Background())
	if !errors.Is(err, model.ErrBlobInvalid) {
		t.Fatalf("err = %v, want ErrBlobInvalid", err)
	}
	if a.Config.ActivationBytes != "" {
		t.Fatal("activation bytes must not be stored on failure")
	}
}

// fakeBrowser lands on a fixed URL and hands back fixed cookies.
type fakeBrowser struct {
	landed   string
	html     string
	cookies  []model.Cookie
	injected []model.Cookie
	closed   bool
}

func (b *fakeBrowser) SetCookies(c []model.Cookie) error { b.injected = c; return nil }
func (b *fakeBrowser) Navigate(string) (string, error) { return b.landed, nil }
func (b *fakeBrowser) PageHTML() (string, error) { return b.html, nil }
func (b *fakeBrowser) Cookies(...string) ([]model.Cookie, error) {
	return b.cookies, nil
}
func (b *fakeBrowser) WaitForCookie(context.Context, string, []string, time.Duration) ([]model.Cookie, error) {
	return b.cookies, nil
}
func (b *fakeBrowser) Close() { b.closed = true }

func TestExtract_BrowserReplayFallback(t *testing.T) {
	fs := newFakeStore(t)
	a := newTestAuth(t, fs.srv.URL, "expired")
	fb := &fakeBrowser{
		landed:  fs.srv.URL + "/player-done?playerToken=" + fs.token,
		html:    "<html>ok</html>",
		cookies: []model.Cookie{{Name: "session-token", Value: fs.validCookie, Domain: "127.0.0.1", Path: "/"}},
	}
	opener := func(context.Context, bool) (Browser, error) { return fb, nil }
	ex := NewExtractor(a, opener, true)

	key, err := ex.Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if key != "bebafeca" {
		t.Fatalf("key = %q", key)
	}
	if len(fb.injected) != 1 || fb.injected[0].Value != "expired" {
		t.Fatalf("stored cookies not injected: %+v", fb.injected)
	}
	if !fb.closed {
		t.Fatal("browser not closed")
	}
	if v, _ := a.Client.Cookie(fs.srv.URL, "session-token"); v != fs.validCookie {
		t.Fatalf("browser cookies not copied back, got %q", v)
	}

	var stored model.AudibleConfig
	if found, err := a.Store.Load(model.ProviderAudible, &stored); err != nil || !found {
		t.Fatalf("stored config: found=%v err=%v", found, err)
	}
	if len(stored.Cookies) != 1 || stored.Cookies[0].Value != fs.validCookie {
		t.Fatalf("refreshed cookies not persisted: %+v", stored.Cookies)
	}
}

func TestExtract_BrowserLandsOnSignIn(t *testing.T) {
	fs := newFakeStore(t)
	a := newTestAuth(t, fs.srv.URL, "expired")
	fb := &fakeBrowser{landed: fs.srv.URL + "/ap/signin"}
	ex := NewExtractor(a, func(context.Context, bool) (Browser, error) { return fb, nil }, true)

	_, err := ex.Extract(context.Background())
	if !errors.Is(err, model.ErrActivationNotFound) {
		t.Fatalf("err = %v, want ErrActivationNotFound", err)
	}
}

func TestSetActivationBytes(t *testing.T) {
	a := newTestAuth(t, "http://127.0.0.1:1", "")
	if err := a.SetActivationBytes("zzzz"); !errors.Is(err, model.ErrInvalidActivationBytes) {
		t.Fatalf("err = %v, want ErrInvalidActivationBytes", err)
	}
	if err := a.SetActivationBytes(" CAFEBABE "); err != nil {
		t.Fatalf("SetActivationBytes() error: %v", err)
	}
	if a.Config.ActivationBytes != "cafebabe" {
		t.Fatalf("stored %q", a.Config.ActivationBytes)
	}
}
