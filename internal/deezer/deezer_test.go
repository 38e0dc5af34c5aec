package deezer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
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

func newClient() *api.Client {
	return api.NewClient(api.Options{Timeout: 5 * time.Second})
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		in       string
		wantKind string
		wantID   int64
		wantErr  bool
	}{
		{in: "https://www.deezer.com/de/track/3135556", wantKind: KindTrack, wantID: 3135556},
		{in: "https://www.deezer.com/album/302127", wantKind: KindAlbum, wantID: 302127},
		{in: "https://deezer.com/en/playlist/908622995?utm=x", wantKind: KindPlaylist, wantID: 908622995},
		{in: "  track:42 ", wantKind: KindTrack, wantID: 42},
		{in: "album:7", wantKind: KindAlbum, wantID: 7},
		{in: "track:abc", wantErr: true},
		{in: "https://www.deezer.com/de/artist/27", wantErr: true},
		{in: "https://open.spotify.com/track/123", wantErr: true},
		{in: "https://evil-deezer.com/track/1", wantErr: true},
		{in: "not a url", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			kind, id, err := ParseURL(tt.in)
			if tt.wantErr {
				if !errors.Is(err, model.ErrUnsupportedURL) {
					t.Fatalf("err = %v, want ErrUnsupportedURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURL() error: %v", err)
			}
			if kind != tt.wantKind || id != tt.wantID {
				t.Fatalf("ParseURL() = %s/%d, want %s/%d", kind, id, tt.wantKind, tt.wantID)
			}
		})
	}
}

func newGateway(t *testing.T, validARL string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ajax/gw-light.php" || r.URL.Query().Get("method") != "deezer.getUserData" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if c, err := r.Cookie("arl"); err == nil && c.Value == validARL {
			_, _ = w.Write([]byte(`{"error":[],"results":{"USER":{"USER_ID":"1234567","BLOG_NAME":"hoerer"}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":[],"results":{"USER":{"USER_ID":0}}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAuth(t *testing.T, base string) *Auth {
	t.Helper()
	a := NewAuth(config.NewStore(t.TempDir()), newClient())
	a.BaseURL = base
	return a
}

func TestValidate(t *testing.T) {
	srv := newGateway(t, "good-arl")

	a := newTestAuth(t, srv.URL)
	if err := a.SetARL("  good-arl "); err != nil {
		t.Fatalf("SetARL() error: %v", err)
	}
	ok, err := a.Validate(context.Background())
	if err != nil || !ok {
		t.Fatalf("Validate() = %v, %v", ok, err)
	}
	if a.Config.UserID != 1234567 || a.Config.UserName != "hoerer" {
		t.Fatalf("config = %+v", a.Config)
	}

	var stored model.DeezerConfig
	if found, err := a.Store.Load(model.ProviderDeezer, &stored); err != nil || !found {
		t.Fatalf("stored: %v %v", found, err)
	}
	if !stored.IsAuthenticated || stored.ARL != "good-arl" {
		t.Fatalf("stored = %+v", stored)
	}

	bad := newTestAuth(t, srv.URL)
	if err := bad.SetARL("expired"); err != nil {
		t.Fatal(err)
	}
	ok, err = bad.Validate(context.Background())
	if err != nil || ok {
		t.Fatalf("expired Validate() = %v, %v", ok, err)
	}
}

func TestSetARL_Rejects(t *testing.T) {
	a := newTestAuth(t, "")
	for _, arl := range []string{"", "   ", "a b", "a;b"} {
		if err := a.SetARL(arl); err == nil {
			t.Errorf("SetARL(%q) should fail", arl)
		}
	}
	if _, err := a.Validate(context.Background()); !errors.Is(err, model.ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestLoadInstallsCookie(t *testing.T) {
	srv := newGateway(t, "stored-arl")
	store := config.NewStore(t.TempDir())
	if err := store.Save(model.ProviderDeezer, model.DeezerConfig{ARL: "stored-arl"}); err != nil {
		t.Fatal(err)
	}
	a := NewAuth(store, newClient())
	a.BaseURL = srv.URL
	if err := a.Load(); err != nil {
		t.Fatal(err)
	}
	if ok, err := a.Validate(context.Background()); err != nil || !ok {
		t.Fatalf("Validate() after Load = %v, %v", ok, err)
	}
}

type fakeBrowser struct {
	cookies  []model.Cookie
	injected []model.Cookie
	visited  []string
	clicked  []string
	failPlay bool
}

func (b *fakeBrowser) SetCookies(c []model.Cookie) error { b.injected = c; return nil }
func (b *fakeBrowser) Navigate(u string) (string, error) {
	b.visited = append(b.visited, u)
	return u, nil
}
func (b *fakeBrowser) WaitForCookie(context.Context, string, []string, time.Duration) ([]model.Cookie, error) {
	return b.cookies, nil
}
func (b *fakeBrowser) ClickFirst(_ time.Duration, selectors ...string) (string, error) {
	if b.failPlay && selectors[0] == playSelectors[0] {
		return "", errors.New("no play button")
	}
	b.clicked = append(b.clicked, selectors[0])
	return selectors[0], nil
}
func (b *fakeBrowser) Close() {}

func TestCaptureARL(t *testing.T) {
	srv := newGateway(t, "captured")
	a := newTestAuth(t, srv.URL)
	fb := &fakeBrowser{cookies: []model.Cookie{{Name: "sid", Value: "x"}, {Name: "arl", Value: "captured"}}}

	err := a.CaptureARL(context.Background(), func(_ context.Context, headless bool) (Browser, error) {
		if headless {
			t.Error("login needs a visible browser")
		}
		return fb, nil
	}, time.Second)
	if err != nil {
		t.Fatalf("CaptureARL() error: %v", err)
	}
	if a.Config.ARL != "captured" || !a.Config.IsAuthenticated {
		t.Fatalf("config = %+v", a.Config)
	}
	if len(fb.visited) != 1 || !strings.HasSuffix(fb.visited[0], "/login") {
		t.Fatalf("visited = %v", fb.visited)
	}
}

const trackJSON = `{"id":3135556,"title":"Harder, Better, Faster, Stronger","link":"https://www.deezer.com/track/3135556",
"duration":224,"track_position":4,"disk_number":1,"release_date":"2001-03-07",
"preview":"%s/preview.mp3","artist":{"name":"Daft Punk"},
"album":{"title":"Discovery","cover_xl":"%s/cover.jpg"}}`

func newCatalog(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/track/3135556", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.ReplaceAll(trackJSON, "%s", srv.URL)))
	})
	mux.HandleFunc("/track/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"type":"DataException","message":"no data","code":800}}`))
	})
	mux.HandleFunc("/album/302127", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":302127,"title":"Discovery","cover_xl":"c.jpg","release_date":"2001-03-07","artist":{"name":"Daft Punk"},
"tracks":{"data":[{"id":1,"title":"One More Time","duration":320,"artist":{"name":"Daft Punk"}},
{"id":2,"title":"Aerodynamic","duration":212,"artist":{"name":"Daft Punk"}}]}}`))
	})
	mux.HandleFunc("/playlist/9", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":9,"title":"Mix","creator":{"name":"me"},
"tracks":{"data":[{"id":11,"title":"A","artist":{"name":"X"},"album":{"title":"AA"}}],"next":"` + srv.URL + `/playlist/9/tracks?index=1"}}`))
	})
	mux.HandleFunc("/playlist/9/tracks", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":12,"title":"B","artist":{"name":"Y"},"album":{"title":"BB"}}]}`))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "daft punk" {
			_, _ = w.Write([]byte(`{"data":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":1,"title":"a"},{"id":2,"title":"b"},{"id":3,"title":"c"}]}`))
	})
	mux.HandleFunc("/preview.mp3", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ID3-less preview audio"))
	})
	mux.HandleFunc("/cover.jpg", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff, 0xe0})
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestAPI(srv *httptest.Server) *API {
	a := NewAPI(newClient())
	a.BaseURL = srv.URL
	return a
}

func TestGetTrack(t *testing.T) {
	srv := newCatalog(t)
	a := newTestAPI(srv)

	tr, err := a.GetTrack(context.Background(), 3135556)
	if err != nil {
		t.Fatalf("GetTrack() error: %v", err)
	}
	if tr.Title != "Harder, Better, Faster, Stronger" || tr.Artist != "Daft Punk" || tr.Album != "Discovery" ||
		tr.TrackNumber != 4 || tr.Duration != 224 || tr.CoverURL != srv.URL+"/cover.jpg" {
		t.Fatalf("track = %+v", tr)
	}

	if _, err := a.GetTrack(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetAlbumFillsTrackFields(t *testing.T) {
	a := newTestAPI(newCatalog(t))
	c, err := a.GetAlbum(context.Background(), 302127)
	if err != nil {
		t.Fatalf("GetAlbum() error: %v", err)
	}
	if c.Title != "Discovery" || len(c.Tracks) != 2 {
		t.Fatalf("album = %+v", c)
	}
	second := c.Tracks[1]
	if second.Album != "Discovery" || second.TrackNumber != 2 || second.CoverURL != "c.jpg" || second.ReleaseDate != "2001-03-07" {
		t.Fatalf("track = %+v", second)
	}
}

func TestGetPlaylistFollowsNext(t *testing.T) {
	a := newTestAPI(newCatalog(t))
	tracks, err := a.Resolve(context.Background(), "playlist:9")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(tracks) != 2 || tracks[1].Title != "B" || tracks[1].Album != "BB" {
		t.Fatalf("tracks = %+v", tracks)
	}
}

func TestSearchLimit(t *testing.T) {
	a := newTestAPI(newCatalog(t))
	got, err := a.Search(context.Background(), "daft punk", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
}

func TestTrackTags(t *testing.T) {
	tags := TrackTags(model.Track{Title: "T", Artist: "A", Album: "B", TrackNumber: 3, ReleaseDate: "1997-01-20"})
	if tags.Year != "1997" || tags.TrackNumber != 3 || tags.Album != "B" {
		t.Fatalf("tags = %+v", tags)
	}
	if TrackTags(model.Track{ReleaseDate: "n/a"}).Year != "" {
		t.Fatal("invalid release date should leave year empty")
	}
}

func TestDownloadPreview(t *testing.T) {
	srv := newCatalog(t)
	a := newTestAPI(srv)
	track, err := a.GetTrack(context.Background(), 3135556)
	if err != nil {
		t.Fatal(err)
	}
	d := &Downloader{API: a}
	outDir := t.TempDir()

	path, err := d.DownloadPreview(context.Background(), track, outDir)
	if err != nil {
		t.Fatalf("DownloadPreview() error: %v", err)
	}
	if filepath.Base(path) != "Daft Punk - Harder, Better, Faster, Stronger.mp3" {
		t.Fatalf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "ID3") {
		t.Fatal("preview should carry an ID3v2 tag")
	}

	if _, err := d.DownloadPreview(context.Background(), model.Track{Title: "x"}, outDir); !errors.Is(err, ErrNoPreview) {
		t.Fatalf("err = %v, want ErrNoPreview", err)
	}
}

type fakeRecorder struct {
	calls    atomic.Int32
	duration time.Duration
}

func (r *fakeRecorder) Record(_ context.Context, out string, d time.Duration) error {
	r.calls.Add(1)
	r.duration = d
	return os.WriteFile(out, []byte("captured audio"), 0644)
}

func TestCaptureTrack(t *testing.T) {
	srv := newCatalog(t)
	auth := newTestAuth(t, srv.URL)
	if err := auth.SetARL("arl-value"); err != nil {
		t.Fatal(err)
	}
	fb := &fakeBrowser{}
	rec := &fakeRecorder{}
	d := &Downloader{
		API:         newTestAPI(srv),
		Auth:        auth,
		OpenBrowser: func(context.Context, bool) (Browser, error) { return fb, nil },
		Recorder:    rec,
	}
	track := model.Track{ID: 5, Title: "Song", Artist: "Band", Duration: 180}

	path, err := d.CaptureTrack(context.Background(), track, t.TempDir())
	if err != nil {
		t.Fatalf("CaptureTrack() error: %v", err)
	}
	if rec.duration != 182*time.Second {
		t.Fatalf("recorded %v, want 182s", rec.duration)
	}
	if len(fb.injected) != 1 || fb.injected[0].Name != "arl" || fb.injected[0].Value != "arl-value" {
		t.Fatalf("injected = %+v", fb.injected)
	}
	if len(fb.visited) != 1 || fb.visited[0] != srv.URL+"/track/5" {
		t.Fatalf("visited = %v", fb.visited)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}

func TestCaptureTrack_Errors(t *testing.T) {
	d := &Downloader{Auth: newTestAuth(t, "")}
	if _, err := d.CaptureTrack(context.Background(), model.Track{Duration: 10}, t.TempDir()); !errors.Is(err, model.ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}

	srv := newCatalog(t)
	auth := newTestAuth(t, srv.URL)
	if err := auth.SetARL("x"); err != nil {
		t.Fatal(err)
	}
	rec := &fakeRecorder{}
	d = &Downloader{
		API:         newTestAPI(srv),
		Auth:        auth,
		OpenBrowser: func(context.Context, bool) (Browser, error) { return &fakeBrowser{failPlay: true}, nil },
		Recorder:    rec,
	}
	if _, err := d.CaptureTrack(context.Background(), model.Track{ID: 1, Title: "t", Duration: 10}, t.TempDir()); err == nil {
		t.Fatal("expected playback error")
	}
	if rec.calls.Load() != 0 {
		t.Fatal("nothing should be recorded when playback fails")
	}
}

func TestFetchAllContinuesAfterFailure(t *testing.T) {
	srv := newCatalog(t)
	a := newTestAPI(srv)
	good, err := a.GetTrack(context.Background(), 3135556)
	if err != nil {
		t.Fatal(err)
	}
	d := &Downloader{API: a}
	tracks := []model.Track{{Title: "no preview"}, good}

	paths, err := d.FetchAll(context.Background(), tracks, t.TempDir(), true)
	if len(paths) != 1 {
		t.Fatalf("paths = %v", paths)
	}
	if !errors.Is(err, ErrNoPreview) {
		t.Fatalf("err = %v, want the failed track reported", err)
	}
}
