package deezer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/msebastian100/universal-downloader/internal/api"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/tidwall/gjson"
)

const (
	defaultAPIURL = "https://api.deezer.com"
	maxPages      = 50
)

// Item kinds understood by ParseURL.
const (
	KindTrack    = "track"
	KindAlbum    = "album"
	KindPlaylist = "playlist"
)

// ErrNotFound is the public API's "no data" answer.
var ErrNotFound = errors.New("deezer: not found")

// API is a client for the public catalog API. It needs no session.
type API struct {
	Client *api.Client
	// BaseURL replaces https://api.deezer.com when set.
	BaseURL string
}

// NewAPI returns an API client sharing the gateway.
func NewAPI(client *api.Client) *API {
	return &API{Client: client}
}

// Collection is an album or playlist with its tracks.
type Collection struct {
	Kind   string        `json:"kind"`
	ID     int64         `json:"id"`
	Title  string        `json:"title"`
	Artist string        `json:"artist,omitempty"`
	Tracks []model.Track `json:"tracks"`
}

func (a *API) base() string {
	if a.BaseURL != "" {
		return strings.TrimRight(a.BaseURL, "/")
	}
	return defaultAPIURL
}

func (a *API) get(ctx context.Context, label, rawURL string) (gjson.Result, error) {
	resp, err := a.Client.Get(ctx, label, rawURL, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("deezer api: HTTP %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.New("deezer api: response is not JSON")
	}
	r := gjson.ParseBytes(body)
	if e := r.Get("error"); e.IsObject() {
		if e.Get("code").Int() == 800 {
			return gjson.Result{}, ErrNotFound
		}
		return gjson.Result{}, fmt.Errorf("deezer api: %s (%s, code %d)",
			e.Get("message").String(), e.Get("type").String(), e.Get("code").Int())
	}
	return r, nil
}

// ParseTrack maps a track object of the public API.
func ParseTrack(r gjson.Result) model.Track {
	cover := r.Get("album.cover_xl").String()
	if cover == "" {
		cover = r.Get("album.cover_big").String()
	}
	return model.Track{
		ID:          r.Get("id").Int(),
		Title:       r.Get("title").String(),
		Artist:      r.Get("artist.name").String(),
		Album:       r.Get("album.title").String(),
		TrackNumber: int(r.Get("track_position").Int()),
		DiscNumber:  int(r.Get("disk_number").Int()),
		Duration:    int(r.Get("duration").Int()),
		PreviewURL:  r.Get("preview").String(),
		CoverURL:    cover,
		Link:        r.Get("link").String(),
		ReleaseDate: r.Get("release_date").String(),
	}
}

// GetTrack fetches one track.
func (a *API) GetTrack(ctx context.Context, id int64) (model.Track, error) {
	r, err := a.get(ctx, "deezer.track", a.base()+"/track/"+strconv.FormatInt(id, 10))
	if err != nil {
		return model.Track{}, err
	}
	return ParseTrack(r), nil
}

// GetAlbum fetches an album and its tracks. Album tracks carry no album
// fields of their own, so they are filled from the album.
func (a *API) GetAlbum(ctx context.Context, id int64) (Collection, error) {
	r, err := a.get(ctx, "deezer.album", a.base()+"/album/"+strconv.FormatInt(id, 10))
	if err != nil {
		return Collection{}, err
	}
	c := Collection{
		Kind:   KindAlbum,
		ID:     r.Get("id").Int(),
		Title:  r.Get("title").String(),
		Artist: r.Get("artist.name").String(),
	}
	cover := r.Get("cover_xl").String()
	released := r.Get("release_date").String()

	tracks, err := a.collect(ctx, "deezer.album", r.Get("tracks"))
	if err != nil {
		return c, err
	}
	for i := range tracks {
		t := &tracks[i]
		if t.Album == "" {
			t.Album = c.Title
		}
		if t.CoverURL == "" {
			t.CoverURL = cover
		}
		if t.ReleaseDate == "" {
			t.ReleaseDate = released
		}
		if t.TrackNumber == 0 {
			t.TrackNumber = i + 1
		}
	}
	c.Tracks = tracks
	return c, nil
}

// GetPlaylist fetches a playlist and all its tracks.
func (a *API) GetPlaylist(ctx context.Context, id int64) (Collection, error) {
	r, err := a.get(ctx, "deezer.playlist", a.base()+"/playlist/"+strconv.FormatInt(id, 10))
	if err != nil {
		return Collection{}, err
	}
	c := Collection{
		Kind:   KindPlaylist,
		ID:     r.Get("id").Int(),
		Title:  r.Get("title").String(),
		Artist: r.Get("creator.name").String(),
	}
	c.Tracks, err = a.collect(ctx, "deezer.playlist", r.Get("tracks"))
	return c, err
}

// collect reads a paged track list, following "next" links.
func (a *API) collect(ctx context.Context, label string, page gjson.Result) ([]model.Track, error) {
	var tracks []model.Track
	for range maxPages {
		page.Get("data").ForEach(func(_, t gjson.Result) bool {
			if t.Get("id").Int() != 0 {
				tracks = append(tracks, ParseTrack(t))
			}
			return true
		})
		next := page.Get("next").String()
		if next == "" {
			break
		}
		var err error
		if page, err = a.get(ctx, label, next); err != nil {
			return tracks, err
		}
	}
	return tracks, nil
}

// Search looks up tracks by free text.
func (a *API) Search(ctx context.Context, query string, limit int) ([]model.Track, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	r, err := a.get(ctx, "deezer.search", a.base()+"/search?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var out []model.Track
	r.Get("data").ForEach(func(_, t gjson.Result) bool {
		out = append(out, ParseTrack(t))
		return len(out) < limit
	})
	return out, nil
}

// ParseURL accepts deezer.com/<lang>/{track,album,playlist}/<id> URLs and
// kind:<id> shorthands.
func ParseURL(s string) (string, int64, error) {
	s = strings.TrimSpace(s)
	if kind, id, ok := strings.Cut(s, ":"); ok && isKind(kind) {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil || n <= 0 {
			return "", 0, fmt.Errorf("%w: bad id in %q", model.ErrUnsupportedURL, s)
		}
		return kind, n, nil
	}

	u, err := url.Parse(s)
	if err != nil || !IsDeezerHost(u.Hostname()) {
		return "", 0, fmt.Errorf("%w: %q is not a deezer link", model.ErrUnsupportedURL, s)
	}
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	for i := 0; i+1 < len(parts); i++ {
		if !isKind(parts[i]) {
			continue
		}
		n, err := strconv.ParseInt(parts[i+1], 10, 64)
		if err != nil || n <= 0 {
			break
		}
		return parts[i], n, nil
	}
	return "", 0, fmt.Errorf("%w: no track, album or playlist in %q", model.ErrUnsupportedURL, s)
}

func isKind(s string) bool {
	return s == KindTrack || s == KindAlbum || s == KindPlaylist
}

// IsDeezerHost reports whether host belongs to deezer.com.
func IsDeezerHost(host string) bool {
	host = strings.ToLower(host)
	return host == "deezer.com" || strings.HasSuffix(host, ".deezer.com")
}

// IsDeezerTarget reports whether s is something ParseURL understands.
func IsDeezerTarget(s string) bool {
	_, _, err := ParseURL(s)
	return err == nil
}

// Resolve expands a URL or shorthand into its tracks.
func (a *API) Resolve(ctx context.Context, target string) ([]model.Track, error) {
	kind, id, err := ParseURL(target)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindTrack:
		t, err := a.GetTrack(ctx, id)
		if err != nil {
			return nil, err
		}
		return []model.Track{t}, nil
	case KindAlbum:
		c, err := a.GetAlbum(ctx, id)
		return c.Tracks, err
	default:
		c, err := a.GetPlaylist(ctx, id)
		return c.Tracks, err
	}
}
