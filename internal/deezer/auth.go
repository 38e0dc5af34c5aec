// Package deezer handles the Deezer ARL session, public catalog metadata,
// preview downloads and capture of full tracks from web playback.
package deezer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/msebastian100/universal-downloader/internal/api"
	"github.com/msebastian100/universal-downloader/internal/config"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/tidwall/gjson"
)

const (
	defaultSiteURL = "https://www.deezer.com"
	arlCookie      = "arl"
)

// Browser is the part of a browser session the Deezer flows use.
type Browser interface {
	SetCookies(cookies []model.Cookie) error
	Navigate(rawURL string) (string, error)
	WaitForCookie(ctx context.Context, domainSuffix string, names []string, timeout time.Duration) ([]model.Cookie, error)
	ClickFirst(wait time.Duration, selectors ...string) (string, error)
	Close()
}

// BrowserOpener starts a browser. headless=false shows a window.
type BrowserOpener func(ctx context.Context, headless bool) (Browser, error)

// Auth holds the ARL session.
type Auth struct {
	Store  *config.Store
	Client *api.Client
	Config model.DeezerConfig

	// BaseURL replaces https://www.deezer.com when set.
	BaseURL string
}

// NewAuth returns an Auth backed by store.
func NewAuth(store *config.Store, client *api.Client) *Auth {
	return &Auth{Store: store, Client: client}
}

// Base returns the site origin without a trailing slash.
func (a *Auth) Base() string {
	if a.BaseURL != "" {
		return strings.TrimRight(a.BaseURL, "/")
	}
	return defaultSiteURL
}

func (a *Auth) cookieDomain() string {
	if u, err := url.Parse(a.Base()); err == nil && u.Hostname() != "" {
		host := u.Hostname()
		if strings.HasSuffix(host, "deezer.com") {
			return ".deezer.com"
		}
		return host
	}
	return ".deezer.com"
}

// ARLCookie is the session cookie for the stored ARL.
func (a *Auth) ARLCookie() model.Cookie {
	return model.Cookie{Name: arlCookie, Value: a.Config.ARL, Domain: a.cookieDomain(), Path: "/", Secure: strings.HasPrefix(a.Base(), "https://"), HTTPOnly: true}
}

// Load reads the stored session and installs the ARL cookie.
func (a *Auth) Load() error {
	if _, err := a.Store.Load(model.ProviderDeezer, &a.Config); err != nil {
		return err
	}
	if a.Config.ARL != "" {
		a.Client.SetCookies([]model.Cookie{a.ARLCookie()})
	}
	return nil
}

// Save writes the session file in full.
func (a *Auth) Save() error {
	return a.Store.Save(model.ProviderDeezer, a.Config)
}

// HasARL reports whether an ARL is stored.
func (a *Auth) HasARL() bool {
	return a.Config.ARL != ""
}

// SetARL stores a new ARL. It is unverified until Validate succeeds.
func (a *Auth) SetARL(arl string) error {
	arl = strings.TrimSpace(arl)
	if arl == "" {
		return errors.New("ARL token is empty")
	}
	if strings.ContainsAny(arl, " ;\t\r\n") {
		return errors.New("ARL token must not contain whitespace or ';'")
	}
	a.Config = model.DeezerConfig{ARL: arl}
	a.Client.SetCookies([]model.Cookie{a.ARLCookie()})
	return a.Save()
}

// Validate asks the gateway who the ARL belongs to. A zero USER_ID means the
// ARL is expired or invalid.
func (a *Auth) Validate(ctx context.Context) (bool, error) {
	if !a.HasARL() {
		return false, model.ErrNotAuthenticated
	}
	q := url.Values{}
	q.Set("method", "deezer.getUserData")
	q.Set("input", "3")
	q.Set("api_version", "1.0")
	q.Set("api_token", "")
	endpoint := a.Base() + "/ajax/gw-light.php?" + q.Encode()

	resp, err := a.Client.Do(ctx, "deezer.user_data", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader("{}"))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("gw-light: HTTP %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return false, err
	}
	if !gjson.ValidBytes(body) {
		return false, errors.New("gw-light: response is not JSON")
	}

	user := gjson.GetBytes(body, "results.USER")
	id := user.Get("USER_ID").Int()
	ok := id != 0
	a.Config.IsAuthenticated = ok
	a.Config.UserID = id
	a.Config.UserName = user.Get("BLOG_NAME").String()
	if err := a.Save(); err != nil {
		return ok, err
	}
	return ok, nil
}

// CaptureARL opens the login page in a visible browser, waits for the arl
// cookie the site sets after sign-in, and stores and validates it.
func (a *Auth) CaptureARL(ctx context.Context, open BrowserOpener, timeout time.Duration) error {
	b, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer b.Close()

	if _, err := b.Navigate(a.Base() + "/login"); err != nil {
		return err
	}
	cookies, err := b.WaitForCookie(ctx, strings.TrimPrefix(a.cookieDomain(), "."), []string{arlCookie}, timeout)
	if err != nil {
		return fmt.Errorf("sign-in not completed: %w", err)
	}
	var arl string
	for _, c := range cookies {
		if c.Name == arlCookie {
			arl = c.Value
		}
	}
	if err := a.SetARL(arl); err != nil {
		return err
	}
	ok, err := a.Validate(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("captured ARL was rejected by deezer")
	}
	return nil
}
