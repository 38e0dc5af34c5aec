// Package audible talks to the Audible web storefront with a stored browser
// session: sign-in, library listing, AAX download and activation-bytes
// extraction.
package audible

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/msebastian100/universal-downloader/internal/api"
	"github.com/msebastian100/universal-downloader/internal/config"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/tidwall/gjson"
)

// sessionCookies are set by a completed Audible/Amazon sign-in.
var sessionCookies = []string{"session-token", "at-main", "x-main", "ubid-main"}

// Browser is the part of a browser session the Audible flows use.
type Browser interface {
	SetCookies(cookies []model.Cookie) error
	Navigate(rawURL string) (string, error)
	PageHTML() (string, error)
	Cookies(domainSuffixes ...string) ([]model.Cookie, error)
	WaitForCookie(ctx context.Context, domainSuffix string, names []string, timeout time.Duration) ([]model.Cookie, error)
	Close()
}

// BrowserOpener starts a browser. headless=false shows a window.
type BrowserOpener func(ctx context.Context, headless bool) (Browser, error)

// Auth holds the Audible session and persists it through a config store.
type Auth struct {
	Store  *config.Store
	Client *api.Client
	Config model.AudibleConfig

	// BaseURL replaces https://www.audible.<tld> when set.
	BaseURL string

	marketplace string
}

// NewAuth returns an Auth for marketplace (de, com, co.uk, ...). An empty
// marketplace keeps whatever the stored session used.
func NewAuth(store *config.Store, client *api.Client, marketplace string) *Auth {
	return &Auth{Store: store, Client: client, marketplace: marketplace}
}

// Load reads the stored session and installs its cookies in the HTTP client.
func (a *Auth) Load() error {
	if _, err := a.Store.Load(model.ProviderAudible, &a.Config); err != nil {
		return err
	}
	if a.marketplace != "" {
		a.Config.Marketplace = a.marketplace
	}
	if a.Config.Marketplace == "" {
		a.Config.Marketplace = model.DefaultMarketplace
	}
	a.Client.SetCookies(a.Config.Cookies)
	return nil
}

// Save writes the session file in full.
func (a *Auth) Save() error {
	return a.Store.Save(model.ProviderAudible, a.Config)
}

// Base returns the storefront origin without a trailing slash.
func (a *Auth) Base() string {
	if a.BaseURL != "" {
		return strings.TrimRight(a.BaseURL, "/")
	}
	return "https://www.audible." + a.tld()
}

func (a *Auth) tld() string {
	if a.Config.Marketplace != "" {
		return a.Config.Marketplace
	}
	if a.marketplace != "" {
		return a.marketplace
	}
	return model.DefaultMarketplace
}

// CookieDomains lists the domains whose cookies make up an Audible session.
func (a *Auth) CookieDomains() []string {
	domains := []string{"audible." + a.tld(), "amazon." + a.tld()}
	if a.BaseURL != "" {
		if u, err := url.Parse(a.BaseURL); err == nil {
			domains = append(domains, u.Hostname())
		}
	}
	return domains
}

// HasCookies reports whether any session cookies are stored.
func (a *Auth) HasCookies() bool {
	return len(a.Config.Cookies) > 0
}

// ImportCookies replaces the stored cookies with the ones in src. src is a
// path to a JSON export (array of cookie objects, or an object with a
// "cookies" array) or a raw Cookie header.
func (a *Auth) ImportCookies(src string) (int, error) {
	var cookies []model.Cookie
	if data, err := os.ReadFile(src); err == nil {
		cookies, err = parseCookieExport(data, "."+a.CookieDomains()[0])
		if err != nil {
			return 0, err
		}
	} else if strings.Contains(src, "=") {
		cookies = api.ParseCookieHeader(src, "."+a.CookieDomains()[0])
	} else {
		return 0, fmt.Errorf("failed to read cookie file %s: %w", src, err)
	}
	if len(cookies) == 0 {
		return 0, errors.New("no cookies found in input")
	}

	a.Config.Cookies = cookies
	a.Config.IsAuthenticated = false
	a.Client.ResetCookies()
	a.Client.SetCookies(cookies)
	if err := a.Save(); err != nil {
		return 0, err
	}
	return len(cookies), nil
}

// parseCookieExport understands the common browser-extension formats, where
// expiry is either "expirationDate" (unix seconds) or "expires".
func parseCookieExport(data []byte, defaultDomain string) ([]model.Cookie, error) {
	if !gjson.ValidBytes(data) {
		if strings.Contains(string(data), "=") {
			return api.ParseCookieHeader(string(data), defaultDomain), nil
		}
		return nil, errors.New("cookie file is neither JSON nor a Cookie header")
	}
	root := gjson.ParseBytes(data)
	list := root
	if root.IsObject() {
		list = root.Get("cookies")
	}
	if !list.IsArray() {
		return nil, errors.New("cookie JSON must be an array or contain a cookies array")
	}

	var out []model.Cookie
	list.ForEach(func(_, c gjson.Result) bool {
		name := c.Get("name").String()
		if name == "" {
			return true
		}
		ck := model.Cookie{
			Name:     name,
			Value:    c.Get("value").String(),
			Domain:   c.Get("domain").String(),
			Path:     c.Get("path").String(),
			Secure:   c.Get("secure").Bool(),
			HTTPOnly: c.Get("httpOnly").Bool(),
		}
		if ck.Domain == "" {
			ck.Domain = defaultDomain
		}
		if exp := c.Get("expirationDate"); exp.Exists() && exp.Float() > 0 {
			ck.Expires = time.Unix(int64(exp.Float()), 0).UTC()
		} else if exp := c.Get("expires"); exp.Type == gjson.String {
			if t, err := time.Parse(time.RFC3339, exp.String()); err == nil && t.Year() > 1 {
				ck.Expires = t
			}
		}
		out = append(out, ck)
		return true
	})
	return out, nil
}

// Login opens a visible browser on the sign-in page and waits until the user
// has signed in, then stores the session cookies.
func (a *Auth) Login(ctx context.Context, open BrowserOpener, email string, timeout time.Duration) error {
	b, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer b.Close()

	if _, err := b.Navigate(a.Base() + "/sign-in"); err != nil {
		return err
	}
	if _, err := b.WaitForCookie(ctx, a.CookieDomains()[0], sessionCookies, timeout); err != nil {
		return fmt.Errorf("sign-in not completed: %w", err)
	}
	// Let the storefront finish its redirects so every cookie is present.
	if _, err := b.Navigate(a.Base() + "/library/titles"); err != nil {
		return err
	}
	cookies, err := b.Cookies(a.CookieDomains()...)
	if err != nil {
		return err
	}

	a.Config.Cookies = cookies
	a.Config.IsAuthenticated = true
	if email != "" {
		a.Config.Email = email
	}
	a.Client.ResetCookies()
	a.Client.SetCookies(cookies)
	return a.Save()
}

// VerifySession checks the stored cookies against the library page and
// records the result.
func (a *Auth) VerifySession(ctx context.Context) (bool, error) {
	if !a.HasCookies() {
		return false, model.ErrNotAuthenticated
	}
	resp, err := a.Client.Get(ctx, "audible.verify", a.Base()+"/library/titles", nil)
	if err != nil {
		return false, err
	}
	resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK && !IsSignInURL(resp.FinalURL())
	if ok != a.Config.IsAuthenticated {
		a.Config.IsAuthenticated = ok
		if err := a.Save(); err != nil {
			return ok, err
		}
	}
	return ok, nil
}

// Logout forgets the session. Activation bytes stay since they belong to the
// account, not the session.
func (a *Auth) Logout() error {
	a.Config.Cookies = nil
	a.Config.IsAuthenticated = false
	a.Client.ResetCookies()
	return a.Save()
}

// IsSignInURL reports whether u is an Audible or Amazon sign-in page.
func IsSignInURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	path := strings.ToLower(u.Path)
	return strings.Contains(path, "/ap/signin") || strings.Contains(path, "signin") || strings.Contains(path, "sign-in")
}
