// Package browser drives a real Chromium through chromedp for the flows that
// plain HTTP cannot complete: interactive sign-in, replaying an authenticated
// request with browser fingerprints, and starting playback in a web player.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/msebastian100/universal-downloader/internal/model"
)

// ErrCookieTimeout is returned when WaitForCookie gives up.
var ErrCookieTimeout = errors.New("timed out waiting for cookie")

// Options configures the browser process.
type Options struct {
	// ExecPath points at chrome/chromium/brave. Empty lets chromedp search.
	ExecPath string
	// Headless hides the window. Sign-in flows need a visible window.
	Headless  bool
	UserAgent string
	// Logf receives chromedp's protocol log in debug mode.
	Logf func(format string, args ...any)
	// AllowAutoplay lets web players start audio without a user gesture.
	AllowAutoplay bool
}

// Session is one running browser with a throwaway profile.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	profileDir  string
}

// Open starts a browser. The returned session must be closed.
func Open(ctx context.Context, opts Options) (*Session, error) {
	profileDir, err := os.MkdirTemp("", "udl-browser-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create browser profile: %w", err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("window-size", "1280,800"),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.AllowAutoplay {
		allocOpts = append(allocOpts, chromedp.Flag("autoplay-policy", "no-user-gesture-required"))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	var ctxOpts []chromedp.ContextOption
	if opts.Logf != nil {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(opts.Logf))
	}
	bctx, cancel := chromedp.NewContext(allocCtx, ctxOpts...)

	// First Run starts the process.
	if err := chromedp.Run(bctx, network.Enable()); err != nil {
		cancel()
		allocCancel()
		os.RemoveAll(profileDir)
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return &Session{ctx: bctx, cancel: cancel, allocCancel: allocCancel, profileDir: profileDir}, nil
}

// Close stops the browser and removes its profile.
func (s *Session) Close() {
	s.cancel()
	s.allocCancel()
	os.RemoveAll(s.profileDir)
}

// SetCookies installs stored cookies into the browser.
func (s *Session) SetCookies(cookies []model.Cookie) error {
	return chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, ck := range cookies {
			if ck.Name == "" || ck.Domain == "" {
				continue
			}
			path := ck.Path
			if path == "" {
				path = "/"
			}
			set := network.SetCookie(ck.Name, ck.Value).
				WithDomain(ck.Domain).
				WithPath(path).
				WithSecure(ck.Secure).
				WithHTTPOnly(ck.HTTPOnly)
			if !ck.Expires.IsZero() {
				expr := cdp.TimeSinceEpoch(ck.Expires)
				set = set.WithExpires(&expr)
			}
			if err := set.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", ck.Name, err)
			}
		}
		return nil
	}))
}

// Navigate loads rawURL and returns the URL the tab landed on.
func (s *Session) Navigate(rawURL string) (string, error) {
	var landed string
	err := chromedp.Run(s.ctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&landed),
	)
	if err != nil {
		return landed, fmt.Errorf("failed to load %s: %w", rawURL, err)
	}
	return landed, nil
}

// Location returns the current tab URL.
func (s *Session) Location() (string, error) {
	var loc string
	err := chromedp.Run(s.ctx, chromedp.Location(&loc))
	return loc, err
}

// PageHTML returns the serialised document.
func (s *Session) PageHTML() (string, error) {
	var html string
	err := chromedp.Run(s.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Evaluate runs a JavaScript expression and decodes its result into res.
func (s *Session) Evaluate(expr string, res any) error {
	return chromedp.Run(s.ctx, chromedp.Evaluate(expr, res))
}

// Cookies returns every browser cookie whose domain ends in one of the given
// suffixes (all cookies when none are given).
func (s *Session) Cookies(domainSuffixes ...string) ([]model.Cookie, error) {
	var raw []*network.Cookie
	err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read browser cookies: %w", err)
	}
	return filterCookies(raw, domainSuffixes), nil
}

func filterCookies(raw []*network.Cookie, domainSuffixes []string) []model.Cookie {
	out := make([]model.Cookie, 0, len(raw))
	for _, ck := range raw {
		if !matchesDomain(ck.Domain, domainSuffixes) {
			continue
		}
		mc := model.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
		}
		if ck.Expires > 0 {
			mc.Expires = time.Unix(int64(ck.Expires), 0).UTC()
		}
		out = append(out, mc)
	}
	return out
}

func matchesDomain(domain string, suffixes []string) bool {
	if len(suffixes) == 0 {
		return true
	}
	domain = strings.TrimPrefix(domain, ".")
	for _, suffix := range suffixes {
		suffix = strings.TrimPrefix(suffix, ".")
		if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
			return true
		}
	}
	return false
}

// WaitForCookie polls the browser until any of names is set for a domain
// matching domainSuffix, then returns all cookies for that domain. The user
// completes the sign-in in the window meanwhile.
func (s *Session) WaitForCookie(ctx context.Context, domainSuffix string, names []string, timeout time.Duration) ([]model.Cookie, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s", ErrCookieTimeout, strings.Join(names, ", "))
		case <-ticker.C:
			cookies, err := s.Cookies(domainSuffix)
			if err != nil {
				return nil, err
			}
			for _, ck := range cookies {
				for _, name := range names {
					if ck.Name == name && ck.Value != "" {
						return cookies, nil
					}
				}
			}
		}
	}
}

// ClickFirst clicks the first visible element matching one of selectors,
// giving each selector up to wait to appear. It returns the selector used.
func (s *Session) ClickFirst(wait time.Duration, selectors ...string) (string, error) {
	for _, sel := range selectors {
		tctx, cancel := context.WithTimeout(s.ctx, wait)
		err := chromedp.Run(tctx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
		cancel()
		if err == nil {
			return sel, nil
		}
		if s.ctx.Err() != nil {
			return "", s.ctx.Err()
		}
	}
	return "", fmt.Errorf("none of %d selectors became clickable", len(selectors))
}
