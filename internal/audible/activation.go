package audible

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/msebastian100/universal-downloader/internal/media"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/ui"
	"github.com/tidwall/gjson"
)

// ActivationState is how far an extraction got.
type ActivationState int

const (
	StateNotAuthenticated ActivationState = iota
	StateAuthenticated
	StateTokenObtained
	StateBlobFetched
	StateKeyExtracted
	StateFailed
)

func (s ActivationState) String() string {
	switch s {
	case StateNotAuthenticated:
		return "not authenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateTokenObtained:
		return "token obtained"
	case StateBlobFetched:
		return "blob fetched"
	case StateKeyExtracted:
		return "key extracted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// activationRecordSize is the length of one key record after group_id.
const activationRecordSize = 70

// licenseUserAgent is what the desktop download manager sends to the
// license endpoint.
const licenseUserAgent = "Audible Download Manager"

var (
	tokenInURL   = regexp.MustCompile(`playerToken=([^&"'\s]+)`)
	tokenPattern = []*regexp.Regexp{
		regexp.MustCompile(`playerToken=([^&"'\s<>]+)`),
		regexp.MustCompile(`"playerToken"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`name="playerToken"\s+value="([^"]+)"`),
	}
)

// PlayerID is base64(SHA-1 of nothing). The license server accepts it as
// the software player's id.
func PlayerID() string {
	sum := sha1.Sum(nil)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ParseActivationBlob extracts the activation bytes from a license blob.
//
// The key records follow the last "group_id" marker, starting two bytes
// after the first ")" behind it. The first 70-byte record holds the key:
// its first four bytes, hex-encoded, with the byte order reversed.
func ParseActivationBlob(blob []byte) (string, error) {
	trimmed := bytes.TrimLeft(blob, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return "", fmt.Errorf("%w: got an HTML page", model.ErrBlobInvalid)
	}
	if bytes.Contains(blob, []byte("BAD_LOGIN")) || bytes.Contains(blob, []byte("Whoops")) {
		return "", fmt.Errorf("%w: server rejected the login", model.ErrBlobInvalid)
	}
	marker := bytes.LastIndex(blob, []byte("group_id"))
	if marker < 0 {
		return "", fmt.Errorf("%w: no group_id marker", model.ErrBlobInvalid)
	}
	paren := bytes.IndexByte(blob[marker:], ')')
	if paren < 0 {
		return "", fmt.Errorf("%w: no ')' after group_id", model.ErrBlobInvalid)
	}
	start := marker + paren + 2
	if start+activationRecordSize > len(blob) {
		return "", fmt.Errorf("%w: key record shorter than %d bytes", model.ErrBlobInvalid, activationRecordSize)
	}
	h := hex.EncodeToString(blob[start : start+activationRecordSize])[:8]
	return h[6:8] + h[4:6] + h[2:4] + h[0:2], nil
}

// ExtractPlayerToken finds the player token in a player-auth-token response.
// Sources are tried in order: the final URL's query, the final URL text, the
// last redirect Location, body patterns, and a JSON playerToken field.
func ExtractPlayerToken(final *url.URL, redirects []string, body []byte) (string, error) {
	if final != nil {
		if tok := final.Query().Get("playerToken"); tok != "" {
			return tok, nil
		}
		if m := tokenInURL.FindStringSubmatch(final.String()); m != nil {
			return unescape(m[1]), nil
		}
	}
	if n := len(redirects); n > 0 {
		if m := tokenInURL.FindStringSubmatch(redirects[n-1]); m != nil {
			return unescape(m[1]), nil
		}
	}
	for _, re := range tokenPattern {
		if m := re.FindSubmatch(body); m != nil {
			return unescape(string(m[1])), nil
		}
	}
	if gjson.ValidBytes(body) {
		if tok := gjson.GetBytes(body, "playerToken").String(); tok != "" {
			return tok, nil
		}
	}
	return "", model.ErrPlayerTokenNotFound
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// Extractor runs the activation-bytes protocol for a stored session.
type Extractor struct {
	Auth *Auth
	// OpenBrowser enables the browser replay fallback when set.
	OpenBrowser BrowserOpener
	Headless    bool
	// Logf receives step diagnostics. Defaults to ui.Debugf.
	Logf func(format string, args ...any)

	state ActivationState
}

// NewExtractor returns an Extractor. open may be nil to skip the browser step.
func NewExtractor(auth *Auth, open BrowserOpener, headless bool) *Extractor {
	return &Extractor{Auth: auth, OpenBrowser: open, Headless: headless, Logf: ui.Debugf}
}

// State is the furthest point the last run reached.
func (e *Extractor) State() ActivationState {
	return e.state
}

func (e *Extractor) logf(format string, args ...any) {
	if e.Logf != nil {
		e.Logf(format, args...)
	}
}

// PlayerTokenURL is the player-auth-token endpoint with the software player
// parameters.
func (e *Extractor) PlayerTokenURL() string {
	q := url.Values{}
	q.Set("ipRedirectOverride", "true")
	q.Set("playerType", "software")
	q.Set("bp_ua", "y")
	q.Set("playerModel", "Desktop")
	q.Set("playerId", PlayerID())
	q.Set("playerManufacturer", "Audible")
	q.Set("serial", "")
	return e.Auth.Base() + "/player-auth-token?" + q.Encode()
}

func (e *Extractor) licenseURL(token string, deregister bool) string {
	u := e.Auth.Base() + "/license/licenseForCustomerToken?customer_token=" + url.QueryEscape(token)
	if deregister {
		u += "&action=de-register"
	}
	return u
}

// FetchPlayerToken requests a player token over HTTP with the stored cookies.
func (e *Extractor) FetchPlayerToken(ctx context.Context) (string, error) {
	resp, err := e.Auth.Client.Get(ctx, "audible.player_token", e.PlayerTokenURL(), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	for _, loc := range resp.Redirects {
		e.logf("player-auth-token redirect: %s", loc)
	}

	final := resp.FinalURL()
	if IsSignInURL(final) {
		return "", model.ErrSignInRedirect
	}
	return ExtractPlayerToken(final, resp.Redirects, body)
}

func (e *Extractor) licenseRequest(ctx context.Context, rawURL string) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", licenseUserAgent)
		return req, nil
	}
}

// Deregister frees the device slot held by token. It is attempted once.
func (e *Extractor) Deregister(ctx context.Context, token string) error {
	resp, err := e.Auth.Client.DoOnce(ctx, "audible.deregister", e.licenseRequest(ctx, e.licenseURL(token, true)))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("de-register: HTTP %s", resp.Status)
	}
	return nil
}

// FetchLicenseBlob downloads the license blob for token.
func (e *Extractor) FetchLicenseBlob(ctx context.Context, token string) ([]byte, error) {
	resp, err := e.Auth.Client.Do(ctx, "audible.license", e.licenseRequest(ctx, e.licenseURL(token, false)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("license: HTTP %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// Extract runs the protocol and stores the result in the Audible config.
// Direct HTTP is tried first, then a browser replay of the token request.
// Each run registers and frees a device slot on the account.
func (e *Extractor) Extract(ctx context.Context) (string, error) {
	e.state = StateNotAuthenticated
	if !e.Auth.HasCookies() {
		e.state = StateFailed
		return "", model.ErrNotAuthenticated
	}
	e.state = StateAuthenticated

	type method struct {
		name string
		run  func(context.Context) (string, error)
	}
	methods := []method{{"direct HTTP", e.tokenDirect}}
	if e.OpenBrowser != nil {
		methods = append(methods, method{"browser replay", e.tokenViaBrowser})
	}

	var errs []error
	for _, m := range methods {
		token, err := m.run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			ui.PrintWarning(fmt.Sprintf("Activation via %s: %v", m.name, err))
			errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
			continue
		}
		e.state = StateTokenObtained
		key, err := e.finish(ctx, token)
		if errors.Is(err, model.ErrActivationNotSaved) {
			// An extracted key is returned even when persisting it failed.
			return key, err
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			ui.PrintWarning(fmt.Sprintf("Activation via %s: %v", m.name, err))
			errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
			e.state = StateAuthenticated
			continue
		}
		return key, nil
	}
	e.state = StateFailed
	return "", fmt.Errorf("%w: %w", model.ErrActivationNotFound, errors.Join(errs...))
}

func (e *Extractor) tokenDirect(ctx context.Context) (string, error) {
	return e.FetchPlayerToken(ctx)
}

// tokenViaBrowser replays the token request in a real browser carrying the
// stored cookies, then hands the browser's cookies back to the HTTP client.
func (e *Extractor) tokenViaBrowser(ctx context.Context) (string, error) {
	b, err := e.OpenBrowser(ctx, e.Headless)
	if err != nil {
		return "", err
	}
	defer b.Close()

	if err := b.SetCookies(e.Auth.Config.Cookies); err != nil {
		return "", err
	}
	landed, err := b.Navigate(e.PlayerTokenURL())
	if err != nil {
		return "", err
	}
	e.logf("browser landed on %s", landed)
	final, _ := url.Parse(landed)
	if IsSignInURL(final) {
		return "", model.ErrSignInRedirect
	}
	html, err := b.PageHTML()
	if err != nil {
		return "", err
	}
	token, err := ExtractPlayerToken(final, nil, []byte(html))
	if err != nil {
		return "", err
	}
	if cookies, err := b.Cookies(e.Auth.CookieDomains()...); err == nil && len(cookies) > 0 {
		e.Auth.Client.SetCookies(cookies)
		e.Auth.Config.Cookies = cookies
	}
	return token, nil
}

// finish turns a player token into activation bytes: de-register, fetch the
// blob, parse it, de-register again, persist.
func (e *Extractor) finish(ctx context.Context, token string) (string, error) {
	if err := e.Deregister(ctx, token); err != nil {
		e.logf("de-register before license fetch: %v", err)
	}
	blob, err := e.FetchLicenseBlob(ctx, token)
	if err != nil {
		return "", err
	}
	e.state = StateBlobFetched
	key, err := ParseActivationBlob(blob)
	if err != nil {
		return "", err
	}
	if err := media.ValidateActivationBytes(key); err != nil {
		return "", err
	}
	if err := e.Deregister(ctx, token); err != nil {
		e.logf("de-register after license fetch: %v", err)
	}
	e.state = StateKeyExtracted

	e.Auth.Config.ActivationBytes = key
	e.Auth.Config.IsAuthenticated = true
	if err := e.Auth.Save(); err != nil {
		return key, fmt.Errorf("%w: %w", model.ErrActivationNotSaved, err)
	}
	return key, nil
}

// SetActivationBytes stores manually entered activation bytes.
func (a *Auth) SetActivationBytes(key string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if err := media.ValidateActivationBytes(key); err != nil {
		return err
	}
	a.Config.ActivationBytes = key
	return a.Save()
}
