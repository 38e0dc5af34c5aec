package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/msebastian100/universal-downloader/internal/model"
)

// DefaultUserAgent is a desktop browser UA. Audible serves the sign-in flow
// differently to unknown clients.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Options tunes the gateway. Zero values fall back to DefaultOptions.
type Options struct {
	Timeout          time.Duration
	RatePerSec       float64
	Burst            int
	FailureThreshold int
	ResetTimeout     time.Duration
	MaxRetries       int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	UserAgent        string
}

// DefaultOptions is 5 req/s with a burst of 10, a breaker that opens after 5
// consecutive 429/5xx for 60s, and up to 4 retries from 500ms to 30s.
func DefaultOptions() Options {
	return Options{
		Timeout:          60 * time.Second,
		RatePerSec:       5,
		Burst:            10,
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		MaxRetries:       4,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       30 * time.Second,
		UserAgent:        DefaultUserAgent,
	}
}

// Client is the single gateway for outbound HTTP. It owns the cookie jar that
// carries provider sessions between requests.
type Client struct {
	HTTP      *http.Client
	UserAgent string

	jar      *cookiejar.Jar
	pacers   *pacerSet
	breakers *breakerSet
	opts     Options
}

// Response is an http.Response plus the Location headers seen while
// following redirects.
type Response struct {
	*http.Response
	Redirects []string
}

// FinalURL returns the URL the request landed on after redirects.
func (r *Response) FinalURL() *url.URL {
	if r == nil || r.Request == nil {
		return nil
	}
	return r.Request.URL
}

type trailKey struct{}

type trail struct {
	label     string
	locations []string
}

// NewClient builds a Client. Unset option fields take their defaults.
func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Burst <= 0 {
		opts.Burst = def.Burst
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = def.FailureThreshold
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = def.ResetTimeout
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = def.MaxBackoff
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}

	c := &Client{
		UserAgent: opts.UserAgent,
		pacers:    newPacerSet(opts.RatePerSec, opts.Burst),
		breakers:  newBreakerSet(opts.FailureThreshold, opts.ResetTimeout),
		opts:      opts,
	}
	c.jar = mustCookieJar()
	c.HTTP = &http.Client{
		Jar:           c.jar,
		Timeout:       opts.Timeout,
		CheckRedirect: recordRedirect,
	}
	return c
}

func mustCookieJar() *cookiejar.Jar {
	jar, err := cookiejar.New(nil)
	if err != nil {
		panic(fmt.Sprintf("failed to create cookie jar: %v", err))
	}
	return jar
}

func recordRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after %d redirects", len(via))
	}
	tr, _ := req.Context().Value(trailKey{}).(*trail)
	if tr != nil && req.Response != nil {
		loc := req.Response.Header.Get("Location")
		if loc == "" {
			loc = req.URL.String()
		}
		tr.locations = append(tr.locations, loc)
		logRedirect(tr.label, req.Response.StatusCode, loc)
	}
	return nil
}

// Do sends the request built by makeReq through the gateway.
//
// In order it applies per-host pacing, the per-host circuit breaker, the
// request itself and a retry on 429/5xx with exponential backoff that honours
// Retry-After. Network errors are returned without retry and do not count
// against the breaker. The caller closes the response body.
func (c *Client) Do(ctx context.Context, label string, makeReq func() (*http.Request, error)) (*Response, error) {
	return c.do(ctx, label, c.opts.MaxRetries, makeReq)
}

// DoOnce is Do without retries.
func (c *Client) DoOnce(ctx context.Context, label string, makeReq func() (*http.Request, error)) (*Response, error) {
	return c.do(ctx, label, 0, makeReq)
}

// Get is a convenience wrapper for a GET with optional extra headers.
func (c *Client) Get(ctx context.Context, label, rawURL string, header http.Header) (*Response, error) {
	return c.Do(ctx, label, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		return req, nil
	})
}

func (c *Client) do(ctx context.Context, label string, maxRetries int, makeReq func() (*http.Request, error)) (*Response, error) {
	backoff := c.opts.InitialBackoff

	for attempt := 0; ; attempt++ {
		req, err := makeReq()
		if err != nil {
			return nil, err
		}
		host := req.URL.Host

		waited, err := c.pacers.For(host).Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("rate limiter cancelled for %s: %w", label, err)
		}
		if waited > time.Millisecond {
			logRateLimitWait(label, waited)
		}
		cb := c.breakers.For(host)
		state, allowed := cb.Allow()
		if !allowed {
			logCircuitRejected(label, host)
			return nil, fmt.Errorf("%w (%s)", ErrCircuitOpen, host)
		}

		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", c.UserAgent)
		}
		tr := &trail{label: label}
		req = req.WithContext(context.WithValue(req.Context(), trailKey{}, tr))

		start := time.Now()
		resp, err := c.HTTP.Do(req)
		duration := time.Since(start)
		if err != nil {
			logRequest(label, host, 0, duration, attempt, state, err)
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			if prev := cb.RecordSuccess(); prev != circuitClosed {
				logCircuitChange("circuit_closed", label, host, prev, circuitClosed)
			}
			logRequest(label, host, resp.StatusCode, duration, attempt, circuitClosed, nil)
			return &Response{Response: resp, Redirects: tr.locations}, nil
		}

		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		next := cb.RecordFailure()
		if next == circuitOpen && state != circuitOpen {
			logCircuitChange("circuit_opened", label, host, state, next)
		}
		apiErr := fmt.Errorf("HTTP %s", resp.Status)
		logRequest(label, host, resp.StatusCode, duration, attempt, next, apiErr)

		if attempt >= maxRetries {
			return nil, fmt.Errorf("%s failed after %d attempts: %w", label, attempt+1, apiErr)
		}

		wait := backoff
		if secs, e := strconv.Atoi(resp.Header.Get("Retry-After")); e == nil && secs >= 0 {
			wait = time.Duration(secs) * time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, c.opts.MaxBackoff)
	}
}

// ResetCookies drops every cookie from the jar.
func (c *Client) ResetCookies() {
	c.jar = mustCookieJar()
	c.HTTP.Jar = c.jar
}

// SetCookies loads stored cookies into the jar. Cookies are grouped by their
// domain so each lands under the right host.
func (c *Client) SetCookies(cookies []model.Cookie) {
	byOrigin := make(map[string][]*http.Cookie)
	for _, ck := range cookies {
		host := strings.TrimPrefix(ck.Domain, ".")
		if host == "" || ck.Name == "" {
			continue
		}
		origin := "https://" + host + "/"
		byOrigin[origin] = append(byOrigin[origin], ToHTTPCookie(ck))
	}
	for origin, list := range byOrigin {
		u, err := url.Parse(origin)
		if err != nil {
			continue
		}
		c.jar.SetCookies(u, list)
	}
}

// Cookie returns the value of the named cookie visible to rawURL.
func (c *Client) Cookie(rawURL, name string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	for _, ck := range c.jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value, true
		}
	}
	return "", false
}

// CookieHeader renders the cookies visible to rawURL as a Cookie header value.
func (c *Client) CookieHeader(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := make([]string, 0)
	for _, ck := range c.jar.Cookies(u) {
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}

// ToHTTPCookie converts a stored cookie for use with net/http.
func ToHTTPCookie(ck model.Cookie) *http.Cookie {
	path := ck.Path
	if path == "" {
		path = "/"
	}
	hc := &http.Cookie{
		Name:     ck.Name,
		Value:    ck.Value,
		Domain:   ck.Domain,
		Path:     path,
		Secure:   ck.Secure,
		HttpOnly: ck.HTTPOnly,
	}
	if !ck.Expires.IsZero() {
		hc.Expires = ck.Expires
	}
	return hc
}

// ParseCookieHeader turns a raw "a=b; c=d" Cookie header into stored cookies
// scoped to domain.
func ParseCookieHeader(header, domain string) []model.Cookie {
	header = strings.TrimSpace(header)
	if after, ok := strings.CutPrefix(header, "Cookie:"); ok {
		header = strings.TrimSpace(after)
	}
	var out []model.Cookie
	for part := range strings.SplitSeq(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		out = append(out, model.Cookie{Name: name, Value: value, Domain: domain, Path: "/"})
	}
	return out
}
