// Package authclient keeps a cached view of the signed-in user for programs
// that talk to the portal's session relay, the way a browser tab does.
//
// A Context starts with no user and Loading reporting true. Mount performs a
// single call to GET /api/auth/me and settles the state whatever the outcome.
// The cached user is only refreshed by Mount, Login and Logout; two Contexts
// never share state.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds every relay round trip.
const DefaultTimeout = 5 * time.Second

const (
	sessionCookie = "token"
	signInPath    = "/signin"
)

var (
	ErrUnauthenticated = errors.New("authclient: not authenticated")
	ErrRelay           = errors.New("authclient: relay request failed")
)

// User mirrors the relay's user object.
type User struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	Image         string `json:"image,omitempty"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
}

// State is a snapshot handed to change listeners.
type State struct {
	User    *User
	Loading bool
}

// Context is the cached auth state of one client.
type Context struct {
	base     *url.URL
	client   *http.Client
	navigate func(path string)

	mu        sync.RWMutex
	user      *User
	loading   bool
	listeners []func(State)
}

// Option configures a Context.
type Option func(*Context)

// WithHTTPClient replaces the default client. The client needs a cookie jar
// for the session cookie to survive between calls.
func WithHTTPClient(c *http.Client) Option {
	return func(ac *Context) { ac.client = c }
}

// WithTimeout sets the per-request timeout. A client passed through
// WithHTTPClient is copied first, so the caller's value keeps its own timeout.
func WithTimeout(d time.Duration) Option {
	return func(ac *Context) {
		cp := *ac.client
		cp.Timeout = d
		ac.client = &cp
	}
}

// WithNavigator receives the sign-in path after Logout.
func WithNavigator(fn func(path string)) Option {
	return func(ac *Context) { ac.navigate = fn }
}

// OnChange registers a listener invoked after every state transition.
func OnChange(fn func(State)) Option {
	return func(ac *Context) { ac.listeners = append(ac.listeners, fn) }
}

func New(baseURL string, opts ...Option) (*Context, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("authclient: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("authclient: base url %q must be absolute", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Context{
		base:    u,
		client:  &http.Client{Jar: jar, Timeout: DefaultTimeout},
		loading: true,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Context) User() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *Context) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{User: c.user, Loading: c.loading}
}

// Jar exposes the session cookie store, for callers that make their own
// requests against the portal.
func (c *Context) Jar() http.CookieJar {
	return c.client.Jar
}

// Mount issues the initial Me call. The state settles with Loading false
// on success and on failure; a failure leaves User nil.
func (c *Context) Mount(ctx context.Context) error {
	return c.refresh(ctx)
}

// Login refreshes the cached user after a sign-in completed elsewhere. A
// non-empty token is stored as the session cookie first; it does not submit
// credentials.
func (c *Context) Login(ctx context.Context, token string) error {
	if token != "" && c.client.Jar != nil {
		c.client.Jar.SetCookies(c.base, []*http.Cookie{{Name: sessionCookie, Value: token, Path: "/"}})
	}
	return c.refresh(ctx)
}

// SignIn submits credentials to the login relay, then behaves like Login.
func (c *Context) SignIn(ctx context.Context, email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	if _, err := c.do(ctx, http.MethodPost, "/api/auth/login", body); err != nil {
		return err
	}
	return c.Login(ctx, "")
}

// Logout calls the logout relay, clears the cached user and navigates to
// the sign-in page. Local state is cleared even when the relay call fails.
func (c *Context) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil)
	c.set(nil, false)
	if c.navigate != nil {
		c.navigate(signInPath)
	}
	return err
}

// Allowed is the role gate predicate: a user exists and holds one of roles.
func Allowed(u *User, roles ...string) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if strings.EqualFold(u.Role, r) {
			return true
		}
	}
	return false
}

// Gate calls render only when the cached user passes Allowed. Otherwise it
// does nothing.
func (c *Context) Gate(roles []string, render func(*User)) {
	if u := c.User(); Allowed(u, roles...) {
		render(u)
	}
}

func (c *Context) refresh(ctx context.Context) error {
	raw, err := c.do(ctx, http.MethodGet, "/api/auth/me", nil)
	if err != nil {
		c.set(nil, false)
		return err
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		c.set(nil, false)
		return fmt.Errorf("%w: decode user: %v", ErrRelay, err)
	}
	c.set(&u, false)
	return nil
}

func (c *Context) set(u *User, loading bool) {
	c.mu.Lock()
	c.user, c.loading = u, loading
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()

	st := State{User: u, Loading: loading}
	for _, fn := range listeners {
		fn(st)
	}
}

func (c *Context) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelay, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelay, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelay, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthenticated
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %d", ErrRelay, resp.StatusCode)
	}
	return raw, nil
}
