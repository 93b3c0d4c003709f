package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// fakeIdP is an in-memory IdentityProvider that records its calls.
type fakeIdP struct {
	mu        sync.Mutex
	loginRes  *LoginResult
	loginErr  error
	users     map[string]json.RawMessage // token -> user object
	meErr     error
	loginSeen []Credentials
	meCalls   int
}

func newFakeIdP() *fakeIdP {
	return &fakeIdP{users: map[string]json.RawMessage{}}
}

func (f *fakeIdP) Login(_ context.Context, c Credentials) (*LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginSeen = append(f.loginSeen, c)
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginRes, nil
}

func (f *fakeIdP) Register(_ context.Context, in Registration) (*LoginResult, error) {
	return f.Login(context.Background(), Credentials{Email: in.Email, Password: in.Password})
}

func (f *fakeIdP) Me(_ context.Context, token string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meCalls++
	if f.meErr != nil {
		return nil, f.meErr
	}
	u, ok := f.users[token]
	if !ok {
		return nil, ErrUnauthenticated
	}
	return u, nil
}

func (f *fakeIdP) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meCalls
}

func newTestApp(t *testing.T, idp IdentityProvider) *App {
	t.Helper()
	return &App{
		DB:          NewMemoryDB(),
		IdP:         idp,
		Tokens:      NewTokens(testSecret, time.Hour),
		Metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(1000),
	}
}

func issueToken(t *testing.T, app *App, id int64, role string) string {
	t.Helper()
	tok, err := app.Tokens.Issue(&User{ID: id, Email: "u@vet.test", Role: role})
	require.NoError(t, err)
	return tok
}

// testRemoteAddr places test requests on this host, as the relay's own calls are.
const testRemoteAddr = "127.0.0.1:40000"

func doRequest(h http.Handler, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = testRemoteAddr
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func doRequestWithHeader(h http.Handler, method, target, key, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = testRemoteAddr
	if value != "" {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}
