package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnauthenticated: the provider rejected the credential or token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUpstream: transport failure, timeout, 5xx or an unusable response.
	ErrUpstream = errors.New("identity provider unavailable")
)

const maxProviderBody = 1 << 20

// IdentityProvider is the external system of record for credentials.
type IdentityProvider interface {
	Login(ctx context.Context, c Credentials) (*LoginResult, error)
	Register(ctx context.Context, in Registration) (*LoginResult, error)
	// Me returns the provider's user object verbatim.
	Me(ctx context.Context, token string) (json.RawMessage, error)
}

// HTTPIdentityProvider talks to the provider's /auth/login and /auth/me.
type HTTPIdentityProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPIdentityProvider(baseURL string, timeout time.Duration) *HTTPIdentityProvider {
	return &HTTPIdentityProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPIdentityProvider) Login(ctx context.Context, c Credentials) (*LoginResult, error) {
	return p.exchange(ctx, "/auth/login", c)
}

func (p *HTTPIdentityProvider) Register(ctx context.Context, in Registration) (*LoginResult, error) {
	return p.exchange(ctx, "/auth/register", in)
}

// exchange posts a JSON payload and expects {access_token, user?} back.
func (p *HTTPIdentityProvider) exchange(ctx context.Context, path string, payload any) (*LoginResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := p.do(req)
	if err != nil {
		return nil, err
	}
	var out LoginResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", ErrUpstream, path, err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s response without access_token", ErrUpstream, path)
	}
	return &out, nil
}

func (p *HTTPIdentityProvider) Me(ctx context.Context, token string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	raw, err := p.do(req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: me response is not json", ErrUpstream)
	}
	return json.RawMessage(raw), nil
}

func (p *HTTPIdentityProvider) do(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnauthenticated, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
}

// decodeUser reads the claims view out of a provider user object.
func decodeUser(raw json.RawMessage) (*UserView, error) {
	var u UserView
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
