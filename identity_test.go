package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func providerServer(t *testing.T, h http.HandlerFunc) *HTTPIdentityProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPIdentityProvider(srv.URL+"/", time.Second)
}

func TestHTTPIdentityProvider_Login(t *testing.T) {
	p := providerServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc","user":{"id":1,"email":"a@b.com","role":"user"}}`))
	})

	res, err := p.Login(context.Background(), Credentials{Email: "a@b.com", Password: "pw"})

	require.NoError(t, err)
	require.Equal(t, "abc", res.AccessToken)
	require.Equal(t, "a@b.com", res.User.Email)
}

func TestHTTPIdentityProvider_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusUnauthorized, `{"error":"bad"}`, ErrUnauthenticated},
		{http.StatusNotFound, `{}`, ErrUnauthenticated},
		{http.StatusInternalServerError, `{}`, ErrUpstream},
		{http.StatusBadGateway, ``, ErrUpstream},
		{http.StatusOK, `not json`, ErrUpstream},
		{http.StatusOK, `{"user":{}}`, ErrUpstream},
	}
	for _, tc := range cases {
		p := providerServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		})
		_, err := p.Login(context.Background(), Credentials{Email: "a@b.com", Password: "pw"})
		require.ErrorIs(t, err, tc.want, "status %d body %q", tc.status, tc.body)
	}
}

func TestHTTPIdentityProvider_MeForwardsBearer(t *testing.T) {
	raw := `{"id":4,"email":"vet@clinic.test","role":"admin","custom":[1,2]}`
	p := providerServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/me", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(raw))
	})

	got, err := p.Me(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, raw, string(got))

	_, err = p.Me(context.Background(), "other")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestHTTPIdentityProvider_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	p := NewHTTPIdentityProvider(srv.URL, 50*time.Millisecond)
	_, err := p.Me(context.Background(), "tok")

	require.ErrorIs(t, err, ErrUpstream)
}

func TestHTTPIdentityProvider_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPIdentityProvider(url, time.Second).Login(context.Background(), Credentials{Email: "a", Password: "b"})

	require.ErrorIs(t, err, ErrUpstream)
}

func TestDecodeUser(t *testing.T) {
	u, err := decodeUser([]byte(`{"id":9,"email":"x@y.z","full_name":"X","role":"admin","emailVerified":true}`))
	require.NoError(t, err)
	require.Equal(t, &UserView{ID: 9, Email: "x@y.z", FullName: "X", Role: "admin", EmailVerified: true}, u)

	_, err = decodeUser([]byte(`[]`))
	require.Error(t, err)
}
