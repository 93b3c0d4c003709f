package main

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	sessionCookieName       = "token"
	secureSessionCookieName = "__Secure-token"
)

// CookiePolicy controls the attributes of the session cookie.
type CookiePolicy struct {
	// Secure is set in production only so local http development still works.
	Secure bool
}

func (p CookiePolicy) session(value string) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (p CookiePolicy) set(w http.ResponseWriter, token string) {
	http.SetCookie(w, p.session(token))
}

// clear overwrites the cookie with an empty value, Max-Age=0 and an epoch expiry.
func (p CookiePolicy) clear(w http.ResponseWriter) {
	p.expire(w, sessionCookieName)
}

// clearAll clears every cookie name the route guard reads.
func (p CookiePolicy) clearAll(w http.ResponseWriter) {
	for _, name := range p.guardCookieNames() {
		p.expire(w, name)
	}
}

func (p CookiePolicy) expire(w http.ResponseWriter, name string) {
	c := p.session("")
	c.Name = name
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0).UTC()
	http.SetCookie(w, c)
}

// guardCookieNames lists the cookies the route guard accepts, most specific first.
func (p CookiePolicy) guardCookieNames() []string {
	if p.Secure {
		return []string{secureSessionCookieName, sessionCookieName}
	}
	return []string{sessionCookieName}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

type ctxKey int

const userCtxKey ctxKey = iota

func withUser(ctx context.Context, u *UserView) context.Context {
	return context.WithValue(ctx, userCtxKey, u)
}

// userFrom returns the user resolved earlier in the request, or nil.
func userFrom(ctx context.Context) *UserView {
	u, _ := ctx.Value(userCtxKey).(*UserView)
	return u
}
