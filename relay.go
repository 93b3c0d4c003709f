package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

// RelayLogin exchanges credentials with the identity provider and stores the
// issued token in the session cookie. The token never appears in the body.
// POST /api/auth/login
func (a *App) RelayLogin(w http.ResponseWriter, r *http.Request) {
	var c Credentials
	if err := decodeJSON(w, r, &c); err != nil {
		a.Metrics.relayOutcome("login", "bad_request")
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if c.Email == "" || c.Password == "" {
		a.Metrics.relayOutcome("login", "bad_request")
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email and password are required")
		return
	}

	res, err := a.IdP.Login(r.Context(), c)
	if err != nil {
		a.Metrics.relayOutcome("login", outcomeOf(err))
		log.Printf("relay login: %v", err)
		writeError(w, http.StatusInternalServerError, "LOGIN_FAILED", "Login failed")
		return
	}

	a.Cookies.set(w, res.AccessToken)
	a.Metrics.relayOutcome("login", "ok")
	writeMessage(w, http.StatusOK, "Logged in")
}

// RelayRegister creates an account at the provider and signs the new user in.
// POST /api/auth/register
func (a *App) RelayRegister(w http.ResponseWriter, r *http.Request) {
	var in Registration
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.Email == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email and password are required")
		return
	}

	res, err := a.IdP.Register(r.Context(), in)
	if err != nil {
		a.Metrics.relayOutcome("register", outcomeOf(err))
		log.Printf("relay register: %v", err)
		if errors.Is(err, ErrUnauthenticated) {
			writeError(w, http.StatusBadRequest, "REGISTRATION_FAILED", "Registration failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "REGISTRATION_FAILED", "Registration failed")
		return
	}

	a.Cookies.set(w, res.AccessToken)
	a.Metrics.relayOutcome("register", "ok")
	writeMessage(w, http.StatusOK, "Registered")
}

// RelayLogout invalidates the session cookie whether or not one exists.
// No upstream revocation is performed.
// POST /api/auth/logout
func (a *App) RelayLogout(w http.ResponseWriter, r *http.Request) {
	a.Cookies.clear(w)
	a.Metrics.relayOutcome("logout", "ok")
	writeMessage(w, http.StatusOK, "Logged out")
}

// RelayMe returns the provider's user object for the session cookie.
// GET /api/auth/me
func (a *App) RelayMe(w http.ResponseWriter, r *http.Request) {
	token := cookieValue(r, sessionCookieName)
	if token == "" {
		a.Metrics.relayOutcome("me", "unauthenticated")
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Not authenticated")
		return
	}

	raw, err := a.resolveIdentity(r.Context(), token)
	if err != nil {
		a.Metrics.relayOutcome("me", outcomeOf(err))
		if errors.Is(err, ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Not authenticated")
			return
		}
		log.Printf("relay me: %v", err)
		writeError(w, http.StatusInternalServerError, "UPSTREAM_ERROR", "Failed to fetch user")
		return
	}

	a.Metrics.relayOutcome("me", "ok")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// resolveIdentity is the one path every consumer uses to turn a token into
// the current user.
func (a *App) resolveIdentity(ctx context.Context, token string) (json.RawMessage, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	return a.IdP.Me(ctx, token)
}

// currentUser resolves the caller from the session cookie, falling back to a
// Bearer header for programmatic clients.
func (a *App) currentUser(r *http.Request) (*UserView, error) {
	if u := userFrom(r.Context()); u != nil {
		return u, nil
	}
	token := cookieValue(r, sessionCookieName)
	if token == "" {
		token = bearerToken(r)
	}
	raw, err := a.resolveIdentity(r.Context(), token)
	if err != nil {
		return nil, err
	}
	return decodeUser(raw)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	default:
		return "error"
	}
}
