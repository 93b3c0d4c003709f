package main

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	signInPath    = "/signin"
	signUpPath    = "/signup"
	landingPath   = "/diagnosis"
	dashboardPath = "/dashboard"
	adminRole     = "ADMIN"
)

type pathClass int

const (
	pathOther pathClass = iota
	pathAuthPage
	pathProtected
	pathAdmin
)

// classifyPath mirrors the guard matcher: /signin, /signup, /diagnosis and
// /admin/:path*. Everything else is unclassified.
func classifyPath(p string) pathClass {
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	switch {
	case p == signInPath || p == signUpPath:
		return pathAuthPage
	case p == landingPath:
		return pathProtected
	case p == "/admin" || strings.HasPrefix(p, "/admin/"):
		return pathAdmin
	default:
		return pathOther
	}
}

// Decision is the outcome of evaluating one request. It is never stored.
type Decision struct {
	Allow      bool
	RedirectTo string
	Reason     string
}

const (
	reasonPass            = "pass"
	reasonAllowed         = "allowed"
	reasonUnauthenticated = "unauthenticated"
	reasonAuthenticated   = "authenticated"
	reasonForbidden       = "forbidden"
)

// RouteGuard permits or redirects page navigations before they render.
type RouteGuard struct {
	Verifier    TokenVerifier
	CookieNames []string
	// OnDecision observes every decision reason, e.g. for metrics.
	OnDecision func(reason string)
}

// session returns the first non-empty session cookie value.
func (g *RouteGuard) session(r *http.Request) string {
	for _, name := range g.CookieNames {
		if tok := cookieValue(r, name); tok != "" {
			return tok
		}
	}
	return ""
}

// adminClaim reports whether token carries a verified admin role. Opaque or
// unverifiable tokens carry no role.
func (g *RouteGuard) adminClaim(token string) bool {
	if g.Verifier == nil {
		return false
	}
	c, err := g.Verifier.Verify(token)
	return err == nil && strings.EqualFold(c.Role, adminRole)
}

// Decide classifies the request path and returns the guard's decision.
func (g *RouteGuard) Decide(r *http.Request) Decision {
	class := classifyPath(r.URL.Path)
	if class == pathOther {
		return Decision{Allow: true, Reason: reasonPass}
	}

	token := g.session(r)
	switch class {
	case pathAuthPage:
		if token != "" {
			return Decision{RedirectTo: landingPath, Reason: reasonAuthenticated}
		}
	case pathProtected:
		if token == "" {
			return Decision{RedirectTo: signInRedirect(r.URL.Path), Reason: reasonUnauthenticated}
		}
	case pathAdmin:
		if token == "" {
			return Decision{RedirectTo: signInRedirect(r.URL.Path), Reason: reasonUnauthenticated}
		}
		if !g.adminClaim(token) {
			return Decision{RedirectTo: dashboardPath, Reason: reasonForbidden}
		}
	}
	return Decision{Allow: true, Reason: reasonAllowed}
}

func (g *RouteGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Decide(r)
		if g.OnDecision != nil {
			g.OnDecision(d.Reason)
		}
		if !d.Allow {
			http.Redirect(w, r, d.RedirectTo, http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// signInRedirect builds /signin?callbackUrl=<path>, keeping slashes readable.
func signInRedirect(path string) string {
	return signInPath + "?callbackUrl=" + strings.ReplaceAll(url.QueryEscape(path), "%2F", "/")
}

// safeCallback accepts only same-origin absolute paths.
func safeCallback(cb string) string {
	if cb == "" || !strings.HasPrefix(cb, "/") || strings.HasPrefix(cb, "//") || strings.Contains(cb, "\\") {
		return landingPath
	}
	return cb
}
