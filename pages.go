package main

import (
	"errors"
	"html/template"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// roleGate reports whether u exists and holds one of roles. Templates use it
// to silently omit markup; enforcement lives in the route guard.
func roleGate(u *UserView, roles ...string) bool {
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

const layoutTmpl = `{{define "layout"}}<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}} · VetPortal</title></head>
<body>
<nav>
  <a href="/dashboard">Dashboard</a>
  <a href="/diagnosis">Diagnosis</a>
  {{if .User}}<a href="/profile">Profile</a>{{end}}
  {{if roleGate .User "admin"}}<a href="/admin">Admin</a>{{end}}
  {{if .User}}<button id="logout">Sign out</button>{{else}}<a href="/signin">Sign in</a>{{end}}
</nav>
<main>{{template "content" .}}</main>
<script>
const out = document.getElementById("logout");
if (out) out.onclick = () => fetch("/api/auth/logout", {method: "POST"}).then(() => location.assign("/signin"));
</script>
</body>
</html>{{end}}`

const pageTmpls = `
{{define "signin"}}<h1>Sign in</h1>
<form id="auth" data-endpoint="/api/auth/login" data-next="{{.Callback}}">
  <input name="email" type="email" required>
  <input name="password" type="password" required>
  <button type="submit">Sign in</button>
</form>
<p id="error" hidden>Sign in failed.</p>
<a href="/signup">Create an account</a>
{{template "authscript"}}{{end}}

{{define "signup"}}<h1>Create account</h1>
<form id="auth" data-endpoint="/api/auth/register" data-next="/diagnosis">
  <input name="full_name" required>
  <input name="email" type="email" required>
  <input name="password" type="password" required>
  <button type="submit">Sign up</button>
</form>
<p id="error" hidden>Sign up failed.</p>
{{template "authscript"}}{{end}}

{{define "authscript"}}<script>
const f = document.getElementById("auth");
f.onsubmit = async (e) => {
  e.preventDefault();
  const body = JSON.stringify(Object.fromEntries(new FormData(f)));
  const res = await fetch(f.dataset.endpoint, {method: "POST", headers: {"Content-Type": "application/json"}, body});
  if (res.ok) { location.assign(f.dataset.next); } else { document.getElementById("error").hidden = false; }
};
</script>{{end}}

{{define "diagnosis"}}<h1>Diagnosis</h1>
<p>Signed in as {{.User.Email}}.</p>
<form><label>Species <input name="species"></label><label>Symptoms <textarea name="symptoms"></textarea></label></form>{{end}}

{{define "dashboard"}}<h1>Dashboard</h1>
<p>Welcome, {{if .User.FullName}}{{.User.FullName}}{{else}}{{.User.Email}}{{end}}.</p>
<ul>
  <li><a href="/api/users">Users</a></li>
  <li><a href="/api/organizations">Organizations</a></li>
  <li><a href="/api/subscriptions">Subscriptions</a></li>
  <li><a href="/api/api-keys">API keys</a></li>
</ul>
{{if roleGate .User "admin"}}<section id="admin-tools"><a href="/admin/reports">Reports</a></section>{{end}}{{end}}

{{define "profile"}}<h1>Profile</h1>
<dl><dt>Name</dt><dd>{{.User.FullName}}</dd><dt>Email</dt><dd>{{.User.Email}}</dd><dt>Role</dt><dd>{{.User.Role}}</dd></dl>{{end}}

{{define "admin"}}<h1>Admin</h1><p>Section: {{.Section}}</p>{{end}}
`

type pageData struct {
	Title    string
	User     *UserView
	Callback string
	Section  string
}

// Pages renders server-side pages around a shared layout.
type Pages struct {
	tmpl *template.Template
}

func NewPages() *Pages {
	t := template.Must(template.New("pages").Funcs(template.FuncMap{"roleGate": roleGate}).Parse(layoutTmpl))
	template.Must(t.Parse(pageTmpls))
	return &Pages{tmpl: t}
}

func (p *Pages) render(w http.ResponseWriter, name string, data pageData) {
	t, err := p.tmpl.Clone()
	if err == nil {
		_, err = t.Parse(`{{define "content"}}{{template "` + name + `" .}}{{end}}`)
	}
	if err != nil {
		log.Printf("render %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		log.Printf("render %s: %v", name, err)
	}
}

func (a *App) registerPages(r *mux.Router) {
	r.HandleFunc(signInPath, a.pageSignIn).Methods(http.MethodGet)
	r.HandleFunc(signUpPath, a.pageSignUp).Methods(http.MethodGet)
	r.HandleFunc(landingPath, a.pageWithUser("diagnosis", "Diagnosis")).Methods(http.MethodGet)
	r.HandleFunc(dashboardPath, a.pageWithUser("dashboard", "Dashboard")).Methods(http.MethodGet)
	r.HandleFunc("/profile", a.pageWithUser("profile", "Profile")).Methods(http.MethodGet)
	r.HandleFunc("/admin", a.pageAdmin).Methods(http.MethodGet)
	r.HandleFunc("/admin/{section:.*}", a.pageAdmin).Methods(http.MethodGet)
	r.Handle("/", http.RedirectHandler(dashboardPath, http.StatusFound)).Methods(http.MethodGet)
}

func (a *App) pageSignIn(w http.ResponseWriter, r *http.Request) {
	a.Pages.render(w, "signin", pageData{Title: "Sign in", Callback: safeCallback(r.URL.Query().Get("callbackUrl"))})
}

func (a *App) pageSignUp(w http.ResponseWriter, r *http.Request) {
	a.Pages.render(w, "signup", pageData{Title: "Sign up"})
}

// pageWithUser renders a page that needs the current user; a session the
// provider no longer accepts sends the browser back to sign-in.
func (a *App) pageWithUser(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := a.pageUser(w, r)
		if !ok {
			return
		}
		a.Pages.render(w, name, pageData{Title: title, User: u})
	}
}

func (a *App) pageAdmin(w http.ResponseWriter, r *http.Request) {
	u, ok := a.pageUser(w, r)
	if !ok {
		return
	}
	// The guard already checked the token's role claim; the provider's
	// current view gets the final say in case the role changed since issue.
	if !roleGate(u, RoleAdmin) {
		http.Redirect(w, r, dashboardPath, http.StatusTemporaryRedirect)
		return
	}
	section := mux.Vars(r)["section"]
	if section == "" {
		section = "overview"
	}
	a.Pages.render(w, "admin", pageData{Title: "Admin", User: u, Section: section})
}

func (a *App) pageUser(w http.ResponseWriter, r *http.Request) (*UserView, bool) {
	u, err := a.currentUser(r)
	if err == nil {
		return u, true
	}
	if errors.Is(err, ErrUpstream) {
		log.Printf("page %s: %v", r.URL.Path, err)
		http.Error(w, "Service unavailable", http.StatusBadGateway)
		return nil, false
	}
	// The provider no longer accepts the cookie; drop it so the guard stops
	// treating the browser as signed in.
	a.Cookies.clearAll(w)
	http.Redirect(w, r, signInRedirect(r.URL.Path), http.StatusTemporaryRedirect)
	return nil, false
}
