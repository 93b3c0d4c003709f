package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/vetportal/internal/config"
	"github.com/example/vetportal/internal/dbmigrate"
	"github.com/gorilla/mux"
	_ "modernc.org/sqlite"
)

type App struct {
	DB             DB
	IdP            IdentityProvider
	Tokens         *Tokens
	Metrics        *Metrics
	Pages          *Pages
	Cookies        CookiePolicy
	AllowedOrigins []string
	// ServeIdentity mounts the in-process identity provider under /auth.
	ServeIdentity bool
	rateLimiter   *RateLimiter
	now           func() time.Time
}

// NewRouter wires every route. The relay and the pages reach the identity
// provider only through a.IdP, even when it is served by this process.
func (a *App) NewRouter() http.Handler {
	if a.rateLimiter == nil {
		a.rateLimiter = NewRateLimiter(20)
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.Pages == nil {
		a.Pages = NewPages()
	}

	r := mux.NewRouter()

	// Apply global middleware
	r.Use(Recover)
	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if p, ok := a.DB.(interface{ ping() bool }); ok && !p.ping() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
	}).Methods("GET")
	if a.Metrics != nil {
		r.Handle("/metrics", a.Metrics.Handler()).Methods("GET")
	}

	// Session relay
	relay := r.PathPrefix("/api/auth").Subrouter()
	relay.Handle("/login", a.RateLimit(http.HandlerFunc(a.RelayLogin))).Methods("POST")
	relay.Handle("/register", a.RateLimit(http.HandlerFunc(a.RelayRegister))).Methods("POST")
	relay.HandleFunc("/logout", a.RelayLogout).Methods("POST")
	relay.HandleFunc("/me", a.RelayMe).Methods("GET")

	// Dashboard collections
	api := r.PathPrefix("/api").Subrouter()
	api.Use(a.RequireSession)
	registerCollections(api, a.DB.Repos(), a.now)

	// In-process identity provider
	if a.ServeIdentity {
		idp := r.PathPrefix("/auth").Subrouter()
		idp.Use(LoopbackOnly)
		idp.HandleFunc("/register", a.HandleRegister).Methods("POST")
		idp.HandleFunc("/login", a.HandleLogin).Methods("POST")
		idp.HandleFunc("/me", a.HandleMe).Methods("GET")
	}

	// Pages, evaluated by the route guard before render
	guard := &RouteGuard{
		Verifier:    a.Tokens,
		CookieNames: a.Cookies.guardCookieNames(),
		OnDecision:  a.Metrics.guardDecision,
	}
	pages := r.PathPrefix("/").Subrouter()
	pages.Use(guard.Middleware)
	a.registerPages(pages)

	return r
}

func openDB(c *cfg.Config) (DB, error) {
	switch c.DBAdapter {
	case "sqlite":
		return NewSQLiteDB(c.SQLiteFile)
	case "postgres":
		log.Println("Applying database migrations...")
		if err := dbmigrate.Apply(c.MigrationsDir, c.PostgresDSN); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		p, err := NewPostgresDB(c.PostgresDSN)
		if err != nil {
			return nil, err
		}
		log.Println("Connected to PostgreSQL database")
		return p, nil
	case "memory":
		log.Println("Using in-memory database (not recommended for production)")
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported DB_ADAPTER: %s", c.DBAdapter)
	}
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	c, err := cfg.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if c.LogLevel == "debug" {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}

	db, err := openDB(c)
	if err != nil {
		log.Fatalf("%s init: %v", c.DBAdapter, err)
	}
	if err := seedAdmin(db, c.SeedAdminEmail, c.SeedAdminPassword); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	app := &App{
		DB:             db,
		IdP:            NewHTTPIdentityProvider(c.IdentityBaseURL(), c.UpstreamTimeout),
		Tokens:         NewTokens(c.JwtSecret, c.TokenTTL),
		Metrics:        NewMetrics(),
		Pages:          NewPages(),
		Cookies:        CookiePolicy{Secure: c.Production()},
		AllowedOrigins: c.AllowedOrigins,
		ServeIdentity:  c.ServeIdentity,
		rateLimiter:    NewRateLimiter(c.LoginRatePerMinute),
	}

	srv := &http.Server{
		Handler:           app.NewRouter(),
		Addr:              ":" + c.Port,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	go func() {
		log.Println("Starting vetportal on", c.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown failed:%+v", err)
	}
	if closer, ok := app.DB.(interface{ close() error }); ok {
		_ = closer.close()
	}
	log.Println("Server exited properly")
}
