package main

import (
	"errors"
	"log"
	"net/http"
	"strings"
)

// Identity provider endpoints. They implement the upstream contract the
// relay consumes, so the portal can run without an external provider.

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in Registration
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	in.Email = normalizeEmail(in.Email)
	if in.Email == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email and password are required")
		return
	}

	hashed, err := hashPassword(in.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process password")
		return
	}
	user, err := a.DB.CreateUser(in.Email, hashed, in.FullName, RoleUser)
	if err != nil {
		if errors.Is(err, errUserExists) {
			writeError(w, http.StatusConflict, "USER_EXISTS", "User with this email already exists")
			return
		}
		log.Printf("create user: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create user")
		return
	}
	a.writeLoginResult(w, http.StatusCreated, user)
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c Credentials
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	user, err := a.DB.GetUserByEmail(normalizeEmail(c.Email))
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
		return
	}
	if !comparePassword(user.Password, c.Password) {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
		return
	}
	a.writeLoginResult(w, http.StatusOK, user)
}

func (a *App) writeLoginResult(w http.ResponseWriter, status int, user *User) {
	access, err := a.Tokens.Issue(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token")
		return
	}
	view := user.View()
	writeJSON(w, status, LoginResult{AccessToken: access, User: &view})
}

// HandleMe returns the user behind a Bearer token.
// GET /auth/me
func (a *App) HandleMe(w http.ResponseWriter, r *http.Request) {
	tokenStr := bearerToken(r)
	if tokenStr == "" {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Token is required")
		return
	}
	claims, err := a.Tokens.Verify(tokenStr)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired")
		return
	}
	id, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token claims")
		return
	}
	user, err := a.DB.GetUserByID(id)
	if err != nil {
		log.Printf("get user: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load user")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Unknown user")
		return
	}
	writeJSON(w, http.StatusOK, user.View())
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// seedAdmin creates the bootstrap administrator if it does not exist yet.
func seedAdmin(db DB, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	existing, err := db.GetUserByEmail(email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return err
	}
	_, err = db.CreateUser(email, hashed, "Administrator", RoleAdmin)
	return err
}
