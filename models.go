package main

import (
	"strings"
	"time"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

func validRole(r string) bool { return r == RoleAdmin || r == RoleUser }

// User is an identity record owned by the identity provider.
type User struct {
	ID            int64
	Email         string
	Password      string
	FullName      string
	Image         string
	Role          string
	EmailVerified bool
	CreatedAt     time.Time
}

// UserView is the claims view of a user exchanged over the wire.
type UserView struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	Image         string `json:"image,omitempty"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
}

func (u *User) View() UserView {
	return UserView{
		ID:            u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		Image:         u.Image,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
	}
}

// Credentials are transient and never stored or logged.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is a sign-up request forwarded to the identity provider.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// LoginResult is the provider's answer to a successful credential exchange.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	User        *UserView `json:"user,omitempty"`
}

// Record is implemented by every dashboard collection entry.
type Record interface {
	RecordID() string
	SetRecordID(id string)
	Matches(q string) bool
}

func containsFold(q string, fields ...string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// Member is a user entry as listed on the dashboard.
type Member struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	Status         string    `json:"status"`
	OrganizationID string    `json:"organization_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (m *Member) RecordID() string      { return m.ID }
func (m *Member) SetRecordID(id string) { m.ID = id }
func (m *Member) Matches(q string) bool { return containsFold(q, m.Name, m.Email, m.Role, m.Status) }

// Organization is a veterinary practice or clinic group.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}

func (o *Organization) RecordID() string      { return o.ID }
func (o *Organization) SetRecordID(id string) { o.ID = id }
func (o *Organization) Matches(q string) bool { return containsFold(q, o.Name, o.Slug, o.Plan) }

type Subscription struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Plan           string     `json:"plan"`
	Status         string     `json:"status"`
	Seats          int        `json:"seats"`
	RenewsAt       *time.Time `json:"renews_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (s *Subscription) RecordID() string      { return s.ID }
func (s *Subscription) SetRecordID(id string) { s.ID = id }
func (s *Subscription) Matches(q string) bool {
	return containsFold(q, s.Plan, s.Status, s.OrganizationID)
}

// APIKey never carries the plaintext key once stored. KeyHash is persisted
// but stripped by Redacted before it leaves the process.
type APIKey struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	OrganizationID string     `json:"organization_id,omitempty"`
	KeyPrefix      string     `json:"key_prefix"`
	KeyHash        string     `json:"key_hash,omitempty"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	Revoked        bool       `json:"revoked"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (k *APIKey) RecordID() string      { return k.ID }
func (k *APIKey) SetRecordID(id string) { k.ID = id }
func (k *APIKey) Matches(q string) bool { return containsFold(q, k.Name, k.KeyPrefix, k.OrganizationID) }

func (k *APIKey) Redacted() any {
	c := *k
	c.KeyHash = ""
	return &c
}
