package main

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// collection serves list/create/get/update/delete for one dashboard resource.
type collection[T Record] struct {
	name string
	repo Repository[T]
	newT func() T
	// prepare validates and fills server-owned fields. existing is nil on
	// create. The returned value, if non-nil, is the create response body.
	prepare func(rec, existing T, create bool) (any, error)
}

type validationError struct{ msg string }

func (e validationError) Error() string { return e.msg }

func invalid(msg string) error { return validationError{msg: msg} }

func (c *collection[T]) register(r *mux.Router) {
	base := "/" + c.name
	r.HandleFunc(base, c.list).Methods(http.MethodGet)
	r.HandleFunc(base, c.create).Methods(http.MethodPost)
	r.HandleFunc(base+"/{id}", c.get).Methods(http.MethodGet)
	r.HandleFunc(base+"/{id}", c.update).Methods(http.MethodPut)
	r.HandleFunc(base+"/{id}", c.remove).Methods(http.MethodDelete)
}

func (c *collection[T]) list(w http.ResponseWriter, r *http.Request) {
	items, err := c.repo.Find(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		c.fail(w, err)
		return
	}
	out := make([]any, 0, len(items))
	for _, it := range items {
		out = append(out, present(it))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out, "total": len(out)})
}

func (c *collection[T]) create(w http.ResponseWriter, r *http.Request) {
	rec := c.newT()
	if err := decodeJSON(w, r, rec); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	rec.SetRecordID(uuid.NewString())
	var none T
	resp, err := c.prepare(rec, none, true)
	if err != nil {
		c.fail(w, err)
		return
	}
	if err := c.repo.Insert(r.Context(), rec); err != nil {
		c.fail(w, err)
		return
	}
	if resp == nil {
		resp = present(rec)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (c *collection[T]) get(w http.ResponseWriter, r *http.Request) {
	rec, err := c.repo.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, present(rec))
}

func (c *collection[T]) update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := c.repo.Get(r.Context(), id)
	if err != nil {
		c.fail(w, err)
		return
	}
	rec := c.newT()
	if err := decodeJSON(w, r, rec); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	rec.SetRecordID(id)
	if _, err := c.prepare(rec, existing, false); err != nil {
		c.fail(w, err)
		return
	}
	if err := c.repo.Update(r.Context(), rec); err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, present(rec))
}

func (c *collection[T]) remove(w http.ResponseWriter, r *http.Request) {
	if err := c.repo.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		c.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *collection[T]) fail(w http.ResponseWriter, err error) {
	var ve validationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", ve.msg)
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	case errors.Is(err, ErrDuplicate):
		writeError(w, http.StatusConflict, "DUPLICATE", "Already exists")
	default:
		log.Printf("%s: %v", c.name, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// present strips fields that must not leave the process.
func present(v any) any {
	if r, ok := v.(interface{ Redacted() any }); ok {
		return r.Redacted()
	}
	return v
}

func registerCollections(r *mux.Router, repos Repos, now func() time.Time) {
	members := &collection[*Member]{
		name: "users",
		repo: repos.Members,
		newT: func() *Member { return new(Member) },
		prepare: func(m, existing *Member, create bool) (any, error) {
			m.Email = normalizeEmail(m.Email)
			if m.Email == "" {
				return nil, invalid("email is required")
			}
			if m.Role == "" {
				m.Role = RoleUser
			}
			if !validRole(m.Role) {
				return nil, invalid("role must be admin or user")
			}
			if m.Status == "" {
				m.Status = "active"
			}
			if create {
				m.CreatedAt = now()
			} else {
				m.CreatedAt = existing.CreatedAt
			}
			return nil, nil
		},
	}
	orgs := &collection[*Organization]{
		name: "organizations",
		repo: repos.Organizations,
		newT: func() *Organization { return new(Organization) },
		prepare: func(o, existing *Organization, create bool) (any, error) {
			o.Name = strings.TrimSpace(o.Name)
			if o.Name == "" {
				return nil, invalid("name is required")
			}
			if o.Slug == "" {
				o.Slug = slugify(o.Name)
			}
			if o.Plan == "" {
				o.Plan = "free"
			}
			if create {
				o.CreatedAt = now()
			} else {
				o.CreatedAt = existing.CreatedAt
			}
			return nil, nil
		},
	}
	subs := &collection[*Subscription]{
		name: "subscriptions",
		repo: repos.Subscriptions,
		newT: func() *Subscription { return new(Subscription) },
		prepare: func(s, existing *Subscription, create bool) (any, error) {
			if s.OrganizationID == "" || s.Plan == "" {
				return nil, invalid("organization_id and plan are required")
			}
			if s.Seats < 0 {
				return nil, invalid("seats must not be negative")
			}
			if s.Seats == 0 {
				s.Seats = 1
			}
			if s.Status == "" {
				s.Status = "active"
			}
			if create {
				s.CreatedAt = now()
			} else {
				s.CreatedAt = existing.CreatedAt
			}
			return nil, nil
		},
	}
	keys := &collection[*APIKey]{
		name: "api-keys",
		repo: repos.APIKeys,
		newT: func() *APIKey { return new(APIKey) },
		prepare: func(k, existing *APIKey, create bool) (any, error) {
			k.Name = strings.TrimSpace(k.Name)
			if k.Name == "" {
				return nil, invalid("name is required")
			}
			if !create {
				k.KeyHash, k.KeyPrefix, k.CreatedAt = existing.KeyHash, existing.KeyPrefix, existing.CreatedAt
				k.LastUsedAt = existing.LastUsedAt
				return nil, nil
			}
			plain, err := generateAPIKey()
			if err != nil {
				return nil, err
			}
			hash, err := hashAPIKey(plain)
			if err != nil {
				return nil, err
			}
			k.KeyHash, k.KeyPrefix, k.CreatedAt, k.Revoked = hash, getAPIKeyPrefix(plain), now(), false
			// The plaintext key is only ever returned here.
			return map[string]any{"api_key": k.Redacted(), "key": plain}, nil
		},
	}

	members.register(r)
	orgs.register(r)
	subs.register(r)
	keys.register(r)
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Helper functions for API key management
func generateAPIKey() (string, error) {
	return genToken(32)
}

func hashAPIKey(apiKey string) (string, error) {
	return hashPassword(apiKey)
}

func getAPIKeyPrefix(apiKey string) string {
	if len(apiKey) >= 8 {
		return apiKey[:8]
	}
	return apiKey
}
