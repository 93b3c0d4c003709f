package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newCrudApp(t *testing.T) (*App, http.Handler, *http.Cookie) {
	t.Helper()
	idp := newFakeIdP()
	idp.users["good"] = []byte(`{"id":1,"email":"admin@vet.test","role":"admin"}`)
	app := newTestApp(t, idp)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	app.now = func() time.Time { return fixed }
	return app, app.NewRouter(), &http.Cookie{Name: sessionCookieName, Value: "good"}
}

func TestCollections_RequireSession(t *testing.T) {
	_, h, _ := newCrudApp(t)

	rr := doRequest(h, http.MethodGet, "/api/organizations", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doRequest(h, http.MethodGet, "/api/organizations", "", &http.Cookie{Name: sessionCookieName, Value: "stale"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCollections_BearerFallback(t *testing.T) {
	_, h, _ := newCrudApp(t)

	rr := doRequestWithHeader(h, http.MethodGet, "/api/users", "Authorization", "Bearer good")

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestCollections_UpstreamFailure(t *testing.T) {
	app, h, session := newCrudApp(t)
	app.IdP.(*fakeIdP).meErr = fmt.Errorf("%w: down", ErrUpstream)

	rr := doRequest(h, http.MethodGet, "/api/users", "", session)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestOrganizations_Lifecycle(t *testing.T) {
	_, h, session := newCrudApp(t)

	rr := doRequest(h, http.MethodPost, "/api/organizations", `{"name":"  Happy Paws Clinic "}`, session)
	require.Equal(t, http.StatusCreated, rr.Code)
	var org Organization
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &org))
	require.NotEmpty(t, org.ID)
	require.Equal(t, "Happy Paws Clinic", org.Name)
	require.Equal(t, "happy-paws-clinic", org.Slug)
	require.Equal(t, "free", org.Plan)
	require.Equal(t, 2026, org.CreatedAt.Year())

	doRequest(h, http.MethodPost, "/api/organizations", `{"name":"Riverside Vets","plan":"pro"}`, session)

	rr = doRequest(h, http.MethodGet, "/api/organizations?q=paws", "", session)
	require.Equal(t, http.StatusOK, rr.Code)
	var page struct {
		Data  []Organization `json:"data"`
		Total int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Equal(t, 1, page.Total)
	require.Equal(t, org.ID, page.Data[0].ID)

	rr = doRequest(h, http.MethodPut, "/api/organizations/"+org.ID, `{"name":"Happy Paws","slug":"hp","plan":"pro"}`, session)
	require.Equal(t, http.StatusOK, rr.Code)
	var updated Organization
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	require.Equal(t, "hp", updated.Slug)
	require.Equal(t, org.CreatedAt, updated.CreatedAt)

	rr = doRequest(h, http.MethodGet, "/api/organizations/"+org.ID, "", session)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(h, http.MethodDelete, "/api/organizations/"+org.ID, "", session)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(h, http.MethodGet, "/api/organizations/"+org.ID, "", session)
	require.Equal(t, http.StatusNotFound, rr.Code)
	rr = doRequest(h, http.MethodPut, "/api/organizations/"+org.ID, `{"name":"x"}`, session)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCollections_Validation(t *testing.T) {
	_, h, session := newCrudApp(t)

	cases := []struct{ path, body string }{
		{"/api/organizations", `{"name":"   "}`},
		{"/api/users", `{"name":"No Email"}`},
		{"/api/users", `{"email":"a@b.c","role":"owner"}`},
		{"/api/subscriptions", `{"plan":"pro"}`},
		{"/api/subscriptions", `{"organization_id":"o1","plan":"pro","seats":-2}`},
		{"/api/api-keys", `{}`},
		{"/api/organizations", `{bad json`},
	}
	for _, tc := range cases {
		rr := doRequest(h, http.MethodPost, tc.path, tc.body, session)
		require.Equal(t, http.StatusBadRequest, rr.Code, "%s %s", tc.path, tc.body)
	}
}

func TestUsersAndSubscriptions_Defaults(t *testing.T) {
	_, h, session := newCrudApp(t)

	rr := doRequest(h, http.MethodPost, "/api/users", `{"name":"Dr. Vet","email":"Vet@Clinic.Test"}`, session)
	require.Equal(t, http.StatusCreated, rr.Code)
	var m Member
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
	require.Equal(t, "vet@clinic.test", m.Email)
	require.Equal(t, RoleUser, m.Role)
	require.Equal(t, "active", m.Status)

	rr = doRequest(h, http.MethodPost, "/api/subscriptions", `{"organization_id":"o1","plan":"pro"}`, session)
	require.Equal(t, http.StatusCreated, rr.Code)
	var s Subscription
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	require.Equal(t, 1, s.Seats)
	require.Equal(t, "active", s.Status)
}

func TestAPIKeys_PlaintextOnlyOnCreate(t *testing.T) {
	app, h, session := newCrudApp(t)

	rr := doRequest(h, http.MethodPost, "/api/api-keys", `{"name":"ci pipeline"}`, session)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created struct {
		APIKey map[string]any `json:"api_key"`
		Key    string         `json:"key"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Len(t, created.Key, 64)
	require.Equal(t, created.Key[:8], created.APIKey["key_prefix"])
	require.NotContains(t, created.APIKey, "key_hash")
	id := created.APIKey["id"].(string)

	stored, err := app.DB.Repos().APIKeys.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, comparePassword(stored.KeyHash, created.Key))

	for _, path := range []string{"/api/api-keys", "/api/api-keys/" + id} {
		rr = doRequest(h, http.MethodGet, path, "", session)
		require.Equal(t, http.StatusOK, rr.Code)
		require.NotContains(t, rr.Body.String(), "key_hash")
		require.NotContains(t, rr.Body.String(), created.Key)
	}

	rr = doRequest(h, http.MethodPut, "/api/api-keys/"+id, `{"name":"renamed","revoked":true,"key_hash":"forged","key_prefix":"zzzz"}`, session)
	require.Equal(t, http.StatusOK, rr.Code)
	stored, err = app.DB.Repos().APIKeys.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "renamed", stored.Name)
	require.True(t, stored.Revoked)
	require.Equal(t, created.Key[:8], stored.KeyPrefix)
	require.True(t, comparePassword(stored.KeyHash, created.Key))
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Happy Paws Clinic":  "happy-paws-clinic",
		"  Paws & Claws!! ": "paws-claws",
		"ÄÖ Vet 24/7":        "vet-24-7",
		"":                   "",
	}
	for in, want := range cases {
		require.Equal(t, want, slugify(in), in)
	}
}
