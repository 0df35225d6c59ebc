package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"minifm/config"
	"minifm/core/auth"
	"minifm/model"
	"minifm/repository"
)

func newTestAuthHandler(t *testing.T) (*AuthHandler, *repository.UserRepository, auth.TokenStore) {
	t.Helper()

	users, err := repository.NewUserRepository(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("NewUserRepository: %v", err)
	}
	t.Cleanup(func() { users.Close() })

	tokens := auth.NewMemoryTokenStore()
	cfg := &config.Config{TokenTTLDays: 7}
	return NewAuthHandler(users, tokens, cfg), users, tokens
}

func seedUser(t *testing.T, users *repository.UserRepository, id, username, password string, roles ...string) model.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := model.User{ID: id, Username: username, PasswordHash: hash, Roles: roles}
	if err := users.Save(u); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return u
}

func loginRequest(t *testing.T, username, password string) *http.Request {
	t.Helper()
	body, err := json.Marshal(LoginRequest{Username: username, Password: password})
	if err != nil {
		t.Fatalf("marshal login body: %v", err)
	}
	return httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
}

func TestLoginIssuesUsableToken(t *testing.T) {
	h, users, tokens := newTestAuthHandler(t)
	seedUser(t, users, "u1", "alice", "secret", model.RoleUser)

	rec := httptest.NewRecorder()
	h.LoginHandler(rec, loginRequest(t, "alice", "secret"))

	resp := decodeEnvelope(t, rec)
	if resp.Code != 0 {
		t.Fatalf("login code = %d, message %q", resp.Code, resp.Message)
	}
	data := resp.Data.(map[string]interface{})
	token, _ := data["token"].(string)
	if token == "" {
		t.Fatalf("no token in login response")
	}

	session, ok, err := tokens.Lookup(context.Background(), token)
	if err != nil || !ok {
		t.Fatalf("issued token not resolvable: ok=%v err=%v", ok, err)
	}
	if session.Username != "alice" || session.UserID != "u1" {
		t.Fatalf("session = %+v", session)
	}

	info := data["user_info"].(map[string]interface{})
	if info["nickname"] != "alice" {
		t.Fatalf("user_info = %v", info)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h, users, _ := newTestAuthHandler(t)
	seedUser(t, users, "u1", "alice", "secret", model.RoleUser)

	for _, tc := range []struct{ username, password string }{
		{"alice", "wrong"},
		{"nobody", "secret"},
	} {
		rec := httptest.NewRecorder()
		h.LoginHandler(rec, loginRequest(t, tc.username, tc.password))

		// Auth failures keep HTTP 200 and signal through the envelope code.
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: HTTP status = %d, want 200", tc.username, rec.Code)
		}
		if resp := decodeEnvelope(t, rec); resp.Code != 1001 {
			t.Fatalf("%s: code = %d, want 1001", tc.username, resp.Code)
		}
	}
}

func TestAuthMiddlewareAttachesSession(t *testing.T) {
	h, users, tokens := newTestAuthHandler(t)
	user := seedUser(t, users, "u1", "alice", "secret", model.RoleUser)

	token, err := tokens.Issue(context.Background(), user, h.tokenTTL())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var got auth.Session
	handler := h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		session, err := SessionFromContext(r.Context())
		if err != nil {
			t.Fatalf("SessionFromContext: %v", err)
		}
		got = session
		writeSuccess(w, nil)
	})

	req := httptest.NewRequest(http.MethodGet, "/music/list", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if resp := decodeEnvelope(t, rec); resp.Code != 0 {
		t.Fatalf("authenticated request failed: %+v", resp)
	}
	if got.Username != "alice" {
		t.Fatalf("session username = %q", got.Username)
	}
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	h, _, _ := newTestAuthHandler(t)

	handler := h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler reached without valid token")
	})

	for _, header := range []string{"", "Bearer unknown-token", "Basic abc", "bearer lowercase"} {
		req := httptest.NewRequest(http.MethodGet, "/music/list", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("header %q: HTTP status = %d, want 200", header, rec.Code)
		}
		if resp := decodeEnvelope(t, rec); resp.Code != 401 {
			t.Fatalf("header %q: code = %d, want 401", header, resp.Code)
		}
	}
}

func TestAuthMiddlewareAdminGate(t *testing.T) {
	h, users, tokens := newTestAuthHandler(t)
	regular := seedUser(t, users, "u1", "alice", "secret", model.RoleUser)
	admin := seedUser(t, users, "u2", "root", "secret", model.RoleAdmin, model.RoleUser)

	handler := h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, nil)
	})

	issue := func(u model.User) string {
		token, err := tokens.Issue(context.Background(), u, h.tokenTTL())
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		return token
	}

	req := httptest.NewRequest(http.MethodGet, "/users/list", nil)
	req.Header.Set("Authorization", "Bearer "+issue(regular))
	rec := httptest.NewRecorder()
	handler(rec, req)
	if resp := decodeEnvelope(t, rec); resp.Code != 401 {
		t.Fatalf("regular user on admin path: code = %d, want 401", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/users/list", nil)
	req.Header.Set("Authorization", "Bearer "+issue(admin))
	rec = httptest.NewRecorder()
	handler(rec, req)
	if resp := decodeEnvelope(t, rec); resp.Code != 0 {
		t.Fatalf("admin on admin path: %+v", resp)
	}

	// The gate only covers the listed paths.
	req = httptest.NewRequest(http.MethodGet, "/music/list", nil)
	req.Header.Set("Authorization", "Bearer "+issue(regular))
	rec = httptest.NewRecorder()
	handler(rec, req)
	if resp := decodeEnvelope(t, rec); resp.Code != 0 {
		t.Fatalf("regular user on open path: %+v", resp)
	}
}

func newTestUserHandler(t *testing.T) (*UserHandler, *repository.UserRepository, auth.TokenStore) {
	t.Helper()

	users, err := repository.NewUserRepository(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("NewUserRepository: %v", err)
	}
	t.Cleanup(func() { users.Close() })

	tokens := auth.NewMemoryTokenStore()
	return NewUserHandler(users, tokens, &config.Config{TokenTTLDays: 7}), users, tokens
}

func jsonRequest(t *testing.T, target string, body interface{}) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return httptest.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
}

func TestCreateUser(t *testing.T) {
	h, users, _ := newTestUserHandler(t)

	rec := httptest.NewRecorder()
	h.CreateHandler(rec, jsonRequest(t, "/users/create", CreateUserRequest{Username: "bob", Password: "pw"}))

	resp := decodeEnvelope(t, rec)
	if resp.Code != 0 {
		t.Fatalf("create failed: %+v", resp)
	}
	data := resp.Data.(map[string]interface{})
	if hash, ok := data["passwordHash"]; ok && hash != "" {
		t.Fatalf("password hash leaked in response")
	}

	u, found := users.FindByUsername("bob")
	if !found {
		t.Fatalf("user not persisted")
	}
	if !auth.CheckPasswordHash("pw", u.PasswordHash) {
		t.Fatalf("stored hash does not match password")
	}
	if len(u.Roles) != 1 || u.Roles[0] != model.RoleUser {
		t.Fatalf("roles = %v, want only ROLE_USER", u.Roles)
	}

	// Duplicate username is refused.
	rec = httptest.NewRecorder()
	h.CreateHandler(rec, jsonRequest(t, "/users/create", CreateUserRequest{Username: "bob", Password: "other"}))
	if resp := decodeEnvelope(t, rec); resp.Code != 1001 {
		t.Fatalf("duplicate create: code = %d, want 1001", resp.Code)
	}
}

func TestDeleteUserRevokesSession(t *testing.T) {
	h, users, tokens := newTestUserHandler(t)
	u := seedUser(t, users, "u1", "bob", "pw", model.RoleUser)

	token, err := tokens.Issue(context.Background(), u, 24*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec := httptest.NewRecorder()
	h.DeleteHandler(rec, jsonRequest(t, "/users/delete", userIDRequest{ID: "u1"}))
	if resp := decodeEnvelope(t, rec); resp.Code != 0 {
		t.Fatalf("delete failed: %+v", resp)
	}

	if _, found := users.FindByID("u1"); found {
		t.Fatalf("user still present after delete")
	}
	if _, ok, _ := tokens.Lookup(context.Background(), token); ok {
		t.Fatalf("token still valid after user deletion")
	}

	rec = httptest.NewRecorder()
	h.DeleteHandler(rec, jsonRequest(t, "/users/delete", userIDRequest{ID: "u1"}))
	if resp := decodeEnvelope(t, rec); resp.Code != 1001 {
		t.Fatalf("delete of missing user: code = %d, want 1001", resp.Code)
	}
}

func TestKickUserKeepsAccount(t *testing.T) {
	h, users, tokens := newTestUserHandler(t)
	u := seedUser(t, users, "u1", "bob", "pw", model.RoleUser)

	token, err := tokens.Issue(context.Background(), u, 24*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec := httptest.NewRecorder()
	h.KickHandler(rec, jsonRequest(t, "/users/kick", userIDRequest{ID: "u1"}))
	if resp := decodeEnvelope(t, rec); resp.Code != 0 {
		t.Fatalf("kick failed: %+v", resp)
	}

	if _, ok, _ := tokens.Lookup(context.Background(), token); ok {
		t.Fatalf("token still valid after kick")
	}
	if _, found := users.FindByID("u1"); !found {
		t.Fatalf("kick must not delete the account")
	}
}

func TestListUsersOmitsHashes(t *testing.T) {
	h, users, _ := newTestUserHandler(t)
	seedUser(t, users, "u1", "alice", "pw", model.RoleUser)
	seedUser(t, users, "u2", "bob", "pw", model.RoleUser)

	rec := httptest.NewRecorder()
	h.ListHandler(rec, httptest.NewRequest(http.MethodGet, "/users/list", nil))

	resp := decodeEnvelope(t, rec)
	if resp.Code != 0 {
		t.Fatalf("list failed: %+v", resp)
	}
	list := resp.Data.([]interface{})
	if len(list) != 2 {
		t.Fatalf("list length = %d, want 2", len(list))
	}
	for _, raw := range list {
		item := raw.(map[string]interface{})
		if hash, ok := item["passwordHash"]; ok && hash != "" {
			t.Fatalf("password hash leaked: %v", item)
		}
	}
}
