package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"minifm/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Redis键前缀，与会话相关的两个方向的映射：
//   auth:token:<token>            -> 用户JSON
//   user_key:user_name:<username> -> token
const (
	tokenKeyPrefix = "auth:token:"
	userKeyPrefix  = "user_key:user_name:"
)

// Session is the authenticated caller attached to a request.
type Session struct {
	UserID   string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the session carries the given role.
func (s Session) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// TokenStore issues and validates opaque bearer tokens with sliding
// expiration. Tokens are revocable, which is why they live in a key-value
// store rather than being self-contained.
type TokenStore interface {
	// Issue creates a fresh token for the user with the given TTL.
	Issue(ctx context.Context, user model.User, ttl time.Duration) (string, error)
	// Lookup resolves a token to its session; ok is false for unknown or
	// expired tokens.
	Lookup(ctx context.Context, token string) (Session, bool, error)
	// Refresh slides the expiration of the token and its user mapping.
	Refresh(ctx context.Context, token, username string, ttl time.Duration) error
	// RevokeUser forcibly logs out the named user.
	RevokeUser(ctx context.Context, username string) error
}

func tokenKey(token string) string {
	return tokenKeyPrefix + token
}

func userKey(username string) string {
	return userKeyPrefix + username
}

// redisTokenStore keeps sessions in Redis.
type redisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore creates a TokenStore backed by the given Redis client.
func NewRedisTokenStore(client *redis.Client) TokenStore {
	return &redisTokenStore{client: client}
}

func (s *redisTokenStore) Issue(ctx context.Context, user model.User, ttl time.Duration) (string, error) {
	token := uuid.NewString()

	session := Session{UserID: user.ID, Username: user.Username, Roles: user.Roles}
	payload, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, tokenKey(token), payload, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	if err := s.client.Set(ctx, userKey(user.Username), token, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store user token mapping: %w", err)
	}
	return token, nil
}

func (s *redisTokenStore) Lookup(ctx context.Context, token string) (Session, bool, error) {
	payload, err := s.client.Get(ctx, tokenKey(token)).Result()
	if err == redis.Nil {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("failed to look up token: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return Session{}, false, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.UserID == "" || session.Username == "" || len(session.Roles) == 0 {
		return Session{}, false, nil
	}
	return session, true, nil
}

func (s *redisTokenStore) Refresh(ctx context.Context, token, username string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, tokenKey(token), ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh token expiry: %w", err)
	}
	if err := s.client.Expire(ctx, userKey(username), ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh user key expiry: %w", err)
	}
	return nil
}

func (s *redisTokenStore) RevokeUser(ctx context.Context, username string) error {
	token, err := s.client.Get(ctx, userKey(username)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to look up user token: %w", err)
	}
	if err := s.client.Del(ctx, userKey(username)).Err(); err != nil {
		return fmt.Errorf("failed to delete user key: %w", err)
	}
	if token != "" {
		if err := s.client.Del(ctx, tokenKey(token)).Err(); err != nil {
			return fmt.Errorf("failed to delete token key: %w", err)
		}
	}
	return nil
}

// memoryTokenStore is an in-process TokenStore used when Redis is not
// configured, and by tests. Expiry is checked lazily on access.
type memoryTokenStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry // token -> session
	byUser   map[string]string      // username -> token
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// NewMemoryTokenStore creates an in-process TokenStore.
func NewMemoryTokenStore() TokenStore {
	return &memoryTokenStore{
		sessions: make(map[string]memoryEntry),
		byUser:   make(map[string]string),
	}
}

func (s *memoryTokenStore) Issue(ctx context.Context, user model.User, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	s.sessions[token] = memoryEntry{
		session:   Session{UserID: user.ID, Username: user.Username, Roles: user.Roles},
		expiresAt: time.Now().Add(ttl),
	}
	s.byUser[user.Username] = token
	return token, nil
}

func (s *memoryTokenStore) Lookup(ctx context.Context, token string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[token]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(s.sessions, token)
		return Session{}, false, nil
	}
	return entry.session, true, nil
}

func (s *memoryTokenStore) Refresh(ctx context.Context, token, username string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.sessions[token]; ok {
		entry.expiresAt = time.Now().Add(ttl)
		s.sessions[token] = entry
	}
	return nil
}

func (s *memoryTokenStore) RevokeUser(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok := s.byUser[username]; ok {
		delete(s.sessions, token)
		delete(s.byUser, username)
	}
	return nil
}
