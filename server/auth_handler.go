package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"minifm/config"
	"minifm/core/auth"
	"minifm/logger"
	"minifm/model"
	"minifm/repository"
)

// onlyAdminURIs lists the request paths restricted to ROLE_ADMIN.
var onlyAdminURIs = []string{"/users/list"}

const sessionContextKey = "session"

// AuthHandler handles login and request authentication.
type AuthHandler struct {
	users  *repository.UserRepository
	tokens auth.TokenStore
	cfg    *config.Config
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(users *repository.UserRepository, tokens auth.TokenStore, cfg *config.Config) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, cfg: cfg}
}

func (h *AuthHandler) tokenTTL() time.Duration {
	return time.Duration(h.cfg.TokenTTLDays) * 24 * time.Hour
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginHandler verifies credentials and issues an opaque bearer token with
// sliding expiration.
func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("[Login] 解析请求体失败", logger.ErrorField(err))
		writeError(w, 400, "Invalid request body")
		return
	}

	user, found := h.users.FindByUsername(req.Username)
	if !found || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		logger.Warn("[Login] 用户名或密码错误", logger.String("username", req.Username))
		writeError(w, 1001, "Invalid username or password")
		return
	}

	token, err := h.tokens.Issue(r.Context(), user, h.tokenTTL())
	if err != nil {
		logger.Error("[Login] 生成Token失败", logger.ErrorField(err))
		writeError(w, 500, "Failed to issue token")
		return
	}

	logger.Info("[Login] 登录成功", logger.String("username", user.Username))
	writeSuccess(w, map[string]interface{}{
		"token":      token,
		"expires_in": int64(h.tokenTTL().Seconds()),
		"user_info": map[string]interface{}{
			"id":       user.ID,
			"nickname": user.Username,
			"avatar":   "https://api.dicebear.com/7.x/avataaars/svg?seed=" + user.Username,
		},
	})
}

// AuthMiddleware checks the Bearer token against the token store, slides its
// expiration, gates admin-only paths and attaches the session to the request
// context. Failures answer with the JSON envelope (code 401), not an HTTP
// error status.
func (h *AuthHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, 401, "Unauthorized")
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		session, ok, err := h.tokens.Lookup(r.Context(), token)
		if err != nil {
			logger.Error("[Auth] 查询Token失败", logger.ErrorField(err))
			writeError(w, 401, "Unauthorized")
			return
		}
		if !ok {
			writeError(w, 401, "Unauthorized")
			return
		}

		// 滑动续期
		if err := h.tokens.Refresh(r.Context(), token, session.Username, h.tokenTTL()); err != nil {
			logger.Warn("[Auth] 刷新Token过期时间失败", logger.ErrorField(err))
		}

		for _, uri := range onlyAdminURIs {
			if r.URL.Path == uri && !session.HasRole(model.RoleAdmin) {
				logger.Warn("[Auth] 非管理员访问管理接口",
					logger.String("username", session.Username),
					logger.String("path", r.URL.Path))
				writeError(w, 401, "Unauthorized")
				return
			}
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// SessionFromContext extracts the authenticated session from the request
// context.
func SessionFromContext(ctx context.Context) (auth.Session, error) {
	session, ok := ctx.Value(sessionContextKey).(auth.Session)
	if !ok {
		return auth.Session{}, fmt.Errorf("session not found in context")
	}
	return session, nil
}
