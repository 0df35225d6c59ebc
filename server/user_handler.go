package server

import (
	"encoding/json"
	"net/http"

	"minifm/config"
	"minifm/core/auth"
	"minifm/logger"
	"minifm/model"
	"minifm/repository"

	"github.com/google/uuid"
)

// UserHandler handles administrative user management.
type UserHandler struct {
	users  *repository.UserRepository
	tokens auth.TokenStore
	cfg    *config.Config
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users *repository.UserRepository, tokens auth.TokenStore, cfg *config.Config) *UserHandler {
	return &UserHandler{users: users, tokens: tokens, cfg: cfg}
}

// sanitize strips the password hash before a user leaves the API.
func sanitize(u model.User) model.User {
	u.PasswordHash = ""
	return u
}

// CreateUserRequest represents the user creation request body.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// userIDRequest covers the delete and kick bodies, which only carry an id.
type userIDRequest struct {
	ID string `json:"id"`
}

// CreateHandler creates a regular user with a bcrypt-hashed password.
func (h *UserHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, 1001, "Invalid username or password")
		return
	}
	if _, exists := h.users.FindByUsername(req.Username); exists {
		writeError(w, 1001, "User already exists")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("[Users] 密码加密失败", logger.ErrorField(err))
		writeError(w, 500, "Failed to create user")
		return
	}

	user := model.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Roles:        []string{model.RoleUser},
	}
	if err := h.users.Save(user); err != nil {
		logger.Error("[Users] 持久化用户失败", logger.ErrorField(err))
		writeError(w, 500, "Failed to create user")
		return
	}

	logger.Info("[Users] 创建用户成功", logger.String("username", user.Username))
	writeSuccess(w, sanitize(user))
}

// DeleteHandler removes a user and forces them offline.
func (h *UserHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	var req userIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, 1001, "Invalid request")
		return
	}

	user, found := h.users.FindByID(req.ID)
	if !found {
		writeError(w, 1001, "User does not exist")
		return
	}

	if err := h.users.DeleteByID(req.ID); err != nil {
		logger.Error("[Users] 删除用户失败", logger.ErrorField(err))
		writeError(w, 500, "Failed to delete user")
		return
	}
	// 强制下线
	if err := h.tokens.RevokeUser(r.Context(), user.Username); err != nil {
		logger.Warn("[Users] 注销用户会话失败", logger.ErrorField(err))
	}

	logger.Info("[Users] 删除用户成功", logger.String("username", user.Username))
	writeSuccess(w, nil)
}

// KickHandler forces a user offline without deleting the account.
func (h *UserHandler) KickHandler(w http.ResponseWriter, r *http.Request) {
	var req userIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, 1001, "Invalid request")
		return
	}

	user, found := h.users.FindByID(req.ID)
	if !found {
		writeError(w, 1001, "User does not exist")
		return
	}

	if err := h.tokens.RevokeUser(r.Context(), user.Username); err != nil {
		logger.Error("[Users] 注销用户会话失败", logger.ErrorField(err))
		writeError(w, 500, "Failed to kick user")
		return
	}

	logger.Info("[Users] 强制下线成功", logger.String("username", user.Username))
	writeSuccess(w, nil)
}

// ListHandler returns all users. The route is admin-gated by the auth
// middleware.
func (h *UserHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	all := h.users.FindAll()
	list := make([]model.User, 0, len(all))
	for _, u := range all {
		list = append(list, sanitize(u))
	}
	writeSuccess(w, list)
}
