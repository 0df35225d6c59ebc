package repository

import (
	"minifm/model"
)

// UserRepository is the identity store: a JSON-snapshot store plus the
// username lookup used by login.
type UserRepository struct {
	*JSONStore[model.User]
}

// NewUserRepository opens the user store backed by the given snapshot file.
func NewUserRepository(path string) (*UserRepository, error) {
	store, err := NewJSONStore[model.User](path)
	if err != nil {
		return nil, err
	}
	return &UserRepository{JSONStore: store}, nil
}

// FindByUsername returns the user with the given username, if present.
func (r *UserRepository) FindByUsername(username string) (model.User, bool) {
	for _, u := range r.FindAll() {
		if u.Username == username {
			return u, true
		}
	}
	return model.User{}, false
}
