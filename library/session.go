package library

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"library-catalog/storage"
)

// SessionStore tracks the signed-in user. Accounts live in the durable
// store; the current user lives in a per-process scope that dies with it.
type SessionStore struct {
	*env
	scope *storage.Store
	cost  int
}

// Current returns the signed-in user, or nil.
func (s *SessionStore) Current() *User {
	var u User
	if !s.scope.Load(KeySession, &u) {
		return nil
	}
	return &u
}

// Login checks the credentials and makes the matching account current.
// The session copy carries no password hash.
func (s *SessionStore) Login(email, password string) (User, error) {
	email = strings.TrimSpace(email)
	users := storage.Get(s.store, KeyUsers, userList{})
	for _, u := range users {
		if u.Email != email {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			break
		}
		u.PasswordHash = ""
		if err := s.scope.Set(KeySession, u); err != nil {
			return User{}, err
		}
		s.log.Info().Int64("user", u.ID).Msg("signed in")
		return u, nil
	}
	return User{}, ErrInvalidCredentials
}

// Register creates a USER account. It does not sign the new user in.
func (s *SessionStore) Register(email, password string) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return User{}, fmt.Errorf("%w: email is required", ErrAuth)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	var user User
	err = s.store.Update(func(tx *storage.Tx) error {
		users := storage.Get(tx, KeyUsers, userList{})
		for _, u := range users {
			if u.Email == email {
				return ErrEmailInUse
			}
		}
		user = User{ID: s.ids.next(), Email: email, PasswordHash: string(hash), Role: RoleUser}
		return tx.Set(KeyUsers, append(users, user))
	})
	if err != nil {
		return User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

// Logout forgets the current user.
func (s *SessionStore) Logout() error {
	return s.scope.Remove(KeySession)
}
