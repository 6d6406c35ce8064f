// Package testusers provides the in-process fixture account repository used
// for development and testing sign-in. Records live for the lifetime of the
// process and are never persisted.
package testusers

import (
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var ErrUserNotFound = errors.New("test user not found")

// bcrypt hash of "password123", shared by the seeded fixture accounts.
const seedPasswordHash = "$2b$10$Om2Vgp3x0FBZplSW.wHeGuvVP7F6lnf3PWdiSn3KwGrY2AQaorlKq"

// User is a fixture account.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	Active       bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Store is an injected in-memory fixture repository. Construct one per
// process (or per test) instead of sharing a package-level singleton.
type Store struct {
	mu    sync.RWMutex
	users []*User
}

// NewStore creates a fixture store seeded with the default console accounts.
func NewStore() *Store {
	created := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	return NewStoreWithUsers([]User{
		{
			ID:           "test-admin-001",
			Username:     "testadmin",
			Email:        "test@admin.com",
			PasswordHash: seedPasswordHash,
			Role:         "admin",
			Active:       true,
			CreatedAt:    created,
		},
		{
			ID:           "test-super-admin-001",
			Username:     "superadmin",
			Email:        "super@admin.com",
			PasswordHash: seedPasswordHash,
			Role:         "super_admin",
			Active:       true,
			CreatedAt:    created,
		},
	})
}

// NewStoreWithUsers creates a fixture store with explicit records.
func NewStoreWithUsers(users []User) *Store {
	s := &Store{users: make([]*User, 0, len(users))}
	for i := range users {
		u := users[i]
		s.users = append(s.users, &u)
	}
	return s
}

// FindByUsername fetches a fixture user by username.
func (s *Store) FindByUsername(username string) (*User, error) {
	return s.find(func(u *User) bool { return u.Username == username })
}

// FindByEmail fetches a fixture user by email.
func (s *Store) FindByEmail(email string) (*User, error) {
	return s.find(func(u *User) bool { return strings.EqualFold(u.Email, email) })
}

// FindByIdentifier fetches a fixture user by username or email.
func (s *Store) FindByIdentifier(identifier string) (*User, error) {
	return s.find(func(u *User) bool {
		return u.Username == identifier || strings.EqualFold(u.Email, identifier)
	})
}

// FindByID fetches a fixture user by ID.
func (s *Store) FindByID(id string) (*User, error) {
	return s.find(func(u *User) bool { return u.ID == id })
}

// Exists reports whether any fixture record matches the username or email.
// Used by seeding and dev tooling only.
func (s *Store) Exists(username, email string) bool {
	_, err := s.find(func(u *User) bool {
		return u.Username == username || strings.EqualFold(u.Email, email)
	})
	return err == nil
}

// MarkLogin updates the record's last-login timestamp in place and returns
// the new value. Concurrent sign-ins race last-write-wins, which is fine for
// non-critical metadata.
func (s *Store) MarkLogin(id string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.ID == id {
			now := time.Now().UTC()
			u.LastLogin = &now
			return now, nil
		}
	}
	return time.Time{}, ErrUserNotFound
}

// SetActive flips the account's active flag. Deactivation takes effect on the
// very next gated request, regardless of outstanding tokens.
func (s *Store) SetActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.ID == id {
			u.Active = active
			return nil
		}
	}
	return ErrUserNotFound
}

// List returns copies of all fixture records.
func (s *Store) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out
}

// Count returns the number of fixture records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *Store) find(match func(*User) bool) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			found := *u
			return &found, nil
		}
	}
	return nil, ErrUserNotFound
}

// VerifyPassword compares a plaintext password against a stored bcrypt hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashPassword produces a bcrypt hash for fixture seeding helpers.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
