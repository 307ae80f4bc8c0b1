// Package users keeps the registry of known clients in a JSON file and
// exposes it to the model as tools.
package users

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// User is a registered client
type User struct {
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	TelegramID string `json:"telegram_id"`
	Name       string `json:"name"`
}

// CheckResult tells how a phone/email lookup matched
type CheckResult int

const (
	NotRegistered CheckResult = iota
	// PhoneRegistered means a user already has the phone
	PhoneRegistered
	// EmailLinked means the email matched and the phone was assigned to it
	EmailLinked
)

// Store is a JSON file backed user registry. The file is re-read when it
// changes on disk while a watcher runs.
type Store struct {
	path   string
	logger zerolog.Logger

	mu    sync.RWMutex
	users []User

	watcher *fileWatcher
}

// Open loads the registry at path. A missing file is an empty registry.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("users file path is required")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve users file: %w", err)
	}

	s := &Store{
		path:   absPath,
		logger: logger.With().Str("component", "users").Logger(),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the registry file path
func (s *Store) Path() string {
	return s.path
}

// Reload replaces the cache with the file contents
func (s *Store) Reload() error {
	users, err := readUsers(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()

	s.logger.Debug().Int("users", len(users)).Msg("User registry loaded")
	return nil
}

// Users returns a copy of all users
func (s *Store) Users() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, len(s.users))
	copy(out, s.users)
	return out
}

// FindByEmail returns the user with email
func (s *Store) FindByEmail(email string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, true
		}
	}
	return User{}, false
}

// Register adds u unless its email is taken. created is false when a user
// with the same email exists.
func (s *Store) Register(u User) (created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return false, nil
		}
	}

	next := append(append([]User(nil), s.users...), u)
	if err := writeUsers(s.path, next); err != nil {
		return false, err
	}
	s.users = next
	return true, nil
}

// Check looks users up in order. A user holding phone wins; otherwise the
// first user with a non-empty matching email gets phone assigned.
func (s *Store) Check(phone, email string) (CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, u := range s.users {
		if u.Phone == phone {
			return PhoneRegistered, nil
		}
		if email != "" && u.Email == email {
			next := append([]User(nil), s.users...)
			next[i].Phone = phone
			if err := writeUsers(s.path, next); err != nil {
				return NotRegistered, err
			}
			s.users = next
			return EmailLinked, nil
		}
	}
	return NotRegistered, nil
}

// Update overwrites the non-empty fields of patch on the user with email.
// found is false when no such user exists.
func (s *Store) Update(email string, patch User) (found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, u := range s.users {
		if u.Email != email {
			continue
		}
		if patch.Name != "" {
			u.Name = patch.Name
		}
		if patch.Phone != "" {
			u.Phone = patch.Phone
		}
		if patch.TelegramID != "" {
			u.TelegramID = patch.TelegramID
		}

		next := append([]User(nil), s.users...)
		next[i] = u
		if err := writeUsers(s.path, next); err != nil {
			return true, err
		}
		s.users = next
		return true, nil
	}
	return false, nil
}

func readUsers(path string) ([]User, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []User{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}
	if len(data) == 0 {
		return []User{}, nil
	}

	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users file: %w", err)
	}
	return users, nil
}

// writeUsers replaces the file atomically through a temp file and rename
func writeUsers(path string, users []User) error {
	data, err := json.MarshalIndent(users, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode users: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create users directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace users file: %w", err)
	}
	return nil
}
