// Package users keeps local simulacra accounts and the active session. It is
// independent of the codec: commands use it only to attribute history.
package users

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faanross/simulacra_lsb/internal/configs"
	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
	"github.com/faanross/simulacra_lsb/internal/scrypto"
)

const (
	MinPasswordLength = 6

	DemoEmail    = "demo@example.com"
	DemoPassword = "password"
	DemoUsername = "demouser"
	demoID       = "00000000-0000-0000-0000-000000000001"
)

type User struct {
	ID           string    `toml:"id"`
	Email        string    `toml:"email"`
	Username     string    `toml:"username"`
	PasswordHash string    `toml:"password_hash"`
	CreatedAt    time.Time `toml:"created_at"`
}

// Store registers and authenticates users.
type Store interface {
	Register(email, username, password string) (*User, error)
	Authenticate(email, password string) (*User, error)
	Get(email string) (*User, error)
	List() ([]*User, error)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail requires a local part, an @ and a dotted domain.
func ValidateEmail(email string) error {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return fmt.Errorf("%q: %w", email, kerrors.ErrInvalidEmail)
	}
	dot := strings.LastIndex(domain, ".")
	if dot < 1 || dot == len(domain)-1 {
		return fmt.Errorf("%q: %w", email, kerrors.ErrInvalidEmail)
	}
	return nil
}

func demoUser() *User {
	return &User{ID: demoID, Email: DemoEmail, Username: DemoUsername}
}

// MemoryStore keeps users in RAM. The demo account always exists.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User

	// Iterations for password hashing. Zero means scrypto.DefaultIterations.
	Iterations int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func (s *MemoryStore) Register(email, username, password string) (*User, error) {
	email = normalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if len([]rune(password)) < MinPasswordLength {
		return nil, fmt.Errorf("need at least %d characters: %w", MinPasswordLength, kerrors.ErrWeakPassword)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[email]; exists || email == DemoEmail {
		return nil, fmt.Errorf("%s: %w", email, kerrors.ErrUserExists)
	}

	hash, err := scrypto.HashPassword(password, s.Iterations)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[email] = u
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) Authenticate(email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == DemoEmail {
		if password != DemoPassword {
			return nil, kerrors.ErrInvalidCredentials
		}
		return demoUser(), nil
	}

	s.mu.RLock()
	u, ok := s.users[email]
	s.mu.RUnlock()
	if !ok || !scrypto.VerifyPassword(password, u.PasswordHash) {
		return nil, kerrors.ErrInvalidCredentials
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) Get(email string) (*User, error) {
	email = normalizeEmail(email)
	if email == DemoEmail {
		return demoUser(), nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[email]
	if !ok {
		return nil, fmt.Errorf("%s: %w", email, kerrors.ErrUserNotFound)
	}
	copied := *u
	return &copied, nil
}

// List returns registered users ordered by email. The demo account is not
// included.
func (s *MemoryStore) List() ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		copied := *u
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// FileStore is a MemoryStore persisted to a TOML file after each registration.
type FileStore struct {
	*MemoryStore
	path string
}

type usersFile struct {
	Users []User `toml:"users"`
}

// OpenFileStore loads path if it exists.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{MemoryStore: NewMemoryStore(), path: path}

	var f usersFile
	if err := configs.LoadTOML(path, &f); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fs, nil
		}
		return nil, fmt.Errorf("failed to load users from %s: %w", path, err)
	}
	for i := range f.Users {
		u := f.Users[i]
		fs.users[normalizeEmail(u.Email)] = &u
	}
	return fs, nil
}

func (fs *FileStore) Register(email, username, password string) (*User, error) {
	u, err := fs.MemoryStore.Register(email, username, password)
	if err != nil {
		return nil, err
	}
	if err := fs.save(); err != nil {
		fs.mu.Lock()
		delete(fs.users, u.Email)
		fs.mu.Unlock()
		return nil, err
	}
	return u, nil
}

func (fs *FileStore) save() error {
	list, _ := fs.List()
	f := usersFile{Users: make([]User, 0, len(list))}
	for _, u := range list {
		f.Users = append(f.Users, *u)
	}
	if err := configs.SaveTOML(fs.path, f); err != nil {
		return fmt.Errorf("failed to save users: %w", err)
	}
	return nil
}
