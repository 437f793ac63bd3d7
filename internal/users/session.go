package users

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/faanross/simulacra_lsb/internal/configs"
	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
)

// Session records who is logged in on this machine.
type Session struct {
	UserID     string    `toml:"user_id"`
	Email      string    `toml:"email"`
	Username   string    `toml:"username"`
	LoggedInAt time.Time `toml:"logged_in_at"`
}

type SessionStore struct {
	path string
}

func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Login authenticates against store and persists the session.
func (ss *SessionStore) Login(store Store, email, password string) (*Session, error) {
	u, err := store.Authenticate(email, password)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		UserID:     u.ID,
		Email:      u.Email,
		Username:   u.Username,
		LoggedInAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := configs.SaveTOML(ss.path, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return sess, nil
}

// Logout ends the session. Logging out twice is not an error.
func (ss *SessionStore) Logout() error {
	if err := os.Remove(ss.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// Current returns the active session or ErrNotLoggedIn.
func (ss *SessionStore) Current() (*Session, error) {
	var sess Session
	if err := configs.LoadTOML(ss.path, &sess); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, kerrors.ErrNotLoggedIn
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess.Email == "" {
		return nil, kerrors.ErrNotLoggedIn
	}
	return &sess, nil
}
