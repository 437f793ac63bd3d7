// Package history records encode and decode operations for the local user.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
)

type Kind string

const (
	KindEncode Kind = "encode"
	KindDecode Kind = "decode"
)

type Order string

const (
	Newest Order = "newest"
	Oldest Order = "oldest"
)

type Entry struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"type"`
	Filename      string    `json:"filename"`
	Timestamp     time.Time `json:"timestamp"`
	MessageLength int       `json:"message_length"`
	ImageCID      string    `json:"image_cid,omitempty"`
	User          string    `json:"user,omitempty"`
}

// Query filters List. Zero values match everything, newest first.
type Query struct {
	Kind   Kind
	Search string // case-insensitive filename substring
	Order  Order
}

func (q Query) matches(e *Entry) bool {
	if q.Kind != "" && e.Kind != q.Kind {
		return false
	}
	if q.Search != "" && !strings.Contains(strings.ToLower(e.Filename), strings.ToLower(q.Search)) {
		return false
	}
	return true
}

type Store interface {
	Add(e Entry) (*Entry, error)
	List(q Query) ([]Entry, error)
	Remove(id string) error
	Clear() error
}

// MemoryStore keeps entries in RAM. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry), now: time.Now}
}

// Add stores e, assigning an id and timestamp when they are empty.
func (ms *MemoryStore) Add(e Entry) (*Entry, error) {
	if e.Kind != KindEncode && e.Kind != KindDecode {
		return nil, fmt.Errorf("unknown history kind %q", e.Kind)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = ms.now().UTC()
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	stored := e
	ms.entries[e.ID] = &stored
	return &e, nil
}

func (ms *MemoryStore) List(q Query) ([]Entry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]Entry, 0, len(ms.entries))
	for _, e := range ms.entries {
		if q.matches(e) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if q.Order == Oldest {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (ms *MemoryStore) Remove(id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.entries[id]; !ok {
		return fmt.Errorf("%s: %w", id, kerrors.ErrEntryNotFound)
	}
	delete(ms.entries, id)
	return nil
}

func (ms *MemoryStore) Clear() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.entries = make(map[string]*Entry)
	return nil
}

// FileStore is a MemoryStore persisted to a JSON file after every change.
type FileStore struct {
	*MemoryStore
	path string
	mu   sync.Mutex
}

// OpenFileStore loads path if it exists.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{MemoryStore: NewMemoryStore(), path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history %s: %w", path, err)
	}
	for i := range entries {
		e := entries[i]
		fs.entries[e.ID] = &e
	}
	return fs, nil
}

func (fs *FileStore) Add(e Entry) (*Entry, error) {
	added, err := fs.MemoryStore.Add(e)
	if err != nil {
		return nil, err
	}
	return added, fs.save()
}

func (fs *FileStore) Remove(id string) error {
	if err := fs.MemoryStore.Remove(id); err != nil {
		return err
	}
	return fs.save()
}

func (fs *FileStore) Clear() error {
	if err := fs.MemoryStore.Clear(); err != nil {
		return err
	}
	return fs.save()
}

func (fs *FileStore) save() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, _ := fs.List(Query{Order: Oldest})
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(fs.path), 0700); err != nil {
		return err
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
