package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
)

// State is the delivery lifecycle of a stored message.
type State int

const (
	StateNew       State = iota // uploaded, never listed
	StateDelivered              // listed to at least one client
	StateConsumed               // acknowledged by a client
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateDelivered:
		return "delivered"
	case StateConsumed:
		return "consumed"
	default:
		return "unknown"
	}
}

// Message is a stored, fragmented image file.
type Message struct {
	ID        string            `json:"id"`
	Manifest  string            `json:"manifest"`
	Chunks    map[uint16]string `json:"chunks"`
	Size      int               `json:"size"`
	CreatedAt time.Time         `json:"created_at"`
	State     State             `json:"state"`
	Consumers []ConsumerRecord  `json:"consumers,omitempty"`
}

// ConsumerRecord notes a client that was told about a message.
type ConsumerRecord struct {
	Client      string    `json:"client"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func (m *Message) clone() *Message {
	c := *m
	c.Chunks = make(map[uint16]string, len(m.Chunks))
	for k, v := range m.Chunks {
		c.Chunks[k] = v
	}
	c.Consumers = append([]ConsumerRecord(nil), m.Consumers...)
	return &c
}

// Storage holds relay messages with per-client queue semantics.
type Storage interface {
	StoreMessage(msg *Message) error
	GetMessage(id string) (*Message, error)
	GetChunk(id string, seq uint16) (string, error)

	// PendingFor returns messages the client has not been told about and
	// that nobody has consumed, oldest first.
	PendingFor(client string) ([]*Message, error)
	MarkDelivered(id, client string) error
	MarkConsumed(id, client string) error

	ListMessages() ([]*Message, error)
	CleanExpired(ttl time.Duration) (int, error)
	Stats() Stats
}

// Stats counts stored messages by state.
type Stats struct {
	TotalMessages int `json:"total_messages"`
	NewMessages   int `json:"new"`
	Delivered     int `json:"delivered"`
	Consumed      int `json:"consumed"`
	TotalChunks   int `json:"total_chunks"`
	TotalBytes    int `json:"total_bytes"`
}

// MemoryStorage keeps everything in RAM. It is safe for concurrent use.
type MemoryStorage struct {
	mu       sync.RWMutex
	messages map[string]*Message
	seen     map[string]map[string]bool // client -> message ids
	now      func() time.Time
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		messages: make(map[string]*Message),
		seen:     make(map[string]map[string]bool),
		now:      time.Now,
	}
}

func (ms *MemoryStorage) StoreMessage(msg *Message) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.messages[msg.ID]; exists {
		return fmt.Errorf("message %s: %w", msg.ID, kerrors.ErrMessageExists)
	}

	stored := msg.clone()
	stored.State = StateNew
	stored.Consumers = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = ms.now()
	}
	ms.messages[msg.ID] = stored
	return nil
}

func (ms *MemoryStorage) GetMessage(id string) (*Message, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	msg, ok := ms.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, kerrors.ErrMessageNotFound)
	}
	return msg.clone(), nil
}

func (ms *MemoryStorage) GetChunk(id string, seq uint16) (string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	msg, ok := ms.messages[id]
	if !ok {
		return "", fmt.Errorf("message %s: %w", id, kerrors.ErrMessageNotFound)
	}
	data, ok := msg.Chunks[seq]
	if !ok {
		return "", fmt.Errorf("message %s chunk %d: %w", id, seq, kerrors.ErrChunkNotFound)
	}
	return data, nil
}

func (ms *MemoryStorage) PendingFor(client string) ([]*Message, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var pending []*Message
	for id, msg := range ms.messages {
		if ms.seen[client][id] || msg.State == StateConsumed {
			continue
		}
		pending = append(pending, msg.clone())
	}
	sortOldestFirst(pending)
	return pending, nil
}

func (ms *MemoryStorage) MarkDelivered(id, client string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	msg, ok := ms.messages[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, kerrors.ErrMessageNotFound)
	}
	if msg.State == StateNew {
		msg.State = StateDelivered
	}
	msg.Consumers = append(msg.Consumers, ConsumerRecord{Client: client, DeliveredAt: ms.now()})

	if ms.seen[client] == nil {
		ms.seen[client] = make(map[string]bool)
	}
	ms.seen[client][id] = true
	return nil
}

func (ms *MemoryStorage) MarkConsumed(id, client string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	msg, ok := ms.messages[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, kerrors.ErrMessageNotFound)
	}
	msg.State = StateConsumed
	if ms.seen[client] == nil {
		ms.seen[client] = make(map[string]bool)
	}
	ms.seen[client][id] = true
	return nil
}

func (ms *MemoryStorage) ListMessages() ([]*Message, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]*Message, 0, len(ms.messages))
	for _, msg := range ms.messages {
		out = append(out, msg.clone())
	}
	sortOldestFirst(out)
	return out, nil
}

// CleanExpired removes messages older than ttl.
func (ms *MemoryStorage) CleanExpired(ttl time.Duration) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cutoff := ms.now().Add(-ttl)
	removed := 0
	for id, msg := range ms.messages {
		if msg.CreatedAt.Before(cutoff) {
			delete(ms.messages, id)
			for _, ids := range ms.seen {
				delete(ids, id)
			}
			removed++
		}
	}
	return removed, nil
}

func (ms *MemoryStorage) Stats() Stats {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var s Stats
	for _, msg := range ms.messages {
		s.TotalMessages++
		s.TotalChunks += len(msg.Chunks)
		s.TotalBytes += msg.Size
		switch msg.State {
		case StateNew:
			s.NewMessages++
		case StateDelivered:
			s.Delivered++
		case StateConsumed:
			s.Consumed++
		}
	}
	return s
}

func sortOldestFirst(msgs []*Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// FileStorage is a MemoryStorage that persists every change to a JSON file.
type FileStorage struct {
	*MemoryStorage
	path string
	mu   sync.Mutex
}

type snapshot struct {
	Messages map[string]*Message        `json:"messages"`
	Seen     map[string]map[string]bool `json:"seen"`
}

// NewFileStorage loads path if it exists.
func NewFileStorage(path string) (*FileStorage, error) {
	fs := &FileStorage{MemoryStorage: NewMemoryStorage(), path: path}
	if err := fs.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return fs, nil
}

func (fs *FileStorage) StoreMessage(msg *Message) error {
	if err := fs.MemoryStorage.StoreMessage(msg); err != nil {
		return err
	}
	return fs.Save()
}

func (fs *FileStorage) MarkDelivered(id, client string) error {
	if err := fs.MemoryStorage.MarkDelivered(id, client); err != nil {
		return err
	}
	return fs.Save()
}

func (fs *FileStorage) MarkConsumed(id, client string) error {
	if err := fs.MemoryStorage.MarkConsumed(id, client); err != nil {
		return err
	}
	return fs.Save()
}

func (fs *FileStorage) CleanExpired(ttl time.Duration) (int, error) {
	removed, err := fs.MemoryStorage.CleanExpired(ttl)
	if err != nil || removed == 0 {
		return removed, err
	}
	return removed, fs.Save()
}

// Save writes the current state to disk via a temp file and rename.
func (fs *FileStorage) Save() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.MemoryStorage.mu.RLock()
	data, err := json.MarshalIndent(snapshot{Messages: fs.messages, Seen: fs.seen}, "", "  ")
	fs.MemoryStorage.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal relay state: %w", err)
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

// Load replaces the in-memory state with the file contents.
func (fs *FileStorage) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.path)
	if err != nil {
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal relay state: %w", err)
	}
	if snap.Messages == nil {
		snap.Messages = make(map[string]*Message)
	}
	if snap.Seen == nil {
		snap.Seen = make(map[string]map[string]bool)
	}

	fs.MemoryStorage.mu.Lock()
	fs.messages = snap.Messages
	fs.seen = snap.Seen
	fs.MemoryStorage.mu.Unlock()
	return nil
}
