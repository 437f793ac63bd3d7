// Package relay moves stego images through DNS: an HTTP endpoint accepts
// fragmented uploads, a DNS server answers TXT queries for manifests and
// fragments, and a client fetches and reassembles them.
package relay

import (
	"fmt"
	"time"

	"github.com/faanross/simulacra_lsb/internal/chunker"
	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
)

// MaxListed caps the ids returned by one list query so the answer stays
// inside a plain 512 byte UDP response.
const MaxListed = 8

// QueueManager adds publish and consume semantics on top of a Storage.
type QueueManager struct {
	storage Storage
}

// NewQueueManager wraps storage.
func NewQueueManager(storage Storage) *QueueManager {
	return &QueueManager{storage: storage}
}

// Publish validates a set of encoded fragments and stores them as one
// message. The fragments must all belong to id, cover every sequence, and
// reassemble to bytes matching both the manifest checksum and the id.
func (qm *QueueManager) Publish(id string, manifest string, encoded []string) (*Message, error) {
	want, err := chunker.ParseMessageID(id)
	if err != nil {
		return nil, err
	}
	man, err := chunker.ParseManifest(manifest)
	if err != nil {
		return nil, err
	}
	if len(encoded) != int(man.Total) {
		return nil, fmt.Errorf("manifest declares %d chunks, got %d: %w", man.Total, len(encoded), kerrors.ErrIncompleteMessage)
	}

	chunks := make([]chunker.Chunk, 0, len(encoded))
	stored := make(map[uint16]string, len(encoded))
	for _, e := range encoded {
		ch, err := chunker.Decode(e, "")
		if err != nil {
			return nil, err
		}
		if ch.Metadata.MessageID != want {
			return nil, fmt.Errorf("chunk belongs to %s, not %s: %w", ch.Metadata.MessageID.Short(), want.Short(), kerrors.ErrInvalidChunk)
		}
		chunks = append(chunks, *ch)
		stored[ch.Metadata.Sequence] = e
	}

	data, err := chunker.Reassemble(chunks)
	if err != nil {
		return nil, err
	}
	if err := verify(want, man, data); err != nil {
		return nil, err
	}

	msg := &Message{
		ID:        id,
		Manifest:  man.String(),
		Chunks:    stored,
		Size:      len(data),
		CreatedAt: time.Now(),
	}
	if err := qm.storage.StoreMessage(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// verify checks reassembled bytes against the manifest and content id.
func verify(id chunker.MessageID, man chunker.Manifest, data []byte) error {
	if got := chunker.Checksum(data); got != man.Checksum {
		return fmt.Errorf("message crc32 %08x, manifest says %08x: %w", got, man.Checksum, kerrors.ErrChecksumMismatch)
	}
	derived, err := chunker.NewMessageID(data)
	if err != nil {
		return err
	}
	if derived != id {
		return fmt.Errorf("content hashes to %s, not %s: %w", derived.Short(), id.Short(), kerrors.ErrChecksumMismatch)
	}
	return nil
}

// Consume returns up to MaxListed pending message ids for client and marks
// them delivered.
func (qm *QueueManager) Consume(client string) ([]string, error) {
	pending, err := qm.storage.PendingFor(client)
	if err != nil {
		return nil, err
	}
	if len(pending) > MaxListed {
		pending = pending[:MaxListed]
	}

	ids := make([]string, 0, len(pending))
	for _, msg := range pending {
		if err := qm.storage.MarkDelivered(msg.ID, client); err != nil {
			return nil, err
		}
		ids = append(ids, msg.ID)
	}
	return ids, nil
}

// Acknowledge marks a message consumed.
func (qm *QueueManager) Acknowledge(id, client string) error {
	return qm.storage.MarkConsumed(id, client)
}

// Status describes the delivery state of a message.
func (qm *QueueManager) Status(id string) (string, error) {
	msg, err := qm.storage.GetMessage(id)
	if err != nil {
		return "", err
	}
	if msg.State == StateDelivered {
		return fmt.Sprintf("delivered to %d clients", len(msg.Consumers)), nil
	}
	return msg.State.String(), nil
}
