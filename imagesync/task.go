package imagesync

import (
	"encoding/binary"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
)

// TaskKind discriminates the three reconciliation task types.
type TaskKind uint8

// Task kinds.
const (
	// TaskPull reconciles external sessions into the layer store.
	TaskPull TaskKind = iota

	// TaskPush reconciles store-originated image layers back to the
	// external source.
	TaskPush

	// TaskVersionSelect switches the displayed version of a session and
	// its linked layer.
	TaskVersionSelect
)

// String returns a human-readable name for the kind.
func (k TaskKind) String() string {
	switch k {
	case TaskPull:
		return "pull"
	case TaskPush:
		return "push"
	case TaskVersionSelect:
		return "versionSelect"
	default:
		return "unknown"
	}
}

// VersionSelect is the payload of a TaskVersionSelect task.
type VersionSelect struct {
	SessionID uuid.UUID
	Index     int
}

// Task is one unit of reconciliation work. Immutable once enqueued;
// processed FIFO, one at a time globally.
type Task struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Kind           TaskKind
	Version        VersionSelect // TaskVersionSelect only
	EnqueuedAt     time.Time
}

// Content hashing parameters.
const (
	// maxHashedContent bounds the content prefix fed to the hash, so
	// arbitrarily large payloads hash in constant time.
	maxHashedContent = 256

	// DefaultHashBucket is the time bucket width for deduplication: the
	// same content re-emitted within one bucket hashes identically.
	DefaultHashBucket = 5 * time.Minute
)

// ContentHash fingerprints an external artifact for deduplication. The
// hash covers the artifact type, a truncated content prefix, and the
// coarse time bucket of its creation; a source re-emitting the same
// artifact within one bucket produces the same hash and is skipped.
func ContentHash(kind, content string, at time.Time, bucket time.Duration) uint64 {
	if bucket <= 0 {
		bucket = DefaultHashBucket
	}
	if len(content) > maxHashedContent {
		content = content[:maxHashedContent]
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(kind))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(content))
	_, _ = h.Write([]byte{0})

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(at.Truncate(bucket).Unix()))
	_, _ = h.Write(buf[:])
	return h.Sum64()
}
