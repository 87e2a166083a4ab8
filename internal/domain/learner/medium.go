package learner

import (
	"context"
	"errors"
)

// RecordKeySuffix is appended to the namespace to form the record key.
const RecordKeySuffix = "userData"

// ErrKeyNotFound is returned by Medium.Get when the key is absent.
var ErrKeyNotFound = errors.New("medium: key not found")

// Medium is the persistent key-value store the learner record lives in.
// Implementations report failures wrapped in shared.ErrPersistenceUnavailable.
type Medium interface {
	// Get returns the raw bytes stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// DeletePrefix removes every key that starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases the medium.
	Close() error
}

// RecordKey returns the key the record is stored under for namespace.
func RecordKey(namespace string) string {
	return namespace + RecordKeySuffix
}
