// Package mapstore persists restoration mappings on the local device.
//
// A reversible redaction produces a mapping from placeholder tokens back to
// the original sensitive values. The mapping is the sensitive half of the
// output: it stays on the device in a local bbolt file, keyed by invocation
// ID, and is never written to the audit database or sent to any provider.
package mapstore

import (
	"context"
	"errors"

	"github.com/halcyonhealth/phiredact/internal/redact"
)

// ErrNotFound is returned when no mapping exists for the given invocation ID.
var ErrNotFound = errors.New("mapstore: mapping not found")

// Store saves and retrieves restoration mappings by invocation ID.
type Store interface {
	// Put stores the mapping for an invocation, overwriting any previous
	// mapping under the same ID.
	Put(ctx context.Context, invocationID string, mapping redact.Mapping) error

	// Get retrieves a stored mapping. Returns [ErrNotFound] when the ID is
	// unknown.
	Get(ctx context.Context, invocationID string) (redact.Mapping, error)

	// Delete removes a stored mapping. Deleting an unknown ID is a no-op.
	Delete(ctx context.Context, invocationID string) error

	// Close releases the underlying storage.
	Close() error
}
