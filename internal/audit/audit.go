// Package audit records per-invocation redaction metrics in PostgreSQL.
//
// The audit trail is deliberately content-free: it stores counts, durations,
// and degradation flags per invocation, never transcript text, detected
// entity surfaces, or restoration mappings. It exists so operators can answer
// "how often does extraction degrade" and "what does a typical invocation
// cost" without widening the set of places sensitive text lives.
package audit

import (
	"context"
	"time"
)

// Record is one redaction invocation's metrics row.
type Record struct {
	// InvocationID is the caller-assigned unique ID for this invocation.
	InvocationID string

	// Mode is the redaction mode used ("tag" or "reversible").
	Mode string

	// LLMEnabled reports whether the extraction layer contributed. False
	// means the invocation degraded to rules-only output.
	LLMEnabled bool

	// Per-layer accepted span counts.
	RuleCount       int
	DictionaryCount int
	ModelCount      int

	// HallucinationsBlocked counts model candidates rejected by validation.
	HallucinationsBlocked int

	// Per-layer and total wall-clock durations.
	RuleDuration       time.Duration
	DictionaryDuration time.Duration
	ModelDuration      time.Duration
	TotalDuration      time.Duration

	// CreatedAt is set by the store on insert.
	CreatedAt time.Time
}

// Store persists invocation records.
type Store interface {
	// Record inserts one invocation row.
	Record(ctx context.Context, rec Record) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// Close releases the underlying connections.
	Close()
}
