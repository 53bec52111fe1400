package audit

import "context"

// NoopStore discards all records. Used when no audit DSN is configured.
type NoopStore struct{}

// Compile-time interface assertion.
var _ Store = NoopStore{}

func (NoopStore) Record(context.Context, Record) error { return nil }

func (NoopStore) Recent(context.Context, int) ([]Record, error) { return nil, nil }

func (NoopStore) Close() {}
