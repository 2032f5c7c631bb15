package share

import "context"

// Store persists records under "<prefix>:<slug>" keys.
type Store interface {
	Existence
	// Create writes a new record, failing with ErrSlugTaken if the key exists.
	Create(ctx context.Context, rec *Record) error
	// Persist writes rec unconditionally, resetting its TTL from rec.Expiry.
	Persist(ctx context.Context, rec *Record) error
	// Fetch returns nil when the record is absent or already past its expiry.
	Fetch(ctx context.Context, slug string) (*Record, error)
	// Delete is idempotent.
	Delete(ctx context.Context, slug string) error
	// Take atomically applies one access and returns the record as it was
	// before the access, or nil when there is nothing to take.
	Take(ctx context.Context, slug string) (*Record, error)
}

// Key returns the backing store key for slug.
func Key(prefix, slug string) string {
	return prefix + ":" + slug
}
