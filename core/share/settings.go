package share

import (
	"math"
	"time"
)

const maxExpireInSeconds = math.MaxInt64 / int64(time.Second)

// MaxLifetime is the furthest a record expiry may lie ahead of its creation;
// later expiries are clamped to it. It is the largest TTL a time.Duration
// can carry to the store.
const MaxLifetime = time.Duration(maxExpireInSeconds) * time.Second

// Settings are the per-record options a caller may supply at creation.
// Zero values mean "not set".
type Settings struct {
	MaxAccesses *uint32
	ExpiryAt    *time.Time
	// ExpireIn is a lifetime in seconds; mutually exclusive with ExpiryAt.
	ExpireIn   *uint64
	SlugLength uint8
	CustomSlug string
	// Checksum is an optional hex SHA-256 of a file upload.
	Checksum string
}

// Validate rejects contradictory or out-of-range settings.
func (s Settings) Validate() error {
	if s.MaxAccesses != nil && *s.MaxAccesses == 0 {
		return invalidf("max_accesses", "must be at least 1")
	}
	if s.ExpiryAt != nil && s.ExpireIn != nil {
		return invalidf("expiry", "expiry timestamp and expire-in are mutually exclusive")
	}
	if s.ExpireIn != nil && *s.ExpireIn > uint64(maxExpireInSeconds) {
		return invalidf("expire_in", "%d seconds is out of range", *s.ExpireIn)
	}
	if s.CustomSlug != "" {
		if err := ValidateSlug(s.CustomSlug); err != nil {
			return err
		}
	}
	return nil
}

// Expiry resolves the absolute expiry for a record created at now. The
// requested expiry comes from ExpiryAt or now+ExpireIn; a non-nil maxAge caps
// it at now+maxAge and forces an expiry when none was requested. Any expiry
// is capped at now+MaxLifetime.
func (s Settings) Expiry(now time.Time, maxAge *time.Duration) *time.Time {
	var exp *time.Time
	switch {
	case s.ExpiryAt != nil:
		t := s.ExpiryAt.UTC()
		exp = &t
	case s.ExpireIn != nil:
		t := now.Add(time.Duration(*s.ExpireIn) * time.Second).UTC()
		exp = &t
	}
	if maxAge != nil {
		limit := now.Add(*maxAge).UTC()
		if exp == nil || exp.After(limit) {
			exp = &limit
		}
	}
	if exp != nil {
		if limit := now.Add(MaxLifetime).UTC(); exp.After(limit) {
			exp = &limit
		}
	}
	return exp
}
