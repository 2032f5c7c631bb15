package share

import "context"

// afterAccess decides what one access does to rec: nothing for unlimited
// records, a copy with one fewer access, or deletion when the last allowed
// access is spent.
func afterAccess(rec *Record) (next *Record, exhausted bool) {
	if rec.RemainingAccesses == nil {
		return nil, false
	}
	n := *rec.RemainingAccesses
	if n <= 1 {
		return nil, true
	}
	return rec.withAccesses(n - 1), false
}

// Consume finalizes one access to a record the caller fetched earlier. It is
// a read-modify-write: concurrent consumers of the same slug may both see the
// same count. Store.Take is the atomic alternative.
func Consume(ctx context.Context, store Store, rec *Record) (exhausted bool, err error) {
	if rec == nil {
		return false, nil
	}
	next, exhausted := afterAccess(rec)
	switch {
	case exhausted:
		return true, store.Delete(ctx, rec.Slug)
	case next != nil:
		return false, store.Persist(ctx, next)
	}
	return false, nil
}
