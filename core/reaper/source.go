// Package reaper reclaims file bodies whose records are gone. It listens to
// the backing store's key lifecycle notifications and periodically sweeps
// the storage root for files that no record references.
package reaper

// Event is one key lifecycle notification.
type Event struct {
	// Kind is the notification type, "expired" or "del" for Redis.
	Kind string
	Key  string
}

// Source delivers lifecycle notifications. Events is closed when the source
// stops, after Close or on an unrecoverable subscription failure.
type Source interface {
	Events() <-chan Event
	Close() error
}

// ChanSource adapts a channel to Source.
type ChanSource struct {
	C chan Event
}

func NewChanSource(buffer int) *ChanSource {
	return &ChanSource{C: make(chan Event, buffer)}
}

func (s *ChanSource) Events() <-chan Event { return s.C }

func (s *ChanSource) Close() error {
	close(s.C)
	return nil
}
