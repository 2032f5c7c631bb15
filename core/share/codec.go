package share

import (
	"fmt"
	"time"

	"github.com/shrekd/shrekd/core/infra/codec"
)

type wireFile struct {
	Name string `cbor:"name"`
	Path string `cbor:"path"`
	Size uint64 `cbor:"size"`
}

type wireRecord struct {
	Slug              string    `cbor:"slug"`
	Kind              Kind      `cbor:"kind"`
	File              *wireFile `cbor:"file,omitempty"`
	URL               *string   `cbor:"url,omitempty"`
	Paste             *string   `cbor:"paste,omitempty"`
	RemainingAccesses *uint32   `cbor:"remaining_accesses,omitempty"`
	// Expiry is split into unix seconds and the sub-second remainder so any
	// time.Time survives, not just the int64 nanosecond range.
	ExpirySeconds *int64 `cbor:"expiry_s,omitempty"`
	ExpiryNanos   int64  `cbor:"expiry_ns,omitempty"`
}

// EncodeRecord serializes a record for the backing store.
func EncodeRecord(r *Record) ([]byte, error) {
	if r == nil || r.Payload == nil {
		return nil, &SerializationError{Msg: "record has no payload"}
	}
	w := wireRecord{
		Slug:              r.Slug,
		Kind:              r.Payload.Kind(),
		RemainingAccesses: r.RemainingAccesses,
	}
	switch p := r.Payload.(type) {
	case *FilePayload:
		w.File = &wireFile{Name: p.Name, Path: p.Path, Size: p.Size}
	case *URLPayload:
		target := p.Target
		w.URL = &target
	case *PastePayload:
		body := p.Body
		w.Paste = &body
	}
	if r.Expiry != nil {
		sec := r.Expiry.Unix()
		w.ExpirySeconds = &sec
		w.ExpiryNanos = int64(r.Expiry.Nanosecond())
	}
	data, err := codec.Marshal(w)
	if err != nil {
		return nil, &SerializationError{Slug: r.Slug, Msg: "encode", Err: err}
	}
	return data, nil
}

// DecodeRecord parses a stored record. Expiry is returned in UTC.
func DecodeRecord(data []byte) (*Record, error) {
	var w wireRecord
	if err := codec.Unmarshal(data, &w); err != nil {
		return nil, &SerializationError{Msg: "decode", Err: err}
	}
	r := &Record{Slug: w.Slug, RemainingAccesses: w.RemainingAccesses}
	switch {
	case w.Kind == KindFile && w.File != nil:
		r.Payload = &FilePayload{Name: w.File.Name, Path: w.File.Path, Size: w.File.Size}
	case w.Kind == KindURL && w.URL != nil:
		r.Payload = &URLPayload{Target: *w.URL}
	case w.Kind == KindPaste && w.Paste != nil:
		r.Payload = &PastePayload{Body: *w.Paste}
	default:
		return nil, &SerializationError{Slug: w.Slug, Msg: fmt.Sprintf("payload kind %q does not match its body", w.Kind)}
	}
	if w.ExpirySeconds != nil {
		exp := time.Unix(*w.ExpirySeconds, w.ExpiryNanos).UTC()
		r.Expiry = &exp
	}
	return r, nil
}
