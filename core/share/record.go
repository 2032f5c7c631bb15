package share

import "time"

// Kind names a payload variant. It is also the label used in metrics and
// lifecycle events.
type Kind string

const (
	KindFile  Kind = "file"
	KindURL   Kind = "url"
	KindPaste Kind = "paste"
)

// Payload is the content a record points at. The variant set is closed:
// *FilePayload, *URLPayload and *PastePayload.
type Payload interface {
	Kind() Kind
	isPayload()
}

// FilePayload references bytes in the file store under the record's slug.
type FilePayload struct {
	Name string
	Path string
	Size uint64
}

// URLPayload is a redirect target.
type URLPayload struct {
	Target string
}

// PastePayload is a UTF-8 text body.
type PastePayload struct {
	Body string
}

func (*FilePayload) Kind() Kind  { return KindFile }
func (*URLPayload) Kind() Kind   { return KindURL }
func (*PastePayload) Kind() Kind { return KindPaste }

func (*FilePayload) isPayload()  {}
func (*URLPayload) isPayload()   {}
func (*PastePayload) isPayload() {}

// Record is the unit of storage. Only RemainingAccesses changes after the
// record is first persisted.
type Record struct {
	Slug              string
	Payload           Payload
	RemainingAccesses *uint32
	Expiry            *time.Time
}

// ExpiredAt reports whether the record's expiry has passed at now.
func (r *Record) ExpiredAt(now time.Time) bool {
	return r != nil && r.Expiry != nil && !now.Before(*r.Expiry)
}

// withAccesses returns a shallow copy carrying n remaining accesses.
func (r *Record) withAccesses(n uint32) *Record {
	cp := *r
	cp.RemainingAccesses = &n
	return &cp
}
