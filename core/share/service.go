package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shrekd/shrekd/core/infra/bus"
	"github.com/shrekd/shrekd/core/infra/filestore"
	"github.com/shrekd/shrekd/core/infra/logging"
	"github.com/shrekd/shrekd/core/infra/metrics"
)

// Limits caps accepted payload sizes in bytes.
type Limits struct {
	File  int64
	Paste int64
	URL   int64
}

// Options wires a Service. Store, Files, Slugs and Curve are required.
type Options struct {
	Store   Store
	Files   *filestore.Store
	Slugs   *SlugAllocator
	Curve   *RetentionCurve
	Limits  Limits
	Events  bus.Publisher
	Metrics metrics.Metrics
	Now     func() time.Time
}

// Service implements the create and fetch operations the HTTP layer calls.
type Service struct {
	store   Store
	files   *filestore.Store
	slugs   *SlugAllocator
	curve   *RetentionCurve
	limits  Limits
	events  bus.Publisher
	metrics metrics.Metrics
	now     func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Store == nil || opts.Files == nil || opts.Slugs == nil || opts.Curve == nil {
		return nil, errors.New("share: store, files, slugs and curve are required")
	}
	s := &Service{
		store:   opts.Store,
		files:   opts.Files,
		slugs:   opts.Slugs,
		curve:   opts.Curve,
		limits:  opts.Limits,
		events:  opts.Events,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if s.events == nil {
		s.events = bus.Noop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Limits returns the configured size limits.
func (s *Service) Limits() Limits { return s.limits }

// StageFile streams an upload body into the staging area.
func (s *Service) StageFile(body io.Reader) (*filestore.Staged, error) {
	staged, err := s.files.Stage(body, s.limits.File)
	if errors.Is(err, filestore.ErrTooLarge) {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrTooLarge, s.limits.File)
	}
	if err != nil {
		return nil, &IOError{Op: "stage", Err: err}
	}
	return staged, nil
}

// CreateFile turns a staged upload into a File record. The staged file is
// owned by the service from here on: it is adopted on success and discarded
// on failure.
func (s *Service) CreateFile(ctx context.Context, name string, staged *filestore.Staged, settings Settings) (*Record, error) {
	if staged == nil {
		return nil, invalidf("file", "no upload")
	}
	discard := func() {
		if err := s.files.Discard(staged.Path); err != nil {
			logging.Warn("share", "discard staged upload failed", "path", staged.Path, "error", err)
		}
	}
	if err := settings.Validate(); err != nil {
		discard()
		return nil, err
	}
	if name = sanitizeName(name); name == "" {
		discard()
		return nil, invalidf("filename", "must not be empty")
	}
	if settings.Checksum != "" && !strings.EqualFold(strings.TrimSpace(settings.Checksum), staged.Checksum) {
		logging.Warn("share", "upload checksum mismatch", "filename", name, "expected", settings.Checksum, "actual", staged.Checksum)
	}

	size := uint64(staged.Size)
	maxAge := s.curve.MaxAgeFor(size)
	expiry := settings.Expiry(s.now(), &maxAge)
	rec, err := s.reserve(ctx, settings, func(slug string) *Record {
		return &Record{
			Slug:              slug,
			Payload:           &FilePayload{Name: name, Path: s.files.Path(slug), Size: size},
			RemainingAccesses: settings.MaxAccesses,
			Expiry:            expiry,
		}
	})
	if err != nil {
		discard()
		return nil, err
	}
	if _, err := s.files.Adopt(staged.Path, rec.Slug); err != nil {
		discard()
		if delErr := s.store.Delete(ctx, rec.Slug); delErr != nil {
			logging.Error("share", "rollback record after adopt failure", "slug", rec.Slug, "error", delErr)
		}
		return nil, &IOError{Op: "adopt", Path: s.files.Path(rec.Slug), Err: err}
	}
	s.created(rec)
	return rec, nil
}

// CreatePaste stores a UTF-8 text body.
func (s *Service) CreatePaste(ctx context.Context, body string, settings Settings) (*Record, error) {
	if s.limits.Paste > 0 && int64(len(body)) > s.limits.Paste {
		return nil, fmt.Errorf("%w: paste exceeds %d bytes", ErrTooLarge, s.limits.Paste)
	}
	if !utf8.ValidString(body) {
		return nil, invalidf("paste", "body is not valid UTF-8")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	expiry := settings.Expiry(s.now(), nil)
	rec, err := s.reserve(ctx, settings, func(slug string) *Record {
		return &Record{Slug: slug, Payload: &PastePayload{Body: body}, RemainingAccesses: settings.MaxAccesses, Expiry: expiry}
	})
	if err != nil {
		return nil, err
	}
	s.created(rec)
	return rec, nil
}

// CreateURL stores a redirect to an absolute http(s) URL.
func (s *Service) CreateURL(ctx context.Context, raw string, settings Settings) (*Record, error) {
	if s.limits.URL > 0 && int64(len(raw)) > s.limits.URL {
		return nil, fmt.Errorf("%w: url exceeds %d bytes", ErrTooLarge, s.limits.URL)
	}
	target, err := ParseTarget(raw)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	expiry := settings.Expiry(s.now(), nil)
	rec, err := s.reserve(ctx, settings, func(slug string) *Record {
		return &Record{Slug: slug, Payload: &URLPayload{Target: target.String()}, RemainingAccesses: settings.MaxAccesses, Expiry: expiry}
	})
	if err != nil {
		return nil, err
	}
	s.created(rec)
	return rec, nil
}

// ParseTarget accepts absolute http and https URLs with a host.
func ParseTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, invalidf("url", "must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, invalidf("url", "malformed: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, invalidf("url", "scheme %q not allowed", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, invalidf("url", "missing host")
	}
	return u, nil
}

// reserve allocates a slug and writes the record built for it with SET NX.
// Losing the write race counts as a collision and is retried once.
func (s *Service) reserve(ctx context.Context, settings Settings, build func(slug string) *Record) (*Record, error) {
	preferred := settings.CustomSlug
	for attempt := 0; attempt < 2; attempt++ {
		slug, err := s.slugs.Allocate(ctx, s.store, preferred, settings.SlugLength)
		if err != nil {
			return nil, err
		}
		rec := build(slug)
		err = s.store.Create(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrSlugTaken) {
			return nil, err
		}
		logging.Debug("share", "slug taken between check and write", "slug", slug)
		preferred = ""
	}
	return nil, fmt.Errorf("%w: slug reservation lost twice", ErrAllocation)
}

// Fetched is the result of a successful read. File is set for file records
// and must be closed by the caller.
type Fetched struct {
	Record *Record
	File   *filestore.Handle
}

// Close releases the file handle, if any.
func (f *Fetched) Close() error {
	if f == nil || f.File == nil {
		return nil
	}
	return f.File.Close()
}

// FetchAndConsume returns the record for slug and applies one access. For
// file records the file is opened before the access is applied, so a
// concurrent reaper defers its removal until the caller closes it.
func (s *Service) FetchAndConsume(ctx context.Context, slug string) (*Fetched, error) {
	if ValidateSlug(slug) != nil {
		return nil, &NotFoundError{Slug: slug}
	}
	peek, err := s.store.Fetch(ctx, slug)
	if err != nil {
		return nil, err
	}
	if peek == nil {
		return nil, &NotFoundError{Slug: slug}
	}

	var handle *filestore.Handle
	if peek.Payload.Kind() == KindFile {
		if handle, err = s.openFile(slug); err != nil {
			return nil, err
		}
	}

	rec, err := s.store.Take(ctx, slug)
	if err != nil || rec == nil {
		if handle != nil {
			_ = handle.Close()
		}
		if err != nil {
			return nil, err
		}
		return nil, &NotFoundError{Slug: slug}
	}

	switch {
	case rec.Payload.Kind() == KindFile && handle == nil:
		if handle, err = s.openFile(slug); err != nil {
			return nil, err
		}
	case rec.Payload.Kind() != KindFile && handle != nil:
		_ = handle.Close()
		handle = nil
	}

	s.consumed(rec)
	return &Fetched{Record: rec, File: handle}, nil
}

func (s *Service) openFile(slug string) (*filestore.Handle, error) {
	h, err := s.files.Open(slug)
	if err == nil {
		return h, nil
	}
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Slug: slug}
	}
	return nil, &IOError{Op: "open", Path: s.files.Path(slug), Err: err}
}

func (s *Service) created(rec *Record) {
	kind := string(rec.Payload.Kind())
	s.metrics.IncRecordsCreated(kind)
	s.publish(bus.Event{
		Type:              bus.EventCreated,
		Slug:              rec.Slug,
		Kind:              kind,
		RemainingAccesses: rec.RemainingAccesses,
		Expiry:            rec.Expiry,
	})
	logging.Info("share", "record created", "slug", rec.Slug, "kind", kind)
}

func (s *Service) consumed(rec *Record) {
	kind := string(rec.Payload.Kind())
	s.metrics.IncRecordsConsumed(kind)
	next, exhausted := afterAccess(rec)
	evt := bus.Event{Type: bus.EventConsumed, Slug: rec.Slug, Kind: kind, Expiry: rec.Expiry}
	if next != nil {
		evt.RemainingAccesses = next.RemainingAccesses
	}
	s.publish(evt)
	if exhausted {
		s.metrics.IncRecordsExhausted(kind)
		s.publish(bus.Event{Type: bus.EventExhausted, Slug: rec.Slug, Kind: kind})
	}
}

func (s *Service) publish(evt bus.Event) {
	if err := s.events.PublishEvent(evt); err != nil {
		logging.Warn("share", "publish event failed", "type", evt.Type, "slug", evt.Slug, "error", err)
	}
}

// sanitizeName keeps the last path element of an uploaded file name.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "." || name == ".." {
		return ""
	}
	return name
}
