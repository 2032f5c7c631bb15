package share

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/shrekd/shrekd/core/infra/bus"
	"github.com/shrekd/shrekd/core/infra/filestore"
)

type recordingPublisher struct {
	events []bus.Event
}

func (p *recordingPublisher) PublishEvent(evt bus.Event) error {
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	out := make([]string, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.Type)
	}
	return out
}

type serviceFixture struct {
	svc    *Service
	store  *RedisStore
	files  *filestore.Store
	srv    *miniredis.Miniredis
	events *recordingPublisher
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store, srv := newTestStore(t)
	base := t.TempDir()
	files, err := filestore.New(filepath.Join(base, "data"), filepath.Join(base, "tmp"))
	if err != nil {
		t.Fatalf("filestore: %v", err)
	}
	curve, err := NewRetentionCurve(60, 3600, 1024)
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	events := &recordingPublisher{}
	svc, err := NewService(Options{
		Store:  store,
		Files:  files,
		Slugs:  NewSlugAllocator(8),
		Curve:  curve,
		Limits: Limits{File: 1024, Paste: 64, URL: 128},
		Events: events,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return &serviceFixture{svc: svc, store: store, files: files, srv: srv, events: events}
}

func (f *serviceFixture) createFile(t *testing.T, name, body string, settings Settings) *Record {
	t.Helper()
	staged, err := f.svc.StageFile(strings.NewReader(body))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	rec, err := f.svc.CreateFile(context.Background(), name, staged, settings)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	return rec
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	if _, err := NewService(Options{}); err == nil {
		t.Fatalf("expected error for missing collaborators")
	}
}

func TestCreatePasteAndFetch(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec, err := f.svc.CreatePaste(ctx, "hello", Settings{})
	if err != nil {
		t.Fatalf("create paste: %v", err)
	}
	if len(rec.Slug) != 8 || rec.Expiry != nil {
		t.Fatalf("unexpected record %+v", rec)
	}
	got, err := f.svc.FetchAndConsume(ctx, rec.Slug)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer got.Close()
	if got.File != nil {
		t.Fatalf("paste must not carry a file handle")
	}
	if got.Record.Payload.(*PastePayload).Body != "hello" {
		t.Fatalf("unexpected payload %+v", got.Record.Payload)
	}
	if types := f.events.types(); len(types) != 2 || types[0] != bus.EventCreated || types[1] != bus.EventConsumed {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestCreatePasteValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	if _, err := f.svc.CreatePaste(ctx, string([]byte{0xff, 0xfe}), Settings{}); err == nil {
		t.Fatalf("expected error for invalid utf-8")
	} else {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	}
	if _, err := f.svc.CreatePaste(ctx, strings.Repeat("x", 65), Settings{}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := f.svc.CreatePaste(ctx, "x", Settings{MaxAccesses: u32(0)}); err == nil {
		t.Fatalf("expected error for zero max accesses")
	}
}

func TestCreateURLValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	for _, raw := range []string{"", "ftp://example.com", "example.com", "http://", "https:///path", "::::"} {
		_, err := f.svc.CreateURL(ctx, raw, Settings{})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%q: expected ValidationError, got %v", raw, err)
		}
	}
	rec, err := f.svc.CreateURL(ctx, " https://example.com/x?y=1 ", Settings{})
	if err != nil {
		t.Fatalf("create url: %v", err)
	}
	if rec.Payload.(*URLPayload).Target != "https://example.com/x?y=1" {
		t.Fatalf("unexpected target %+v", rec.Payload)
	}
}

func TestMaxAccessesExhaust(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec, err := f.svc.CreateURL(ctx, "http://example.com", Settings{MaxAccesses: u32(2)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 2; i++ {
		got, err := f.svc.FetchAndConsume(ctx, rec.Slug)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		got.Close()
	}
	if _, err := f.svc.FetchAndConsume(ctx, rec.Slug); !IsNotFound(err) {
		t.Fatalf("expected NotFound after exhaustion, got %v", err)
	}
	last := f.events.events[len(f.events.events)-1]
	if last.Type != bus.EventExhausted {
		t.Fatalf("expected exhausted event, got %s", last.Type)
	}
}

func TestCustomSlug(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec, err := f.svc.CreatePaste(ctx, "a", Settings{CustomSlug: "my-note"})
	if err != nil || rec.Slug != "my-note" {
		t.Fatalf("expected custom slug, got %+v %v", rec, err)
	}
	again, err := f.svc.CreatePaste(ctx, "b", Settings{CustomSlug: "my-note"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if again.Slug == "my-note" {
		t.Fatalf("taken custom slug must fall back to a generated one")
	}
	got, err := f.store.Fetch(ctx, "my-note")
	if err != nil || got.Payload.(*PastePayload).Body != "a" {
		t.Fatalf("original record was touched: %+v %v", got, err)
	}
}

func TestExpireInZeroIsUnreachable(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec, err := f.svc.CreatePaste(ctx, "gone soon", Settings{ExpireIn: u64(0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.srv.FastForward(time.Second)
	if f.srv.Exists(Key("shrekd", rec.Slug)) {
		t.Fatalf("expected key swept by TTL")
	}
	if _, err := f.svc.FetchAndConsume(ctx, rec.Slug); !IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestFarFutureExpiryStaysReadable(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	at := time.Unix(1e10, 0)
	far := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []Settings{
		{ExpiryAt: &at},
		{ExpireIn: u64(9e9)},
		{ExpiryAt: &far},
	}
	for i, settings := range cases {
		rec, err := f.svc.CreatePaste(ctx, "long lived", settings)
		if err != nil {
			t.Fatalf("case %d: create: %v", i, err)
		}
		if rec.Expiry == nil || !rec.Expiry.After(time.Now().Add(200*365*24*time.Hour)) {
			t.Fatalf("case %d: unexpected expiry %v", i, rec.Expiry)
		}
		got, err := f.svc.FetchAndConsume(ctx, rec.Slug)
		if err != nil {
			t.Fatalf("case %d: fetch: %v", i, err)
		}
		if !got.Record.Expiry.Equal(*rec.Expiry) {
			t.Fatalf("case %d: stored expiry %s, created with %s", i, got.Record.Expiry, rec.Expiry)
		}
		if ttl := f.srv.TTL(Key(f.store.Prefix(), rec.Slug)); ttl <= 0 {
			t.Fatalf("case %d: expected a positive ttl, got %s", i, ttl)
		}
	}
}

func TestCreateFile(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec := f.createFile(t, "../../report.txt", "file body", Settings{MaxAccesses: u32(1)})

	payload := rec.Payload.(*FilePayload)
	if payload.Name != "report.txt" || payload.Size != 9 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Path != f.files.Path(rec.Slug) {
		t.Fatalf("unexpected path %s", payload.Path)
	}
	if rec.Expiry == nil {
		t.Fatalf("file records always expire")
	}
	if limit := time.Now().Add(3600 * time.Second); rec.Expiry.After(limit) {
		t.Fatalf("expiry %s beyond retention cap", rec.Expiry)
	}

	got, err := f.svc.FetchAndConsume(ctx, rec.Slug)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	body, err := io.ReadAll(got.File)
	if err != nil || string(body) != "file body" {
		t.Fatalf("unexpected body %q %v", body, err)
	}
	if err := got.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if f.srv.Exists(Key("shrekd", rec.Slug)) {
		t.Fatalf("record should be exhausted")
	}
}

func TestCreateFileTooLarge(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.StageFile(bytes.NewReader(make([]byte, 1025))); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestCreateFileChecksumMismatchAccepted(t *testing.T) {
	f := newServiceFixture(t)
	rec := f.createFile(t, "a.bin", "abc", Settings{Checksum: "deadbeef"})
	if _, err := os.Stat(f.files.Path(rec.Slug)); err != nil {
		t.Fatalf("file should be stored despite checksum mismatch: %v", err)
	}
}

func TestCreateFileInvalidSettingsDiscardsUpload(t *testing.T) {
	f := newServiceFixture(t)
	staged, err := f.svc.StageFile(strings.NewReader("x"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	_, err = f.svc.CreateFile(context.Background(), "a", staged, Settings{MaxAccesses: u32(0)})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := os.Stat(staged.Path); !os.IsNotExist(err) {
		t.Fatalf("staged upload should be discarded, got %v", err)
	}
}

func TestFetchFileMissingOnDisk(t *testing.T) {
	f := newServiceFixture(t)
	rec := f.createFile(t, "a.bin", "abc", Settings{MaxAccesses: u32(2)})
	if err := os.Remove(f.files.Path(rec.Slug)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := f.svc.FetchAndConsume(context.Background(), rec.Slug); !IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	left, _ := f.store.Fetch(context.Background(), rec.Slug)
	if left == nil || *left.RemainingAccesses != 2 {
		t.Fatalf("failed read must not consume an access: %+v", left)
	}
}

func TestFetchInvalidSlug(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.FetchAndConsume(context.Background(), "../x"); !IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestFetchStorageError(t *testing.T) {
	f := newServiceFixture(t)
	f.srv.Close()
	_, err := f.svc.FetchAndConsume(context.Background(), "abc")
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"a.txt":          "a.txt",
		"dir/b.txt":      "b.txt",
		`C:\tmp\c.txt`:   "c.txt",
		"..":             "",
		"  spaced.txt  ": "spaced.txt",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Fatalf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
