package share

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shrekd/shrekd/core/infra/codec"
)

func TestRecordRoundTrip(t *testing.T) {
	expiry := time.Date(2030, 1, 2, 3, 4, 5, 6, time.UTC)
	records := []*Record{
		{Slug: "file1", Payload: &FilePayload{Name: "report.pdf", Path: "/data/file1", Size: 1234}, RemainingAccesses: u32(3), Expiry: &expiry},
		{Slug: "url1", Payload: &URLPayload{Target: "https://example.com/a?b=c"}},
		{Slug: "paste1", Payload: &PastePayload{Body: "héllo\nwörld"}, Expiry: &expiry},
		{Slug: "empty", Payload: &PastePayload{Body: ""}, RemainingAccesses: u32(1)},
	}
	for _, rec := range records {
		data, err := EncodeRecord(rec)
		if err != nil {
			t.Fatalf("%s: encode: %v", rec.Slug, err)
		}
		got, err := DecodeRecord(data)
		if err != nil {
			t.Fatalf("%s: decode: %v", rec.Slug, err)
		}
		if !reflect.DeepEqual(got, rec) {
			t.Fatalf("%s: round trip mismatch\n got %#v\nwant %#v", rec.Slug, got, rec)
		}
	}
}

func TestRecordRoundTripFarFutureExpiry(t *testing.T) {
	for _, expiry := range []time.Time{
		time.Date(2300, 6, 1, 12, 0, 0, 123456789, time.UTC),
		time.Unix(1e10, 0).UTC(),
		time.Date(1960, 1, 1, 0, 0, 0, 5, time.UTC),
	} {
		rec := &Record{Slug: "far", Payload: &PastePayload{Body: "x"}, Expiry: &expiry}
		data, err := EncodeRecord(rec)
		if err != nil {
			t.Fatalf("%s: encode: %v", expiry, err)
		}
		got, err := DecodeRecord(data)
		if err != nil {
			t.Fatalf("%s: decode: %v", expiry, err)
		}
		if got.Expiry == nil || !got.Expiry.Equal(expiry) {
			t.Fatalf("expiry %s decoded as %v", expiry, got.Expiry)
		}
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	rec := &Record{Slug: "abc", Payload: &URLPayload{Target: "http://x"}, RemainingAccesses: u32(2)}
	a, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, _ := EncodeRecord(rec)
	if string(a) != string(b) {
		t.Fatalf("encoding not deterministic")
	}
}

func TestEncodeRequiresPayload(t *testing.T) {
	_, err := EncodeRecord(&Record{Slug: "x"})
	var serr *SerializationError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SerializationError, got %v", err)
	}
}

func TestDecodeRejectsMismatchedKind(t *testing.T) {
	body := "text"
	data, err := codec.Marshal(wireRecord{Slug: "x", Kind: KindURL, Paste: &body})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	_, err = DecodeRecord(data)
	var serr *SerializationError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SerializationError, got %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeRecord([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Fatalf("expected error for garbage")
	}
}
