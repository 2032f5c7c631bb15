package reaper

import (
	"context"
	"testing"
	"time"
)

func TestRedisSourceDeliversKeyevents(t *testing.T) {
	_, srv, client := newRedisStore(t)
	ctx := context.Background()

	// miniredis has no CONFIG command, so this also covers the refusal path.
	src, err := NewRedisSource(ctx, client, 0, true)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	defer src.Close()

	if n := srv.Publish("__keyevent@0__:expired", "shrekd:abc"); n != 1 {
		t.Fatalf("expected one subscriber, got %d", n)
	}
	srv.Publish("__keyevent@0__:del", "shrekd:def")

	want := []Event{{Kind: "expired", Key: "shrekd:abc"}, {Kind: "del", Key: "shrekd:def"}}
	for _, w := range want {
		select {
		case got := <-src.Events():
			if got != w {
				t.Fatalf("expected %+v, got %+v", w, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %+v", w)
		}
	}
}

func TestRedisSourceCloseEndsStream(t *testing.T) {
	_, _, client := newRedisStore(t)
	src, err := NewRedisSource(context.Background(), client, 0, false)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = src.Close()
	select {
	case _, ok := <-src.Events():
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("events channel not closed")
	}
}

func TestEventKind(t *testing.T) {
	cases := map[string]string{
		"__keyevent@0__:expired": "expired",
		"__keyevent@3__:del":     "del",
		"plain":                  "plain",
	}
	for in, want := range cases {
		if got := eventKind(in); got != want {
			t.Fatalf("eventKind(%q) = %q, want %q", in, got, want)
		}
	}
}
