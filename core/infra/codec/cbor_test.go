package codec

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Kind  string  `cbor:"kind"`
	Count *uint32 `cbor:"count,omitempty"`
	Tags  map[string]string
}

func TestMarshalDeterministic(t *testing.T) {
	v := sample{Kind: "paste", Tags: map[string]string{"b": "2", "a": "1", "c": "3"}}
	first, err := Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding is not deterministic")
		}
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	type wider struct {
		Kind  string `cbor:"kind"`
		Extra string `cbor:"extra"`
	}
	data, err := Marshal(wider{Kind: "url", Extra: "future"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got sample
	if err := Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != "url" {
		t.Fatalf("unexpected kind %q", got.Kind)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var got sample
	if err := Unmarshal([]byte{0xff, 0x00, 0x13}, &got); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := Diagnose(data)
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if !strings.Contains(out, `"n": 1`) {
		t.Fatalf("unexpected diagnostic notation: %s", out)
	}
}
