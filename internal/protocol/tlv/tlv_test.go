package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeFields(t *testing.T) {
	in := []Field{
		String(1, "set mtu"),
		U32(2, 9000),
		U64(3, 7),
		Bool(4, true),
		Bytes(5, []byte{0xDE, 0xAD}),
	}
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("field count: got %d want %d", len(out), len(in))
	}
	if s, _ := out[0].AsString(); s != "set mtu" {
		t.Fatalf("string field: %q", s)
	}
	if v, _ := out[1].AsU32(); v != 9000 {
		t.Fatalf("u32 field: %d", v)
	}
	if v, _ := out[2].AsU64(); v != 7 {
		t.Fatalf("u64 field: %d", v)
	}
	if v, _ := out[3].AsBool(); !v {
		t.Fatal("bool field false")
	}
	if !bytes.Equal(out[4].Value, []byte{0xDE, 0xAD}) {
		t.Fatalf("bytes field: %x", out[4].Value)
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	_, err := Decode([]byte{0, 1, 4})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeTruncatedValue(t *testing.T) {
	enc := Encode([]Field{String(1, "abcdef")})
	_, err := Decode(enc[:len(enc)-2])
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestTypeMismatch(t *testing.T) {
	f := String(1, "nope")
	if _, err := f.AsU32(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestGet(t *testing.T) {
	fields := []Field{String(1, "a"), String(9, "b")}
	if f, ok := Get(fields, 9); !ok || string(f.Value) != "b" {
		t.Fatalf("get 9: ok=%v value=%q", ok, f.Value)
	}
	if _, ok := Get(fields, 2); ok {
		t.Fatal("get 2 should miss")
	}
}
