package textenc

import (
	"bytes"
	"io"
	"testing"

	"confsh/internal/config"
)

func TestDetectUTF8FromLocale(t *testing.T) {
	t.Setenv("LC_ALL", "en_US.UTF-8")
	if !DetectUTF8() {
		t.Fatal("UTF-8 locale not detected")
	}
	t.Setenv("LC_ALL", "POSIX")
	if DetectUTF8() {
		t.Fatal("POSIX locale detected as UTF-8")
	}
}

func TestDetectPrecedence(t *testing.T) {
	t.Setenv("LC_ALL", "C")
	t.Setenv("LANG", "en_US.UTF-8")
	if DetectUTF8() {
		t.Fatal("LC_ALL=C must win over LANG")
	}
}

func TestResolveAuto(t *testing.T) {
	t.Setenv("LC_ALL", "en_US.UTF-8")
	if Resolve(config.EncodingAuto) != config.EncodingUTF8 {
		t.Fatal("auto with UTF-8 locale")
	}
	t.Setenv("LC_ALL", "C")
	if Resolve(config.EncodingAuto) != config.Encoding8Bit {
		t.Fatal("auto with C locale")
	}
	if Resolve(config.EncodingUTF8) != config.EncodingUTF8 {
		t.Fatal("explicit mode must not consult the locale")
	}
}

func TestReaderLatin1Transform(t *testing.T) {
	// "café" in latin-1: the é is a single 0xE9 byte.
	in := []byte{'c', 'a', 'f', 0xE9, '\n'}
	r := Reader(bytes.NewReader(in), config.Encoding8Bit)
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(out) != "café\n" {
		t.Fatalf("transformed: %q", out)
	}
}

func TestReaderUTF8Passthrough(t *testing.T) {
	in := []byte("café\n")
	r := Reader(bytes.NewReader(in), config.EncodingUTF8)
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("passthrough altered bytes: %q", out)
	}
}
