package source

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestPushFilesConsumedInPushOrder(t *testing.T) {
	dir := t.TempDir()
	var st Stack
	for _, name := range []string{"a", "b", "c"} {
		path := writeFile(t, dir, name, name+"-line\n")
		if err := st.PushFile(path, false); err != nil {
			t.Fatalf("push %s: %v", name, err)
		}
	}

	var lines []string
	for st.Len() > 0 {
		line, err := st.Current().ReadLine()
		if errors.Is(err, io.EOF) {
			if err := st.Pop(); err != nil {
				t.Fatalf("pop: %v", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		lines = append(lines, line)
	}
	want := []string{"a-line", "b-line", "c-line"}
	if len(lines) != len(want) {
		t.Fatalf("lines: %v", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: got %q want %q", i, lines[i], want[i])
		}
	}
}

func TestPushFileUnreadable(t *testing.T) {
	var st Stack
	err := st.PushFile(filepath.Join(t.TempDir(), "missing"), true)
	if !errors.Is(err, ErrCannotOpen) {
		t.Fatalf("expected ErrCannotOpen, got %v", err)
	}
	if st.Len() != 0 {
		t.Fatal("failed push left a source on the stack")
	}
}

func TestReadLineTracksLineNumbers(t *testing.T) {
	var st Stack
	st.PushStream(strings.NewReader("one\ntwo\nthree\n"), "stdin", false)
	src := st.Current()
	for i := 1; i <= 3; i++ {
		if _, err := src.ReadLine(); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if src.Line() != i {
			t.Fatalf("line counter: got %d want %d", src.Line(), i)
		}
	}
	if _, err := src.ReadLine(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestStreamSourceCarriesPolicyAndName(t *testing.T) {
	var st Stack
	st.PushStream(strings.NewReader(""), "stdin", true)
	src := st.Current()
	if src.Name() != "stdin" || !src.StopOnError() {
		t.Fatalf("source attrs: name=%q stop=%v", src.Name(), src.StopOnError())
	}
}

func TestCloseReleasesAllRemaining(t *testing.T) {
	dir := t.TempDir()
	var st Stack
	for _, name := range []string{"x", "y"} {
		if err := st.PushFile(writeFile(t, dir, name, ""), false); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	st.Close()
	if st.Len() != 0 {
		t.Fatal("stack not drained by Close")
	}
}

func TestPopOnEmptyStack(t *testing.T) {
	var st Stack
	if err := st.Pop(); err != nil {
		t.Fatalf("pop empty: %v", err)
	}
}
