// Package source manages the ordered command input sources of one
// shell run: batch files named on the command line, or the single
// interactive stream. Sources are consumed front to back; each one
// carries its own stop-on-error policy.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrCannotOpen = errors.New("source: cannot open")

const maxLineBytes = 1024 * 1024

// Source is one stream of command lines.
type Source struct {
	name        string
	stopOnError bool
	closer      io.Closer
	scanner     *bufio.Scanner
	line        int
}

func newSource(r io.Reader, closer io.Closer, name string, stopOnError bool) *Source {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Source{
		name:        name,
		stopOnError: stopOnError,
		closer:      closer,
		scanner:     scanner,
	}
}

func (s *Source) Name() string { return s.name }

// StopOnError reports whether a failing command abandons the rest of
// this source.
func (s *Source) StopOnError() bool { return s.stopOnError }

// Line is the number of the line most recently returned by ReadLine.
func (s *Source) Line() int { return s.line }

// ReadLine returns the next raw command line. io.EOF marks a cleanly
// exhausted source.
func (s *Source) ReadLine() (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	s.line++
	return s.scanner.Text(), nil
}

func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// Stack is the ordered collection of pending sources. The order of
// pushes is the order of consumption.
type Stack struct {
	sources []*Source
}

// PushFile opens path for reading and appends it.
func (st *Stack) PushFile(path string, stopOnError bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCannotOpen, path, err)
	}
	st.sources = append(st.sources, newSource(f, f, path, stopOnError))
	return nil
}

// PushStream adopts an already-open reader, used for the interactive
// case. The stream is not closed when the source is popped unless it
// implements io.Closer.
func (st *Stack) PushStream(r io.Reader, name string, stopOnError bool) {
	closer, _ := r.(io.Closer)
	st.sources = append(st.sources, newSource(r, closer, name, stopOnError))
}

// Current returns the active source, or nil when the stack is empty.
func (st *Stack) Current() *Source {
	if len(st.sources) == 0 {
		return nil
	}
	return st.sources[0]
}

// Pop closes and removes the active source, whether it was exhausted
// or abandoned.
func (st *Stack) Pop() error {
	cur := st.Current()
	if cur == nil {
		return nil
	}
	st.sources = st.sources[1:]
	return cur.Close()
}

func (st *Stack) Len() int { return len(st.sources) }

// Close releases every remaining source. Used on fatal termination so
// open files are not leaked past the loop.
func (st *Stack) Close() {
	for _, s := range st.sources {
		_ = s.Close()
	}
	st.sources = nil
}
