// Package session implements the shell's handle to one daemon
// connection. A session owns its socket exclusively, tracks
// authorization state and never reconnects: once the channel is lost
// the session is terminal and every operation fails closed.
package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"confsh/internal/protocol/frame"
	"confsh/internal/protocol/wire"
)

// State is the session connection/authorization state.
type State int

const (
	// NotAuthorized is the initial state: connected but not yet past
	// the handshake, so no configuration may be forwarded.
	NotAuthorized State = iota
	// Authorized means the handshake succeeded and commits may be sent.
	Authorized
	// Disconnected is terminal: the socket is closed or the protocol
	// broke mid-frame.
	Disconnected
)

func (s State) String() string {
	switch s {
	case NotAuthorized:
		return "not-authorized"
	case Authorized:
		return "authorized"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrInvalidHandle  = errors.New("session: invalid socket handle")
	ErrNotConnected   = errors.New("session: not connected")
	ErrConnectionLost = errors.New("session: connection lost")
	ErrNotAuthorized  = errors.New("session: not authorized")
	ErrRejected       = errors.New("session: handshake rejected")
)

// Config defines session timing behavior.
type Config struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     15 * time.Second,
	}
}

// Session is one connection to the configuration daemon.
type Session struct {
	conn     net.Conn
	state    State
	cfg      Config
	limits   frame.Limits
	seq      uint64
	onNotify func(wire.Notify)
}

// New adopts an established connection. The session takes exclusive
// ownership of conn.
func New(conn net.Conn, cfg Config) *Session {
	return &Session{
		conn:   conn,
		state:  NotAuthorized,
		cfg:    cfg,
		limits: frame.DefaultLimits(),
	}
}

// NewFromFD adopts an already-established socket by descriptor.
func NewFromFD(fd int, cfg Config) (*Session, error) {
	if fd < 0 {
		return nil, fmt.Errorf("%w: fd %d", ErrInvalidHandle, fd)
	}
	file := os.NewFile(uintptr(fd), "confd-socket")
	conn, err := net.FileConn(file)
	// net.FileConn dups the descriptor; the intermediate file is ours
	// to close either way.
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, err)
	}
	return New(conn, cfg), nil
}

// Dial connects to the daemon socket path and returns an unauthorized
// session.
func Dial(path string, cfg Config) (*Session, error) {
	conn, err := net.DialTimeout("unix", path, cfg.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("session: dial %s: %w", path, err)
	}
	return New(conn, cfg), nil
}

func (s *Session) State() State {
	if s == nil {
		return Disconnected
	}
	return s.state
}

// Connected reports whether the channel is still usable.
func (s *Session) Connected() bool {
	return s != nil && s.state != Disconnected
}

// Conn exposes the underlying connection for multiplexing with other
// input; the caller must not read or write through it.
func (s *Session) Conn() net.Conn {
	if s == nil {
		return nil
	}
	return s.conn
}

// OnNotify installs the handler for daemon-initiated notify frames
// observed while waiting for an ack.
func (s *Session) OnNotify(fn func(wire.Notify)) {
	s.onNotify = fn
}

// Authorize performs the hello exchange. On acceptance the session
// becomes Authorized; a rejection leaves it NotAuthorized so the
// caller can report and tear down.
func (s *Session) Authorize(hello wire.Hello) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	hello.ProtoVersion = uint32(frame.Version)
	seq := s.nextSeq()
	f, err := wire.EncodeHello(seq, hello)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(s.cfg.HandshakeTimeout)
	if err := s.sendDeadline(f, deadline); err != nil {
		return err
	}
	resp, err := s.receiveDeadline(deadline)
	if err != nil {
		return err
	}
	ack, err := wire.DecodeHelloAck(resp)
	if err != nil {
		s.markLost()
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if !ack.Accepted() {
		return fmt.Errorf("%w: code=%d %s", ErrRejected, ack.Code, ack.Message)
	}
	s.state = Authorized
	log.Debug().Str("state", s.state.String()).Msg("session authorized")
	return nil
}

// Commit submits one configuration delta and blocks for its ack.
// Exactly one commit is in flight at a time; ordering across commits
// is the caller's loop discipline plus this blocking contract.
func (s *Session) Commit(delta wire.Delta) (wire.Ack, error) {
	if !s.Connected() {
		return wire.Ack{}, ErrNotConnected
	}
	if s.state != Authorized {
		return wire.Ack{}, ErrNotAuthorized
	}
	seq := s.nextSeq()
	f, err := wire.EncodeCommit(seq, delta)
	if err != nil {
		return wire.Ack{}, err
	}
	if err := s.Send(f); err != nil {
		return wire.Ack{}, err
	}
	for {
		resp, err := s.Receive()
		if err != nil {
			return wire.Ack{}, err
		}
		if n, err := wire.DecodeNotify(resp); err == nil {
			if s.onNotify != nil {
				s.onNotify(n)
			}
			continue
		}
		if resp.Header.Seq != seq {
			s.markLost()
			return wire.Ack{}, fmt.Errorf("%w: ack seq %d for commit %d", ErrConnectionLost, resp.Header.Seq, seq)
		}
		ack, err := wire.DecodeCommitAck(resp)
		if err != nil {
			s.markLost()
			return wire.Ack{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		return ack, nil
	}
}

// Send writes one frame. Fails with ErrNotConnected on a disconnected
// session without touching the socket.
func (s *Session) Send(f frame.Frame) error {
	return s.sendDeadline(f, deadlineFrom(s.cfg.WriteTimeout))
}

// Receive reads one frame. Fails with ErrNotConnected on a
// disconnected session without touching the socket.
func (s *Session) Receive() (frame.Frame, error) {
	return s.receiveDeadline(deadlineFrom(s.cfg.ReadTimeout))
}

func (s *Session) sendDeadline(f frame.Frame, deadline time.Time) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		s.markLost()
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if err := frame.WriteFrame(s.conn, f, s.limits); err != nil {
		if errors.Is(err, frame.ErrPayloadTooLarge) {
			return err
		}
		s.markLost()
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

func (s *Session) receiveDeadline(deadline time.Time) (frame.Frame, error) {
	if !s.Connected() {
		return frame.Frame{}, ErrNotConnected
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		s.markLost()
		return frame.Frame{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	f, err := frame.ReadFrame(s.conn, s.limits)
	if err != nil {
		s.markLost()
		if errors.Is(err, io.EOF) || errors.Is(err, frame.ErrShortHeader) {
			return frame.Frame{}, fmt.Errorf("%w: peer closed", ErrConnectionLost)
		}
		return frame.Frame{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return f, nil
}

// Close releases the socket. Idempotent and safe on a nil session.
func (s *Session) Close() error {
	if s == nil || s.state == Disconnected {
		return nil
	}
	if s.state == Authorized {
		if f, err := wire.EncodeBye(s.nextSeq()); err == nil {
			_ = s.sendDeadline(f, deadlineFrom(s.cfg.WriteTimeout))
		}
	}
	if s.state == Disconnected {
		// The bye attempt already tore the session down.
		return nil
	}
	s.state = Disconnected
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Session) markLost() {
	if s.state == Disconnected {
		return
	}
	s.state = Disconnected
	if s.conn != nil {
		_ = s.conn.Close()
	}
	log.Debug().Msg("session disconnected")
}

func (s *Session) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func deadlineFrom(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
