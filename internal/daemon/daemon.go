// Package daemon implements the confd reference daemon: it accepts
// shell sessions on a unix domain socket, authorizes them, and applies
// their configuration deltas strictly in arrival order.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"confsh/internal/auth"
	"confsh/internal/config"
	"confsh/internal/protocol/frame"
	"confsh/internal/protocol/schema"
	"confsh/internal/protocol/wire"
)

const (
	handshakeTimeout = 5 * time.Second
	// Idle sessions are dropped after this long without a frame.
	readTimeout  = 10 * time.Minute
	writeTimeout = 15 * time.Second
)

// Server is the daemon's socket front end.
type Server struct {
	path      string
	validator auth.Validator
	sameUser  bool
	store     *Store
	limits    frame.Limits

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer binds the daemon socket, replacing a stale one.
func NewServer(ctx context.Context, cfg config.DaemonConfig, store *Store) (*Server, error) {
	if store == nil {
		store = NewStore()
	}
	if err := os.RemoveAll(cfg.Socket); err != nil {
		return nil, fmt.Errorf("daemon: remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", cfg.Socket)
	if err != nil {
		return nil, fmt.Errorf("daemon: listen on %s: %w", cfg.Socket, err)
	}

	var validator auth.Validator = auth.Open{}
	if cfg.Token != "" {
		validator = auth.StaticToken{Token: cfg.Token}
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      cfg.Socket,
		validator: validator,
		sameUser:  cfg.RequireSameUser,
		store:     store,
		limits:    frame.DefaultLimits(),
		listener:  listener,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

func (s *Server) Store() *Store { return s.store }

// SocketPath returns the bound socket path.
func (s *Server) SocketPath() string { return s.path }

// Serve accepts connections until the context is canceled or Close is
// called.
func (s *Server) Serve() {
	log.Debug().Str("socket", s.path).Msg("daemon listening")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				log.Warn().Err(err).Msg("accept failed")
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer c.Close()
				s.handleConn(c)
			}(conn)
		}
	}()
}

// Close stops accepting, waits for in-flight sessions, and removes the
// socket.
func (s *Server) Close() error {
	s.cancel()
	err := s.listener.Close()
	s.wg.Wait()
	_ = os.RemoveAll(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	client, err := s.handshake(conn)
	if err != nil {
		log.Debug().Err(err).Msg("handshake failed")
		return
	}
	log.Info().Str("client", client).Msg("session authorized")

	for {
		if s.ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		f, err := frame.ReadFrame(conn, s.limits)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, frame.ErrShortHeader) {
				log.Debug().Str("client", client).Err(err).Msg("session read failed")
			}
			return
		}
		switch f.Header.MessageType {
		case schema.MsgCommit:
			if err := s.handleCommit(conn, client, f); err != nil {
				return
			}
		case schema.MsgBye:
			log.Debug().Str("client", client).Msg("session closed by peer")
			return
		default:
			log.Debug().Str("client", client).Uint16("type", f.Header.MessageType).Msg("unexpected message")
			return
		}
	}
}

func (s *Server) handshake(conn net.Conn) (string, error) {
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	f, err := frame.ReadFrame(conn, s.limits)
	if err != nil {
		return "", err
	}
	if f.Header.MessageType != schema.MsgHello {
		return "", fmt.Errorf("daemon: expected hello, got type %d", f.Header.MessageType)
	}
	hello, err := wire.DecodeHello(f)
	if err != nil {
		return "", err
	}

	reject := func(code uint32, msg string) (string, error) {
		ackFrame, encErr := wire.EncodeHelloAck(f.Header.Seq, wire.Ack{
			Status:  wire.AckStatusRejected,
			Code:    code,
			Message: msg,
		})
		if encErr == nil {
			_ = frame.WriteFrame(conn, ackFrame, s.limits)
		}
		return "", fmt.Errorf("daemon: rejected %s: %s", hello.ClientName, msg)
	}

	if f.Header.Version != frame.Version || hello.ProtoVersion != uint32(frame.Version) {
		return reject(wire.CodeVersionMismatch, fmt.Sprintf("unsupported protocol version %d", hello.ProtoVersion))
	}
	if s.sameUser {
		cred, err := auth.PeerCredFromConn(conn)
		if err != nil {
			return reject(wire.CodeUnauthorized, "peer credentials unavailable")
		}
		if err := auth.SameUserOrRoot(cred); err != nil {
			return reject(wire.CodeUnauthorized, "peer not permitted")
		}
	}
	if err := s.validator.Validate(hello.Token); err != nil {
		return reject(wire.CodeUnauthorized, "bad token")
	}

	ackFrame, err := wire.EncodeHelloAck(f.Header.Seq, wire.Ack{
		Status: wire.AckStatusAccepted,
		Code:   wire.CodeOK,
	})
	if err != nil {
		return "", err
	}
	if err := frame.WriteFrame(conn, ackFrame, s.limits); err != nil {
		return "", err
	}
	return hello.ClientName, nil
}

func (s *Server) handleCommit(conn net.Conn, client string, f frame.Frame) error {
	ack := wire.Ack{Status: wire.AckStatusAccepted, Code: wire.CodeOK}
	delta, err := wire.DecodeCommit(f)
	if err != nil {
		ack = wire.Ack{Status: wire.AckStatusRejected, Code: wire.CodeBadDelta, Message: err.Error()}
	} else if _, err := s.store.Apply(client, delta); err != nil {
		ack = wire.Ack{Status: wire.AckStatusRejected, Code: wire.CodeBadDelta, Message: err.Error()}
	}

	ackFrame, err := wire.EncodeCommitAck(f.Header.Seq, ack)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := frame.WriteFrame(conn, ackFrame, s.limits); err != nil {
		return err
	}
	if ack.Accepted() {
		log.Debug().
			Str("client", client).
			Str("op", delta.Op).
			Str("path", delta.Path).
			Msg("delta applied")
	}
	return nil
}
