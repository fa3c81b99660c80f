package auth

import (
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

var ErrNoPeerCred = errors.New("auth: peer credentials unavailable")

// PeerCred holds the identity of the process on the other end of a
// unix domain socket.
type PeerCred struct {
	PID int32
	UID uint32
	GID uint32
}

// PeerCredFromConn reads SO_PEERCRED from a unix socket connection.
func PeerCredFromConn(conn net.Conn) (PeerCred, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return PeerCred{}, ErrNoPeerCred
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return PeerCred{}, fmt.Errorf("%w: %v", ErrNoPeerCred, err)
	}
	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return PeerCred{}, fmt.Errorf("%w: %v", ErrNoPeerCred, err)
	}
	if credErr != nil {
		return PeerCred{}, fmt.Errorf("%w: %v", ErrNoPeerCred, credErr)
	}
	return PeerCred{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, nil
}

// SameUserOrRoot rejects peers that are neither the daemon's own user
// nor root.
func SameUserOrRoot(cred PeerCred) error {
	uid := uint32(os.Getuid())
	if cred.UID == uid || cred.UID == 0 {
		return nil
	}
	return fmt.Errorf("%w: peer uid %d", ErrUnauthorized, cred.UID)
}
