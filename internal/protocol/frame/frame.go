package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Magic identifies a confsh protocol frame on the wire.
	Magic uint32 = 0x43465348 // "CFSH"

	// Version is the protocol version this build speaks.
	Version uint16 = 1

	// HeaderLen is the size of the fixed wire header in bytes.
	HeaderLen = 24

	FlagResponse uint32 = 0x01
	FlagError    uint32 = 0x02
)

var (
	ErrShortHeader     = errors.New("frame: short fixed header")
	ErrBadMagic        = errors.New("frame: bad magic")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Header is the fixed wire header carried by every frame.
type Header struct {
	Magic       uint32
	Version     uint16
	MessageType uint16
	Seq         uint64
	Flags       uint32
	PayloadLen  uint32
}

// Frame is one complete wire message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains decode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 4 * 1024 * 1024}
}

// ReadFrame reads exactly one frame, absorbing short reads. A stream
// that ends before the header completes is reported as ErrShortHeader
// so the caller can treat the connection as lost.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [HeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Magic != Magic {
		return Frame{}, ErrBadMagic
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}

	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame writes one frame. Magic, version and payload length are
// filled in from this build's constants and the payload itself. The
// header and payload go out in a single write so a peer never observes
// a dangling header.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	payloadLen := len(f.Payload)
	if uint64(payloadLen) > uint64(limits.MaxPayloadBytes) {
		return ErrPayloadTooLarge
	}

	h := f.Header
	h.Magic = Magic
	if h.Version == 0 {
		h.Version = Version
	}
	h.PayloadLen = uint32(payloadLen)

	buf := make([]byte, 0, HeaderLen+payloadLen)
	buf = append(buf, EncodeHeader(h)...)
	buf = append(buf, f.Payload...)
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.MessageType)
	binary.BigEndian.PutUint64(buf[8:16], h.Seq)
	binary.BigEndian.PutUint32(buf[16:20], h.Flags)
	binary.BigEndian.PutUint32(buf[20:24], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:       binary.BigEndian.Uint32(b[0:4]),
		Version:     binary.BigEndian.Uint16(b[4:6]),
		MessageType: binary.BigEndian.Uint16(b[6:8]),
		Seq:         binary.BigEndian.Uint64(b[8:16]),
		Flags:       binary.BigEndian.Uint32(b[16:20]),
		PayloadLen:  binary.BigEndian.Uint32(b[20:24]),
	}, nil
}
