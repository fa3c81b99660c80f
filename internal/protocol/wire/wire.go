// Package wire defines the typed message envelopes exchanged between
// the shell and the configuration daemon, and their frame encoding.
package wire

import (
	"errors"
	"fmt"
	"strings"

	"confsh/internal/protocol/frame"
	"confsh/internal/protocol/schema"
	"confsh/internal/protocol/tlv"
)

const (
	AckStatusAccepted = "accepted"
	AckStatusRejected = "rejected"
)

// Ack codes reported by the daemon.
const (
	CodeOK              uint32 = 0
	CodeUnauthorized    uint32 = 1
	CodeVersionMismatch uint32 = 2
	CodeBadDelta        uint32 = 3
	CodeInternal        uint32 = 4
)

var (
	ErrInvalidHello  = errors.New("wire: invalid hello")
	ErrInvalidAck    = errors.New("wire: invalid ack")
	ErrInvalidCommit = errors.New("wire: invalid commit")
	ErrInvalidNotify = errors.New("wire: invalid notify")
)

// Hello is the client handshake message.
type Hello struct {
	ClientName   string
	Token        string
	ProtoVersion uint32
}

func (h Hello) Validate() error {
	if strings.TrimSpace(h.ClientName) == "" {
		return fmt.Errorf("%w: missing client name", ErrInvalidHello)
	}
	if h.ProtoVersion == 0 {
		return fmt.Errorf("%w: missing protocol version", ErrInvalidHello)
	}
	return nil
}

// Ack is the daemon response shape shared by hello.ack and commit.ack.
type Ack struct {
	Status  string
	Code    uint32
	Message string
}

func (a Ack) Validate() error {
	if a.Status != AckStatusAccepted && a.Status != AckStatusRejected {
		return fmt.Errorf("%w: invalid status %q", ErrInvalidAck, a.Status)
	}
	return nil
}

func (a Ack) Accepted() bool {
	return a.Status == AckStatusAccepted
}

// Delta is one configuration change submitted to the daemon.
type Delta struct {
	Op    string
	Path  string
	Value string
	View  string
}

func (d Delta) Validate() error {
	if strings.TrimSpace(d.Op) == "" {
		return fmt.Errorf("%w: missing op", ErrInvalidCommit)
	}
	if strings.TrimSpace(d.Path) == "" {
		return fmt.Errorf("%w: missing path", ErrInvalidCommit)
	}
	return nil
}

// Notify is a daemon-initiated event delivered outside the
// request/response exchange.
type Notify struct {
	Event  string
	Detail string
}

func (n Notify) Validate() error {
	if strings.TrimSpace(n.Event) == "" {
		return fmt.Errorf("%w: missing event", ErrInvalidNotify)
	}
	return nil
}

func EncodeHello(seq uint64, hello Hello) (frame.Frame, error) {
	if err := hello.Validate(); err != nil {
		return frame.Frame{}, err
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldClientName, hello.ClientName),
		tlv.U32(schema.FieldProtoVersion, hello.ProtoVersion),
	}
	if hello.Token != "" {
		fields = append(fields, tlv.String(schema.FieldToken, hello.Token))
	}
	return buildFrame(seq, schema.MsgHello, 0, fields)
}

func DecodeHello(f frame.Frame) (Hello, error) {
	fields, err := decodeFields(f, schema.MsgHello)
	if err != nil {
		return Hello{}, err
	}
	version, err := requiredU32(fields, schema.FieldProtoVersion)
	if err != nil {
		return Hello{}, err
	}
	hello := Hello{
		ClientName:   optionalString(fields, schema.FieldClientName),
		Token:        optionalString(fields, schema.FieldToken),
		ProtoVersion: version,
	}
	if err := hello.Validate(); err != nil {
		return Hello{}, err
	}
	return hello, nil
}

func EncodeHelloAck(seq uint64, ack Ack) (frame.Frame, error) {
	return encodeAck(seq, schema.MsgHelloAck, ack)
}

func DecodeHelloAck(f frame.Frame) (Ack, error) {
	return decodeAck(f, schema.MsgHelloAck)
}

func EncodeCommit(seq uint64, delta Delta) (frame.Frame, error) {
	if err := delta.Validate(); err != nil {
		return frame.Frame{}, err
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldOp, delta.Op),
		tlv.String(schema.FieldPath, delta.Path),
	}
	if delta.Value != "" {
		fields = append(fields, tlv.String(schema.FieldValue, delta.Value))
	}
	if delta.View != "" {
		fields = append(fields, tlv.String(schema.FieldView, delta.View))
	}
	return buildFrame(seq, schema.MsgCommit, 0, fields)
}

func DecodeCommit(f frame.Frame) (Delta, error) {
	fields, err := decodeFields(f, schema.MsgCommit)
	if err != nil {
		return Delta{}, err
	}
	delta := Delta{
		Op:    optionalString(fields, schema.FieldOp),
		Path:  optionalString(fields, schema.FieldPath),
		Value: optionalString(fields, schema.FieldValue),
		View:  optionalString(fields, schema.FieldView),
	}
	if err := delta.Validate(); err != nil {
		return Delta{}, err
	}
	return delta, nil
}

func EncodeCommitAck(seq uint64, ack Ack) (frame.Frame, error) {
	return encodeAck(seq, schema.MsgCommitAck, ack)
}

func DecodeCommitAck(f frame.Frame) (Ack, error) {
	return decodeAck(f, schema.MsgCommitAck)
}

func EncodeNotify(seq uint64, n Notify) (frame.Frame, error) {
	if err := n.Validate(); err != nil {
		return frame.Frame{}, err
	}
	fields := []tlv.Field{tlv.String(schema.FieldEvent, n.Event)}
	if n.Detail != "" {
		fields = append(fields, tlv.String(schema.FieldDetail, n.Detail))
	}
	return buildFrame(seq, schema.MsgNotify, 0, fields)
}

func DecodeNotify(f frame.Frame) (Notify, error) {
	fields, err := decodeFields(f, schema.MsgNotify)
	if err != nil {
		return Notify{}, err
	}
	n := Notify{
		Event:  optionalString(fields, schema.FieldEvent),
		Detail: optionalString(fields, schema.FieldDetail),
	}
	if err := n.Validate(); err != nil {
		return Notify{}, err
	}
	return n, nil
}

func EncodeBye(seq uint64) (frame.Frame, error) {
	return buildFrame(seq, schema.MsgBye, 0, nil)
}

func encodeAck(seq uint64, messageType uint16, ack Ack) (frame.Frame, error) {
	if err := ack.Validate(); err != nil {
		return frame.Frame{}, err
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldStatus, ack.Status),
		tlv.U32(schema.FieldCode, ack.Code),
	}
	if ack.Message != "" {
		fields = append(fields, tlv.String(schema.FieldMessage, ack.Message))
	}
	flags := frame.FlagResponse
	if !ack.Accepted() {
		flags |= frame.FlagError
	}
	return buildFrame(seq, messageType, flags, fields)
}

func decodeAck(f frame.Frame, messageType uint16) (Ack, error) {
	fields, err := decodeFields(f, messageType)
	if err != nil {
		return Ack{}, err
	}
	code, err := requiredU32(fields, schema.FieldCode)
	if err != nil {
		return Ack{}, err
	}
	ack := Ack{
		Status:  optionalString(fields, schema.FieldStatus),
		Code:    code,
		Message: optionalString(fields, schema.FieldMessage),
	}
	if err := ack.Validate(); err != nil {
		return Ack{}, err
	}
	return ack, nil
}

func buildFrame(seq uint64, messageType uint16, flags uint32, fields []tlv.Field) (frame.Frame, error) {
	if err := schema.Validate(messageType, fields); err != nil {
		return frame.Frame{}, err
	}
	return frame.Frame{
		Header: frame.Header{
			MessageType: messageType,
			Seq:         seq,
			Flags:       flags,
		},
		Payload: tlv.Encode(fields),
	}, nil
}

func decodeFields(f frame.Frame, messageType uint16) ([]tlv.Field, error) {
	if f.Header.MessageType != messageType {
		return nil, fmt.Errorf("wire: message type mismatch: got %d want %d", f.Header.MessageType, messageType)
	}
	fields, err := tlv.Decode(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func optionalString(fields []tlv.Field, id uint16) string {
	f, ok := tlv.Get(fields, id)
	if !ok {
		return ""
	}
	return string(f.Value)
}

func requiredU32(fields []tlv.Field, id uint16) (uint32, error) {
	f, ok := tlv.Get(fields, id)
	if !ok {
		return 0, fmt.Errorf("wire: missing field %d", id)
	}
	return f.AsU32()
}
