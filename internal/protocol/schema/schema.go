// Package schema names the message types and payload fields of the
// confsh/confd protocol and validates required fields per message.
package schema

import (
	"fmt"

	"confsh/internal/protocol/tlv"
)

// Message type IDs.
const (
	MsgHello     uint16 = 1
	MsgHelloAck  uint16 = 2
	MsgCommit    uint16 = 3
	MsgCommitAck uint16 = 4
	MsgNotify    uint16 = 5
	MsgError     uint16 = 6
	MsgBye       uint16 = 7
)

// Field IDs.
const (
	FieldClientName   uint16 = 1
	FieldToken        uint16 = 2
	FieldProtoVersion uint16 = 3

	FieldStatus  uint16 = 100
	FieldCode    uint16 = 101
	FieldMessage uint16 = 102

	FieldOp    uint16 = 200
	FieldPath  uint16 = 201
	FieldValue uint16 = 202
	FieldView  uint16 = 203

	FieldEvent  uint16 = 300
	FieldDetail uint16 = 301
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint16
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint16][]Requirement{
	MsgHello: {
		{FieldClientName, tlv.TypeString},
		{FieldProtoVersion, tlv.TypeU32},
	},
	MsgHelloAck: {
		{FieldStatus, tlv.TypeString},
		{FieldCode, tlv.TypeU32},
	},
	MsgCommit: {
		{FieldOp, tlv.TypeString},
		{FieldPath, tlv.TypeString},
	},
	MsgCommitAck: {
		{FieldStatus, tlv.TypeString},
		{FieldCode, tlv.TypeU32},
	},
	MsgNotify: {
		{FieldEvent, tlv.TypeString},
	},
	MsgError: {
		{FieldCode, tlv.TypeU32},
		{FieldMessage, tlv.TypeString},
	},
	MsgBye: {},
}

// Validate checks that every required field for the message type is
// present with the expected TLV type.
func Validate(messageType uint16, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		return ValidationError{MessageType: messageType, Reason: "unknown message type"}
	}
	for _, req := range reqs {
		f, ok := tlv.Get(fields, req.ID)
		if !ok {
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			return ValidationError{
				MessageType: messageType,
				FieldID:     req.ID,
				Reason:      fmt.Sprintf("type mismatch: got %d want %d", f.Type, req.Type),
			}
		}
	}
	return nil
}
