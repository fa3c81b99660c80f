// Package tlv implements the typed field encoding used inside frame
// payloads. Each field is id (u16), type (u8), length (u32), value.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const fieldHeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrTypeMismatch     = errors.New("tlv: field type mismatch")
)

const (
	TypeU32    uint8 = 1
	TypeU64    uint8 = 2
	TypeBool   uint8 = 3
	TypeString uint8 = 4
	TypeBytes  uint8 = 5
)

// Field is one decoded TLV field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

func Bytes(id uint16, v []byte) Field {
	out := make([]byte, len(v))
	copy(out, v)
	return Field{ID: id, Type: TypeBytes, Value: out}
}

func U32(id uint16, v uint32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return Field{ID: id, Type: TypeU32, Value: buf}
}

func U64(id uint16, v uint64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return Field{ID: id, Type: TypeU64, Value: buf}
}

func Bool(id uint16, v bool) Field {
	b := byte(0)
	if v {
		b = 1
	}
	return Field{ID: id, Type: TypeBool, Value: []byte{b}}
}

func (f Field) AsString() (string, error) {
	if f.Type != TypeString {
		return "", fmt.Errorf("%w: field %d: got %d want %d", ErrTypeMismatch, f.ID, f.Type, TypeString)
	}
	return string(f.Value), nil
}

func (f Field) AsU32() (uint32, error) {
	if f.Type != TypeU32 || len(f.Value) != 4 {
		return 0, fmt.Errorf("%w: field %d is not u32", ErrTypeMismatch, f.ID)
	}
	return binary.BigEndian.Uint32(f.Value), nil
}

func (f Field) AsU64() (uint64, error) {
	if f.Type != TypeU64 || len(f.Value) != 8 {
		return 0, fmt.Errorf("%w: field %d is not u64", ErrTypeMismatch, f.ID)
	}
	return binary.BigEndian.Uint64(f.Value), nil
}

func (f Field) AsBool() (bool, error) {
	if f.Type != TypeBool || len(f.Value) != 1 {
		return false, fmt.Errorf("%w: field %d is not bool", ErrTypeMismatch, f.ID)
	}
	return f.Value[0] != 0, nil
}

func Encode(fields []Field) []byte {
	out := make([]byte, 0)
	for _, f := range fields {
		buf := make([]byte, fieldHeaderLen+len(f.Value))
		binary.BigEndian.PutUint16(buf[0:2], f.ID)
		buf[2] = f.Type
		binary.BigEndian.PutUint32(buf[3:7], uint32(len(f.Value)))
		copy(buf[7:], f.Value)
		out = append(out, buf...)
	}
	return out
}

func Decode(payload []byte) ([]Field, error) {
	fields := make([]Field, 0)
	i := 0
	for i < len(payload) {
		if len(payload)-i < fieldHeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += fieldHeaderLen
		if uint32(len(payload)-i) < l {
			return nil, ErrShortFieldValue
		}
		val := make([]byte, l)
		copy(val, payload[i:i+int(l)])
		i += int(l)
		fields = append(fields, Field{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

func Get(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}
