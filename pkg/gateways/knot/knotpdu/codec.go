// Package knotpdu implements the binary KNOT PDU wire format: a
// 2-byte header (type, payload length) followed by a variant body
// keyed by message type. All multi-byte integers are little-endian.
// UUID and token fields are fixed-length and zero-padded; device and
// sensor names are variable-length trailing fields. No string is
// null-terminated on the wire.
package knotpdu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	HeaderSize = 2
	// MaxPDUSize is the size a caller's output buffer must meet or
	// exceed before the dispatcher will attempt to write a reply.
	MaxPDUSize = 128

	MaxDeviceNameSize = 63
	MaxSensorNameSize = 23
	UUIDSize          = 36
	TokenSize         = 40
)

// Message type tags. Register/unregister/auth/schema each have a
// request and a response tag; DATA_RESP is overloaded by direction,
// as in the original protocol: inbound it is the node's response to a
// previously pushed set-data, outbound it is the gateway's reply to
// an inbound DATA. Decode tells them apart by length: a one-byte
// DATA_RESP payload decodes as Result, a longer one as DataBody.
const (
	TypeRegisterReq uint8 = 0x01 + iota
	TypeRegisterResp
	TypeUnregisterReq
	TypeUnregisterResp
	TypeAuthReq
	TypeAuthResp
	TypeSchema
	TypeSchemaResp
	TypeSchemaEnd
	TypeSchemaEndResp
	TypeData
	TypeDataResp
	TypeConfigResp
)

var (
	ErrInvalidLength  = errors.New("knotpdu: input shorter than required for this message type")
	ErrLengthMismatch = errors.New("knotpdu: payload_len does not match input length")
)

// Header is the fixed 2-byte PDU prefix.
type Header struct {
	Type       uint8
	PayloadLen uint8
}

// Body is implemented by every decoded/encoded PDU variant payload.
// A nil Body encodes to an empty payload.
type Body interface {
	marshal() []byte
}

// RegisterReq is the node's device registration request.
type RegisterReq struct {
	DeviceID   uint64
	DeviceName string // variable length, 0..63 bytes as received
}

func (b RegisterReq) marshal() []byte {
	name := truncate(b.DeviceName, MaxDeviceNameSize)
	buf := make([]byte, 8+len(name))
	binary.LittleEndian.PutUint64(buf[0:8], b.DeviceID)
	copy(buf[8:], name)
	return buf
}

// Credential carries a UUID/token pair: REGISTER_RESP's payload on the
// way out, AUTH_REQ's payload on the way in.
type Credential struct {
	UUID  string
	Token string
}

func (b Credential) marshal() []byte {
	buf := make([]byte, UUIDSize+TokenSize)
	copy(buf[0:UUIDSize], padTo(b.UUID, UUIDSize))
	copy(buf[UUIDSize:UUIDSize+TokenSize], padTo(b.Token, TokenSize))
	return buf
}

// Result is the single-byte result payload nearly every reply carries.
type Result struct {
	Code int8
}

func (b Result) marshal() []byte {
	return []byte{byte(b.Code)}
}

// SchemaBody is one SCHEMA/SCHEMA_END entry.
type SchemaBody struct {
	SensorID  uint8
	TypeID    uint16
	ValueType uint8
	Unit      uint8
	Name      string // variable length, 0..23 bytes as received
}

func (b SchemaBody) marshal() []byte {
	name := truncate(b.Name, MaxSensorNameSize)
	buf := make([]byte, 5+len(name))
	buf[0] = b.SensorID
	binary.LittleEndian.PutUint16(buf[1:3], b.TypeID)
	buf[3] = b.ValueType
	buf[4] = b.Unit
	copy(buf[5:], name)
	return buf
}

// DataBody is a DATA or (inbound) DATA_RESP payload: a sensor id and a
// raw value whose layout is determined by the sensor's schema entry.
type DataBody struct {
	SensorID uint8
	Payload  []byte
}

func (b DataBody) marshal() []byte {
	buf := make([]byte, 1+len(b.Payload))
	buf[0] = b.SensorID
	copy(buf[1:], b.Payload)
	return buf
}

// ConfigRespBody is a CONFIG_RESP payload: the sensor the node just
// applied a pushed config for.
type ConfigRespBody struct {
	SensorID uint8
}

func (b ConfigRespBody) marshal() []byte {
	return []byte{b.SensorID}
}

// empty is the zero-length body used for UNREGISTER_REQ.
type empty struct{}

func (empty) marshal() []byte { return nil }

// Decode parses a raw PDU into its header and typed body. It performs
// only structural validation (minimum length, declared-vs-actual
// length); semantic checks are the dispatcher's job. An unrecognized
// message type decodes successfully with a nil Body so the dispatcher
// can still produce its default reply.
func Decode(pdu []byte) (Header, Body, error) {
	if len(pdu) < HeaderSize {
		return Header{}, nil, ErrInvalidLength
	}
	h := Header{Type: pdu[0], PayloadLen: pdu[1]}
	if len(pdu) != HeaderSize+int(h.PayloadLen) {
		return h, nil, ErrLengthMismatch
	}
	payload := pdu[HeaderSize:]

	switch h.Type {
	case TypeRegisterReq:
		if len(payload) < 8 {
			return h, nil, ErrInvalidLength
		}
		id := binary.LittleEndian.Uint64(payload[0:8])
		name := trimTrailingZero(truncateBytes(payload[8:], MaxDeviceNameSize))
		return h, RegisterReq{DeviceID: id, DeviceName: string(name)}, nil
	case TypeRegisterResp:
		cred, err := decodeCredential(payload)
		return h, cred, err
	case TypeUnregisterReq:
		return h, empty{}, nil
	case TypeUnregisterResp, TypeAuthResp, TypeSchemaResp, TypeSchemaEndResp:
		res, err := decodeResult(payload)
		return h, res, err
	case TypeAuthReq:
		cred, err := decodeCredential(payload)
		return h, cred, err
	case TypeSchema, TypeSchemaEnd:
		if len(payload) < 5 {
			return h, nil, ErrInvalidLength
		}
		name := trimTrailingZero(truncateBytes(payload[5:], MaxSensorNameSize))
		body := SchemaBody{
			SensorID:  payload[0],
			TypeID:    binary.LittleEndian.Uint16(payload[1:3]),
			ValueType: payload[3],
			Unit:      payload[4],
			Name:      string(name),
		}
		return h, body, nil
	case TypeData, TypeDataResp:
		if len(payload) < 1 {
			return h, nil, ErrInvalidLength
		}
		// A DATA_RESP with no value after its first byte is the
		// gateway's single-byte result reply, not a node's set-data
		// response.
		if h.Type == TypeDataResp && len(payload) == 1 {
			return h, Result{Code: int8(payload[0])}, nil
		}
		body := DataBody{SensorID: payload[0], Payload: append([]byte(nil), payload[1:]...)}
		return h, body, nil
	case TypeConfigResp:
		if len(payload) < 1 {
			return h, nil, ErrInvalidLength
		}
		return h, ConfigRespBody{SensorID: payload[0]}, nil
	default:
		return h, nil, nil
	}
}

func decodeCredential(payload []byte) (Credential, error) {
	if len(payload) < UUIDSize+TokenSize {
		return Credential{}, ErrInvalidLength
	}
	return Credential{
		UUID:  string(payload[0:UUIDSize]),
		Token: string(payload[UUIDSize : UUIDSize+TokenSize]),
	}, nil
}

func decodeResult(payload []byte) (Result, error) {
	if len(payload) < 1 {
		return Result{}, ErrInvalidLength
	}
	return Result{Code: int8(payload[0])}, nil
}

// Encode assembles a complete PDU: the 2-byte header for msgType plus
// body's marshaled payload. A nil body produces an empty payload.
func Encode(msgType uint8, body Body) ([]byte, error) {
	var payload []byte
	if body != nil {
		payload = body.marshal()
	}
	if len(payload) > 255 {
		return nil, fmt.Errorf("knotpdu: payload too large to encode: %d bytes", len(payload))
	}
	out := make([]byte, HeaderSize+len(payload))
	out[0] = msgType
	out[1] = uint8(len(payload))
	copy(out[HeaderSize:], payload)
	return out, nil
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func truncateBytes(b []byte, max int) []byte {
	if len(b) > max {
		return b[:max]
	}
	return b
}

func trimTrailingZero(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return b[:i]
}

func padTo(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}
