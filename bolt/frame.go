// Package bolt implements the wire codec for the length-prefixed binary
// RPC protocol known as SOFARPC/"BOLT": a 22-byte header, followed by
// classname bytes, header bytes, and content bytes.
package bolt

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed size of a BOLT frame header in bytes.
const HeaderSize = 22

// Protocol/command/version constants fixed by the wire format.
const (
	ProtocolCode = 1
	TypeRequest  = 0
	TypeResponse = 1
	CommandRPC   = 1
	ProtocolVer  = 1
	CodecDefault = 1
)

// Response status codes defined by the SOFARPC/BOLT protocol, used to
// classify BOLT responses into the Worker's status bucket array.
const (
	StatusSuccess                 uint16 = 0x00
	StatusError                   uint16 = 0x01
	StatusServerException         uint16 = 0x02
	StatusUnknown                 uint16 = 0x03
	StatusServerThreadpoolBusy    uint16 = 0x04
	StatusErrorComm               uint16 = 0x05
	StatusNoProcessor             uint16 = 0x06
	StatusTimeout                 uint16 = 0x07
	StatusClientSendError         uint16 = 0x08
	StatusCodecException          uint16 = 0x09
	StatusConnectionClosed        uint16 = 0x10
	StatusServerSerialException   uint16 = 0x11
	StatusServerDeserialException uint16 = 0x12
)

// ErrShortFrame is returned by DecodeRequest and DecodeResponse when fewer than HeaderSize bytes
// are available, or the header declares more payload than was supplied.
var ErrShortFrame = errors.New("bolt: short frame")

// RequestFrame is a decoded/encodable BOLT request.
type RequestFrame struct {
	RequestID uint32
	TimeoutMs uint32
	ClassName []byte
	Header    []byte
	Content   []byte
}

// EncodeRequest serializes a BOLT request frame into its wire byte
// layout (all multi-byte fields big-endian).
func EncodeRequest(f RequestFrame) []byte {
	buf := make([]byte, HeaderSize+len(f.ClassName)+len(f.Header)+len(f.Content))
	buf[0] = ProtocolCode
	buf[1] = TypeRequest
	binary.BigEndian.PutUint16(buf[2:4], CommandRPC)
	buf[4] = ProtocolVer
	binary.BigEndian.PutUint32(buf[5:9], f.RequestID)
	buf[9] = CodecDefault
	binary.BigEndian.PutUint32(buf[10:14], f.TimeoutMs)
	binary.BigEndian.PutUint16(buf[14:16], uint16(len(f.ClassName)))
	binary.BigEndian.PutUint16(buf[16:18], uint16(len(f.Header)))
	binary.BigEndian.PutUint32(buf[18:22], uint32(len(f.Content)))

	off := HeaderSize
	off += copy(buf[off:], f.ClassName)
	off += copy(buf[off:], f.Header)
	copy(buf[off:], f.Content)
	return buf
}

// DecodeRequest parses a complete BOLT request frame (header + all
// variable-length sections) from buf. It returns the frame and the
// number of bytes consumed.
func DecodeRequest(buf []byte) (RequestFrame, int, error) {
	if len(buf) < HeaderSize {
		return RequestFrame{}, 0, ErrShortFrame
	}
	classLen := int(binary.BigEndian.Uint16(buf[14:16]))
	headerLen := int(binary.BigEndian.Uint16(buf[16:18]))
	contentLen := int(binary.BigEndian.Uint32(buf[18:22]))
	total := HeaderSize + classLen + headerLen + contentLen
	if len(buf) < total {
		return RequestFrame{}, 0, ErrShortFrame
	}
	if buf[0] != ProtocolCode {
		return RequestFrame{}, 0, fmt.Errorf("bolt: unexpected protocol code %d", buf[0])
	}

	f := RequestFrame{
		RequestID: binary.BigEndian.Uint32(buf[5:9]),
		TimeoutMs: binary.BigEndian.Uint32(buf[10:14]),
	}
	off := HeaderSize
	f.ClassName = append([]byte(nil), buf[off:off+classLen]...)
	off += classLen
	f.Header = append([]byte(nil), buf[off:off+headerLen]...)
	off += headerLen
	f.Content = append([]byte(nil), buf[off:off+contentLen]...)
	return f, total, nil
}

// ResponseFrame is a decoded BOLT response.
type ResponseFrame struct {
	RequestID uint32
	Status    uint16
	ClassName []byte
	Header    []byte
	Content   []byte
}

// EncodeResponse serializes a BOLT response frame, for use by test
// targets and round-trip tests.
func EncodeResponse(f ResponseFrame) []byte {
	buf := make([]byte, HeaderSize+len(f.ClassName)+len(f.Header)+len(f.Content))
	buf[0] = ProtocolCode
	buf[1] = TypeResponse
	binary.BigEndian.PutUint16(buf[2:4], CommandRPC)
	buf[4] = ProtocolVer
	binary.BigEndian.PutUint32(buf[5:9], f.RequestID)
	buf[9] = CodecDefault
	binary.BigEndian.PutUint16(buf[10:12], f.Status)
	binary.BigEndian.PutUint16(buf[14:16], uint16(len(f.ClassName)))
	binary.BigEndian.PutUint16(buf[16:18], uint16(len(f.Header)))
	binary.BigEndian.PutUint32(buf[18:22], uint32(len(f.Content)))

	off := HeaderSize
	off += copy(buf[off:], f.ClassName)
	off += copy(buf[off:], f.Header)
	copy(buf[off:], f.Content)
	return buf
}

// DecodeResponse parses a complete BOLT response frame from buf,
// returning the frame and the number of bytes consumed. A caller with
// a partial frame should retain buf and retry once more bytes arrive;
// ErrShortFrame distinguishes that case from a malformed frame.
func DecodeResponse(buf []byte) (ResponseFrame, int, error) {
	if len(buf) < HeaderSize {
		return ResponseFrame{}, 0, ErrShortFrame
	}
	classLen := int(binary.BigEndian.Uint16(buf[14:16]))
	headerLen := int(binary.BigEndian.Uint16(buf[16:18]))
	contentLen := int(binary.BigEndian.Uint32(buf[18:22]))
	total := HeaderSize + classLen + headerLen + contentLen
	if len(buf) < total {
		return ResponseFrame{}, 0, ErrShortFrame
	}
	if buf[0] != ProtocolCode {
		return ResponseFrame{}, 0, fmt.Errorf("bolt: unexpected protocol code %d", buf[0])
	}

	f := ResponseFrame{
		RequestID: binary.BigEndian.Uint32(buf[5:9]),
		Status:    binary.BigEndian.Uint16(buf[10:12]),
	}
	off := HeaderSize
	f.ClassName = append([]byte(nil), buf[off:off+classLen]...)
	off += classLen
	f.Header = append([]byte(nil), buf[off:off+headerLen]...)
	off += headerLen
	f.Content = append([]byte(nil), buf[off:off+contentLen]...)
	return f, total, nil
}
