// Package wire implements the server's binary TCP protocol: a fixed
// 20-byte, little-endian header (magic, type, payload size, timestamp,
// CRC-16) followed by a variable-length payload. See AVServer_06_MessageProtocol.h
// in the original C++ implementation this protocol is ported from.
package wire

import "encoding/binary"

// Type identifies the kind of message on the wire.
type Type uint16

const (
	// Data messages (0-99).
	TypeFrameAny Type = 0
	TypeVideo    Type = 1
	TypeAudio    Type = 2

	// Control messages (100-199).
	TypeStartStream Type = 100
	TypeStopStream  Type = 101
	TypeSetBitrate  Type = 102
	TypeSetQuality  Type = 103
	TypeCodecInfo   Type = 104

	// State messages (200-299).
	TypeHeartbeat    Type = 200
	TypeHeartbeatAck Type = 201
	TypeAck          Type = 202
	TypeError        Type = 203
)

// ErrorCode enumerates the error-code field carried by an TypeError message
// payload. It is only defined by the protocol; no codepath in this module
// emits a TypeError message.
type ErrorCode uint8

const (
	ErrorNone              ErrorCode = 0
	ErrorInvalidFormat     ErrorCode = 1
	ErrorCRC               ErrorCode = 2
	ErrorSizeMismatch      ErrorCode = 3
	ErrorCodecNotSupported ErrorCode = 4
	ErrorBufferOverflow    ErrorCode = 5
	ErrorUnknown           ErrorCode = 255
)

const (
	// Magic is the fixed 32-bit value that opens every header.
	Magic uint32 = 0xABCD1234

	// HeaderSize is the fixed, padding-free header length in bytes.
	HeaderSize = 20

	// MaxPayloadSize is the largest payload_size the protocol allows.
	MaxPayloadSize = 100 * 1024 * 1024 // 100 MiB

	crcSpan = 18 // bytes 0..17 are covered by the header CRC
)

// Header is the 20-byte message header. Offsets on the wire (little-endian):
//
//	0  magic         uint32
//	4  type code     uint16
//	6  payload size  uint32
//	10 timestamp ms  uint64
//	18 header CRC    uint16
type Header struct {
	Magic       uint32
	Type        Type
	PayloadSize uint32
	TimestampMS uint64
	CRC         uint16
}

// NewHeader builds a header for the given type/payload size/timestamp and
// computes its CRC.
func NewHeader(t Type, payloadSize uint32, timestampMS uint64) Header {
	h := Header{
		Magic:       Magic,
		Type:        t,
		PayloadSize: payloadSize,
		TimestampMS: timestampMS,
	}
	h.CRC = h.computeCRC()
	return h
}

// IsValid checks, in order: magic, payload size bound, CRC match. Any
// failure makes the header invalid.
func (h Header) IsValid() bool {
	if h.Magic != Magic {
		return false
	}
	if h.PayloadSize > MaxPayloadSize {
		return false
	}
	if h.CRC != h.computeCRC() {
		return false
	}
	return true
}

// computeCRC runs CRC-16/MODBUS (poly 0xA001, init 0xFFFF, reflected) over the
// 18-byte linear encoding of the header fields preceding the CRC field
// itself, matching spec's standardized header layout.
func (h Header) computeCRC() uint16 {
	var buf [crcSpan]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(h.Type))
	binary.LittleEndian.PutUint32(buf[6:10], h.PayloadSize)
	binary.LittleEndian.PutUint64(buf[10:18], h.TimestampMS)
	return crc16(buf[:])
}

// crc16 computes CRC-16/MODBUS over data: polynomial 0xA001, initial 0xFFFF,
// reflected bit-by-bit update. Deterministic and collision-bound by the
// 16-bit check value (1 - 1/65536 detection probability for single-bit
// flips outside magic/length, which fail deterministically instead).
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// Marshal writes the header's 20-byte little-endian wire encoding into buf,
// which must be at least HeaderSize bytes.
func (h Header) Marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(h.Type))
	binary.LittleEndian.PutUint32(buf[6:10], h.PayloadSize)
	binary.LittleEndian.PutUint64(buf[10:18], h.TimestampMS)
	binary.LittleEndian.PutUint16(buf[18:20], h.CRC)
}

// UnmarshalHeader parses a 20-byte little-endian buffer into a Header. The
// caller is responsible for calling IsValid() on the result.
func UnmarshalHeader(buf []byte) Header {
	return Header{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Type:        Type(binary.LittleEndian.Uint16(buf[4:6])),
		PayloadSize: binary.LittleEndian.Uint32(buf[6:10]),
		TimestampMS: binary.LittleEndian.Uint64(buf[10:18]),
		CRC:         binary.LittleEndian.Uint16(buf[18:20]),
	}
}
