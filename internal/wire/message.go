package wire

import "fmt"

// Message is a complete wire protocol unit: header plus payload. It is
// value-typed; copying or reassigning a Message is always safe.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage builds a Message, computing the header for the given payload.
func NewMessage(t Type, payload []byte, timestampMS uint64) Message {
	return Message{
		Header:  NewHeader(t, uint32(len(payload)), timestampMS),
		Payload: payload,
	}
}

// Size returns the total wire length: HeaderSize + len(Payload).
func (m Message) Size() int {
	return HeaderSize + len(m.Payload)
}

// Marshal serializes the message (header then payload, contiguous) into a
// freshly allocated buffer.
func (m Message) Marshal() []byte {
	buf := make([]byte, m.Size())
	m.Header.Marshal(buf[:HeaderSize])
	copy(buf[HeaderSize:], m.Payload)
	return buf
}

// Unmarshal parses a complete message (header + full payload) from buf.
// buf must contain at least HeaderSize bytes; if the header declares a
// payload size larger than the remaining bytes, an error is returned.
func Unmarshal(buf []byte) (Message, error) {
	if len(buf) < HeaderSize {
		return Message{}, fmt.Errorf("wire: buffer too short for header: %d bytes", len(buf))
	}

	h := UnmarshalHeader(buf[:HeaderSize])
	if !h.IsValid() {
		return Message{}, fmt.Errorf("wire: invalid header (magic=%#x size=%d)", h.Magic, h.PayloadSize)
	}

	total := HeaderSize + int(h.PayloadSize)
	if len(buf) < total {
		return Message{}, fmt.Errorf("wire: buffer too short for payload: have %d, need %d", len(buf), total)
	}

	payload := make([]byte, h.PayloadSize)
	copy(payload, buf[HeaderSize:total])

	return Message{Header: h, Payload: payload}, nil
}
