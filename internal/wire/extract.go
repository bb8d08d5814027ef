package wire

import "github.com/e7canasta/avstreamd/internal/ring"

// Extract runs one pass of the message-extraction procedure (spec.md
// §4.6) over a ring buffer: peek a header, validate it, wait for the full
// payload, read and parse the complete message. It returns as many
// complete messages as are currently available, in order.
//
// On a framing error (bad header) or a deserialization error after a
// valid header, the ring buffer is cleared in full (the resync policy:
// drop all buffered bytes) and extraction stops for this call -- the
// stream may resync on the next valid header once more bytes arrive.
// onFramingError, if non-nil, is invoked once per such event.
func Extract(buf *ring.Buffer, onFramingError func(err error)) []Message {
	var out []Message
	headerBuf := make([]byte, HeaderSize)

	for {
		if buf.Fill() < HeaderSize {
			return out
		}

		buf.Peek(headerBuf, HeaderSize)
		h := UnmarshalHeader(headerBuf)
		if !h.IsValid() {
			buf.Clear()
			if onFramingError != nil {
				onFramingError(errInvalidHeader(h))
			}
			return out
		}

		total := HeaderSize + int(h.PayloadSize)
		if buf.Fill() < total {
			return out
		}

		msgBuf := make([]byte, total)
		buf.Read(msgBuf, total)

		msg, err := Unmarshal(msgBuf)
		if err != nil {
			buf.Clear()
			if onFramingError != nil {
				onFramingError(err)
			}
			return out
		}

		out = append(out, msg)
	}
}

type invalidHeaderError struct {
	magic       uint32
	payloadSize uint32
}

func (e invalidHeaderError) Error() string {
	return "wire: invalid header: bad magic, oversized payload or CRC mismatch"
}

func errInvalidHeader(h Header) error {
	return invalidHeaderError{magic: h.Magic, payloadSize: h.PayloadSize}
}
