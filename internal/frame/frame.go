// Package frame defines the A/V frame record exchanged between capture,
// encoder and pipeline stages, plus a recycling pool that amortizes the
// allocation cost of their payload buffers.
package frame

import "time"

// Kind identifies what a Frame carries.
type Kind uint8

const (
	KindVideoKeyframe Kind = iota
	KindVideoPredicted
	KindVideoBidirectional
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideoKeyframe:
		return "video-keyframe"
	case KindVideoPredicted:
		return "video-predicted"
	case KindVideoBidirectional:
		return "video-bidirectional"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Codec identifies the coding format of a Frame's payload.
type Codec uint8

const (
	CodecH264 Codec = iota
	CodecH265
	CodecVP9
	CodecAAC
	CodecMP3
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	case CodecVP9:
		return "vp9"
	case CodecAAC:
		return "aac"
	case CodecMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

// Frame is a single unit of captured or encoded media. It is exclusively
// owned by whichever pipeline stage currently holds it; a Pool owns the
// frames it holds that are not currently checked out. The capture sources
// allocate a fresh Frame per captured frame and the pipeline allocates a
// fresh output Frame per encode; neither path acquires frames from or
// releases them to a Pool.
type Frame struct {
	Kind  Kind
	Codec Codec

	// Video geometry.
	Width  int
	Height int

	// Audio geometry.
	SampleRate int
	Channels   int

	CaptureTimestamp     time.Time
	PresentationTimeUnix int64 // ms, presentation timestamp

	Payload []byte

	Bitrate int // bps
	Quality int // 0-100

	// TraceID correlates a frame across capture -> encode -> wire for
	// structured logging; it is not part of the wire protocol.
	TraceID string

	// Seq is a monotonic sequence assigned at capture time, used by the
	// capture source's drop-oldest accounting.
	Seq uint64
}

// reset clears mutable fields but retains Payload's underlying capacity.
func (f *Frame) reset() {
	f.Kind = KindVideoKeyframe
	f.Codec = CodecH264
	f.Width = 0
	f.Height = 0
	f.SampleRate = 0
	f.Channels = 0
	f.CaptureTimestamp = time.Time{}
	f.PresentationTimeUnix = 0
	f.Payload = f.Payload[:0]
	f.Bitrate = 0
	f.Quality = 0
	f.TraceID = ""
	f.Seq = 0
}
