// Package codec implements the encoder adapter boundary (C8): an opaque
// bytes-to-bytes transform with a declared size ratio and timing contract,
// standing in for a real codec library. Ported from
// AVServer_05_CodecInterfaces.h and AVServer_14_CompressionEngine.h.
package codec

import (
	"sync"
	"time"

	"github.com/e7canasta/avstreamd/internal/frame"
)

// QualityTier selects the declared compression ratio applied to a frame's
// payload. The ratios are contractual, not measured: high ~0.75, medium
// ~0.6, low ~0.4 of input bytes.
type QualityTier int

const (
	QualityHigh QualityTier = iota
	QualityMedium
	QualityLow
)

func (t QualityTier) ratio() float64 {
	switch t {
	case QualityHigh:
		return 0.75
	case QualityMedium:
		return 0.60
	case QualityLow:
		return 0.40
	default:
		return 0.60
	}
}

// TierFromQuality maps a 0-100 quality score onto a QualityTier, matching
// the original compression engine's quality-level bands.
func TierFromQuality(quality int) QualityTier {
	switch {
	case quality >= 80:
		return QualityHigh
	case quality >= 50:
		return QualityMedium
	default:
		return QualityLow
	}
}

// Stats tracks lifetime and rolling encoder statistics.
type Stats struct {
	FramesIn        uint64
	FramesOut       uint64
	FailedEncodings uint64
	BytesIn         uint64
	BytesOut        uint64

	AvgEncodeLatency time.Duration // EMA, alpha=0.1
	CurrentBitrate   float64       // bps, rolling over session uptime
}

// Encoder is the opaque video/audio transform. Bitrate and quality are
// mutable at any time and take effect on the next Encode* call.
type Encoder struct {
	mu sync.Mutex

	quality       int
	targetBitrate uint32
	startedAt     time.Time
	stats         Stats
}

// New creates an Encoder with a starting quality (0-100) and target
// bitrate (bps).
func New(initialQuality int, initialBitrate uint32) *Encoder {
	return &Encoder{
		quality:       clampQuality(initialQuality),
		targetBitrate: initialBitrate,
		startedAt:     time.Now(),
	}
}

func clampQuality(q int) int {
	if q < 0 {
		return 0
	}
	if q > 100 {
		return 100
	}
	return q
}

// SetTargetBitrate updates the bitrate used to stamp subsequently encoded
// frames.
func (e *Encoder) SetTargetBitrate(bps uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.targetBitrate = bps
}

// SetQuality updates the quality tier used on subsequent encode calls.
func (e *Encoder) SetQuality(quality int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quality = clampQuality(quality)
}

// Settings returns the encoder's current quality and target bitrate, used
// by the codec-info control reply.
func (e *Encoder) Settings() (quality int, bitrate uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quality, e.targetBitrate
}

// EncodeVideo transforms a captured video frame into an encoded output
// frame. Output timestamp equals input timestamp; output payload size is
// deterministically related to input size by the current quality tier.
func (e *Encoder) EncodeVideo(in *frame.Frame, out *frame.Frame) bool {
	return e.encode(in, out)
}

// EncodeAudio transforms a captured audio frame the same way EncodeVideo
// does for video.
func (e *Encoder) EncodeAudio(in *frame.Frame, out *frame.Frame) bool {
	return e.encode(in, out)
}

func (e *Encoder) encode(in *frame.Frame, out *frame.Frame) bool {
	if in == nil || out == nil {
		return false
	}

	start := time.Now()

	e.mu.Lock()
	quality := e.quality
	bitrate := e.targetBitrate
	e.mu.Unlock()

	tier := TierFromQuality(quality)
	outSize := int(float64(len(in.Payload)) * tier.ratio())
	if outSize < 0 {
		outSize = 0
	}

	out.Kind = in.Kind
	out.Codec = in.Codec
	out.Width = in.Width
	out.Height = in.Height
	out.SampleRate = in.SampleRate
	out.Channels = in.Channels
	out.CaptureTimestamp = in.CaptureTimestamp
	out.PresentationTimeUnix = in.PresentationTimeUnix
	out.Bitrate = int(bitrate)
	out.Quality = quality
	out.TraceID = in.TraceID
	out.Seq = in.Seq

	if cap(out.Payload) < outSize {
		out.Payload = make([]byte, outSize)
	} else {
		out.Payload = out.Payload[:outSize]
	}
	copy(out.Payload, in.Payload)

	elapsed := time.Since(start)

	e.mu.Lock()
	e.stats.FramesIn++
	e.stats.FramesOut++
	e.stats.BytesIn += uint64(len(in.Payload))
	e.stats.BytesOut += uint64(outSize)
	if e.stats.AvgEncodeLatency == 0 {
		e.stats.AvgEncodeLatency = elapsed
	} else {
		e.stats.AvgEncodeLatency = time.Duration(
			float64(e.stats.AvgEncodeLatency)*0.9 + float64(elapsed)*0.1,
		)
	}
	if uptime := time.Since(e.startedAt).Seconds(); uptime > 0 {
		e.stats.CurrentBitrate = float64(e.stats.BytesOut) * 8 / uptime
	}
	e.mu.Unlock()

	return true
}

// RecordFailure increments the failed-encodings counter. Called by the
// pipeline when an Encode* call returns false.
func (e *Encoder) RecordFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.FailedEncodings++
}

// Stats returns a snapshot of the encoder's current statistics.
func (e *Encoder) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
