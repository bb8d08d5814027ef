package codec

import (
	"testing"
	"time"

	"github.com/e7canasta/avstreamd/internal/frame"
)

func TestTierFromQuality(t *testing.T) {
	cases := []struct {
		quality int
		want    QualityTier
	}{
		{100, QualityHigh},
		{80, QualityHigh},
		{79, QualityMedium},
		{50, QualityMedium},
		{49, QualityLow},
		{0, QualityLow},
	}
	for _, tc := range cases {
		if got := TierFromQuality(tc.quality); got != tc.want {
			t.Errorf("TierFromQuality(%d) = %v, want %v", tc.quality, got, tc.want)
		}
	}
}

func TestEncodeVideoAppliesQualityRatio(t *testing.T) {
	enc := New(90, 1_000_000)

	in := &frame.Frame{
		Kind:    frame.KindVideoKeyframe,
		Codec:   frame.CodecH264,
		Width:   1920,
		Height:  1080,
		Payload: make([]byte, 1000),
	}
	for i := range in.Payload {
		in.Payload[i] = byte(i)
	}

	out := &frame.Frame{}
	if ok := enc.EncodeVideo(in, out); !ok {
		t.Fatalf("EncodeVideo returned false")
	}

	wantSize := int(float64(1000) * QualityHigh.ratio())
	if len(out.Payload) != wantSize {
		t.Errorf("output payload size = %d, want %d", len(out.Payload), wantSize)
	}
	if out.Width != in.Width || out.Height != in.Height {
		t.Errorf("geometry not propagated: got %dx%d", out.Width, out.Height)
	}
}

func TestEncodePreservesTimestamp(t *testing.T) {
	enc := New(60, 500_000)

	ts := time.Now()
	in := &frame.Frame{
		Kind:                 frame.KindAudio,
		Codec:                frame.CodecAAC,
		Payload:              make([]byte, 200),
		CaptureTimestamp:     ts,
		PresentationTimeUnix: 123456,
	}
	out := &frame.Frame{}

	if ok := enc.EncodeAudio(in, out); !ok {
		t.Fatalf("EncodeAudio returned false")
	}
	if !out.CaptureTimestamp.Equal(ts) {
		t.Errorf("CaptureTimestamp not preserved: got %v want %v", out.CaptureTimestamp, ts)
	}
	if out.PresentationTimeUnix != 123456 {
		t.Errorf("PresentationTimeUnix not preserved: got %d", out.PresentationTimeUnix)
	}
}

func TestSetQualityAffectsNextEncode(t *testing.T) {
	enc := New(90, 1_000_000)

	in := &frame.Frame{Payload: make([]byte, 1000)}
	out := &frame.Frame{}

	enc.EncodeVideo(in, out)
	if len(out.Payload) != int(1000*QualityHigh.ratio()) {
		t.Fatalf("expected high-quality ratio before SetQuality")
	}

	enc.SetQuality(10)
	enc.EncodeVideo(in, out)
	if len(out.Payload) != int(1000*QualityLow.ratio()) {
		t.Errorf("SetQuality(10) not reflected on next encode: got size %d", len(out.Payload))
	}
}

func TestSetTargetBitrateStampsOutput(t *testing.T) {
	enc := New(70, 256_000)

	in := &frame.Frame{Payload: make([]byte, 100)}
	out := &frame.Frame{}
	enc.EncodeVideo(in, out)
	if out.Bitrate != 256_000 {
		t.Errorf("out.Bitrate = %d, want 256000", out.Bitrate)
	}

	enc.SetTargetBitrate(512_000)
	enc.EncodeVideo(in, out)
	if out.Bitrate != 512_000 {
		t.Errorf("out.Bitrate after SetTargetBitrate = %d, want 512000", out.Bitrate)
	}
}

func TestStatsAccumulate(t *testing.T) {
	enc := New(90, 1_000_000)
	in := &frame.Frame{Payload: make([]byte, 1000)}
	out := &frame.Frame{}

	for i := 0; i < 5; i++ {
		enc.EncodeVideo(in, out)
	}

	stats := enc.Stats()
	if stats.FramesIn != 5 || stats.FramesOut != 5 {
		t.Errorf("FramesIn/Out = %d/%d, want 5/5", stats.FramesIn, stats.FramesOut)
	}
	if stats.BytesIn != 5000 {
		t.Errorf("BytesIn = %d, want 5000", stats.BytesIn)
	}
	wantBytesOut := uint64(5 * int(1000*QualityHigh.ratio()))
	if stats.BytesOut != wantBytesOut {
		t.Errorf("BytesOut = %d, want %d", stats.BytesOut, wantBytesOut)
	}
}

func TestRecordFailureIncrementsCounter(t *testing.T) {
	enc := New(90, 1_000_000)
	enc.RecordFailure()
	enc.RecordFailure()

	if stats := enc.Stats(); stats.FailedEncodings != 2 {
		t.Errorf("FailedEncodings = %d, want 2", stats.FailedEncodings)
	}
}

func TestEncodeNilFrameFails(t *testing.T) {
	enc := New(90, 1_000_000)
	out := &frame.Frame{}
	if ok := enc.EncodeVideo(nil, out); ok {
		t.Errorf("EncodeVideo(nil, out) = true, want false")
	}
}

func TestSettingsReflectsCurrentState(t *testing.T) {
	enc := New(55, 128_000)
	q, br := enc.Settings()
	if q != 55 || br != 128_000 {
		t.Errorf("Settings() = (%d, %d), want (55, 128000)", q, br)
	}

	enc.SetQuality(200) // clamps to 100
	q, _ = enc.Settings()
	if q != 100 {
		t.Errorf("SetQuality(200) did not clamp: got %d", q)
	}
}
