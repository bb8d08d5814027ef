package capture

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/avstreamd/internal/frame"
)

// SyntheticConfig configures a pattern-generator Source, used as the
// default video/audio producer when no real device is configured, and
// throughout the test suite.
type SyntheticConfig struct {
	Kind        frame.Kind
	Codec       frame.Codec
	Width       int
	Height      int
	SampleRate  int
	Channels    int
	PayloadSize int
	FPS         float64 // frames per second; <=0 falls back to a 33ms interval (~30 fps)
	QueueDepth  int     // drop-oldest bound, spec example uses 30
}

// Synthetic is a Source that manufactures frames on a ticker instead of
// reading a real device. It exists for the default/test capture path; a
// real camera or RTSP Source is adapted separately for production use.
type Synthetic struct {
	cfg SyntheticConfig

	q *ringQueue

	seq     atomic.Uint64
	opened  atomic.Bool
	closing chan struct{}
	wg      sync.WaitGroup
}

// NewSynthetic constructs a Synthetic source. Open must be called before
// frames are produced.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 30
	}
	return &Synthetic{
		cfg:     cfg,
		q:       newRingQueue(cfg.QueueDepth),
		closing: make(chan struct{}),
	}
}

// Open starts the generator goroutine. Idempotent.
func (s *Synthetic) Open() bool {
	if !s.opened.CompareAndSwap(false, true) {
		return true
	}

	interval := 33 * time.Millisecond
	if s.cfg.FPS > 0 {
		interval = time.Duration(float64(time.Second) / s.cfg.FPS)
	}

	s.wg.Add(1)
	go s.generate(interval)
	return true
}

func (s *Synthetic) generate(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closing:
			return
		case <-ticker.C:
			s.q.push(s.nextFrame())
		}
	}
}

func (s *Synthetic) nextFrame() *frame.Frame {
	payload := make([]byte, s.cfg.PayloadSize)
	seq := s.seq.Add(1)
	for i := range payload {
		payload[i] = byte(seq + uint64(i))
	}

	return &frame.Frame{
		Kind:                 s.cfg.Kind,
		Codec:                s.cfg.Codec,
		Width:                s.cfg.Width,
		Height:               s.cfg.Height,
		SampleRate:           s.cfg.SampleRate,
		Channels:             s.cfg.Channels,
		CaptureTimestamp:     time.Now(),
		PresentationTimeUnix: time.Now().UnixMilli(),
		Payload:              payload,
		TraceID:              uuid.NewString(),
		Seq:                  seq,
	}
}

// TryGetFrame implements Source.
func (s *Synthetic) TryGetFrame() (*frame.Frame, bool) {
	return s.q.tryPop()
}

// GetFrame implements Source.
func (s *Synthetic) GetFrame(timeout time.Duration) (*frame.Frame, bool) {
	return s.q.popWait(timeout)
}

// Stats implements Source.
func (s *Synthetic) Stats() Stats {
	return s.q.stats()
}

// Close implements Source. Idempotent.
func (s *Synthetic) Close() error {
	if !s.opened.CompareAndSwap(true, false) {
		return nil
	}
	close(s.closing)
	s.wg.Wait()
	s.q.close()
	return nil
}
