package capture

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Manager owns up to one video and one audio Source and starts/stops them
// together, aggregating their statistics. Supplements the single-source
// spec with the original's multi-source capture manager: a deployment may
// enable video only, audio only, or both.
//
// Grounded on AVServer_13_CaptureManager.h's video/audio enable flags and
// aggregate statistics, re-expressed against the Source adapter boundary
// instead of concrete capture classes.
type Manager struct {
	mu sync.Mutex

	video   Source
	audio   Source
	running bool
}

// NewManager constructs an empty Manager. Call SetVideoSource/SetAudioSource
// before Start.
func NewManager() *Manager {
	return &Manager{}
}

// SetVideoSource installs the video capture source. Must be called before
// Start.
func (m *Manager) SetVideoSource(s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.video = s
}

// SetAudioSource installs the audio capture source. Must be called before
// Start.
func (m *Manager) SetAudioSource(s Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audio = s
}

// Start opens every configured source. If any source fails to open, the
// sources already opened are closed and an error is returned -- partial
// startup is not a valid running state.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	opened := make([]Source, 0, 2)
	for _, s := range []Source{m.video, m.audio} {
		if s == nil {
			continue
		}
		if !s.Open() {
			for _, o := range opened {
				_ = o.Close()
			}
			return fmt.Errorf("capture: source failed to open")
		}
		opened = append(opened, s)
	}

	m.running = true
	return nil
}

// Stop closes every configured source, aggregating any close errors
// instead of stopping at the first one -- a failure closing the video
// device must not leave the audio device open. Idempotent.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	var err error
	if m.video != nil {
		err = multierr.Append(err, m.video.Close())
	}
	if m.audio != nil {
		err = multierr.Append(err, m.audio.Close())
	}
	m.running = false
	return err
}

// VideoSource returns the configured video source, or nil.
func (m *Manager) VideoSource() Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.video
}

// AudioSource returns the configured audio source, or nil.
func (m *Manager) AudioSource() Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio
}

// IsVideoEnabled reports whether a video source is configured.
func (m *Manager) IsVideoEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.video != nil
}

// IsAudioEnabled reports whether an audio source is configured.
func (m *Manager) IsAudioEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio != nil
}

// AggregateStats sums the video and audio source's drop-oldest statistics.
func (m *Manager) AggregateStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total Stats
	for _, s := range []Source{m.video, m.audio} {
		if s == nil {
			continue
		}
		st := s.Stats()
		total.FramesProduced += st.FramesProduced
		total.FramesDropped += st.FramesDropped
		total.Queued += st.Queued
	}
	return total
}

// IsRunning reports whether Start has been called without a matching Stop.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
