// Package server implements the facade (C11): it wires capture, encoder,
// pipeline, distributor and listener together, routes inbound messages by
// type, and owns startup/shutdown ordering. Grounded on
// _examples/original_source/server/AVServer_16_StreamingService.h and
// References/orion-prototipe/internal/core/orion.go's component-lifecycle
// shape (construct subsystems, Start each in order, reverse on Stop).
package server

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/e7canasta/avstreamd/internal/capture"
	"github.com/e7canasta/avstreamd/internal/codec"
	"github.com/e7canasta/avstreamd/internal/distributor"
	"github.com/e7canasta/avstreamd/internal/netio"
	"github.com/e7canasta/avstreamd/internal/pipeline"
	"github.com/e7canasta/avstreamd/internal/queue"
	"github.com/e7canasta/avstreamd/internal/stats"
	"github.com/e7canasta/avstreamd/internal/wire"
)

// outputQueueDepth bounds the pipeline's wire-message output queue. The
// pipeline processor is the producer and pauses on Push when this fills;
// the distributor is the sole consumer.
const outputQueueDepth = 256

// Config collects the tunables the facade needs beyond what netio.Config
// and codec.New already cover.
type Config struct {
	Listen          netio.Config
	InitialQuality  int
	InitialBitrate  uint32
	HeartbeatReaper time.Duration // 0 disables the idle-connection reaper
}

// Server is the top-level facade: it owns every long-lived subsystem and
// enforces startup/shutdown ordering.
type Server struct {
	cfg Config

	manager   *capture.Manager
	encoder   *codec.Encoder
	outputQ   *queue.Queue[wire.Message]
	listener  *netio.Listener
	processor *pipeline.Processor
	dist      *distributor.Distributor
	statsReg  *stats.Registry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	runningMu sync.Mutex
	running   bool
}

// New constructs a Server wiring manager/encoder/listener together. Start
// must be called to bring the pipeline online.
func New(cfg Config, manager *capture.Manager) *Server {
	encoder := codec.New(cfg.InitialQuality, cfg.InitialBitrate)
	outputQ := queue.New[wire.Message](outputQueueDepth)
	statsReg := stats.New()

	s := &Server{
		cfg:      cfg,
		manager:  manager,
		encoder:  encoder,
		outputQ:  outputQ,
		statsReg: statsReg,
	}

	s.listener = netio.New(cfg.Listen, netio.Hooks{
		OnConnect:      s.onConnect,
		OnMessage:      s.onMessage,
		OnDisconnect:   s.onDisconnect,
		OnFramingError: s.onFramingError,
	})
	s.processor = pipeline.New(manager, encoder, outputQ)
	s.processor.SetEncodeFailureHook(statsReg.AddFailedEncoding)
	s.dist = distributor.New(s.listener, outputQ)
	s.dist.SetDeliveryHook(s.onDeliver)

	return s
}

// Start brings every subsystem online in the mandated order: capture,
// encoder (already constructed, has nothing to start), pipeline,
// distributor, listener, and the background idle-connection reaper (when
// HeartbeatReaper > 0). A failure at any step
// tears down everything already started and returns the error; the
// server does not enter the running state on a partial start.
func (s *Server) Start() error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.running {
		return nil
	}

	if err := s.manager.Start(); err != nil {
		return fmt.Errorf("server: capture start: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.processor.Start(s.ctx)
	s.dist.Start(s.ctx)

	if err := s.listener.Start(); err != nil {
		s.dist.Stop()
		s.processor.Stop()
		s.manager.Stop()
		s.cancel()
		return fmt.Errorf("server: listener start: %w", err)
	}

	if s.cfg.HeartbeatReaper > 0 {
		s.wg.Add(1)
		go s.reapLoop()
	}

	s.running = true
	return nil
}

// Stop reverses Start's ordering exactly: listener, distributor,
// pipeline, capture. Idempotent.
func (s *Server) Stop() error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if !s.running {
		return nil
	}

	s.cancel()
	s.wg.Wait()

	s.listener.Stop()
	s.dist.Stop()
	s.processor.Stop()
	err := s.manager.Stop()

	s.running = false
	return err
}

// Stats returns a point-in-time snapshot of the server's counters.
func (s *Server) Stats() stats.Snapshot {
	return s.statsReg.Snapshot()
}

// StatsHandler exposes the Prometheus /metrics handler, for an HTTP server
// run by the caller (cmd/avstreamd serves it on --metrics-addr).
func (s *Server) StatsHandler() http.Handler {
	return s.statsReg.Handler()
}

// Connections returns a snapshot of currently connected clients, for the
// CLI's `conns` command.
func (s *Server) Connections() []*netio.Connection {
	return s.listener.Snapshot()
}

func (s *Server) onConnect(c *netio.Connection) {
	s.statsReg.IncConnections()
	s.dist.RegisterSubscriber(c.ID, c.Addr, 0)
	s.statsReg.SetSubscribers(len(s.dist.Snapshot()))
	slog.Info("client connected", "id", c.ID, "addr", c.Addr, "trace_id", c.TraceID)
}

func (s *Server) onDisconnect(c *netio.Connection) {
	s.dist.Unregister(c.ID)
	s.statsReg.DecActiveConnections()
	s.statsReg.SetSubscribers(len(s.dist.Snapshot()))
	slog.Info("client disconnected", "id", c.ID, "addr", c.Addr, "trace_id", c.TraceID)
}

func (s *Server) onMessage(c *netio.Connection, msg wire.Message) {
	switch msg.Header.Type {
	case wire.TypeVideo:
		s.statsReg.AddVideoFrameReceived(len(msg.Payload))
	case wire.TypeAudio:
		s.statsReg.AddAudioFrameReceived(len(msg.Payload))
	case wire.TypeStartStream, wire.TypeStopStream:
		s.ack(c, msg.Header.Type)
	case wire.TypeSetBitrate:
		s.handleSetBitrate(c, msg)
	case wire.TypeSetQuality:
		s.handleSetQuality(c, msg)
	case wire.TypeCodecInfo:
		s.handleCodecInfo(c)
	case wire.TypeHeartbeat:
		if err := c.SendHeartbeat(true); err != nil {
			slog.Warn("failed to send heartbeat-ack", "id", c.ID, "error", err)
		}
	default:
		slog.Debug("ignoring unknown message type", "id", c.ID, "type", msg.Header.Type)
	}
}

func (s *Server) onFramingError(c *netio.Connection, err error) {
	s.statsReg.AddFramingError()
}

// onDeliver records the distributor's actual per-subscriber fan-out into
// the outbound counters; this is the real "sent" side, as opposed to
// messages merely drained from the pipeline output queue.
func (s *Server) onDeliver(t wire.Type, bytes int) {
	switch t {
	case wire.TypeVideo:
		s.statsReg.AddVideoFrame(bytes)
	case wire.TypeAudio:
		s.statsReg.AddAudioFrame(bytes)
	}
}

// SetBitrateCap applies an externally requested bitrate cap (from the MQTT
// control bridge, which has no netio.Connection of its own) and propagates
// the minimum across all subscribers to the encoder, identically to the
// in-band TypeSetBitrate path.
func (s *Server) SetBitrateCap(subscriberID uint32, bps uint32) error {
	if !s.dist.SetBitrateCap(subscriberID, bps) {
		return fmt.Errorf("server: unknown subscriber %d", subscriberID)
	}
	if min, ok := s.dist.MinBitrateCap(); ok {
		s.encoder.SetTargetBitrate(min)
	}
	return nil
}

// UnregisterSubscriber drops a subscriber by id (from the MQTT control
// bridge). The underlying TCP connection, if still live, is unaffected --
// this only stops fan-out delivery to it.
func (s *Server) UnregisterSubscriber(subscriberID uint32) error {
	s.dist.Unregister(subscriberID)
	return nil
}

func (s *Server) ack(c *netio.Connection, t wire.Type) {
	if err := c.Send(wire.NewMessage(wire.TypeAck, nil, uint64(time.Now().UnixMilli()))); err != nil {
		slog.Warn("failed to send ack", "id", c.ID, "for_type", t, "error", err)
	}
}

func (s *Server) handleSetBitrate(c *netio.Connection, msg wire.Message) {
	if len(msg.Payload) != 4 {
		slog.Warn("set-bitrate payload malformed, ignoring", "id", c.ID, "len", len(msg.Payload))
		return
	}
	bps := binary.LittleEndian.Uint32(msg.Payload)
	_ = s.SetBitrateCap(c.ID, bps)
	s.ack(c, wire.TypeSetBitrate)
}

func (s *Server) handleSetQuality(c *netio.Connection, msg wire.Message) {
	if len(msg.Payload) != 1 {
		slog.Warn("set-quality payload malformed, ignoring", "id", c.ID, "len", len(msg.Payload))
		return
	}
	s.encoder.SetQuality(int(msg.Payload[0]))
	s.ack(c, wire.TypeSetQuality)
}

func (s *Server) handleCodecInfo(c *netio.Connection) {
	quality, bitrate := s.encoder.Settings()
	payload := make([]byte, 5)
	payload[0] = byte(quality)
	binary.LittleEndian.PutUint32(payload[1:], bitrate)

	msg := wire.NewMessage(wire.TypeCodecInfo, payload, uint64(time.Now().UnixMilli()))
	if err := c.Send(msg); err != nil {
		slog.Warn("failed to send codec-info reply", "id", c.ID, "error", err)
	}
}

func (s *Server) reapLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatReaper)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.listener.ReapIdle(s.cfg.HeartbeatReaper)
		}
	}
}

