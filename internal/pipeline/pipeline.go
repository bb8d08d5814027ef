// Package pipeline implements the processing task (C9) that drains the
// capture sources through the encoder and wraps the result into wire
// messages for the distributor. Grounded on
// _examples/original_source/server/AVServer_15_MediaProcessor.h and
// modules/framesupplier/internal/supplier.go's context-lifecycle,
// WaitGroup-tracked single loop goroutine.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/avstreamd/internal/capture"
	"github.com/e7canasta/avstreamd/internal/codec"
	"github.com/e7canasta/avstreamd/internal/frame"
	"github.com/e7canasta/avstreamd/internal/queue"
	"github.com/e7canasta/avstreamd/internal/wire"
)

// idlePause is how long the processing loop sleeps when neither source
// produced a frame this iteration, per the spec's ~1ms retry interval.
const idlePause = time.Millisecond

// Processor drains a capture.Manager through an encoder and pushes
// length-prefixed wire messages onto a bounded output queue. The output
// queue is the backpressure point: when it is full, Processor -- the
// producer -- pauses; it never drops or drains the queue itself.
type Processor struct {
	manager *capture.Manager
	encoder *codec.Encoder
	out     *queue.Queue[wire.Message]

	onEncodeFailure func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool
}

// New constructs a Processor. Start must be called to begin draining
// frames.
func New(manager *capture.Manager, encoder *codec.Encoder, out *queue.Queue[wire.Message]) *Processor {
	return &Processor{
		manager: manager,
		encoder: encoder,
		out:     out,
	}
}

// Start spawns the processing loop. Idempotent: a second call is a no-op.
func (p *Processor) Start(ctx context.Context) {
	p.startedMu.Lock()
	defer p.startedMu.Unlock()
	if p.started {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = true

	p.wg.Add(1)
	go p.run()
}

// SetEncodeFailureHook installs a callback invoked once per dropped frame
// (an encode failure already recorded on the encoder's own Stats). Must be
// called before Start; nil clears it.
func (p *Processor) SetEncodeFailureHook(fn func()) {
	p.onEncodeFailure = fn
}

// Stop signals the processing loop to exit and waits for it. Idempotent.
func (p *Processor) Stop() {
	p.startedMu.Lock()
	if !p.started {
		p.startedMu.Unlock()
		return
	}
	p.startedMu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *Processor) run() {
	defer p.wg.Done()

	for {
		if p.ctx.Err() != nil {
			return
		}

		produced := false
		if video := p.manager.VideoSource(); video != nil {
			if f, ok := video.TryGetFrame(); ok {
				p.process(f, wire.TypeVideo, p.encoder.EncodeVideo)
				produced = true
			}
		}
		if p.ctx.Err() != nil {
			return
		}
		if audio := p.manager.AudioSource(); audio != nil {
			if f, ok := audio.TryGetFrame(); ok {
				p.process(f, wire.TypeAudio, p.encoder.EncodeAudio)
				produced = true
			}
		}

		if !produced {
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(idlePause):
			}
		}
	}
}

func (p *Processor) process(in *frame.Frame, msgType wire.Type, encode func(in, out *frame.Frame) bool) {
	out := &frame.Frame{}
	if !encode(in, out) {
		p.encoder.RecordFailure()
		slog.Warn("pipeline: encode failed, dropping frame", "trace_id", in.TraceID, "seq", in.Seq)
		if p.onEncodeFailure != nil {
			p.onEncodeFailure()
		}
		return
	}

	msg := wire.NewMessage(msgType, out.Payload, uint64(time.Now().UnixMilli()))
	p.out.Push(msg)
}
