// Package distributor implements the subscriber registry and fan-out
// task (C10). Grounded on modules/framebus/internal/bus/bus.go's
// RLock-snapshot-then-release Publish pattern and
// _examples/original_source/server/AVServer_16_StreamingService.h.
package distributor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/e7canasta/avstreamd/internal/netio"
	"github.com/e7canasta/avstreamd/internal/queue"
	"github.com/e7canasta/avstreamd/internal/wire"
)

// idlePause is the sleep applied when the pipeline output queue is empty,
// mirroring the pipeline processor's own idle retry interval.
const idlePause = time.Millisecond

// sendQueueDepth bounds each subscriber's per-connection send queue. A
// slow subscriber fills its own queue and starts losing messages instead
// of ever blocking the fan-out loop -- this is the system's central
// liveness invariant (spec §4.10, §9).
const sendQueueDepth = 256

// ConnectionResolver looks up a live connection by id without the caller
// holding a strong reference, per the netio.Listener contract.
type ConnectionResolver interface {
	Lookup(id uint32) (*netio.Connection, bool)
}

// Subscriber is one registered fan-out target.
type Subscriber struct {
	ID         uint32
	Addr       string
	BitrateCap uint32

	active atomic.Bool
	queue  *queue.Queue[wire.Message]

	bytesSent    atomic.Uint64
	messagesSent atomic.Uint64

	wg sync.WaitGroup
}

// Stats is a point-in-time snapshot of a subscriber's accounting.
type Stats struct {
	BytesSent    uint64
	MessagesSent uint64
	Active       bool
}

// Stats returns a snapshot of this subscriber's counters.
func (s *Subscriber) Stats() Stats {
	return Stats{
		BytesSent:    s.bytesSent.Load(),
		MessagesSent: s.messagesSent.Load(),
		Active:       s.active.Load(),
	}
}

// Distributor drains the pipeline's output queue and fans each message out
// to every active subscriber via a dedicated per-subscriber send queue, so
// one slow or stalled subscriber never blocks delivery to the others.
type Distributor struct {
	resolver ConnectionResolver
	in       *queue.Queue[wire.Message]

	mu          sync.RWMutex
	subscribers map[uint32]*Subscriber

	totalDistributed atomic.Uint64
	totalDropped     atomic.Uint64

	onDeliver func(t wire.Type, bytes int)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool
}

// New constructs a Distributor draining `in` and resolving live connections
// via `resolver`.
func New(resolver ConnectionResolver, in *queue.Queue[wire.Message]) *Distributor {
	return &Distributor{
		resolver:    resolver,
		in:          in,
		subscribers: make(map[uint32]*Subscriber),
	}
}

// RegisterSubscriber inserts a new subscriber and launches its dedicated
// send-queue drain goroutine. Re-registering an existing id replaces it.
func (d *Distributor) RegisterSubscriber(id uint32, addr string, bitrateCap uint32) *Subscriber {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.subscribers[id]; ok {
		existing.queue.ShutdownDiscard()
	}

	sub := &Subscriber{
		ID:         id,
		Addr:       addr,
		BitrateCap: bitrateCap,
		queue:      queue.New[wire.Message](sendQueueDepth),
	}
	sub.active.Store(true)
	d.subscribers[id] = sub

	sub.wg.Add(1)
	go d.drainSubscriber(sub)

	return sub
}

// Unregister removes a subscriber and shuts down its send queue.
func (d *Distributor) Unregister(id uint32) {
	d.mu.Lock()
	sub, ok := d.subscribers[id]
	if ok {
		delete(d.subscribers, id)
	}
	d.mu.Unlock()

	if ok {
		sub.queue.ShutdownDiscard()
		sub.wg.Wait()
	}
}

// SetBitrateCap updates a subscriber's advisory bitrate cap.
func (d *Distributor) SetBitrateCap(id uint32, bps uint32) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sub, ok := d.subscribers[id]
	if !ok {
		return false
	}
	sub.BitrateCap = bps
	return true
}

// MinBitrateCap returns the minimum cap across active subscribers, used by
// the facade's default bitrate-aggregation policy. ok is false if there
// are no active subscribers.
func (d *Distributor) MinBitrateCap() (cap uint32, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, sub := range d.subscribers {
		if !sub.active.Load() {
			continue
		}
		if !ok || sub.BitrateCap < cap {
			cap = sub.BitrateCap
			ok = true
		}
	}
	return cap, ok
}

// Snapshot copies the current subscriber list under a short read lock, per
// the spec's "snapshot, then release before any network write" contract.
func (d *Distributor) Snapshot() []*Subscriber {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Subscriber, 0, len(d.subscribers))
	for _, sub := range d.subscribers {
		out = append(out, sub)
	}
	return out
}

// SetDeliveryHook installs a callback invoked once per successful
// per-subscriber send, with the message's type and wire size -- this is
// the point where actual outbound distribution (as opposed to messages
// merely drained from the pipeline) is observable. Must be called before
// Start; nil clears it.
func (d *Distributor) SetDeliveryHook(fn func(t wire.Type, bytes int)) {
	d.onDeliver = fn
}

// Start spawns the fan-out loop. Idempotent.
func (d *Distributor) Start(ctx context.Context) {
	d.startedMu.Lock()
	defer d.startedMu.Unlock()
	if d.started {
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.started = true

	d.wg.Add(1)
	go d.run()
}

// Stop halts the fan-out loop and every subscriber's drain goroutine.
// Idempotent.
func (d *Distributor) Stop() {
	d.startedMu.Lock()
	if !d.started {
		d.startedMu.Unlock()
		return
	}
	d.startedMu.Unlock()

	d.cancel()
	d.wg.Wait()

	for _, sub := range d.Snapshot() {
		d.Unregister(sub.ID)
	}
}

func (d *Distributor) run() {
	defer d.wg.Done()

	for {
		if d.ctx.Err() != nil {
			return
		}

		msg, ok := d.in.PopFor(idlePause)
		if !ok {
			continue
		}

		d.totalDistributed.Add(1)
		for _, sub := range d.Snapshot() {
			if !sub.active.Load() {
				continue
			}
			if !sub.queue.TryPush(msg) {
				d.totalDropped.Add(1)
			}
		}
	}
}

// drainSubscriber owns the per-subscriber send queue: it is the only
// goroutine that calls Connection.Send for this subscriber, so a slow
// write never blocks the shared fan-out loop.
func (d *Distributor) drainSubscriber(sub *Subscriber) {
	defer sub.wg.Done()

	for {
		msg, ok := sub.queue.Pop()
		if !ok {
			return
		}

		conn, found := d.resolver.Lookup(sub.ID)
		if !found || !conn.Connected() {
			sub.active.Store(false)
			continue
		}

		if err := conn.Send(msg); err != nil {
			slog.Warn("distributor: send failed, marking subscriber inactive",
				"subscriber_id", sub.ID, "error", err)
			sub.active.Store(false)
			continue
		}

		sub.bytesSent.Add(uint64(msg.Size()))
		sub.messagesSent.Add(1)
		if d.onDeliver != nil {
			d.onDeliver(msg.Header.Type, msg.Size())
		}
	}
}

// TotalDistributed returns the lifetime count of messages drawn from the
// pipeline output queue.
func (d *Distributor) TotalDistributed() uint64 {
	return d.totalDistributed.Load()
}

// TotalDropped returns the lifetime count of fan-out sends dropped because
// a subscriber's send queue was full.
func (d *Distributor) TotalDropped() uint64 {
	return d.totalDropped.Load()
}
