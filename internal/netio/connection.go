// Package netio implements the listener and per-connection receive/send
// engine (C6): the accept loop, ring-buffer-backed message framing, the
// synchronous send path, heartbeat and timeout handling. Ported from
// AVServer_07_TcpServer.h and AVServer_08_Connection.h.
package netio

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/avstreamd/internal/ring"
	"github.com/e7canasta/avstreamd/internal/wire"
)

// Hooks are invoked synchronously by the connection's own goroutines:
// OnConnect in the accept goroutine, OnMessage in the connection's receive
// task, OnDisconnect in the connection's cleanup after the receive task
// exits.
type Hooks struct {
	OnConnect      func(c *Connection)
	OnMessage      func(c *Connection, msg wire.Message)
	OnDisconnect   func(c *Connection)
	OnFramingError func(c *Connection, err error)
}

// Connection is a per-socket record: a unique monotonic id, the peer
// address, the owned socket, an owned receive ring buffer, and the
// connected flag. The id is stable and never reused within a server's
// lifetime.
type Connection struct {
	ID      uint32
	TraceID string
	Addr    string

	conn net.Conn
	recv *ring.Buffer

	connected atomic.Bool
	lastSeen  atomic.Int64 // unix nanos

	sendMu sync.Mutex

	recvTimeout time.Duration
	sendTimeout time.Duration

	hooks Hooks
}

func newConnection(id uint32, c net.Conn, recvBufSize int, recvTimeout, sendTimeout time.Duration, hooks Hooks) *Connection {
	conn := &Connection{
		ID:          id,
		TraceID:     uuid.NewString(),
		Addr:        c.RemoteAddr().String(),
		conn:        c,
		recv:        ring.New(recvBufSize),
		recvTimeout: recvTimeout,
		sendTimeout: sendTimeout,
		hooks:       hooks,
	}
	conn.connected.Store(true)
	conn.touch()
	return conn
}

func (c *Connection) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastActivity returns the instant of the connection's last observed
// activity (received bytes or construction time).
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Connected reports whether the connection is still considered live.
func (c *Connection) Connected() bool {
	return c.connected.Load()
}

// IdleFor returns how long it has been since the connection last saw
// activity.
func (c *Connection) IdleFor() time.Duration {
	return time.Since(c.LastActivity())
}

// Send serializes msg and writes the full buffer synchronously; partial
// writes loop until complete or an error occurs. A send error flips
// connected to false.
func (c *Connection) Send(msg wire.Message) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.connected.Load() {
		return net.ErrClosed
	}

	buf := msg.Marshal()
	if c.sendTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.sendTimeout))
	}

	written := 0
	for written < len(buf) {
		n, err := c.conn.Write(buf[written:])
		if err != nil {
			c.connected.Store(false)
			return err
		}
		written += n
	}
	return nil
}

// SendHeartbeat sends a zero-payload heartbeat (or heartbeat-ack) bearing
// the current wall-clock timestamp.
func (c *Connection) SendHeartbeat(ack bool) error {
	t := wire.TypeHeartbeat
	if ack {
		t = wire.TypeHeartbeatAck
	}
	return c.Send(wire.NewMessage(t, nil, uint64(time.Now().UnixMilli())))
}

// Close closes the underlying socket. Safe to call multiple times.
func (c *Connection) Close() error {
	c.connected.Store(false)
	return c.conn.Close()
}

// receiveLoop is the connection's per-task body (run by the worker pool).
// It repeatedly reads from the socket into the ring buffer, then attempts
// message extraction, dispatching each complete message via OnMessage.
// Returns on read/extraction-ending I/O error or EOF.
func (c *Connection) receiveLoop() {
	readBuf := make([]byte, 4096)

	for {
		if c.recvTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.recvTimeout))
		}

		n, err := c.conn.Read(readBuf)
		if n > 0 {
			c.recv.Write(readBuf[:n], n)
			c.touch()

			msgs := wire.Extract(c.recv, func(logErr error) {
				logFramingError(c, logErr)
				if c.hooks.OnFramingError != nil {
					c.hooks.OnFramingError(c, logErr)
				}
			})
			for _, m := range msgs {
				if c.hooks.OnMessage != nil {
					c.hooks.OnMessage(c, m)
				}
			}
		}
		if err != nil {
			c.connected.Store(false)
			return
		}
	}
}
