package netio

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/netutil"

	"github.com/e7canasta/avstreamd/internal/workerpool"
)

// Config configures the listener and every connection it accepts.
type Config struct {
	ListenAddr     string
	Port           int
	Backlog        int // advisory; Go's net package doesn't expose SYN backlog directly
	MaxConnections int
	RecvBufferSize int
	SendBufferSize int
	RecvTimeout    time.Duration
	SendTimeout    time.Duration
	ThreadPoolSize int
}

// Listener owns the TCP listen socket, the accept loop, the worker pool
// that runs per-connection receive tasks, and the set of live connections.
type Listener struct {
	cfg   Config
	hooks Hooks

	ln   net.Listener
	pool *workerpool.Pool

	running atomic.Bool

	mu          sync.Mutex
	connections map[uint32]*Connection
	nextID      uint32

	acceptDone chan struct{}
}

// New constructs a Listener. It does not bind a socket until Start is
// called.
func New(cfg Config, hooks Hooks) *Listener {
	return &Listener{
		cfg:         cfg,
		hooks:       hooks,
		connections: make(map[uint32]*Connection),
		pool:        workerpool.New(cfg.ThreadPoolSize),
		acceptDone:  make(chan struct{}),
	}
}

// Start binds the listen socket and launches the accept loop. A bind or
// listen failure is fatal and returned to the caller; the facade must not
// enter the running state on error.
func (l *Listener) Start() error {
	addr := fmt.Sprintf("%s:%d", l.cfg.ListenAddr, l.cfg.Port)
	raw, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("netio: listen on %s: %w", addr, err)
	}

	if l.cfg.MaxConnections > 0 {
		l.ln = netutil.LimitListener(raw, l.cfg.MaxConnections)
	} else {
		l.ln = raw
	}

	l.running.Store(true)
	go l.acceptLoop()
	return nil
}

func (l *Listener) acceptLoop() {
	defer close(l.acceptDone)

	for l.running.Load() {
		conn, err := l.ln.Accept()
		if err != nil {
			if !l.running.Load() {
				return
			}
			slog.Error("accept failed", "error", err)
			continue
		}

		l.mu.Lock()
		if l.cfg.MaxConnections > 0 && len(l.connections) >= l.cfg.MaxConnections {
			l.mu.Unlock()
			slog.Warn("rejecting connection: at max_connections", "addr", conn.RemoteAddr().String())
			_ = conn.Close()
			continue
		}
		l.nextID++
		id := l.nextID
		l.mu.Unlock()

		if tcp, ok := conn.(*net.TCPConn); ok {
			if l.cfg.RecvBufferSize > 0 {
				_ = tcp.SetReadBuffer(l.cfg.RecvBufferSize)
			}
			if l.cfg.SendBufferSize > 0 {
				_ = tcp.SetWriteBuffer(l.cfg.SendBufferSize)
			}
		}

		recvBufSize := l.cfg.RecvBufferSize
		if recvBufSize <= 0 {
			recvBufSize = 64 * 1024
		}

		c := newConnection(id, conn, recvBufSize, l.cfg.RecvTimeout, l.cfg.SendTimeout, l.hooks)

		l.mu.Lock()
		l.connections[id] = c
		l.mu.Unlock()

		if l.hooks.OnConnect != nil {
			l.hooks.OnConnect(c)
		}

		l.pool.Submit(func() {
			c.receiveLoop()
			l.mu.Lock()
			delete(l.connections, c.ID)
			l.mu.Unlock()
			if l.hooks.OnDisconnect != nil {
				l.hooks.OnDisconnect(c)
			}
		})
	}
}

// Lookup resolves a live connection by id. The second return value is
// false if no such connection exists (already disconnected, or never
// existed) -- callers (notably the distributor) must not hold a strong
// reference beyond the lookup.
func (l *Listener) Lookup(id uint32) (*Connection, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.connections[id]
	return c, ok
}

// Snapshot returns the set of currently registered connection ids and
// addresses. Used by the facade's `conns` CLI command and by the
// heartbeat reaper.
func (l *Listener) Snapshot() []*Connection {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Connection, 0, len(l.connections))
	for _, c := range l.connections {
		out = append(out, c)
	}
	return out
}

// Count returns the number of currently registered connections.
func (l *Listener) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.connections)
}

// Stop is idempotent: it clears the running flag, closes the listen
// socket to unblock Accept, waits for the accept loop to exit, closes all
// connections, then shuts down the worker pool.
func (l *Listener) Stop() {
	if !l.running.CompareAndSwap(true, false) {
		return
	}

	if l.ln != nil {
		_ = l.ln.Close()
	}
	<-l.acceptDone

	for _, c := range l.Snapshot() {
		_ = c.Close()
	}

	l.pool.Shutdown()
}

// ReapIdle closes connections whose last activity exceeds timeout. An
// external reaper (or the facade's stats task) calls this periodically.
func (l *Listener) ReapIdle(timeout time.Duration) {
	for _, c := range l.Snapshot() {
		if c.Connected() && c.IdleFor() > timeout {
			slog.Info("reaping idle connection", "id", c.ID, "addr", c.Addr, "idle", c.IdleFor())
			_ = c.Close()
		}
	}
}
