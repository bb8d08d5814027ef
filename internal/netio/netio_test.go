package netio

import (
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/avstreamd/internal/wire"
)

func TestListenerAcceptAndEcho(t *testing.T) {
	var mu sync.Mutex
	var received []wire.Message

	hooks := Hooks{
		OnMessage: func(c *Connection, msg wire.Message) {
			mu.Lock()
			received = append(received, msg)
			mu.Unlock()
			if msg.Header.Type == wire.TypeHeartbeat {
				_ = c.SendHeartbeat(true)
			}
		},
	}

	l := New(Config{
		ListenAddr:     "127.0.0.1",
		Port:           18891,
		MaxConnections: 10,
		RecvBufferSize: 4096,
		ThreadPoolSize: 2,
	}, hooks)

	if err := l.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer l.Stop()

	conn := dialLoopback(t, 18891)
	defer conn.Close()

	hb := wire.NewMessage(wire.TypeHeartbeat, nil, 123)
	if _, err := conn.Write(hb.Marshal()); err != nil {
		t.Fatalf("write heartbeat: %v", err)
	}

	ackBuf := make([]byte, wire.HeaderSize)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := readFull(conn, ackBuf); err != nil {
		t.Fatalf("reading heartbeat-ack: %v", err)
	}
	ackHeader := wire.UnmarshalHeader(ackBuf)
	if !ackHeader.IsValid() || ackHeader.Type != wire.TypeHeartbeatAck {
		t.Fatalf("expected heartbeat-ack, got type=%d valid=%v", ackHeader.Type, ackHeader.IsValid())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("OnMessage fired %d times, want 1", len(received))
	}
	if received[0].Header.Type != wire.TypeHeartbeat {
		t.Fatalf("received type = %d, want heartbeat", received[0].Header.Type)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	l := New(Config{
		ListenAddr:     "127.0.0.1",
		Port:           18892,
		MaxConnections: 10,
		RecvBufferSize: 4096,
		ThreadPoolSize: 2,
	}, Hooks{})

	if err := l.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	l.Stop()
	l.Stop() // must not block or panic
}
