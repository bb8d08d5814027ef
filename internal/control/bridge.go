// Package control implements an out-of-band MQTT control plane that
// mirrors a subset of the in-band wire protocol's control messages
// (set-bitrate, plus subscriber unregistration and a status query) for operators who want to drive
// the server without opening a raw TCP subscriber connection. Grounded on
// References/orion-prototipe/internal/control/handler.go's
// Command/Response/CommandCallbacks shape, re-expressed with msgpack
// encoding instead of JSON.
package control

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"
)

// Command is a control-plane request, msgpack-encoded on the wire.
type Command struct {
	Command string         `msgpack:"command"`
	Params  map[string]any `msgpack:"params,omitempty"`
}

// Response acknowledges a Command.
type Response struct {
	CommandAck string         `msgpack:"command_ack"`
	Status     string         `msgpack:"status"`
	Data       map[string]any `msgpack:"data,omitempty"`
	Error      string         `msgpack:"error,omitempty"`
}

// Callbacks wires control-plane commands into the facade's live state.
type Callbacks struct {
	OnSetBitrateCap        func(subscriberID uint32, bps uint32) error
	OnUnregisterSubscriber func(subscriberID uint32) error
	OnGetStatus            func() map[string]any
}

// Bridge subscribes to an MQTT control topic and dispatches decoded
// commands to Callbacks, publishing a Response on the reply topic for
// each.
type Bridge struct {
	client       mqtt.Client
	controlTopic string
	replyTopic   string
	qos          byte
	callbacks    Callbacks

	mu        sync.RWMutex
	connected bool
}

// Config configures a Bridge's broker connection and topics.
type Config struct {
	Broker       string
	ClientID     string
	ControlTopic string
	ReplyTopic   string
	QoS          byte
}

// New constructs a disconnected Bridge. Connect must be called to start
// receiving commands.
func New(cfg Config, callbacks Callbacks) *Bridge {
	return &Bridge{
		controlTopic: cfg.ControlTopic,
		replyTopic:   cfg.ReplyTopic,
		qos:          cfg.QoS,
		callbacks:    callbacks,
		client:       newClient(cfg),
	}
}

func newClient(cfg Config) mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	return mqtt.NewClient(opts)
}

// Connect dials the broker and subscribes to the control topic.
func (b *Bridge) Connect() error {
	token := b.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control: mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control: mqtt connect failed: %w", err)
	}

	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()

	subToken := b.client.Subscribe(b.controlTopic, b.qos, b.onMessage)
	if !subToken.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control: subscribe timeout")
	}
	return subToken.Error()
}

// Disconnect unsubscribes and closes the broker connection. Safe to call
// even if Connect was never called or already disconnected.
func (b *Bridge) Disconnect() {
	if b.client == nil || !b.client.IsConnected() {
		return
	}
	_ = b.client.Unsubscribe(b.controlTopic)
	b.client.Disconnect(250)

	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}

// Connected reports whether the bridge currently holds a live broker
// connection.
func (b *Bridge) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := msgpack.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Warn("control: malformed command payload, ignoring", "error", err)
		return
	}

	resp := b.dispatch(cmd)
	b.reply(resp)
}

func (b *Bridge) dispatch(cmd Command) Response {
	switch cmd.Command {
	case "set_bitrate_cap":
		return b.handleSetBitrateCap(cmd)
	case "unregister_subscriber":
		return b.handleUnregisterSubscriber(cmd)
	case "get_status":
		return b.handleGetStatus(cmd)
	default:
		slog.Warn("control: unknown command, ignoring", "command", cmd.Command)
		return Response{CommandAck: cmd.Command, Status: "error", Error: "unknown command"}
	}
}

func (b *Bridge) handleSetBitrateCap(cmd Command) Response {
	if b.callbacks.OnSetBitrateCap == nil {
		return Response{CommandAck: cmd.Command, Status: "error", Error: "not supported"}
	}
	id, idOK := toUint32(cmd.Params["subscriber_id"])
	bps, bpsOK := toUint32(cmd.Params["bitrate_bps"])
	if !idOK || !bpsOK {
		return Response{CommandAck: cmd.Command, Status: "error", Error: "missing subscriber_id or bitrate_bps"}
	}
	if err := b.callbacks.OnSetBitrateCap(id, bps); err != nil {
		return Response{CommandAck: cmd.Command, Status: "error", Error: err.Error()}
	}
	return Response{CommandAck: cmd.Command, Status: "ok"}
}

func (b *Bridge) handleUnregisterSubscriber(cmd Command) Response {
	if b.callbacks.OnUnregisterSubscriber == nil {
		return Response{CommandAck: cmd.Command, Status: "error", Error: "not supported"}
	}
	id, ok := toUint32(cmd.Params["subscriber_id"])
	if !ok {
		return Response{CommandAck: cmd.Command, Status: "error", Error: "missing subscriber_id"}
	}
	if err := b.callbacks.OnUnregisterSubscriber(id); err != nil {
		return Response{CommandAck: cmd.Command, Status: "error", Error: err.Error()}
	}
	return Response{CommandAck: cmd.Command, Status: "ok"}
}

func (b *Bridge) handleGetStatus(cmd Command) Response {
	if b.callbacks.OnGetStatus == nil {
		return Response{CommandAck: cmd.Command, Status: "error", Error: "not supported"}
	}
	return Response{CommandAck: cmd.Command, Status: "ok", Data: b.callbacks.OnGetStatus()}
}

func (b *Bridge) reply(resp Response) {
	payload, err := msgpack.Marshal(resp)
	if err != nil {
		slog.Error("control: failed to encode response", "error", err)
		return
	}
	token := b.client.Publish(b.replyTopic, b.qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Warn("control: reply publish timeout", "command_ack", resp.CommandAck)
	}
}

func toUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case uint32:
		return n, true
	case uint64:
		return uint32(n), true
	case int:
		return uint32(n), true
	case int64:
		return uint32(n), true
	case float64:
		return uint32(n), true
	default:
		return 0, false
	}
}
