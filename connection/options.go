package connection

import (
	"fmt"
	"net/http"
	"time"

	"github.com/duplexlink/wsduplex/connection/message"
	"github.com/duplexlink/wsduplex/connection/transporter"
	"github.com/duplexlink/wsduplex/connection/transporter/websocket"
	"github.com/duplexlink/wsduplex/logger"
)

// Disabled turns off an optional timeout or the heartbeat entirely when
// assigned to the corresponding Options field.
const Disabled time.Duration = -1

const (
	defaultPingInterval   = 30 * time.Second
	defaultPingTimeout    = 10 * time.Second
	defaultConnectTimeout = 30 * time.Second
	defaultCloseTimeout   = 10 * time.Second
)

// Port identifies which producer a failed send came from.
type Port int

const (
	PortOutbound Port = iota
	PortPing
)

func (p Port) String() string {
	switch p {
	case PortOutbound:
		return "outbound"
	case PortPing:
		return "ping"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// SendError reports a single failed ping or outbound send. Send failures are
// local and non-fatal; the send loop keeps running.
type SendError struct {
	Value interface{}
	Port  Port
	Cause error
}

func (e SendError) Error() string {
	return fmt.Sprintf("failed to send on %s port: %s", e.Port, e.Cause)
}

func (e SendError) Unwrap() error { return e.Cause }

// ParseFunc turns a reassembled inbound message into the value the consumer
// reads from the inbound stream.
type ParseFunc[I any] func(msg message.Message) (I, error)

// FormatFunc turns an outbound value into the message that goes on the wire.
// It must yield a text or binary message.
type FormatFunc[O any] func(value O) (message.Message, error)

// Options configures one connection. Every field is optional; defaults are
// resolved once when the connection is opened.
type Options[I, O any] struct {
	// How often to probe the peer for liveness (default 30s). Disabled
	// turns the heartbeat off entirely.
	PingInterval time.Duration

	// How long to wait for a pong reply before declaring the peer dead
	// (default 10s). Disabled makes the interval cadence double as the
	// reply deadline.
	PingTimeout time.Duration

	// Payload carried on every ping (default empty)
	PingPayload []byte

	// Deadline on the transport handshake (default 30s)
	ConnectTimeout time.Duration

	// How long a graceful close may wait for the peer's reply before the
	// connection is aborted (default 10s). Disabled waits forever.
	CloseTimeout time.Duration

	Headers      http.Header
	Subprotocols []string

	// Buffer sizes for the inbound and outbound streams (default unbuffered)
	InboundBuffer  int
	OutboundBuffer int

	// Message parsing on each side; identity by default, which requires
	// I and O to be message.Message
	ParseInbound   ParseFunc[I]
	FormatOutbound FormatFunc[O]

	// Called for every failed ping or outbound send; defaults to logging
	// through the connection's logger
	OnSendError func(SendError)

	Logger *logger.Logger

	// The transport to run over; defaults to a websocket transport
	Transporter transporter.Transporter
}

func (o Options[I, O]) withDefaults() Options[I, O] {
	o.PingInterval = defaultDuration(o.PingInterval, defaultPingInterval)
	o.PingTimeout = defaultDuration(o.PingTimeout, defaultPingTimeout)
	o.ConnectTimeout = defaultDuration(o.ConnectTimeout, defaultConnectTimeout)
	o.CloseTimeout = defaultDuration(o.CloseTimeout, defaultCloseTimeout)

	if o.Logger == nil {
		o.Logger = logger.Nop()
	}

	if o.ParseInbound == nil {
		o.ParseInbound = func(msg message.Message) (I, error) {
			value, ok := any(msg).(I)
			if !ok {
				return value, fmt.Errorf("no inbound parser configured and %T is not message.Message", value)
			}
			return value, nil
		}
	}

	if o.FormatOutbound == nil {
		o.FormatOutbound = func(value O) (message.Message, error) {
			msg, ok := any(value).(message.Message)
			if !ok {
				return message.Message{}, fmt.Errorf("no outbound parser configured and %T is not message.Message", value)
			}
			return msg, nil
		}
	}

	if o.OnSendError == nil {
		log := o.Logger
		o.OnSendError = func(sendErr SendError) {
			log.Error(sendErr)
		}
	}

	if o.Transporter == nil {
		o.Transporter = websocket.New(o.Logger.GetComponentLogger("Websocket"))
	}

	return o
}

func defaultDuration(configured, fallback time.Duration) time.Duration {
	if configured == 0 {
		return fallback
	}
	return configured
}
