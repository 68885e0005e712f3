/*
The transporter package defines the contract between the connection layer and
whatever ferries frames over the wire. The transport does not free-run: it
delivers exactly one fragment per unit of receive demand granted with
Demand(), which is how the layer above applies flow-control without buffering
the world.
*/
package transporter

import (
	"context"
	"net/http"
	"net/url"

	"github.com/duplexlink/wsduplex/connection/message"
)

// StatusNormalClosure is the close status a well-behaved peer sends when the
// connection is being shut down on purpose (RFC 6455 1000).
const StatusNormalClosure = 1000

// Callbacks is how the transport reports traffic and terminal events to its
// owner. Callbacks are invoked from the transport's own read context, one at
// a time.
type Callbacks struct {
	// One fragment per unit of demand. The callee re-grants demand when it
	// is ready for the next fragment.
	OnFragment func(fragment message.Fragment)

	// A pong control frame arrived with the given payload
	OnPong func(payload []byte)

	// The peer completed a close handshake with this status and reason
	OnClose func(status int, reason string)

	// The transport failed terminally
	OnError func(err error)
}

type Transporter interface {
	Dial(ctx context.Context, connUrl *url.URL, headers http.Header, subprotocols []string, cb Callbacks) error

	// Demand grants one unit of receive credit; the transport delivers at
	// most one fragment per unit
	Demand()

	// Send writes one complete data frame and blocks until the write has
	// been handed to the wire
	Send(msg message.Message) error

	// Ping writes a ping control frame with the given payload
	Ping(payload []byte) error

	// SendClose initiates the close handshake
	SendClose(status int, reason string) error

	// Abort tears the connection down without a handshake. Safe to call
	// more than once and safe to call on a dead transport.
	Abort()

	Done() <-chan struct{}
	Err() error
}
