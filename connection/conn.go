/*
The connection package manages the lifecycle of a single bidirectional
streaming connection. Messages flow through two unidirectional streams:
consumers read parsed values from Inbound and write outgoing values to
Outbound. Closing the outbound stream starts a graceful close handshake; a
heartbeat probes the peer for liveness; and every terminal event, however
many race, funnels into a single closure descriptor observable through Done
and Closure.
*/
package connection

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/duplexlink/wsduplex/connection/message"
	"github.com/duplexlink/wsduplex/connection/transporter"
	"github.com/duplexlink/wsduplex/logger"
)

// Conn is one live connection. I is the type consumers read from the inbound
// stream and O the type they write to the outbound stream; with no parsers
// configured both are message.Message.
type Conn[I, O any] struct {
	tmb    tomb.Tomb
	logger *logger.Logger
	opts   Options[I, O]

	transport transporter.Transporter

	inbound  chan I
	outbound chan O

	// Keep-alive plumbing: ping triggers hand off to the send loop
	// unbuffered; the pong slot holds at most the latest unread pong
	ping chan []byte
	pong chan []byte

	framer framer
	cell   *closeCell

	outboundOnce sync.Once
}

// Open establishes a connection to the given url and starts its send loop
// and, unless disabled, its heartbeat. On failure the underlying cause is
// returned and no connection is produced. Open blocks its caller; run it in
// a goroutine when establishment must not block.
func Open[I, O any](ctx context.Context, rawUrl string, opts Options[I, O]) (*Conn[I, O], error) {
	opts = opts.withDefaults()

	connUrl, err := url.Parse(rawUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid connection url %s: %w", rawUrl, err)
	}

	conn := &Conn[I, O]{
		logger:    opts.Logger,
		opts:      opts,
		transport: opts.Transporter,
		inbound:   make(chan I, opts.InboundBuffer),
		outbound:  make(chan O, opts.OutboundBuffer),
		ping:      make(chan []byte),
		pong:      make(chan []byte, 1),
		cell:      newCloseCell(),
	}

	dialCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	callbacks := transporter.Callbacks{
		OnFragment: conn.onFragment,
		OnPong:     conn.onPong,
		OnClose:    conn.onClose,
		OnError:    conn.onError,
	}
	if err := conn.transport.Dial(dialCtx, connUrl, opts.Headers, opts.Subprotocols, callbacks); err != nil {
		return nil, fmt.Errorf("failed to establish connection: %w", err)
	}

	conn.tmb.Go(conn.sendLoop)
	if opts.PingInterval > 0 {
		conn.tmb.Go(conn.heartbeat)
	}
	go conn.teardown()

	// Grant the initial unit of receive credit
	conn.transport.Demand()

	return conn, nil
}

// Inbound returns the stream of parsed inbound values. It is closed when the
// connection ends, after the closure descriptor has been set. Consumers are
// responsible for keeping it drained; an undrained unbuffered inbound stream
// stalls the transport's receive path.
func (c *Conn[I, O]) Inbound() <-chan I {
	return c.inbound
}

// Outbound returns the stream consumers write outgoing values to. Closing it
// initiates a graceful shutdown; prefer CloseOutbound when more than one
// party may request the close.
func (c *Conn[I, O]) Outbound() chan<- O {
	return c.outbound
}

// CloseOutbound closes the outbound stream exactly once, initiating a
// graceful shutdown. Calling it again is a no-op.
func (c *Conn[I, O]) CloseOutbound() {
	c.outboundOnce.Do(func() {
		close(c.outbound)
	})
}

// Done closes when the connection has ended for any reason.
func (c *Conn[I, O]) Done() <-chan struct{} {
	return c.cell.Done()
}

// Closure reports why the connection ended; only meaningful after Done.
func (c *Conn[I, O]) Closure() Closure {
	return c.cell.get()
}

// Err is the error rendering of Closure; nil for a normal graceful close.
func (c *Conn[I, O]) Err() error {
	return c.cell.get().Err()
}

// onFragment runs on the transport's read context. A completed message is
// parsed and handed off to the inbound stream, blocking until the consumer
// takes it or the connection starts dying, then one unit of receive credit
// is re-granted.
func (c *Conn[I, O]) onFragment(fragment message.Fragment) {
	if assembled, complete := c.framer.push(fragment); complete {
		value, err := c.opts.ParseInbound(assembled)
		if err != nil {
			rerr := fmt.Errorf("failed to parse inbound %s message: %w", assembled.Kind, err)
			c.shutdown(Closure{Kind: ClosureTransportError, Cause: rerr})
			return
		}

		select {
		case c.inbound <- value:
		case <-c.tmb.Dying():
			return
		}
	}
	c.transport.Demand()
}

func (c *Conn[I, O]) onPong(payload []byte) {
	// Only the most recent unread pong matters for liveness; drop the
	// payload if the slot is occupied
	select {
	case c.pong <- payload:
	default:
	}
}

func (c *Conn[I, O]) onClose(status int, reason string) {
	c.shutdown(Closure{Kind: ClosureGraceful, Status: status, Reason: reason})
}

func (c *Conn[I, O]) onError(err error) {
	c.shutdown(Closure{Kind: ClosureTransportError, Cause: err})
}

// sendLoop multiplexes the outbound stream and the ping trigger stream into
// transport sends, one in-flight send at a time, no priority between the
// two. It owns the graceful close handshake.
func (c *Conn[I, O]) sendLoop() error {
	c.logger.Infof("Send loop started")
	defer c.logger.Infof("Send loop stopped")

	for {
		select {
		case <-c.tmb.Dying():
			return nil

		case payload := <-c.ping:
			if err := c.transport.Ping(payload); err != nil {
				c.opts.OnSendError(SendError{Value: payload, Port: PortPing, Cause: err})
			}

		case value, ok := <-c.outbound:
			if !ok {
				return c.closeGracefully()
			}
			c.sendOutbound(value)
		}
	}
}

func (c *Conn[I, O]) sendOutbound(value O) {
	msg, err := c.opts.FormatOutbound(value)
	if err != nil {
		c.opts.OnSendError(SendError{Value: value, Port: PortOutbound, Cause: err})
		return
	}

	switch msg.Kind {
	case message.KindText, message.KindBinary:
		if err := c.transport.Send(msg); err != nil {
			c.opts.OnSendError(SendError{Value: value, Port: PortOutbound, Cause: err})
		}
	default:
		c.opts.OnSendError(SendError{
			Value: value,
			Port:  PortOutbound,
			Cause: fmt.Errorf("output parser produced neither text nor binary"),
		})
	}
}

// closeGracefully begins the close handshake after the consumer closed the
// outbound stream. If a close timeout is configured, the peer has that long
// to complete the handshake before the connection is aborted.
func (c *Conn[I, O]) closeGracefully() error {
	c.logger.Infof("Outbound stream closed, beginning close handshake")

	if err := c.transport.SendClose(transporter.StatusNormalClosure, ""); err != nil {
		c.logger.Errorf("failed to send close frame: %s", err)
	}

	if c.opts.CloseTimeout <= 0 {
		return nil
	}

	timer := time.NewTimer(c.opts.CloseTimeout)
	defer timer.Stop()

	select {
	case <-c.cell.Done():
		return nil
	case <-timer.C:
		c.logger.Errorf("timed out after %s waiting for close handshake, aborting", c.opts.CloseTimeout)
		c.transport.Abort()
		c.shutdown(Closure{Kind: ClosureAborted})
		return nil
	}
}

// shutdown is the single idempotent close funnel, invocable concurrently
// from the listener callbacks, the send loop and the heartbeat. The first
// caller's closure wins; later calls are no-ops.
func (c *Conn[I, O]) shutdown(closure Closure) {
	if !c.cell.set(closure) {
		return
	}

	c.logger.Infof("Connection closing: %s", closure)
	c.tmb.Kill(closure.Err())
	c.transport.Abort()
}

// teardown closes the consumer-facing streams once the closure descriptor is
// set and every producer into them has stopped.
func (c *Conn[I, O]) teardown() {
	<-c.cell.Done()
	<-c.transport.Done()
	c.tmb.Wait()

	close(c.inbound)
	close(c.pong)
	c.logger.Infof("Connection done")
}
