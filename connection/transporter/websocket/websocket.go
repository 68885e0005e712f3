/*
The websocket package ferries fragments across an underlying gorilla/websocket
connection. In terms of the overall connection layer architecture, this
package is at the lowest layer: it performs the upgrade handshake, delivers
inbound fragments one unit of demand at a time, and exposes the raw send,
ping, close and abort primitives the layer above multiplexes onto.
*/
package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"gopkg.in/tomb.v2"

	"github.com/duplexlink/wsduplex/connection/message"
	"github.com/duplexlink/wsduplex/connection/transporter"
	"github.com/duplexlink/wsduplex/logger"
)

const (
	HttpsOnlyWebsocketScheme = "wss"
	HttpWebsocketScheme      = "ws"

	// Deadline applied to control frame writes
	controlWriteWait = 10 * time.Second

	// Upper bound on the size of a single delivered fragment; larger
	// messages are delivered as several fragments
	fragmentSize = 32 * 1024
)

var WebsocketUrlScheme = HttpsOnlyWebsocketScheme

type Websocket struct {
	tmb    tomb.Tomb
	logger *logger.Logger
	client *gorilla.Conn
	cb     transporter.Callbacks

	// Receive credit; the read pump blocks here before every fragment
	demand chan struct{}

	abortOnce sync.Once
}

func New(logger *logger.Logger) transporter.Transporter {
	return &Websocket{
		logger: logger,
		demand: make(chan struct{}, 1),
	}
}

func (w *Websocket) Dial(ctx context.Context, connUrl *url.URL, headers http.Header, subprotocols []string, cb transporter.Callbacks) (err error) {
	// Make sure url scheme is correct
	connUrl.Scheme = WebsocketUrlScheme

	dialer := gorilla.Dialer{
		Proxy:        http.ProxyFromEnvironment,
		Subprotocols: subprotocols,
	}

	// Try to connect websocket once
	if w.client, _, err = dialer.DialContext(ctx, connUrl.String(), headers); err != nil {
		return fmt.Errorf("error dialing websocket: %w", err)
	}

	w.cb = cb
	w.client.SetPongHandler(func(appData string) error {
		if w.cb.OnPong != nil {
			w.cb.OnPong([]byte(appData))
		}
		return nil
	})

	w.tmb.Go(w.receive)

	return nil
}

func (w *Websocket) Done() <-chan struct{} {
	return w.tmb.Dead()
}

func (w *Websocket) Err() error {
	return w.tmb.Err()
}

// Demand grants one unit of receive credit. Credit does not accumulate past
// one outstanding unit.
func (w *Websocket) Demand() {
	select {
	case w.demand <- struct{}{}:
	default:
	}
}

func (w *Websocket) Send(msg message.Message) error {
	if w.client == nil {
		return fmt.Errorf("cannot send message because websocket is closed")
	}

	switch msg.Kind {
	case message.KindText:
		return w.client.WriteMessage(gorilla.TextMessage, []byte(msg.Text))
	case message.KindBinary:
		return w.client.WriteMessage(gorilla.BinaryMessage, msg.Data)
	default:
		return fmt.Errorf("refusing to send message of kind %s", msg.Kind)
	}
}

func (w *Websocket) Ping(payload []byte) error {
	if w.client == nil {
		return fmt.Errorf("cannot ping because websocket is closed")
	}
	return w.client.WriteControl(gorilla.PingMessage, payload, time.Now().Add(controlWriteWait))
}

func (w *Websocket) SendClose(status int, reason string) error {
	if w.client == nil {
		return fmt.Errorf("cannot close because websocket is closed")
	}
	closeMessage := gorilla.FormatCloseMessage(status, reason)
	return w.client.WriteControl(gorilla.CloseMessage, closeMessage, time.Now().Add(controlWriteWait))
}

// Abort tears down the underlying connection without a close handshake. The
// read pump's resulting error is swallowed because the tomb is already dying.
func (w *Websocket) Abort() {
	w.abortOnce.Do(func() {
		if w.client == nil {
			return
		}
		w.logger.Infof("Websocket connection aborting")
		w.tmb.Kill(nil)
		w.client.Close()
	})
}

func (w *Websocket) receive() error {
	defer w.logger.Infof("Websocket connection closed")
	w.logger.Infof("Websocket connection started")

	var reader io.Reader
	var kind message.Kind
	buffer := make([]byte, fragmentSize)

	for {
		// Wait for the layer above to grant receive credit
		select {
		case <-w.tmb.Dying():
			return nil
		case <-w.demand:
		}

		if reader == nil {
			messageType, nextReader, err := w.client.NextReader()
			if !w.tmb.Alive() {
				return nil
			} else if err != nil {
				return w.dispatchTerminal(err)
			}

			switch messageType {
			case gorilla.TextMessage:
				kind = message.KindText
			case gorilla.BinaryMessage:
				kind = message.KindBinary
			default:
				// Control frames are handled by their handlers inside
				// NextReader; re-grant the credit we consumed
				w.Demand()
				continue
			}
			reader = nextReader
		}

		n, err := reader.Read(buffer)
		final := false
		if err == io.EOF {
			final = true
			reader = nil
		} else if err != nil {
			if !w.tmb.Alive() {
				return nil
			}
			return w.dispatchTerminal(err)
		}

		if n == 0 && !final {
			w.Demand()
			continue
		}

		fragment := message.Fragment{
			Kind:  kind,
			Data:  append([]byte(nil), buffer[:n]...),
			Final: final,
		}
		if w.cb.OnFragment != nil {
			w.cb.OnFragment(fragment)
		}
	}
}

// dispatchTerminal reports the end of the connection to the layer above,
// distinguishing a completed close handshake from a genuine failure.
func (w *Websocket) dispatchTerminal(err error) error {
	var closeErr *gorilla.CloseError
	if errors.As(err, &closeErr) {
		w.logger.Infof("Websocket closed by peer with status %d: %s", closeErr.Code, closeErr.Text)
		if w.cb.OnClose != nil {
			w.cb.OnClose(closeErr.Code, closeErr.Text)
		}
		return nil
	}

	w.logger.Errorf("Websocket read failed: %s", err)
	if w.cb.OnError != nil {
		w.cb.OnError(err)
	}
	return err
}
