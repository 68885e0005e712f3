/*
The supervisor package sequences successive connection attempts under a retry
policy. A supervisor emits each live connection on its Connections stream,
re-dials immediately when a connection dies on its own, backs off between
failed establishment attempts, and shuts the whole sequence down when asked
to close or when the retry policy gives up.
*/
package supervisor

import (
	"context"
	"errors"
	"net"
	"sync"
	"syscall"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"gopkg.in/tomb.v2"

	"github.com/duplexlink/wsduplex/connection"
	"github.com/duplexlink/wsduplex/logger"
)

const defaultRetryDelay = 5 * time.Second

// Config wires a supervisor. URL is required; everything else has defaults.
// URL and Options are providers rather than values so that every attempt can
// pick up fresh credentials or endpoints.
type Config[I, O any] struct {
	URL     func() string
	Options func() connection.Options[I, O]

	// Delay policy between failed attempts; a constant 5s by default.
	// Returning backoff.Stop ends the supervisor.
	Backoff backoff.BackOff

	// Decides whether an establishment failure is worth another attempt;
	// DefaultShouldRetry by default
	ShouldRetry func(err error) bool

	Logger *logger.Logger
}

type Supervisor[I, O any] struct {
	tmb    tomb.Tomb
	logger *logger.Logger
	cfg    Config[I, O]

	connections chan *connection.Conn[I, O]

	closeOnce sync.Once
	closeReq  chan struct{}
}

func Supervise[I, O any](cfg Config[I, O]) *Supervisor[I, O] {
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.NewConstantBackOff(defaultRetryDelay)
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = DefaultShouldRetry
	}
	if cfg.Options == nil {
		cfg.Options = func() connection.Options[I, O] {
			return connection.Options[I, O]{}
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	s := &Supervisor[I, O]{
		logger:      cfg.Logger,
		cfg:         cfg,
		connections: make(chan *connection.Conn[I, O]),
		closeReq:    make(chan struct{}),
	}
	s.tmb.Go(s.run)

	return s
}

// Connections is the stream of successive live connections. It is closed
// when the supervisor ends; nothing is ever emitted after that.
func (s *Supervisor[I, O]) Connections() <-chan *connection.Conn[I, O] {
	return s.connections
}

// Close gracefully shuts down the active connection, if any, then ends the
// connections stream. It blocks until the supervisor has stopped and is safe
// to call more than once.
func (s *Supervisor[I, O]) Close() {
	s.closeOnce.Do(func() {
		close(s.closeReq)
	})
	s.tmb.Wait()
}

func (s *Supervisor[I, O]) Done() <-chan struct{} {
	return s.tmb.Dead()
}

func (s *Supervisor[I, O]) Err() error {
	return s.tmb.Err()
}

func (s *Supervisor[I, O]) run() error {
	defer close(s.connections)
	s.logger.Infof("Supervisor started")
	defer s.logger.Infof("Supervisor stopped")

	if s.cfg.URL == nil {
		return errors.New("supervisor requires a url provider")
	}

	// Tie a context to the close request so an in-flight establishment is
	// cancelled rather than waited out
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.closeReq:
			cancel()
		case <-s.tmb.Dying():
			cancel()
		}
	}()

	attempt := 0
	for {
		if attempt > 0 {
			delay := s.cfg.Backoff.NextBackOff()
			if delay == backoff.Stop {
				s.logger.Infof("Retry policy exhausted after %d failed attempts", attempt)
				return nil
			}

			if delay > 0 {
				s.logger.Infof("Retrying in %s (attempt %d)", delay, attempt)
				timer := time.NewTimer(delay)
				select {
				case <-s.closeReq:
					timer.Stop()
					return nil
				case <-s.tmb.Dying():
					timer.Stop()
					return nil
				case <-timer.C:
				}
			}
		}

		// A close may have arrived while we were not watching for it
		select {
		case <-s.closeReq:
			return nil
		default:
		}

		conn, err := connection.Open(ctx, s.cfg.URL(), s.cfg.Options())
		if err != nil {
			// A close request cancels the dial context; the resulting
			// establishment failure is not the supervisor's error
			select {
			case <-s.closeReq:
				return nil
			default:
			}

			if !s.cfg.ShouldRetry(err) {
				s.logger.Errorf("Not retrying after connection attempt %d: %s", attempt, err)
				return err
			}
			s.logger.Errorf("Connection attempt %d failed: %s", attempt, err)
			attempt++
			continue
		}

		// Any success restarts the retry policy from its shortest delay
		s.cfg.Backoff.Reset()
		attempt = 0
		s.logger.Infof("Connection established")

		select {
		case s.connections <- conn:
		case <-s.closeReq:
			s.disconnect(conn)
			return nil
		}

		select {
		case <-conn.Done():
			s.logger.Infof("Connection ended (%s), reconnecting", conn.Closure())
		case <-s.closeReq:
			s.disconnect(conn)
			return nil
		}
	}
}

// disconnect gracefully closes the active connection and waits for its
// closure before the supervisor ends.
func (s *Supervisor[I, O]) disconnect(conn *connection.Conn[I, O]) {
	s.logger.Infof("Close requested, shutting down the active connection")
	conn.CloseOutbound()
	<-conn.Done()
}

// DefaultShouldRetry retries connection-refused-class causes: refused
// sockets and dial timeouts. Anything else is treated as fatal.
func DefaultShouldRetry(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
