package connection

import (
	"fmt"
	"sync"

	"github.com/duplexlink/wsduplex/connection/transporter"
)

type ClosureKind int

const (
	// The peer completed a close handshake
	ClosureGraceful ClosureKind = iota

	// The transport failed underneath us
	ClosureTransportError

	// A local timeout forced termination without a handshake
	ClosureAborted
)

// Closure describes why a connection ended. Exactly one closure is produced
// per connection, no matter how many terminal events race.
type Closure struct {
	Kind   ClosureKind
	Status int    // graceful closes only
	Reason string // graceful closes only
	Cause  error  // transport errors only
}

// Err renders the closure as an error. A graceful close with the normal
// status is not an error.
func (c Closure) Err() error {
	switch c.Kind {
	case ClosureGraceful:
		if c.Status == transporter.StatusNormalClosure {
			return nil
		}
		return &AbnormalClosureError{Status: c.Status, Reason: c.Reason}
	case ClosureTransportError:
		return c.Cause
	case ClosureAborted:
		return ErrAborted
	default:
		return nil
	}
}

func (c Closure) String() string {
	switch c.Kind {
	case ClosureGraceful:
		return fmt.Sprintf("graceful close with status %d: %s", c.Status, c.Reason)
	case ClosureTransportError:
		return fmt.Sprintf("transport error: %s", c.Cause)
	case ClosureAborted:
		return "aborted by local timeout"
	default:
		return "unknown closure"
	}
}

// closeCell is a write-once result cell: the first set wins and wakes every
// waiter, later sets are no-ops. Safe under concurrent writers.
type closeCell struct {
	once    sync.Once
	done    chan struct{}
	closure Closure
}

func newCloseCell() *closeCell {
	return &closeCell{done: make(chan struct{})}
}

func (c *closeCell) set(closure Closure) bool {
	won := false
	c.once.Do(func() {
		c.closure = closure
		close(c.done)
		won = true
	})
	return won
}

func (c *closeCell) Done() <-chan struct{} {
	return c.done
}

// get returns the stored closure, or the zero Closure before Done.
func (c *closeCell) get() Closure {
	select {
	case <-c.done:
		return c.closure
	default:
		return Closure{}
	}
}
