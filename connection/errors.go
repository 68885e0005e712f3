package connection

import (
	"errors"
	"fmt"
)

// ErrAborted is the closure error when a local timeout (a missed pong or a
// stalled close handshake) forced the connection down without a handshake.
var ErrAborted = errors.New("connection was aborted by a local timeout")

// The AbnormalClosureError is used when the peer completed a close handshake
// with a status other than the normal closure status. It should generally be
// treated as a failure by consumers that expect orderly shutdowns.
type AbnormalClosureError struct {
	Status int
	Reason string
}

func (e *AbnormalClosureError) Error() string {
	return fmt.Sprintf("connection closed by peer with status %d: %s", e.Status, e.Reason)
}
