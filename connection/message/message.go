/*
The message package holds the payload types shared by the transport and the
connection layer. A Message is the unit consumers deal in; a Fragment is the
transport-level slice of one, with the last fragment of a message marked
final.
*/
package message

import "fmt"

type Kind int

const (
	KindText Kind = iota
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Message is a tagged union of the two payload kinds a websocket-style
// transport can carry. Exactly one of Text or Data is meaningful, selected
// by Kind; send sites match on Kind explicitly.
type Message struct {
	Kind Kind
	Text string
	Data []byte
}

func Text(s string) Message {
	return Message{Kind: KindText, Text: s}
}

func Binary(b []byte) Message {
	return Message{Kind: KindBinary, Data: b}
}

// Payload returns the raw bytes of the message regardless of kind.
func (m Message) Payload() []byte {
	if m.Kind == KindText {
		return []byte(m.Text)
	}
	return m.Data
}

// Fragment is one transport-level unit of a message. A logical message may
// span several fragments of the same kind; Final marks the last one.
type Fragment struct {
	Kind  Kind
	Data  []byte
	Final bool
}
