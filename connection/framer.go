package connection

import (
	"bytes"

	"github.com/duplexlink/wsduplex/connection/message"
)

// framer reassembles fragmented inbound frames into complete logical
// messages, one accumulator per direction. The transport guarantees a single
// in-flight message per direction; that contract is inherited, not enforced
// here.
type framer struct {
	text   bytes.Buffer
	binary bytes.Buffer
}

// push appends one fragment to its direction's accumulator. On a final
// fragment it returns the assembled message and true, and resets the
// accumulator for the next message.
func (f *framer) push(fragment message.Fragment) (message.Message, bool) {
	switch fragment.Kind {
	case message.KindText:
		f.text.Write(fragment.Data)
		if fragment.Final {
			assembled := message.Text(f.text.String())
			f.text.Reset()
			return assembled, true
		}
	case message.KindBinary:
		f.binary.Write(fragment.Data)
		if fragment.Final {
			data := make([]byte, f.binary.Len())
			copy(data, f.binary.Bytes())
			f.binary.Reset()
			return message.Binary(data), true
		}
	}
	return message.Message{}, false
}
