package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duplexlink/wsduplex/connection/message"
)

func TestFramerReassemblesFragmentedText(t *testing.T) {
	var f framer

	_, complete := f.push(message.Fragment{Kind: message.KindText, Data: []byte("Hel")})
	require.False(t, complete)

	_, complete = f.push(message.Fragment{Kind: message.KindText, Data: []byte("lo ")})
	require.False(t, complete)

	assembled, complete := f.push(message.Fragment{Kind: message.KindText, Data: []byte("World"), Final: true})
	require.True(t, complete)
	assert.Equal(t, message.Text("Hello World"), assembled)
}

func TestFramerReassemblesFragmentedBinary(t *testing.T) {
	var f framer

	_, complete := f.push(message.Fragment{Kind: message.KindBinary, Data: []byte{0x01, 0x02}})
	require.False(t, complete)

	assembled, complete := f.push(message.Fragment{Kind: message.KindBinary, Data: []byte{0x03}, Final: true})
	require.True(t, complete)
	assert.Equal(t, message.Binary([]byte{0x01, 0x02, 0x03}), assembled)
}

func TestFramerSingleFinalFragment(t *testing.T) {
	var f framer

	assembled, complete := f.push(message.Fragment{Kind: message.KindText, Data: []byte("whole"), Final: true})
	require.True(t, complete)
	assert.Equal(t, message.Text("whole"), assembled)
}

func TestFramerEmptyFinalFragment(t *testing.T) {
	var f framer

	assembled, complete := f.push(message.Fragment{Kind: message.KindText, Final: true})
	require.True(t, complete)
	assert.Equal(t, message.Text(""), assembled)
}

// The two directions accumulate independently, so an unfinished text message
// doesn't corrupt an interleaved binary one.
func TestFramerKeepsDirectionsSeparate(t *testing.T) {
	var f framer

	_, complete := f.push(message.Fragment{Kind: message.KindText, Data: []byte("half")})
	require.False(t, complete)

	assembled, complete := f.push(message.Fragment{Kind: message.KindBinary, Data: []byte{0xff}, Final: true})
	require.True(t, complete)
	assert.Equal(t, message.Binary([]byte{0xff}), assembled)

	assembled, complete = f.push(message.Fragment{Kind: message.KindText, Data: []byte("-done"), Final: true})
	require.True(t, complete)
	assert.Equal(t, message.Text("half-done"), assembled)
}

// The accumulator resets after every completed message.
func TestFramerBackToBackMessages(t *testing.T) {
	var f framer

	first, complete := f.push(message.Fragment{Kind: message.KindText, Data: []byte("one"), Final: true})
	require.True(t, complete)
	assert.Equal(t, message.Text("one"), first)

	second, complete := f.push(message.Fragment{Kind: message.KindText, Data: []byte("two"), Final: true})
	require.True(t, complete)
	assert.Equal(t, message.Text("two"), second)
}
