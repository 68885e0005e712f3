package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/duplexlink/wsduplex/connection/message"
	"github.com/duplexlink/wsduplex/connection/transporter"
)

func TestOpenReportsDialFailure(t *testing.T) {
	dialErr := errors.New("upgrade refused")

	mockTransport := &transporter.MockTransporter{}
	mockTransport.On("Dial").Return(dialErr)

	conn, err := Open(context.Background(), "ws://unit.test", Options[message.Message, message.Message]{
		Transporter: mockTransport,
	})
	require.Nil(t, conn, "no connection may escape a failed dial")
	assert.ErrorIs(t, err, dialErr)
	mockTransport.AssertExpectations(t)
}

func TestSendFailureIsReportedWithoutKillingTheConnection(t *testing.T) {
	sendErr := errors.New("wire fell out")

	transportDone := make(chan struct{})
	var abortOnce sync.Once

	mockTransport := &transporter.MockTransporter{}
	mockTransport.On("Dial").Return(nil)
	mockTransport.On("Demand").Return()
	mockTransport.On("Send", message.Text("doomed")).Return(sendErr)
	mockTransport.On("SendClose", transporter.StatusNormalClosure, "").Return(nil)
	mockTransport.On("Abort").Run(func(mock.Arguments) {
		abortOnce.Do(func() { close(transportDone) })
	}).Return()
	mockTransport.On("Done").Return(transportDone)

	sendErrors := make(chan SendError, 1)
	conn, err := Open(context.Background(), "ws://unit.test", Options[message.Message, message.Message]{
		PingInterval: Disabled,
		CloseTimeout: 10 * time.Millisecond,
		Transporter:  mockTransport,
		OnSendError: func(se SendError) {
			sendErrors <- se
		},
	})
	require.NoError(t, err)

	conn.Outbound() <- message.Text("doomed")

	select {
	case se := <-sendErrors:
		assert.Equal(t, PortOutbound, se.Port)
		assert.ErrorIs(t, se, sendErr)
	case <-time.After(5 * time.Second):
		t.Fatal("the send failure was never reported")
	}

	select {
	case <-conn.Done():
		t.Fatal("a failed send must not close the connection")
	default:
	}

	// The peer never answers the close frame, so the close timeout aborts
	conn.CloseOutbound()
	<-conn.Done()
	assert.Equal(t, ClosureAborted, conn.Closure().Kind)
	mockTransport.AssertExpectations(t)
}
