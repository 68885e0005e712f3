package transporter

import (
	"context"
	"net/http"
	"net/url"

	"github.com/stretchr/testify/mock"

	"github.com/duplexlink/wsduplex/connection/message"
)

type MockTransporter struct {
	mock.Mock
}

func (m *MockTransporter) Dial(ctx context.Context, connUrl *url.URL, headers http.Header, subprotocols []string, cb Callbacks) error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransporter) Demand() {
	m.Called()
}

func (m *MockTransporter) Send(msg message.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockTransporter) Ping(payload []byte) error {
	args := m.Called(payload)
	return args.Error(0)
}

func (m *MockTransporter) SendClose(status int, reason string) error {
	args := m.Called(status, reason)
	return args.Error(0)
}

func (m *MockTransporter) Abort() {
	m.Called()
}

func (m *MockTransporter) Done() <-chan struct{} {
	args := m.Called()
	return args.Get(0).(chan struct{})
}

func (m *MockTransporter) Err() error {
	args := m.Called()
	return args.Error(0)
}
