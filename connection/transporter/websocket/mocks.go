package websocket

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/duplexlink/wsduplex/logger"
)

// MockWebsocketServer accepts a single websocket connection at a time and
// echoes every data message back to its sender. Pings are answered with
// pongs by gorilla's default handler unless SwallowPings is set, which makes
// the server look like a dead peer to a heartbeat.
type MockWebsocketServer struct {
	logger   *logger.Logger
	listener net.Listener

	Addr          string
	ReceivedBytes chan []byte
	SwallowPings  bool

	mu   sync.Mutex
	conn *gorilla.Conn
}

func NewMockWebsocketServer(logger *logger.Logger) *MockWebsocketServer {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		logger.Errorf("failed to setup listener")
	}

	mockServer := &MockWebsocketServer{
		logger:        logger,
		listener:      listener,
		Addr:          fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port),
		ReceivedBytes: make(chan []byte, 16),
	}

	go func() {
		http.Serve(mockServer.listener, mockServer)
	}()

	return mockServer
}

func (m *MockWebsocketServer) Shutdown() {
	m.listener.Close()
}

// ForceClose drops the active connection without a close handshake.
func (m *MockWebsocketServer) ForceClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
	}
}

// Close performs an elegant close handshake on the active connection.
func (m *MockWebsocketServer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		closeMessage := gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")
		m.conn.WriteControl(gorilla.CloseMessage, closeMessage, time.Now().Add(time.Second))
	}
}

func (m *MockWebsocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := gorilla.Upgrader{}

	// Upgrade our raw HTTP connection to a websocket based one
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Errorf("Error during connection upgradation: %s", err)
		return
	}
	defer conn.Close()

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	if m.SwallowPings {
		conn.SetPingHandler(func(appData string) error {
			return nil
		})
	}

	// The event loop
	for {
		messageType, received, err := conn.ReadMessage()
		if err != nil {
			m.logger.Errorf("Error during message reading: %s", err)
			break
		}

		m.ReceivedBytes <- received

		if err = conn.WriteMessage(messageType, received); err != nil {
			m.logger.Errorf("Error during message writing: %s", err)
			break
		}
	}
}
