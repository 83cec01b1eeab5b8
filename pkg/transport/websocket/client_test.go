package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabstir/llm-session-go/pkg/errors"
)

// echoServer upgrades connections and echoes every text frame back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := gorilla.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, frame); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestAdapterEcho(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	adapter := New(wsURL(server), Options{})
	require.NoError(t, adapter.Connect(context.Background()))
	defer adapter.Close()

	var mu sync.Mutex
	var received [][]byte
	unsubscribe := adapter.OnMessage(func(frame []byte) {
		mu.Lock()
		received = append(received, frame)
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, adapter.Send(context.Background(), []byte(`{"type":"ack"}`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []byte(`{"type":"ack"}`), received[0])
	mu.Unlock()
}

func TestAdapterSendAfterClose(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	adapter := New(wsURL(server), Options{})
	require.NoError(t, adapter.Connect(context.Background()))
	require.NoError(t, adapter.Close())

	err := adapter.Send(context.Background(), []byte("late"))
	assert.True(t, errors.Is(err, errors.ErrTransportClosed))
}

func TestAdapterDialFailure(t *testing.T) {
	adapter := New("ws://127.0.0.1:1/nowhere", Options{DialTimeout: 200 * time.Millisecond})
	err := adapter.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransportClosed))
}

func TestAdapterReconnect(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	adapter := New(wsURL(server), Options{})
	require.NoError(t, adapter.Connect(context.Background()))
	require.NoError(t, adapter.Reconnect(context.Background()))
	defer adapter.Close()

	require.NoError(t, adapter.Send(context.Background(), []byte("after reconnect")))
}
