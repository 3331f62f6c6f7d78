package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsEvents(t *testing.T) {
	h := NewHub()
	conn := dialHub(t, h)
	waitForClients(t, h, 1)

	h.Publish("conflict_detected", map[string]interface{}{
		"entity_kind": "player",
		"fields":      []string{"hits"},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, "conflict_detected", ev.Event)
	assert.Equal(t, "player", ev.Payload["entity_kind"])
	assert.False(t, ev.Timestamp.IsZero())
}

func TestHubPublishWithoutClients(t *testing.T) {
	h := NewHub()
	// must not block or panic
	h.Publish("fallback_triggered", map[string]interface{}{"source": "external_api"})
	assert.Equal(t, 0, h.ClientCount())
}

func TestHubRemovesDisconnectedClients(t *testing.T) {
	h := NewHub()
	conn := dialHub(t, h)
	waitForClients(t, h, 1)

	conn.Close()
	waitForClients(t, h, 0)
}
