package streaming

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WebSocketMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WebSocketMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func readEvent(t *testing.T, conn *websocket.Conn) models.ServerEvent {
	t.Helper()
	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeEvent, msg.Type)
	var e models.ServerEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &e))
	return e
}

func startHub(t *testing.T, backlog BacklogFunc) (*WebSocketHub, *httptest.Server) {
	t.Helper()
	hub := NewWebSocketHub(backlog, 10, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func TestWebSocketHub_BacklogThenLive(t *testing.T) {
	backlog := func(limit int) []models.ServerEvent {
		// newest first
		return []models.ServerEvent{
			{ID: "e2", Seq: 2, Type: models.EventKnowledgeSync, Payload: models.KnowledgeSync{Version: "kb-0002"}},
			{ID: "e1", Seq: 1, Type: models.EventKnowledgeSync, Payload: models.KnowledgeSync{Version: "kb-0001"}},
		}
	}
	hub, srv := startHub(t, backlog)
	conn := dial(t, srv)

	assert.Equal(t, uint64(1), readEvent(t, conn).Seq)
	assert.Equal(t, uint64(2), readEvent(t, conn).Seq)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	hub.BroadcastEvent(aggregated(models.SeverityHigh, "Financial", "NA-East"))

	live := readEvent(t, conn)
	assert.Equal(t, models.EventAggregated, live.Type)
	assert.IsType(t, models.AggregatedEvent{}, live.Payload)
}

func TestWebSocketHub_Subscription(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(Subscription{Types: []models.EventType{models.EventDirectivePush}}))
	assert.Equal(t, MessageTypeSubscribed, readMessage(t, conn).Type)

	hub.BroadcastEvent(aggregated(models.SeverityCritical, "Financial", "NA-East"))
	hub.BroadcastEvent(&models.ServerEvent{ID: "d", Seq: 9, Type: models.EventDirectivePush,
		Payload: models.Directive{Type: models.DirectiveAgentUpgrade, Version: "3.2.0", TargetOS: "Linux"}})

	got := readEvent(t, conn)
	assert.Equal(t, models.EventDirectivePush, got.Type, "filtered events are not delivered")

	require.NoError(t, conn.WriteJSON(Subscription{Types: []models.EventType{"NOPE"}}))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)
}

func TestWebSocketHub_Disconnect(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
