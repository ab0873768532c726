package streaming

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openprotect-lab/internal/config"
	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)

	go srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}
	t.Cleanup(srv.Shutdown)

	require.Eventually(t, srv.JetStreamEnabled, 5*time.Second, 50*time.Millisecond)
	return srv
}

func TestNATSPublisher_PublishEvent(t *testing.T) {
	srv := runJetStreamServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pub, err := NewNATSPublisher(ctx, config.NATSConfig{URL: srv.ClientURL(), StreamName: "TEST_EVENTS"}, logger.NewNop())
	require.NoError(t, err)
	defer pub.Close()
	require.True(t, pub.IsConnected())

	// raw subscriber on the subject hierarchy
	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	msgs := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe(DefaultSubjectPrefix+".>", msgs)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, nc.Flush())

	event := &models.ServerEvent{
		ID:        "evt-1",
		Seq:       1,
		Timestamp: time.Now().UTC(),
		Type:      models.EventPlaybookTriggered,
		Payload:   models.PlaybookTriggered{PlaybookID: "pb-1", PlaybookName: "Critical Linux", ActionsTaken: []string{"Created case CASE-1"}},
	}
	require.NoError(t, pub.PublishEvent(ctx, event))
	// same id is deduplicated by JetStream
	require.NoError(t, pub.PublishEvent(ctx, event))

	select {
	case msg := <-msgs:
		assert.Equal(t, "console.events.playbook_triggered", msg.Subject)
		var got models.ServerEvent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "pb-1", got.Payload.(models.PlaybookTriggered).PlaybookID)
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}

	stats, err := pub.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TEST_EVENTS", stats.Name)
	assert.Equal(t, uint64(1), stats.Messages)
}

func TestNATSPublisher_Closed(t *testing.T) {
	srv := runJetStreamServer(t)
	ctx := context.Background()

	pub, err := NewNATSPublisher(ctx, config.NATSConfig{URL: srv.ClientURL()}, logger.NewNop())
	require.NoError(t, err)
	pub.Close()

	assert.False(t, pub.IsConnected())
	assert.Error(t, pub.PublishEvent(ctx, &models.ServerEvent{ID: "x", Type: models.EventKnowledgeSync}))

	// the bus keeps serving local subscribers without NATS
	eb := NewEventBus(pub, logger.NewNop())
	ch, cancel := eb.Subscribe(nil)
	defer cancel()
	require.NoError(t, eb.Publish(ctx, &models.ServerEvent{ID: "y", Type: models.EventKnowledgeSync}))
	assert.Len(t, ch, 1)
}
