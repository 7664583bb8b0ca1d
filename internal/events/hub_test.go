package events

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahilrshah/productivity-app/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubDeliversPublishedEvents(t *testing.T) {
	t.Parallel()
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	conn := dialHub(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)

	jobID := uuid.New()
	hub.Publish(ProgressEvent{
		JobID:    jobID,
		Status:   domain.JobStatusProcessing,
		Progress: 40,
		Message:  "Creating records",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got ProgressEvent
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, jobID, got.JobID)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, "Creating records", got.Message)
}

func TestHubTracksDisconnects(t *testing.T) {
	t.Parallel()
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	conn := dialHub(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	// The hub is deliberately not started, so nothing drains the queue.
	hub := NewHub(testLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.Publish(ProgressEvent{JobID: uuid.New(), Progress: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}

func TestNopEmitter(t *testing.T) {
	t.Parallel()
	var e Emitter = NopEmitter{}
	e.Publish(ProgressEvent{JobID: uuid.New()})
}

func TestServeWSAfterStopClosesConnection(t *testing.T) {
	t.Parallel()
	hub := NewHub(testLogger())
	hub.Start()
	hub.Stop()

	// The run loop has exited; the upgrade still succeeds but the handler
	// must close the connection rather than block on registration.
	conn := dialHub(t, hub)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 0, hub.ClientCount())
}
