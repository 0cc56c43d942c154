package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crediflow/internal/platform/broadcast"
)

func TestHubDelivery(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	broadcaster := broadcast.NewMemory()
	hub := NewHub(broadcaster, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()

	dial := func(t *testing.T) *websocket.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}

	readFrame := func(t *testing.T, conn *websocket.Conn) frame {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var f frame
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	}

	publish := func(t *testing.T, target, id string, data map[string]any) {
		t.Helper()
		msg, err := broadcast.NewMessage(target, id, broadcast.EventStatusChanged, data)
		require.NoError(t, err)
		require.NoError(t, broadcaster.Publish(context.Background(), msg))
	}

	t.Run("subscribed client receives application events", func(t *testing.T) {
		conn := dial(t)
		require.NoError(t, conn.WriteJSON(clientCommand{Type: "subscribe", ApplicationID: "app-1"}))
		time.Sleep(50 * time.Millisecond)

		publish(t, broadcast.TargetApplication, "app-1", map[string]any{"applicationId": "app-1", "status": "approved"})

		f := readFrame(t, conn)
		assert.Equal(t, broadcast.EventStatusChanged, f.Event)
		assert.Contains(t, string(f.Data), "app-1")
	})

	t.Run("events for other applications are filtered out", func(t *testing.T) {
		conn := dial(t)
		require.NoError(t, conn.WriteJSON(clientCommand{Type: "subscribe", ApplicationID: "app-2"}))
		time.Sleep(50 * time.Millisecond)

		publish(t, broadcast.TargetApplication, "other-app", map[string]any{"applicationId": "other-app"})
		publish(t, broadcast.TargetApplication, "app-2", map[string]any{"applicationId": "app-2"})

		f := readFrame(t, conn)
		assert.Contains(t, string(f.Data), "app-2")
	})

	t.Run("broadcast events reach unsubscribed clients", func(t *testing.T) {
		conn := dial(t)
		time.Sleep(50 * time.Millisecond)

		publish(t, broadcast.TargetAll, "", map[string]any{"announcement": "maintenance"})

		f := readFrame(t, conn)
		assert.Contains(t, string(f.Data), "maintenance")
	})

	t.Run("country watcher receives events for its country", func(t *testing.T) {
		conn := dial(t)
		require.NoError(t, conn.WriteJSON(clientCommand{Type: "subscribe:country", CountryCode: "BR"}))
		time.Sleep(50 * time.Millisecond)

		publish(t, broadcast.TargetCountry, "MX", map[string]any{"applicationId": "mx-app"})
		publish(t, broadcast.TargetCountry, "BR", map[string]any{"applicationId": "br-app"})

		f := readFrame(t, conn)
		assert.Equal(t, broadcast.EventStatusChanged, f.Event)
		assert.Contains(t, string(f.Data), "br-app")
	})

	t.Run("country events skip clients without the subscription", func(t *testing.T) {
		conn := dial(t)
		require.NoError(t, conn.WriteJSON(clientCommand{Type: "subscribe", ApplicationID: "app-9"}))
		time.Sleep(50 * time.Millisecond)

		publish(t, broadcast.TargetCountry, "BR", map[string]any{"applicationId": "br-app"})

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err)
	})

	t.Run("unsubscribe:country stops delivery", func(t *testing.T) {
		conn := dial(t)
		require.NoError(t, conn.WriteJSON(clientCommand{Type: "subscribe:country", CountryCode: "MX"}))
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, conn.WriteJSON(clientCommand{Type: "unsubscribe:country", CountryCode: "MX"}))
		time.Sleep(50 * time.Millisecond)

		publish(t, broadcast.TargetCountry, "MX", map[string]any{"applicationId": "mx-app"})

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		conn := dial(t)
		require.NoError(t, conn.WriteJSON(clientCommand{Type: "subscribe", ApplicationID: "app-3"}))
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, conn.WriteJSON(clientCommand{Type: "unsubscribe", ApplicationID: "app-3"}))
		time.Sleep(50 * time.Millisecond)

		publish(t, broadcast.TargetApplication, "app-3", map[string]any{"applicationId": "app-3"})

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err)
	})
}
