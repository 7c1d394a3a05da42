package notifyhub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/moyoez/dlnacast-go/notify"
	"github.com/moyoez/dlnacast-go/types"
)

func setupWSServer(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := New()
	router := gin.New()
	router.GET("/notify-ws", HandleNotifyWS(hub))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/notify-ws"
}

func clientCount(h *Hub) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if clientCount(h) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d clients, got %d", want, clientCount(h))
}

// TestBroadcastReachesClient tests the full upgrade-register-broadcast path
func TestBroadcastReachesClient(t *testing.T) {
	hub, wsURL := setupWSServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Broadcast(types.Event{
		Kind:     types.EventDeviceFound,
		DeviceID: "dev_a1b2c3d4e5f60718",
		Time:     time.Now(),
	})

	if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	msgType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Errorf("Expected text message, got type %d", msgType)
	}
	var got types.Event
	if err := sonic.Unmarshal(payload, &got); err != nil {
		t.Fatalf("Failed to parse event payload: %v", err)
	}
	if got.Kind != types.EventDeviceFound {
		t.Errorf("Expected kind %s, got %s", types.EventDeviceFound, got.Kind)
	}
	if got.DeviceID != "dev_a1b2c3d4e5f60718" {
		t.Errorf("Expected device id, got %s", got.DeviceID)
	}
}

// TestBroadcastFansOut tests that every connected client gets the event
func TestBroadcastFansOut(t *testing.T) {
	hub, wsURL := setupWSServer(t)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("Dial %d failed: %v", i, err)
		}
		defer conn.Close()
		conns[i] = conn
	}
	waitForClients(t, hub, 3)

	hub.Broadcast(types.Event{Kind: types.EventDeviceListChanged, Time: time.Now()})

	for i, conn := range conns {
		if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			t.Fatalf("SetReadDeadline failed: %v", err)
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d ReadMessage failed: %v", i, err)
		}
		var got types.Event
		if err := sonic.Unmarshal(payload, &got); err != nil {
			t.Fatalf("client %d payload unusable: %v", i, err)
		}
		if got.Kind != types.EventDeviceListChanged {
			t.Errorf("client %d got kind %s", i, got.Kind)
		}
	}
}

// TestClientDisconnectUnregisters tests that a closed client leaves the hub
func TestClientDisconnectUnregisters(t *testing.T) {
	hub, wsURL := setupWSServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Broadcasting into an empty hub must not panic.
	hub.Broadcast(types.Event{Kind: types.EventDeviceLost, Time: time.Now()})
}

// TestForwardPumpsBusEvents tests the bus-to-websocket bridge
func TestForwardPumpsBusEvents(t *testing.T) {
	hub, wsURL := setupWSServer(t)
	bus := notify.NewBus()
	t.Cleanup(bus.Close)

	sub := bus.Subscribe()
	go hub.Forward(sub)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	bus.Publish(types.Event{
		Kind:     types.EventPlaybackState,
		DeviceID: "dev_a1b2c3d4e5f60718",
		Data:     map[string]any{"state": "PLAYING"},
	})

	if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var got types.Event
	if err := sonic.Unmarshal(payload, &got); err != nil {
		t.Fatalf("Failed to parse event payload: %v", err)
	}
	if got.Kind != types.EventPlaybackState {
		t.Errorf("Expected kind %s, got %s", types.EventPlaybackState, got.Kind)
	}
	if got.Data["state"] != "PLAYING" {
		t.Errorf("Expected state PLAYING, got %v", got.Data["state"])
	}
}
