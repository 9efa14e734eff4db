package stream

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-fleettrack/internal/location"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

func startApp(t *testing.T, hub *Hub, latest LatestFunc, ingest IngestFunc) string {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub, latest, ingest)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
		_ = ln.Close()
	})
	return "ws://" + ln.Addr().String() + "/stream/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStreamUpgradeRequired(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil, nil), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/stream/ws", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected non-200 for non-websocket request")
	}
}

func TestStreamViewerReceivesGlobalFanout(t *testing.T) {
	hub := NewHub(nil, nil)
	url := startApp(t, hub, nil, nil)
	conn := dial(t, url)

	// a fresh connection sees everything until it narrows itself
	time.Sleep(20 * time.Millisecond)
	hub.Publish(BusTopic("9"), []byte(`{"event":"bus-location-update"}`))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != `{"event":"bus-location-update"}` {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestStreamSubscribeNarrowsToBus(t *testing.T) {
	hub := NewHub(nil, nil)
	url := startApp(t, hub, nil, nil)
	conn := dial(t, url)

	sub, _ := json.Marshal(map[string]string{"event": "subscribe-to-bus", "bus_number": "1"})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		t.Fatalf("write error: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	hub.Publish(BusTopic("2"), []byte("other-bus"))
	hub.Publish(BusTopic("1"), []byte("my-bus"))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != "my-bus" {
		t.Fatalf("expected only the subscribed bus, got %q", msg)
	}
}

func TestStreamRequestLocationReply(t *testing.T) {
	hub := NewHub(nil, nil)
	latest := func(_ context.Context, tripID string) (*location.Ping, error) {
		return &location.Ping{ID: 7, TripID: tripID, Latitude: 12.97, Longitude: 77.59, Timestamp: time.Now()}, nil
	}
	url := startApp(t, hub, latest, nil)
	conn := dial(t, url)

	req, _ := json.Marshal(map[string]string{"event": "request-location", "trip_id": "t1"})
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		t.Fatalf("write error: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}

	var reply struct {
		Event string        `json:"event"`
		Data  location.Ping `json:"data"`
	}
	if err := json.Unmarshal(msg, &reply); err != nil {
		t.Fatalf("bad reply: %v", err)
	}
	if reply.Event != "location-update" || reply.Data.ID != 7 || reply.Data.TripID != "t1" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestStreamLocationUpdateIngests(t *testing.T) {
	hub := NewHub(nil, nil)
	ingested := make(chan location.PingInput, 1)
	ingest := func(_ context.Context, in location.PingInput) (location.Ping, error) {
		ingested <- in
		return location.Ping{TripID: in.TripID}, nil
	}
	url := startApp(t, hub, nil, ingest)
	conn := dial(t, url)

	update, _ := json.Marshal(map[string]any{
		"event": "location-update", "trip_id": "t1", "latitude": 12.97, "longitude": 77.59,
	})
	if err := conn.WriteMessage(websocket.TextMessage, update); err != nil {
		t.Fatalf("write error: %v", err)
	}

	select {
	case in := <-ingested:
		if in.TripID != "t1" || in.Latitude == nil || *in.Latitude != 12.97 {
			t.Fatalf("unexpected ingest input %+v", in)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for ingest")
	}
}

func TestStreamCloseStopsDelivery(t *testing.T) {
	hub := NewHub(nil, nil)
	url := startApp(t, hub, nil, nil)
	conn := dial(t, url)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()
	time.Sleep(30 * time.Millisecond)

	// must not panic on publish after the viewer is gone
	hub.Publish(BusTopic("1"), []byte("ping"))
}
