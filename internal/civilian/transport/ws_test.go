package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rescue-link/internal/shared/util"
)

// stubGateway upgrades, checks the auth frame and records every frame the
// client sends afterwards. Tests push server frames through send.
type stubGateway struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conn   *websocket.Conn
	frames []clientFrame
	auths  int
}

func (g *stubGateway) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}

		var auth clientFrame
		if err := conn.ReadJSON(&auth); err != nil {
			t.Errorf("read auth: %v", err)
			return
		}
		if auth.Type != "auth" || !strings.HasPrefix(auth.Token, "Bearer ") {
			conn.WriteJSON(serverFrame{Type: "error", Message: "authentication failed"})
			conn.Close()
			return
		}
		conn.WriteJSON(serverFrame{Type: "auth_success"})

		g.mu.Lock()
		g.conn = conn
		g.auths++
		g.mu.Unlock()

		for {
			var frame clientFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			g.mu.Lock()
			g.frames = append(g.frames, frame)
			g.mu.Unlock()
		}
	}
}

func (g *stubGateway) send(t *testing.T, frameType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		t.Fatal("no client connected")
	}
	if err := conn.WriteJSON(serverFrame{Type: frameType, Payload: raw}); err != nil {
		t.Fatalf("send frame: %v", err)
	}
}

func (g *stubGateway) sentFrames() []clientFrame {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]clientFrame(nil), g.frames...)
}

func (g *stubGateway) authCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.auths
}

// dropConn severs the current connection server-side.
func (g *stubGateway) dropConn() {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func dialStub(t *testing.T) (*Transport, *stubGateway) {
	t.Helper()
	gw := &stubGateway{}
	srv := httptest.NewServer(gw.handler(t))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	tr, err := Dial(context.Background(), wsURL, "test-token", util.New())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(tr.Close)
	return tr, gw
}

func waitFrames(t *testing.T, gw *stubGateway, n int) []clientFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frames := gw.sentFrames(); len(frames) >= n {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d frames, got %v", n, gw.sentFrames())
	return nil
}

func TestDial_RejectedAuth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var auth clientFrame
		conn.ReadJSON(&auth)
		conn.WriteJSON(serverFrame{Type: "error", Message: "invalid token"})
		conn.Close()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	if _, err := Dial(context.Background(), wsURL, "bad", util.New()); err == nil {
		t.Fatal("rejected auth must fail the dial")
	}
}

func TestSubscribeStatus_DeliversEvents(t *testing.T) {
	t.Parallel()

	tr, gw := dialStub(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := tr.SubscribeStatus(ctx, 12)
	if err != nil {
		t.Fatalf("SubscribeStatus: %v", err)
	}

	frames := waitFrames(t, gw, 1)
	if frames[0].Type != "subscribe_status" || frames[0].RequestID != 12 {
		t.Fatalf("subscribe frame = %+v", frames[0])
	}

	gw.send(t, "status_changed", map[string]any{
		"id":        12,
		"status":    "Dispatched",
		"createdAt": "2025-03-01T10:00:00Z",
		"assignments": []map[string]any{{
			"id":        1,
			"vehicleId": 41,
			"vehicle":   map[string]any{"id": 41, "code": "AMB-12"},
		}},
	})

	select {
	case ev := <-events:
		if ev.RequestID != 12 || ev.Status != "Dispatched" {
			t.Fatalf("event = %+v", ev)
		}
		if len(ev.Assignments) != 1 || ev.Assignments[0].Vehicle.Code != "AMB-12" {
			t.Fatalf("assignments = %+v", ev.Assignments)
		}
		if ev.CreatedAt.IsZero() {
			t.Fatal("createdAt not parsed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("status event not delivered")
	}
}

func TestSubscribeStatus_CancelSendsUnsubscribe(t *testing.T) {
	t.Parallel()

	tr, gw := dialStub(t)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := tr.SubscribeStatus(ctx, 12)
	if err != nil {
		t.Fatalf("SubscribeStatus: %v", err)
	}
	waitFrames(t, gw, 1)

	cancel()

	frames := waitFrames(t, gw, 2)
	if frames[1].Type != "unsubscribe_status" || frames[1].RequestID != 12 {
		t.Fatalf("unsubscribe frame = %+v", frames[1])
	}

	select {
	case _, open := <-events:
		if open {
			t.Fatal("channel must be closed, not carrying events")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestReconnect_RestoresSubscriptions(t *testing.T) {
	t.Parallel()

	tr, gw := dialStub(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := tr.SubscribeStatus(ctx, 12)
	if err != nil {
		t.Fatalf("SubscribeStatus: %v", err)
	}
	waitFrames(t, gw, 1)

	gw.dropConn()

	// the transport redials, re-authenticates and restores the subscription
	frames := waitFrames(t, gw, 2)
	if frames[1].Type != "subscribe_status" || frames[1].RequestID != 12 {
		t.Fatalf("restored frame = %+v", frames[1])
	}
	if got := gw.authCount(); got != 2 {
		t.Fatalf("auth handshakes = %d, want 2", got)
	}

	gw.send(t, "status_changed", map[string]any{
		"id":        12,
		"status":    "Arrived",
		"createdAt": "2025-03-01T10:10:00Z",
	})

	select {
	case ev := <-events:
		if ev.RequestID != 12 || ev.Status != "Arrived" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("status event not delivered after reconnection")
	}
}

func TestSubscribeVehicle_ReplacementClosesOldChannel(t *testing.T) {
	t.Parallel()

	tr, gw := dialStub(t)

	ctx := context.Background()
	old, err := tr.SubscribeVehicle(ctx, 41)
	if err != nil {
		t.Fatalf("SubscribeVehicle: %v", err)
	}
	if _, err := tr.SubscribeVehicle(ctx, 42); err != nil {
		t.Fatalf("second SubscribeVehicle: %v", err)
	}

	select {
	case _, open := <-old:
		if open {
			t.Fatal("old channel must be closed on replacement")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("old channel not closed")
	}

	gw.send(t, "vehicle_position", map[string]any{
		"vehicleId":  42,
		"active":     true,
		"latitude":   6.95,
		"longitude":  79.9,
		"lastActive": "2025-03-01T10:05:00Z",
	})

	frames := waitFrames(t, gw, 2)
	if frames[1].Type != "subscribe_vehicle" || frames[1].VehicleID != 42 {
		t.Fatalf("frames = %+v", frames)
	}
}
