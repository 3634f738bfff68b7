package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rescue-link/internal/shared/jwt"
	"rescue-link/internal/shared/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub tracks civilian connections and their status/vehicle subscriptions.
// Subscriptions are keyed: one request id and one vehicle id per connection.
type Hub struct {
	mu       sync.RWMutex
	byStatus map[int64]map[*client]struct{}
	byVeh    map[int64]map[*client]struct{}
	logger   *util.Logger
}

type client struct {
	conn       *websocket.Conn
	writeMu    sync.Mutex
	civilianID int64
	statusKey  int64
	vehicleKey int64
}

func NewHub(logger *util.Logger) *Hub {
	return &Hub{
		byStatus: make(map[int64]map[*client]struct{}),
		byVeh:    make(map[int64]map[*client]struct{}),
		logger:   logger,
	}
}

func (c *client) send(frame ServerFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

func (h *Hub) subscribeStatus(c *client, requestID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropStatusLocked(c)
	c.statusKey = requestID
	if requestID != 0 {
		if h.byStatus[requestID] == nil {
			h.byStatus[requestID] = make(map[*client]struct{})
		}
		h.byStatus[requestID][c] = struct{}{}
	}
}

func (h *Hub) subscribeVehicle(c *client, vehicleID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropVehicleLocked(c)
	c.vehicleKey = vehicleID
	if vehicleID != 0 {
		if h.byVeh[vehicleID] == nil {
			h.byVeh[vehicleID] = make(map[*client]struct{})
		}
		h.byVeh[vehicleID][c] = struct{}{}
	}
}

func (h *Hub) dropStatusLocked(c *client) {
	if set, ok := h.byStatus[c.statusKey]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byStatus, c.statusKey)
		}
	}
	c.statusKey = 0
}

func (h *Hub) dropVehicleLocked(c *client) {
	if set, ok := h.byVeh[c.vehicleKey]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byVeh, c.vehicleKey)
		}
	}
	c.vehicleKey = 0
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropStatusLocked(c)
	h.dropVehicleLocked(c)
}

// BroadcastStatus pushes a status_changed frame to every connection subscribed
// to the request.
func (h *Hub) BroadcastStatus(requestID int64, payload DetailResponse) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.byStatus[requestID]))
	for c := range h.byStatus[requestID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(ServerFrame{Type: "status_changed", Payload: payload}); err != nil {
			h.logger.Warn("Hub.BroadcastStatus", "write failed, dropping connection: "+err.Error())
			h.remove(c)
		}
	}
}

// BroadcastPosition pushes a vehicle_position frame to every connection
// subscribed to the vehicle.
func (h *Hub) BroadcastPosition(vehicleID int64, payload PositionPayload) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.byVeh[vehicleID]))
	for c := range h.byVeh[vehicleID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(ServerFrame{Type: "vehicle_position", Payload: payload}); err != nil {
			h.logger.Warn("Hub.BroadcastPosition", "write failed, dropping connection: "+err.Error())
			h.remove(c)
		}
	}
}

// StatusSubscribers reports how many connections follow a request. Used by
// tests and diagnostics.
func (h *Hub) StatusSubscribers(requestID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byStatus[requestID])
}

func (h *Hub) VehicleSubscribers(vehicleID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byVeh[vehicleID])
}

func (h *Handler) CivilianWSHandler(w http.ResponseWriter, r *http.Request) {
	instance := "CivilianWSHandler"

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(instance, "upgrade failed: "+err.Error())
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	defer h.hub.remove(c)

	// First frame must be auth, within 5 seconds.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var authFrame ClientFrame
	if err := conn.ReadJSON(&authFrame); err != nil || authFrame.Type != "auth" {
		_ = c.send(ServerFrame{Type: "error", Message: "auth required"})
		return
	}
	claims, err := jwt.ParseToken(authFrame.Token)
	if err != nil || claims.CivilianID == 0 {
		_ = c.send(ServerFrame{Type: "error", Message: "invalid token"})
		return
	}
	c.civilianID = claims.CivilianID
	_ = c.send(ServerFrame{Type: "auth_success", Message: "authenticated"})

	h.logger.Info(instance, "civilian connected over WS")

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var frame ClientFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			switch frame.Type {
			case "subscribe_status":
				h.hub.subscribeStatus(c, frame.RequestID)
			case "unsubscribe_status":
				h.hub.subscribeStatus(c, 0)
			case "subscribe_vehicle":
				h.hub.subscribeVehicle(c, frame.VehicleID)
			case "unsubscribe_vehicle":
				h.hub.subscribeVehicle(c, 0)
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, []byte{})
			c.writeMu.Unlock()
			if err != nil {
				h.logger.Warn(instance, "ping failed: "+err.Error())
				return
			}
		}
	}
}
