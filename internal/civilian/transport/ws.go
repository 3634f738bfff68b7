// Package transport carries the gateway's push streams over one WebSocket
// connection. At most one status and one vehicle subscription exist at a time;
// re-subscribing with a new key replaces the old registration.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rescue-link/internal/civilian/session"
	"rescue-link/internal/shared/util"
)

const (
	authTimeout       = 5 * time.Second
	eventBuffer       = 16
	reconnectDelay    = 5 * time.Second
	maxReconnectDelay = 60 * time.Second
)

type clientFrame struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	RequestID int64  `json:"requestId,omitempty"`
	VehicleID int64  `json:"vehicleId,omitempty"`
}

type serverFrame struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type vehiclePayload struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	PlateNumber string `json:"plateNumber"`
	Category    string `json:"category"`
	Icon        string `json:"icon"`
}

type assignmentPayload struct {
	ID        int64           `json:"id"`
	VehicleID int64           `json:"vehicleId"`
	Vehicle   *vehiclePayload `json:"vehicle"`
}

type statusPayload struct {
	ID          int64               `json:"id"`
	Status      string              `json:"status"`
	CreatedAt   string              `json:"createdAt"`
	Latitude    float64             `json:"latitude"`
	Longitude   float64             `json:"longitude"`
	Assignments []assignmentPayload `json:"assignments"`
}

type positionPayload struct {
	VehicleID  int64           `json:"vehicleId"`
	Active     bool            `json:"active"`
	Latitude   float64         `json:"latitude"`
	Longitude  float64         `json:"longitude"`
	LastActive string          `json:"lastActive"`
	Vehicle    *vehiclePayload `json:"vehicle"`
}

type Transport struct {
	wsURL   string
	token   string
	logger  *util.Logger
	done    chan struct{}
	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	closed    bool
	statusKey int64
	statusCh  chan session.StatusEvent
	vehKey    int64
	vehCh     chan session.PositionEvent
}

// Dial connects, authenticates and starts the read loop. The server expects an
// auth frame as the first message and answers with auth_success. A connection
// lost later is redialed with backoff; only Close stops the transport.
func Dial(ctx context.Context, wsURL, token string, logger *util.Logger) (*Transport, error) {
	instance := "Transport.Dial"

	t := &Transport{wsURL: wsURL, token: token, logger: logger, done: make(chan struct{})}

	conn, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}
	t.conn = conn

	logger.OK(instance, "connected to gateway push stream")
	go t.readLoop()
	return t, nil
}

// connect dials and runs the auth handshake on a fresh connection.
func (t *Transport) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gateway: %w", err)
	}

	if err := conn.WriteJSON(clientFrame{Type: "auth", Token: "Bearer " + t.token}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send auth frame: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(authTimeout))
	var ack serverFrame
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read auth reply: %w", err)
	}
	if ack.Type != "auth_success" {
		conn.Close()
		return nil, fmt.Errorf("authentication rejected: %s", ack.Message)
	}
	conn.SetReadDeadline(time.Time{})
	return conn, nil
}

func (t *Transport) writeFrame(frame clientFrame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	return conn.WriteJSON(frame)
}

func (t *Transport) readLoop() {
	instance := "Transport.readLoop"

	for {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()

		var frame serverFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return
			}
			t.logger.Warn(instance, "connection lost: "+err.Error())
			if !t.reconnect() {
				return
			}
			continue
		}

		switch frame.Type {
		case "status_changed":
			t.dispatchStatus(frame.Payload)
		case "vehicle_position":
			t.dispatchPosition(frame.Payload)
		case "error":
			t.logger.Warn(instance, "server error frame: "+frame.Message)
		}
	}
}

// reconnect redials with doubling backoff until the handshake succeeds or the
// transport is closed, then re-issues the live subscriptions so bindings keep
// receiving events without re-arming.
func (t *Transport) reconnect() bool {
	instance := "Transport.reconnect"

	delay := reconnectDelay
	for {
		conn, err := t.connect(context.Background())
		if err != nil {
			t.logger.Warn(instance, fmt.Sprintf("redial failed: %v, retrying in %s", err, delay))
			select {
			case <-t.done:
				return false
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.Close()
			return false
		}
		old := t.conn
		t.conn = conn
		statusKey, vehKey := t.statusKey, t.vehKey
		hasStatus := t.statusCh != nil
		hasVeh := t.vehCh != nil
		t.mu.Unlock()
		old.Close()

		if hasStatus {
			if err := t.writeFrame(clientFrame{Type: "subscribe_status", RequestID: statusKey}); err != nil {
				t.logger.Warn(instance, "failed to restore status subscription: "+err.Error())
			}
		}
		if hasVeh {
			if err := t.writeFrame(clientFrame{Type: "subscribe_vehicle", VehicleID: vehKey}); err != nil {
				t.logger.Warn(instance, "failed to restore vehicle subscription: "+err.Error())
			}
		}

		t.logger.OK(instance, "reconnected to gateway push stream")
		return true
	}
}

func (t *Transport) dispatchStatus(raw json.RawMessage) {
	instance := "Transport.dispatchStatus"

	var payload statusPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.logger.Warn(instance, "malformed status payload: "+err.Error())
		return
	}

	createdAt, _ := time.Parse(time.RFC3339, payload.CreatedAt)
	ev := session.StatusEvent{
		RequestID: payload.ID,
		Status:    payload.Status,
		CreatedAt: createdAt,
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
	}
	for _, a := range payload.Assignments {
		ev.Assignments = append(ev.Assignments, session.AssignmentInfo{
			ID:        a.ID,
			VehicleID: a.VehicleID,
			Vehicle:   toVehicleInfo(a.Vehicle),
		})
	}

	// the non-blocking send happens under the lock so the channel cannot be
	// closed out from under it
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.statusCh == nil {
		return
	}
	select {
	case t.statusCh <- ev:
	default:
		t.logger.Warn(instance, fmt.Sprintf("status buffer full, dropping event for request %d", ev.RequestID))
	}
}

func (t *Transport) dispatchPosition(raw json.RawMessage) {
	instance := "Transport.dispatchPosition"

	var payload positionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.logger.Warn(instance, "malformed position payload: "+err.Error())
		return
	}

	lastActive, _ := time.Parse(time.RFC3339, payload.LastActive)
	ev := session.PositionEvent{
		VehicleID:  payload.VehicleID,
		Active:     payload.Active,
		Latitude:   payload.Latitude,
		Longitude:  payload.Longitude,
		LastActive: lastActive,
		Vehicle:    toVehicleInfo(payload.Vehicle),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.vehCh == nil {
		return
	}
	select {
	case t.vehCh <- ev:
	default:
		t.logger.Warn(instance, fmt.Sprintf("position buffer full, dropping ping for vehicle %d", ev.VehicleID))
	}
}

func toVehicleInfo(v *vehiclePayload) *session.VehicleInfo {
	if v == nil {
		return nil
	}
	return &session.VehicleInfo{
		ID:          v.ID,
		Code:        v.Code,
		PlateNumber: v.PlateNumber,
		Category:    v.Category,
		Icon:        v.Icon,
	}
}

// SubscribeStatus registers for status pushes on one request id. Cancelling
// the context sends the unsubscribe frame and closes the returned channel.
func (t *Transport) SubscribeStatus(ctx context.Context, requestID int64) (<-chan session.StatusEvent, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport closed")
	}
	if t.statusCh != nil {
		close(t.statusCh)
	}
	ch := make(chan session.StatusEvent, eventBuffer)
	t.statusCh = ch
	t.statusKey = requestID
	t.mu.Unlock()

	if err := t.writeFrame(clientFrame{Type: "subscribe_status", RequestID: requestID}); err != nil {
		t.mu.Lock()
		if t.statusCh == ch {
			t.statusCh = nil
			t.statusKey = 0
		}
		t.mu.Unlock()
		close(ch)
		return nil, fmt.Errorf("failed to subscribe to request %d: %w", requestID, err)
	}

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		if t.statusCh != ch {
			t.mu.Unlock()
			return
		}
		t.statusCh = nil
		t.statusKey = 0
		closed := t.closed
		t.mu.Unlock()

		if !closed {
			if err := t.writeFrame(clientFrame{Type: "unsubscribe_status", RequestID: requestID}); err != nil {
				t.logger.Warn("Transport.SubscribeStatus", "unsubscribe failed: "+err.Error())
			}
		}
		close(ch)
	}()

	return ch, nil
}

// SubscribeVehicle registers for position pings from one vehicle.
func (t *Transport) SubscribeVehicle(ctx context.Context, vehicleID int64) (<-chan session.PositionEvent, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport closed")
	}
	if t.vehCh != nil {
		close(t.vehCh)
	}
	ch := make(chan session.PositionEvent, eventBuffer)
	t.vehCh = ch
	t.vehKey = vehicleID
	t.mu.Unlock()

	if err := t.writeFrame(clientFrame{Type: "subscribe_vehicle", VehicleID: vehicleID}); err != nil {
		t.mu.Lock()
		if t.vehCh == ch {
			t.vehCh = nil
			t.vehKey = 0
		}
		t.mu.Unlock()
		close(ch)
		return nil, fmt.Errorf("failed to subscribe to vehicle %d: %w", vehicleID, err)
	}

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		if t.vehCh != ch {
			t.mu.Unlock()
			return
		}
		t.vehCh = nil
		t.vehKey = 0
		closed := t.closed
		t.mu.Unlock()

		if !closed {
			if err := t.writeFrame(clientFrame{Type: "unsubscribe_vehicle", VehicleID: vehicleID}); err != nil {
				t.logger.Warn("Transport.SubscribeVehicle", "unsubscribe failed: "+err.Error())
			}
		}
		close(ch)
	}()

	return ch, nil
}

// Close tears the connection down and closes any live event channels.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	statusCh := t.statusCh
	vehCh := t.vehCh
	t.statusCh = nil
	t.vehCh = nil
	t.statusKey = 0
	t.vehKey = 0
	conn := t.conn
	t.mu.Unlock()

	close(t.done)
	if statusCh != nil {
		close(statusCh)
	}
	if vehCh != nil {
		close(vehCh)
	}
	conn.Close()
}
