package session

import "time"

// Wire events delivered by the gateway push streams. The transport decodes
// frames into these; the controller applies them.

type VehicleInfo struct {
	ID          int64  `json:"id,omitempty"`
	Code        string `json:"code"`
	PlateNumber string `json:"plateNumber"`
	Category    string `json:"category"`
	Icon        string `json:"icon,omitempty"`
}

type AssignmentInfo struct {
	ID        int64        `json:"id"`
	VehicleID int64        `json:"vehicleId"`
	Vehicle   *VehicleInfo `json:"vehicle,omitempty"`
}

// StatusEvent mirrors the request detail shape pushed on every status change.
type StatusEvent struct {
	RequestID   int64
	Status      string
	CreatedAt   time.Time
	Latitude    float64
	Longitude   float64
	Assignments []AssignmentInfo
}

// PositionEvent is one vehicle position ping.
type PositionEvent struct {
	VehicleID  int64
	Active     bool
	Latitude   float64
	Longitude  float64
	LastActive time.Time
	Vehicle    *VehicleInfo
}

// Recovered carries the persisted state of an active request, fetched on load.
type Recovered struct {
	RequestID    int64
	Status       string
	CreatedAt    time.Time
	Latitude     float64
	Longitude    float64
	Assignment   *AssignmentInfo
	LastPosition *PositionEvent
}
