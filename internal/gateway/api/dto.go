package api

import (
	"time"

	"rescue-link/internal/gateway/domain"
)

type CreateRequestBody struct {
	SubcategoryID int64   `json:"emergencySubCategoryId"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Address       *string `json:"address,omitempty"`
	Description   *string `json:"description,omitempty"`
	ProofImage    *string `json:"proofImage,omitempty"`
}

type CancelRequestBody struct {
	Status string `json:"status"`
}

type RequestInfo struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type MutationResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Request *RequestInfo `json:"request,omitempty"`
}

type ActiveRequestEntry struct {
	ID int64 `json:"id"`
}

type VehiclePayload struct {
	ID          int64  `json:"id,omitempty"`
	Code        string `json:"code"`
	PlateNumber string `json:"plateNumber"`
	Category    string `json:"category"`
	Icon        string `json:"icon,omitempty"`
}

type PositionPayload struct {
	VehicleID  int64           `json:"vehicleId"`
	Active     bool            `json:"active"`
	Latitude   float64         `json:"latitude"`
	Longitude  float64         `json:"longitude"`
	LastActive string          `json:"lastActive"`
	Vehicle    *VehiclePayload `json:"vehicle,omitempty"`
}

type AssignmentPayload struct {
	ID        int64           `json:"id"`
	VehicleID int64           `json:"vehicleId"`
	Timestamp string          `json:"timestamp"`
	Vehicle   *VehiclePayload `json:"vehicle,omitempty"`
}

type DetailResponse struct {
	ID                 int64               `json:"id"`
	Status             string              `json:"status"`
	CreatedAt          string              `json:"createdAt"`
	Latitude           float64             `json:"latitude"`
	Longitude          float64             `json:"longitude"`
	Assignments        []AssignmentPayload `json:"assignments"`
	LastKnownPositions []PositionPayload   `json:"lastKnownPositions,omitempty"`
}

func ToDetailResponse(d *domain.RequestDetail) DetailResponse {
	resp := DetailResponse{
		ID:        d.ID,
		Status:    d.Status,
		CreatedAt: d.CreatedAt.Format(time.RFC3339),
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
	}
	for _, a := range d.Assignments {
		p := AssignmentPayload{
			ID:        a.ID,
			VehicleID: a.VehicleID,
			Timestamp: a.Timestamp.Format(time.RFC3339),
		}
		if a.Vehicle != nil {
			p.Vehicle = &VehiclePayload{
				ID:          a.Vehicle.ID,
				Code:        a.Vehicle.Code,
				PlateNumber: a.Vehicle.PlateNumber,
				Category:    a.Vehicle.CategoryName,
				Icon:        a.Vehicle.CategoryIcon,
			}
		}
		resp.Assignments = append(resp.Assignments, p)
	}
	for _, pos := range d.LastKnownPositions {
		resp.LastKnownPositions = append(resp.LastKnownPositions, PositionPayload{
			VehicleID:  pos.VehicleID,
			Active:     pos.Active,
			Latitude:   pos.Latitude,
			Longitude:  pos.Longitude,
			LastActive: pos.LastActive.Format(time.RFC3339),
		})
	}
	return resp
}

// --- WebSocket frames ---

type ClientFrame struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	RequestID int64  `json:"requestId,omitempty"`
	VehicleID int64  `json:"vehicleId,omitempty"`
}

type ServerFrame struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}
