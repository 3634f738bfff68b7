package domain

import "time"

// Request statuses as stored. The civilian side treats status as free text;
// the gateway writes this vocabulary but tolerates synonyms from upstream.
const (
	StatusSearching  = "Searching"
	StatusDispatched = "Dispatched"
	StatusArrived    = "Arrived"
	StatusCompleted  = "Completed"
	StatusCancelled  = "Cancelled"
)

func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

type RescueRequest struct {
	ID            int64
	CivilianID    int64
	SubcategoryID int64
	Status        string
	Latitude      float64
	Longitude     float64
	Address       *string
	Description   *string
	ProofImageRef *string
	CreatedAt     time.Time
}

type Vehicle struct {
	ID           int64
	Code         string
	PlateNumber  string
	CategoryName string
	CategoryIcon string
}

type Assignment struct {
	ID        int64
	RequestID int64
	VehicleID int64
	Timestamp time.Time
	Vehicle   *Vehicle
}

type VehiclePosition struct {
	VehicleID  int64
	Latitude   float64
	Longitude  float64
	Active     bool
	LastActive time.Time
}

// RequestDetail is the full view served to civilians, both on fetch and on
// every status push.
type RequestDetail struct {
	ID          int64
	Status      string
	CreatedAt   time.Time
	Latitude    float64
	Longitude   float64
	Assignments []Assignment
	// most recent first, per assignment vehicle
	LastKnownPositions []VehiclePosition
}

type CreateRequestInput struct {
	CivilianID    int64
	SubcategoryID int64
	Latitude      float64
	Longitude     float64
	Address       *string
	Description   *string
	ProofImage    *string
}
