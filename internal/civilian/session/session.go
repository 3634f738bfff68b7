// Package session holds the single in-memory record tracking one civilian's
// current rescue request. All mutation goes through the apply functions so the
// controller keeps single-writer discipline over it.
package session

import (
	"fmt"
	"time"
)

type Mode int

const (
	ModePicking Mode = iota
	ModeAwaitingOutcome
)

type Location struct {
	Lat     float64
	Lng     float64
	Address *string
}

// Marker is the last known vehicle position. It exists only while tracking is
// active (status Dispatched or Arrived).
type Marker struct {
	Lat   float64
	Lng   float64
	Label string
}

type Vehicle struct {
	ID           int64
	Code         string
	PlateNumber  string
	CategoryIcon string
}

type Session struct {
	RequestID     int64
	Status        Status
	StatusText    string
	CreatedAt     time.Time
	Vehicle       Vehicle
	VehicleMarker *Marker
	Picked        *Location
	Mode          Mode
	SubcategoryID int64
}

func Empty() Session {
	return Session{Status: StatusNone, Mode: ModePicking}
}

// Reset returns the session to the empty picking state.
func (s *Session) Reset() {
	*s = Empty()
}

// SetPicked records the destination. The picked location is mutable only while
// the civilian is still picking; afterwards it is frozen until reset.
func (s *Session) SetPicked(loc Location) bool {
	if s.Mode != ModePicking {
		return false
	}
	l := loc
	s.Picked = &l
	return true
}

// ApplyCreated transitions Picking → Created using the server-returned values.
func (s *Session) ApplyCreated(id int64, statusText string, createdAt time.Time, subcategoryID int64) {
	s.RequestID = id
	s.StatusText = statusText
	s.Status = Classify(statusText)
	s.CreatedAt = createdAt
	s.SubcategoryID = subcategoryID
	s.Mode = ModeAwaitingOutcome
}

// backfillVehicle fills still-empty identity fields. Populated fields are never
// replaced, and absent values never clear anything.
func (s *Session) backfillVehicle(id int64, code, plate, icon string) {
	if s.Vehicle.ID == 0 && id != 0 {
		s.Vehicle.ID = id
	}
	if s.Vehicle.Code == "" && code != "" {
		s.Vehicle.Code = code
	}
	if s.Vehicle.PlateNumber == "" && plate != "" {
		s.Vehicle.PlateNumber = plate
	}
	if s.Vehicle.CategoryIcon == "" && icon != "" {
		s.Vehicle.CategoryIcon = icon
	}
}

// ApplyStatus applies a status-stream event. Events for another request are
// discarded, as are events while no request exists: a session that has reset
// never adopts a late event for the finished request. Creation and recovery
// have their own apply functions. Returns whether the session changed.
func (s *Session) ApplyStatus(ev StatusEvent) bool {
	if ev.RequestID == 0 || s.RequestID == 0 || ev.RequestID != s.RequestID {
		return false
	}

	if ev.Status != "" {
		s.StatusText = ev.Status
		// unrecognized status text is displayed but triggers no transition
		if next := Classify(ev.Status); next != StatusUnknown {
			s.Status = next
		}
	}
	if !ev.CreatedAt.IsZero() {
		s.CreatedAt = ev.CreatedAt
	}
	s.Mode = ModeAwaitingOutcome

	if len(ev.Assignments) > 0 {
		a := ev.Assignments[0]
		var code, plate, icon string
		if a.Vehicle != nil {
			code, plate, icon = a.Vehicle.Code, a.Vehicle.PlateNumber, a.Vehicle.Icon
		}
		s.backfillVehicle(a.VehicleID, code, plate, icon)
	}

	s.enforceMarkerInvariant()
	return true
}

// ApplyPosition applies a position-stream event. Events for a vehicle other
// than the tracked one are discarded, as are events while tracking is off.
func (s *Session) ApplyPosition(ev PositionEvent) bool {
	if s.Vehicle.ID == 0 || ev.VehicleID != s.Vehicle.ID {
		return false
	}
	if !s.ShouldTrack() {
		return false
	}

	if ev.Vehicle != nil {
		s.backfillVehicle(ev.VehicleID, ev.Vehicle.Code, ev.Vehicle.PlateNumber, ev.Vehicle.Icon)
	}

	label := s.Vehicle.Code
	s.VehicleMarker = &Marker{Lat: ev.Latitude, Lng: ev.Longitude, Label: label}
	return true
}

// ApplyCancelAck is the optimistic local transition after the cancel mutation
// acknowledges. Re-applying Cancelled is a no-op.
func (s *Session) ApplyCancelAck() {
	if s.Status == StatusCancelled {
		return
	}
	s.Status = StatusCancelled
	s.StatusText = "Cancelled"
	s.enforceMarkerInvariant()
}

// ApplyRecovery reconstructs the session from a persisted active request,
// bypassing the picking phase. Recovery must converge to the same values a
// live-event session would hold for equal server data.
func (s *Session) ApplyRecovery(r Recovered) {
	s.RequestID = r.RequestID
	s.StatusText = r.Status
	s.Status = Classify(r.Status)
	s.CreatedAt = r.CreatedAt
	s.Mode = ModeAwaitingOutcome
	if r.Latitude != 0 || r.Longitude != 0 {
		s.Picked = &Location{Lat: r.Latitude, Lng: r.Longitude}
	}

	if r.Assignment != nil {
		var code, plate, icon string
		if r.Assignment.Vehicle != nil {
			code = r.Assignment.Vehicle.Code
			plate = r.Assignment.Vehicle.PlateNumber
			icon = r.Assignment.Vehicle.Icon
		}
		s.backfillVehicle(r.Assignment.VehicleID, code, plate, icon)
	}

	if r.LastPosition != nil && s.Vehicle.ID != 0 {
		s.VehicleMarker = &Marker{
			Lat:   r.LastPosition.Latitude,
			Lng:   r.LastPosition.Longitude,
			Label: s.Vehicle.Code,
		}
	}

	s.enforceMarkerInvariant()
}

// OnTerminal applies the immediate effects of reaching a terminal status:
// tracking stops at once while the identity fields stay visible for the grace
// period before reset.
func (s *Session) OnTerminal() {
	s.VehicleMarker = nil
	s.Vehicle.ID = 0
}

// enforceMarkerInvariant drops the marker whenever tracking is not active.
func (s *Session) enforceMarkerInvariant() {
	if !s.statusAllowsMarker() {
		s.VehicleMarker = nil
	}
}

func (s *Session) statusAllowsMarker() bool {
	return s.Status == StatusDispatched || s.Status == StatusArrived
}

// ShouldTrack is the location-stream guard predicate: a vehicle is known and
// the request is on an active leg.
func (s *Session) ShouldTrack() bool {
	return s.Vehicle.ID != 0 && s.statusAllowsMarker()
}

// CanCancel reports whether the cancellation affordance applies.
func (s *Session) CanCancel() bool {
	return s.RequestID != 0 && s.Status == StatusSearching
}

func (s *Session) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusCancelled
}

func (s Session) String() string {
	return fmt.Sprintf("session{request=%d status=%s vehicle=%d tracking=%t}",
		s.RequestID, s.Status, s.Vehicle.ID, s.ShouldTrack())
}
