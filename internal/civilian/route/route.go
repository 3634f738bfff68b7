// Package route decides when the vehicle→destination overlay is shown and
// fetches the path from the external routing service.
package route

import (
	"context"
	"strings"

	"rescue-link/internal/civilian/session"
	"rescue-link/internal/shared/util"
)

type LatLng struct {
	Lat float64
	Lng float64
}

// Overlay is what the map layer renders. When the routing service fails the
// overlay still frames both endpoints, just without a drawn path.
type Overlay struct {
	Shown      bool
	Origin     LatLng
	Dest       LatLng
	Path       []LatLng
	DistanceKm float64
}

type Router interface {
	Route(ctx context.Context, origin, dest LatLng) ([]LatLng, error)
}

// ShouldShow is the overlay predicate: both endpoints exist and the raw status
// text matches none of the searching/terminal substrings.
func ShouldShow(s session.Session) bool {
	if s.VehicleMarker == nil || s.Picked == nil {
		return false
	}
	st := strings.ToLower(s.StatusText)
	if strings.Contains(st, "search") || strings.Contains(st, "cancel") || strings.Contains(st, "complete") {
		return false
	}
	return true
}

type Projector struct {
	router Router
	logger *util.Logger
}

func NewProjector(router Router, logger *util.Logger) *Projector {
	return &Projector{router: router, logger: logger}
}

// Project computes the overlay for a session snapshot. A false predicate
// clears any rendered route.
func (p *Projector) Project(ctx context.Context, s session.Session) Overlay {
	if !ShouldShow(s) {
		return Overlay{}
	}

	origin := LatLng{Lat: s.VehicleMarker.Lat, Lng: s.VehicleMarker.Lng}
	dest := LatLng{Lat: s.Picked.Lat, Lng: s.Picked.Lng}

	overlay := Overlay{
		Shown:      true,
		Origin:     origin,
		Dest:       dest,
		DistanceKm: util.Haversine(origin.Lat, origin.Lng, dest.Lat, dest.Lng),
	}

	path, err := p.router.Route(ctx, origin, dest)
	if err != nil {
		// degrade to framing both points without a drawn path
		p.logger.Warn("Projector.Project", "routing failed: "+err.Error())
		return overlay
	}

	overlay.Path = path
	return overlay
}
