// Package pin turns a moving map viewport into a picked destination: the
// ground coordinate under the fixed visual pin, reverse-geocoded once the
// viewport settles.
package pin

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period after the last viewport update before a
// reverse-geocode lookup fires.
const DefaultDebounce = 300 * time.Millisecond

// largeBreakpoint is the layout width at which the pin sits at 45% of the
// container instead of the center.
const largeBreakpoint = 1024

type Viewport struct {
	CenterLat float64
	CenterLng float64
	Zoom      float64
	Width     int
	Height    int
}

type Picked struct {
	Lat     float64
	Lng     float64
	Address *string
}

// Key is the 6-decimal-degree coordinate identity used for dedupe and
// stale-resolution guards.
func (p Picked) Key() string {
	return coordKey(p.Lat, p.Lng)
}

func coordKey(lat, lng float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lng)
}

type Geocoder interface {
	Resolve(ctx context.Context, lat, lng float64) (string, error)
}

// Resolver debounces viewport updates and emits a confirmed (coordinate,
// address) pair at most once per distinct coordinate.
type Resolver struct {
	geocoder Geocoder
	emit     func(Picked)
	delay    time.Duration

	mu           sync.Mutex
	allowed      bool
	closed       bool
	timer        *time.Timer
	selected     *Picked
	currentKey   string
	lastResolved string
	lastEmitted  string
}

func NewResolver(geocoder Geocoder, emit func(Picked), delay time.Duration) *Resolver {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Resolver{
		geocoder: geocoder,
		emit:     emit,
		delay:    delay,
		allowed:  true,
	}
}

// SetAllowed toggles whether picking is permitted. While off, viewport updates
// are ignored and nothing is emitted.
func (r *Resolver) SetAllowed(allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowed = allowed
}

// Update handles one viewport change. The displayed coordinate moves
// immediately (address nil); the lookup is rescheduled for a full quiet
// period from this update.
func (r *Resolver) Update(v Viewport) {
	lat, lng := GroundUnderPin(v)
	key := coordKey(lat, lng)

	r.mu.Lock()
	if !r.allowed || r.closed {
		r.mu.Unlock()
		return
	}

	if key != r.currentKey {
		r.currentKey = key
		r.selected = &Picked{Lat: lat, Lng: lng}
	}

	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.delay, func() {
		r.resolve(key, lat, lng)
	})
	r.mu.Unlock()
}

func (r *Resolver) resolve(key string, lat, lng float64) {
	r.mu.Lock()
	if r.closed || r.lastResolved == key {
		r.mu.Unlock()
		return
	}
	r.lastResolved = key
	r.mu.Unlock()

	address, err := r.geocoder.Resolve(context.Background(), lat, lng)

	r.mu.Lock()
	// a late resolution for a superseded coordinate must not apply
	if r.closed || r.currentKey != key || r.selected == nil {
		if !r.closed && r.lastResolved == key {
			r.lastResolved = ""
		}
		r.mu.Unlock()
		return
	}
	if err != nil || address == "" {
		// coordinate-only value is kept; confirmed emission needs an address.
		// The coordinate stays resolvable so a later settle here retries.
		if r.lastResolved == key {
			r.lastResolved = ""
		}
		r.mu.Unlock()
		return
	}

	r.selected.Address = &address

	var out *Picked
	if r.allowed && r.lastEmitted != key {
		r.lastEmitted = key
		cp := *r.selected
		out = &cp
	}
	r.mu.Unlock()

	if out != nil && r.emit != nil {
		r.emit(*out)
	}
}

// Selected returns the current pick, confirmed or not.
func (r *Resolver) Selected() *Picked {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == nil {
		return nil
	}
	cp := *r.selected
	return &cp
}

// Close invalidates any pending lookup.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// GroundUnderPin projects the fixed pin pixel back to a ground coordinate via
// spherical mercator around the viewport center. The pin sits at 45% of the
// width on large layouts, 50% otherwise, vertically centered.
func GroundUnderPin(v Viewport) (lat, lng float64) {
	if v.Width <= 0 || v.Height <= 0 {
		return v.CenterLat, v.CenterLng
	}

	percent := 50.0
	if v.Width >= largeBreakpoint {
		percent = 45.0
	}
	pinX := percent / 100 * float64(v.Width)
	pinY := float64(v.Height) / 2

	worldSize := 256 * math.Exp2(v.Zoom)

	centerX := (v.CenterLng + 180) / 360 * worldSize
	sinLat := math.Sin(v.CenterLat * math.Pi / 180)
	// clamp away from the poles to keep the projection finite
	sinLat = math.Max(-0.9999, math.Min(0.9999, sinLat))
	centerY := (0.5 - math.Log((1+sinLat)/(1-sinLat))/(4*math.Pi)) * worldSize

	groundX := centerX + (pinX - float64(v.Width)/2)
	groundY := centerY + (pinY - float64(v.Height)/2)

	lng = groundX/worldSize*360 - 180
	n := math.Pi - 2*math.Pi*groundY/worldSize
	lat = 180 / math.Pi * math.Atan(0.5*(math.Exp(n)-math.Exp(-n)))
	return lat, lng
}
