package pin

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

type countingGeocoder struct {
	mu      sync.Mutex
	calls   []string
	block   chan struct{}
	address string
	err     error
}

func (g *countingGeocoder) Resolve(ctx context.Context, lat, lng float64) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, coordKey(lat, lng))
	block := g.block
	err := g.err
	address := g.address
	g.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return "", err
	}
	if address != "" {
		return address, nil
	}
	return "Galle Rd, Colombo", nil
}

func (g *countingGeocoder) setErr(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

func (g *countingGeocoder) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type emitRecorder struct {
	mu     sync.Mutex
	picked []Picked
}

func (r *emitRecorder) emit(p Picked) {
	r.mu.Lock()
	r.picked = append(r.picked, p)
	r.mu.Unlock()
}

func (r *emitRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.picked)
}

func viewportAt(lat, lng float64) Viewport {
	return Viewport{CenterLat: lat, CenterLng: lng, Zoom: 15, Width: 800, Height: 600}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestResolver_DebounceCollapsesBursts(t *testing.T) {
	t.Parallel()

	geocoder := &countingGeocoder{}
	rec := &emitRecorder{}
	r := NewResolver(geocoder, rec.emit, 50*time.Millisecond)
	defer r.Close()

	// a pan burst: many viewport updates inside one quiet period
	for i := 0; i < 10; i++ {
		r.Update(viewportAt(6.9+float64(i)/1000, 79.85))
		time.Sleep(5 * time.Millisecond)
	}

	waitFor(t, func() bool { return geocoder.callCount() > 0 }, "geocode never fired")
	time.Sleep(100 * time.Millisecond)

	if n := geocoder.callCount(); n != 1 {
		t.Fatalf("geocoded %d times for one burst, want 1", n)
	}
	geocoder.mu.Lock()
	resolvedKey := geocoder.calls[0]
	geocoder.mu.Unlock()
	if want := coordKey(GroundUnderPin(viewportAt(6.909, 79.85))); resolvedKey != want {
		t.Fatalf("resolved %s, want final coordinate %s", resolvedKey, want)
	}

	if rec.count() != 1 {
		t.Fatalf("emitted %d picks, want 1", rec.count())
	}
	rec.mu.Lock()
	p := rec.picked[0]
	rec.mu.Unlock()
	if p.Address == nil || *p.Address == "" {
		t.Fatal("confirmed pick must carry an address")
	}
}

func TestResolver_CoordinateMovesImmediately(t *testing.T) {
	t.Parallel()

	r := NewResolver(&countingGeocoder{}, nil, time.Hour)
	defer r.Close()

	r.Update(viewportAt(6.9, 79.85))
	sel := r.Selected()
	if sel == nil {
		t.Fatal("coordinate must be visible before the lookup fires")
	}
	if sel.Address != nil {
		t.Fatal("address must be empty until the lookup resolves")
	}
}

func TestResolver_StaleResolutionDiscarded(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	geocoder := &countingGeocoder{block: block}
	rec := &emitRecorder{}
	r := NewResolver(geocoder, rec.emit, 20*time.Millisecond)
	defer r.Close()

	r.Update(viewportAt(6.9, 79.85))
	waitFor(t, func() bool { return geocoder.callCount() == 1 }, "first lookup never started")

	// the viewport moves on while the first lookup is in flight
	r.Update(viewportAt(7.1, 80.1))
	close(block)

	waitFor(t, func() bool { return geocoder.callCount() == 2 }, "second lookup never fired")
	waitFor(t, func() bool { return rec.count() > 0 }, "no pick emitted")
	time.Sleep(50 * time.Millisecond)

	if rec.count() != 1 {
		t.Fatalf("emitted %d picks, want only the current one", rec.count())
	}
	rec.mu.Lock()
	p := rec.picked[0]
	rec.mu.Unlock()
	wantLat, _ := GroundUnderPin(viewportAt(7.1, 80.1))
	if math.Abs(p.Lat-wantLat) > 1e-9 {
		t.Fatalf("stale resolution emitted: got %.6f, want %.6f", p.Lat, wantLat)
	}
}

func TestResolver_EmitsOncePerCoordinate(t *testing.T) {
	t.Parallel()

	geocoder := &countingGeocoder{}
	rec := &emitRecorder{}
	r := NewResolver(geocoder, rec.emit, 20*time.Millisecond)
	defer r.Close()

	r.Update(viewportAt(6.9, 79.85))
	waitFor(t, func() bool { return rec.count() == 1 }, "pick not emitted")

	// the same coordinate again: no second lookup, no second emission
	r.Update(viewportAt(6.9, 79.85))
	time.Sleep(60 * time.Millisecond)

	if geocoder.callCount() != 1 {
		t.Fatalf("geocoded %d times for one coordinate, want 1", geocoder.callCount())
	}
	if rec.count() != 1 {
		t.Fatalf("emitted %d picks for one coordinate, want 1", rec.count())
	}
}

func TestResolver_RetriesAfterLookupFailure(t *testing.T) {
	t.Parallel()

	geocoder := &countingGeocoder{err: errors.New("geocoder unavailable")}
	rec := &emitRecorder{}
	r := NewResolver(geocoder, rec.emit, 20*time.Millisecond)
	defer r.Close()

	r.Update(viewportAt(6.9, 79.85))
	waitFor(t, func() bool { return geocoder.callCount() == 1 }, "first lookup never fired")
	time.Sleep(50 * time.Millisecond)

	if rec.count() != 0 {
		t.Fatal("failed lookup must not emit")
	}

	// the service recovers and the viewport settles on the same coordinate:
	// the lookup must run again, not be skipped as already resolved
	geocoder.setErr(nil)
	r.Update(viewportAt(6.9, 79.85))

	waitFor(t, func() bool { return rec.count() == 1 }, "pick not emitted after retry")
	if n := geocoder.callCount(); n != 2 {
		t.Fatalf("geocoded %d times, want a retry after the failure", n)
	}
	rec.mu.Lock()
	p := rec.picked[0]
	rec.mu.Unlock()
	if p.Address == nil || *p.Address == "" {
		t.Fatal("retried pick must carry an address")
	}
}

func TestResolver_DisallowedIgnoresUpdates(t *testing.T) {
	t.Parallel()

	geocoder := &countingGeocoder{}
	rec := &emitRecorder{}
	r := NewResolver(geocoder, rec.emit, 20*time.Millisecond)
	defer r.Close()

	r.SetAllowed(false)
	r.Update(viewportAt(6.9, 79.85))
	time.Sleep(60 * time.Millisecond)

	if geocoder.callCount() != 0 || rec.count() != 0 {
		t.Fatalf("disallowed resolver still worked: calls=%d emits=%d", geocoder.callCount(), rec.count())
	}
}

func TestGroundUnderPin(t *testing.T) {
	t.Parallel()

	// below the breakpoint the pin is dead center
	small := Viewport{CenterLat: 6.9271, CenterLng: 79.8612, Zoom: 15, Width: 800, Height: 600}
	lat, lng := GroundUnderPin(small)
	if math.Abs(lat-small.CenterLat) > 1e-9 || math.Abs(lng-small.CenterLng) > 1e-9 {
		t.Fatalf("centered pin must resolve to the center: %.6f,%.6f", lat, lng)
	}

	// at or above the breakpoint the pin sits left of center, so the ground
	// coordinate is west of it
	large := Viewport{CenterLat: 6.9271, CenterLng: 79.8612, Zoom: 15, Width: 1280, Height: 800}
	lat, lng = GroundUnderPin(large)
	if lng >= large.CenterLng {
		t.Fatalf("large layout pin must be west of center: %.6f >= %.6f", lng, large.CenterLng)
	}
	if math.Abs(lat-large.CenterLat) > 1e-9 {
		t.Fatalf("latitude must be unchanged for a vertically centered pin: %.6f", lat)
	}

	// zero-size viewport degrades to the center
	lat, lng = GroundUnderPin(Viewport{CenterLat: 1, CenterLng: 2})
	if lat != 1 || lng != 2 {
		t.Fatalf("degenerate viewport: %.6f,%.6f", lat, lng)
	}
}
