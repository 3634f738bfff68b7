package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rescue-link/internal/civilian/session"
	"rescue-link/internal/shared/util"
)

// fakeSource records subscriptions and exposes the channel feeding each one.
type fakeSource struct {
	mu         sync.Mutex
	statusErr  error
	statusSubs []int64
	statusCh   chan session.StatusEvent
	vehSubs    []int64
	vehCh      chan session.PositionEvent
}

func (f *fakeSource) SubscribeStatus(ctx context.Context, requestID int64) (<-chan session.StatusEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	f.statusSubs = append(f.statusSubs, requestID)
	ch := make(chan session.StatusEvent, 8)
	f.statusCh = ch
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (f *fakeSource) SubscribeVehicle(ctx context.Context, vehicleID int64) (<-chan session.PositionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vehSubs = append(f.vehSubs, vehicleID)
	ch := make(chan session.PositionEvent, 8)
	f.vehCh = ch
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (f *fakeSource) statusSubscriptions() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.statusSubs...)
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

func TestStatusBinding_SyncIdempotent(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	b := NewStatusBinding(src, func(session.StatusEvent) {}, util.New())
	defer b.Close()

	b.Sync(7)
	b.Sync(7)
	b.Sync(7)

	if subs := src.statusSubscriptions(); len(subs) != 1 || subs[0] != 7 {
		t.Fatalf("expected one subscription to 7, got %v", subs)
	}
	if !b.Active() || b.Key() != 7 {
		t.Fatalf("binding not active on key 7: active=%t key=%d", b.Active(), b.Key())
	}
}

func TestStatusBinding_KeyChangeResubscribes(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	b := NewStatusBinding(src, func(session.StatusEvent) {}, util.New())
	defer b.Close()

	b.Sync(7)
	b.Sync(9)

	if subs := src.statusSubscriptions(); len(subs) != 2 || subs[1] != 9 {
		t.Fatalf("expected resubscription to 9, got %v", subs)
	}
	if b.Key() != 9 {
		t.Fatalf("key = %d, want 9", b.Key())
	}

	b.Sync(0)
	if b.Active() {
		t.Fatal("key 0 must deactivate the binding")
	}
}

func TestStatusBinding_SubscribeFailureLeavesInactive(t *testing.T) {
	t.Parallel()

	src := &fakeSource{statusErr: errors.New("connection lost")}
	b := NewStatusBinding(src, func(session.StatusEvent) {}, util.New())
	defer b.Close()

	b.Sync(7)
	if b.Active() || b.Key() != 0 {
		t.Fatal("failed subscription must leave the binding inactive")
	}

	// a later sync with the same key retries
	src.mu.Lock()
	src.statusErr = nil
	src.mu.Unlock()
	b.Sync(7)
	if !b.Active() {
		t.Fatal("binding must re-arm once the source recovers")
	}
}

func TestStatusBinding_ForwardsAndFilters(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	var mu sync.Mutex
	var got []int64
	b := NewStatusBinding(src, func(ev session.StatusEvent) {
		mu.Lock()
		got = append(got, ev.RequestID)
		mu.Unlock()
	}, util.New())
	defer b.Close()

	b.Sync(7)

	src.mu.Lock()
	ch := src.statusCh
	src.mu.Unlock()

	ch <- session.StatusEvent{RequestID: 99, Status: "Dispatched"}
	ch <- session.StatusEvent{RequestID: 7, Status: "Dispatched"}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "forwarded event not delivered")

	mu.Lock()
	defer mu.Unlock()
	if got[0] != 7 {
		t.Fatalf("forwarded request %d, want 7", got[0])
	}
}

func TestPositionBinding_TeardownStopsDelivery(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	var mu sync.Mutex
	count := 0
	b := NewPositionBinding(src, func(session.PositionEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	}, util.New())

	b.Sync(41)

	src.mu.Lock()
	ch := src.vehCh
	src.mu.Unlock()

	ch <- session.PositionEvent{VehicleID: 41}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, "first ping not delivered")

	b.Close()
	if b.Active() {
		t.Fatal("binding still active after Close")
	}
}
