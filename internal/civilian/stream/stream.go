// Package stream keeps each push subscription open exactly while its guard
// predicate holds. Re-activation always issues a fresh subscription bound to
// the current key; nothing is buffered across a deactivation.
package stream

import (
	"context"
	"fmt"
	"sync"

	"rescue-link/internal/civilian/session"
	"rescue-link/internal/shared/util"
)

type StatusSource interface {
	SubscribeStatus(ctx context.Context, requestID int64) (<-chan session.StatusEvent, error)
}

type PositionSource interface {
	SubscribeVehicle(ctx context.Context, vehicleID int64) (<-chan session.PositionEvent, error)
}

// StatusBinding follows a request id. Key 0 means inactive.
type StatusBinding struct {
	source StatusSource
	sink   func(session.StatusEvent)
	logger *util.Logger

	mu     sync.Mutex
	key    int64
	cancel context.CancelFunc
}

func NewStatusBinding(source StatusSource, sink func(session.StatusEvent), logger *util.Logger) *StatusBinding {
	return &StatusBinding{source: source, sink: sink, logger: logger}
}

// Sync drives the binding toward the wanted key. A key change tears the old
// subscription down synchronously before the new one is issued.
func (b *StatusBinding) Sync(requestID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.key == requestID {
		return
	}

	b.teardownLocked()
	if requestID == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, err := b.source.SubscribeStatus(ctx, requestID)
	if err != nil {
		cancel()
		// left inactive; the next guard change re-arms it
		b.logger.Warn("StatusBinding.Sync", fmt.Sprintf("subscribe request %d failed: %v", requestID, err))
		return
	}

	b.key = requestID
	b.cancel = cancel

	go func(want int64) {
		for ev := range events {
			if ev.RequestID != want {
				b.logger.Warn("StatusBinding", fmt.Sprintf("discarding stale status event for request %d (want %d)", ev.RequestID, want))
				continue
			}
			b.sink(ev)
		}
	}(requestID)
}

func (b *StatusBinding) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
}

func (b *StatusBinding) teardownLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.key = 0
}

func (b *StatusBinding) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

func (b *StatusBinding) Key() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.key
}

// PositionBinding follows a vehicle id while the tracking predicate holds.
type PositionBinding struct {
	source PositionSource
	sink   func(session.PositionEvent)
	logger *util.Logger

	mu     sync.Mutex
	key    int64
	cancel context.CancelFunc
}

func NewPositionBinding(source PositionSource, sink func(session.PositionEvent), logger *util.Logger) *PositionBinding {
	return &PositionBinding{source: source, sink: sink, logger: logger}
}

func (b *PositionBinding) Sync(vehicleID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.key == vehicleID {
		return
	}

	b.teardownLocked()
	if vehicleID == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, err := b.source.SubscribeVehicle(ctx, vehicleID)
	if err != nil {
		cancel()
		b.logger.Warn("PositionBinding.Sync", fmt.Sprintf("subscribe vehicle %d failed: %v", vehicleID, err))
		return
	}

	b.key = vehicleID
	b.cancel = cancel

	go func(want int64) {
		for ev := range events {
			if ev.VehicleID != want {
				b.logger.Warn("PositionBinding", fmt.Sprintf("discarding position event for vehicle %d (want %d)", ev.VehicleID, want))
				continue
			}
			b.sink(ev)
		}
	}(vehicleID)
}

func (b *PositionBinding) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
}

func (b *PositionBinding) teardownLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.key = 0
}

func (b *PositionBinding) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

func (b *PositionBinding) Key() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.key
}
