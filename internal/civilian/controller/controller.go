// Package controller hosts the request lifecycle state machine. Events from
// the push streams, timers and user actions all funnel into one writer path
// over the session; everything else reads value-copy snapshots.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rescue-link/internal/civilian/session"
	"rescue-link/internal/civilian/stream"
	"rescue-link/internal/shared/util"
)

var (
	ErrNoDestination      = errors.New("no destination picked")
	ErrInvalidSubcategory = errors.New("invalid emergency subcategory")
	ErrActiveRequest      = errors.New("a request is already in progress")
	ErrCancelUnavailable  = errors.New("request can no longer be cancelled")
)

const DefaultResetDelay = 5 * time.Second

type CreateInput struct {
	SubcategoryID int64
	Latitude      float64
	Longitude     float64
	Address       *string
	Description   *string
	ProofImage    *string
}

type Created struct {
	ID        int64
	Status    string
	CreatedAt time.Time
}

// API is the gateway surface the controller consumes.
type API interface {
	CreateRequest(ctx context.Context, input CreateInput) (Created, error)
	CancelRequest(ctx context.Context, id int64) error
	ActiveRequestIDs(ctx context.Context) ([]int64, error)
	RequestDetail(ctx context.Context, id int64) (session.Recovered, error)
}

// Streams is the push-subscription surface, usually the WebSocket transport.
type Streams interface {
	stream.StatusSource
	stream.PositionSource
}

// SubcategoryStore persists the last-used emergency subcategory for the
// post-reload first-aid affordance.
type SubcategoryStore interface {
	SaveSubcategoryID(id int64) error
}

type Config struct {
	API        API
	Streams    Streams
	Store      SubcategoryStore // optional
	Logger     *util.Logger
	ResetDelay time.Duration // defaults to DefaultResetDelay
}

type inboxEvent struct {
	status   *session.StatusEvent
	position *session.PositionEvent
	reset    bool
}

type Controller struct {
	api    API
	store  SubcategoryStore
	logger *util.Logger

	mu         sync.Mutex
	sess       session.Session
	recovered  bool
	inbox      chan inboxEvent
	reset      *ResetScheduler
	statusBind *stream.StatusBinding
	posBind    *stream.PositionBinding
	closeOnce  sync.Once
	quit       chan struct{}
}

func New(cfg Config) *Controller {
	if cfg.ResetDelay == 0 {
		cfg.ResetDelay = DefaultResetDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = util.New()
	}

	c := &Controller{
		api:    cfg.API,
		store:  cfg.Store,
		logger: cfg.Logger,
		sess:   session.Empty(),
		inbox:  make(chan inboxEvent, 64),
		quit:   make(chan struct{}),
	}
	c.reset = NewResetScheduler(cfg.ResetDelay, func() {
		c.enqueue(inboxEvent{reset: true})
	})
	c.statusBind = stream.NewStatusBinding(cfg.Streams, func(ev session.StatusEvent) {
		c.enqueue(inboxEvent{status: &ev})
	}, cfg.Logger)
	c.posBind = stream.NewPositionBinding(cfg.Streams, func(ev session.PositionEvent) {
		c.enqueue(inboxEvent{position: &ev})
	}, cfg.Logger)
	return c
}

func (c *Controller) enqueue(ev inboxEvent) {
	select {
	case c.inbox <- ev:
	case <-c.quit:
	}
}

// Run consumes the inbox until the context ends or the controller is closed.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.quit:
			return
		case ev := <-c.inbox:
			switch {
			case ev.status != nil:
				c.handleStatus(*ev.status)
			case ev.position != nil:
				c.handlePosition(*ev.position)
			case ev.reset:
				c.handleReset()
			}
		}
	}
}

// Close deterministically cancels outstanding timers and stream bindings.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		c.reset.Cancel()
		c.statusBind.Close()
		c.posBind.Close()
	})
}

// Snapshot returns a value copy of the session for readers.
func (c *Controller) Snapshot() session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone(c.sess)
}

func clone(s session.Session) session.Session {
	if s.Picked != nil {
		p := *s.Picked
		s.Picked = &p
	}
	if s.VehicleMarker != nil {
		m := *s.VehicleMarker
		s.VehicleMarker = &m
	}
	return s
}

// --- event application (single writer path) ---

func (c *Controller) handleStatus(ev session.StatusEvent) {
	instance := "Controller.handleStatus"

	c.mu.Lock()
	wasTerminal := c.sess.IsTerminal()
	changed := c.sess.ApplyStatus(ev)
	if changed && !wasTerminal && c.sess.IsTerminal() {
		c.sess.OnTerminal()
		c.reset.Schedule()
		c.logger.Info(instance, fmt.Sprintf("terminal status %q observed, reset scheduled", c.sess.StatusText))
	}
	snap := c.sess
	c.mu.Unlock()

	if !changed {
		c.logger.Warn(instance, fmt.Sprintf("discarded status event for request %d", ev.RequestID))
		return
	}
	c.syncBindings(snap)
}

func (c *Controller) handlePosition(ev session.PositionEvent) {
	c.mu.Lock()
	changed := c.sess.ApplyPosition(ev)
	c.mu.Unlock()

	if !changed {
		c.logger.Warn("Controller.handlePosition",
			fmt.Sprintf("discarded position event for vehicle %d", ev.VehicleID))
	}
}

func (c *Controller) handleReset() {
	c.mu.Lock()
	if !c.sess.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.sess.Reset()
	snap := c.sess
	c.mu.Unlock()

	c.logger.Info("Controller.handleReset", "session reset to picking state")
	c.syncBindings(snap)
}

// syncBindings re-evaluates both guard predicates against the snapshot.
// Bindings are torn down synchronously when a guard goes false.
func (c *Controller) syncBindings(snap session.Session) {
	c.statusBind.Sync(snap.RequestID)

	var vehicleKey int64
	if snap.ShouldTrack() {
		vehicleKey = snap.Vehicle.ID
	}
	c.posBind.Sync(vehicleKey)
}

// --- user actions ---

// PickLocation records a confirmed destination from the pin resolver. It is
// ignored once the session has left the picking phase.
func (c *Controller) PickLocation(loc session.Location) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.SetPicked(loc)
}

// Create validates locally, issues the create mutation and binds the status
// stream to the returned id. Local validation failures never hit the network.
func (c *Controller) Create(ctx context.Context, subcategoryID int64, description, proofImage *string) (Created, error) {
	instance := "Controller.Create"

	c.mu.Lock()
	if c.sess.RequestID != 0 {
		c.mu.Unlock()
		return Created{}, ErrActiveRequest
	}
	if c.sess.Picked == nil {
		c.mu.Unlock()
		return Created{}, ErrNoDestination
	}
	if subcategoryID <= 0 {
		c.mu.Unlock()
		return Created{}, ErrInvalidSubcategory
	}
	picked := *c.sess.Picked
	c.mu.Unlock()

	created, err := c.api.CreateRequest(ctx, CreateInput{
		SubcategoryID: subcategoryID,
		Latitude:      picked.Lat,
		Longitude:     picked.Lng,
		Address:       picked.Address,
		Description:   description,
		ProofImage:    proofImage,
	})
	if err != nil {
		c.logger.Warn(instance, "create failed: "+err.Error())
		return Created{}, err
	}

	c.mu.Lock()
	c.sess.ApplyCreated(created.ID, created.Status, created.CreatedAt, subcategoryID)
	snap := c.sess
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveSubcategoryID(subcategoryID); err != nil {
			c.logger.Warn(instance, "failed to persist subcategory id: "+err.Error())
		}
	}

	c.logger.OK(instance, fmt.Sprintf("request %d created (%s)", created.ID, created.Status))
	c.syncBindings(snap)
	return created, nil
}

// Cancel runs the cancellation sub-protocol: the confirm decision blocks, then
// the remote action is issued, then the local status flips optimistically.
// The eventual status-stream confirmation re-applies Cancelled as a no-op.
// Returns false without error when the user keeps waiting.
func (c *Controller) Cancel(ctx context.Context, confirm func(ctx context.Context) bool) (bool, error) {
	instance := "Controller.Cancel"

	c.mu.Lock()
	if !c.sess.CanCancel() {
		c.mu.Unlock()
		return false, ErrCancelUnavailable
	}
	requestID := c.sess.RequestID
	c.mu.Unlock()

	if confirm != nil && !confirm(ctx) {
		return false, nil
	}

	if err := c.api.CancelRequest(ctx, requestID); err != nil {
		c.logger.Warn(instance, "cancel failed: "+err.Error())
		return false, err
	}

	c.mu.Lock()
	wasTerminal := c.sess.IsTerminal()
	c.sess.ApplyCancelAck()
	if !wasTerminal {
		c.sess.OnTerminal()
		c.reset.Schedule()
	}
	snap := c.sess
	c.mu.Unlock()

	c.logger.OK(instance, fmt.Sprintf("request %d cancelled", requestID))
	c.syncBindings(snap)
	return true, nil
}

// Dismiss resets immediately after a terminal outcome, skipping the grace
// period.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	if !c.sess.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.reset.Cancel()
	c.sess.Reset()
	snap := c.sess
	c.mu.Unlock()

	c.syncBindings(snap)
}

// Recover merges a persisted active request into the session on load. The
// most recent active request is taken; the rest are left alone so the store
// keeps at most one live session per civilian. Runs at most once.
func (c *Controller) Recover(ctx context.Context) error {
	instance := "Controller.Recover"

	c.mu.Lock()
	if c.recovered || c.sess.RequestID != 0 {
		c.mu.Unlock()
		return nil
	}
	c.recovered = true
	c.mu.Unlock()

	ids, err := c.api.ActiveRequestIDs(ctx)
	if err != nil {
		return fmt.Errorf("list active requests: %w", err)
	}
	if len(ids) == 0 {
		c.logger.Info(instance, "no active request, starting in picking mode")
		return nil
	}

	detail, err := c.api.RequestDetail(ctx, ids[0])
	if err != nil {
		return fmt.Errorf("fetch request detail: %w", err)
	}

	c.mu.Lock()
	c.sess.ApplyRecovery(detail)
	if c.sess.IsTerminal() {
		c.sess.OnTerminal()
		c.reset.Schedule()
	}
	snap := c.sess
	c.mu.Unlock()

	c.logger.OK(instance, fmt.Sprintf("recovered request %d in status %q", detail.RequestID, detail.Status))
	c.syncBindings(snap)
	return nil
}
