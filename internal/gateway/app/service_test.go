package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rescue-link/internal/gateway/domain"
	"rescue-link/internal/shared/util"
)

type fakeRepo struct {
	mu       sync.Mutex
	nextID   int64
	requests map[int64]*domain.RescueRequest
	vehicles map[int64]*domain.Vehicle
	saved    []domain.VehiclePosition
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		requests: make(map[int64]*domain.RescueRequest),
		vehicles: make(map[int64]*domain.Vehicle),
	}
}

func (f *fakeRepo) CreateRequest(ctx context.Context, req *domain.RescueRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	req.ID = f.nextID
	cp := *req
	f.requests[req.ID] = &cp
	return nil
}

func (f *fakeRepo) GetRequestByID(ctx context.Context, id int64) (*domain.RescueRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (f *fakeRepo) GetRequestDetail(ctx context.Context, id int64) (*domain.RequestDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.RequestDetail{
		ID:        req.ID,
		Status:    req.Status,
		CreatedAt: req.CreatedAt,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}, nil
}

func (f *fakeRepo) ActiveRequestIDs(ctx context.Context, civilianID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id, req := range f.requests {
		if req.CivilianID == civilianID && !domain.IsTerminal(req.Status) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return domain.ErrNotFound
	}
	req.Status = status
	return nil
}

func (f *fakeRepo) RecordAssignment(ctx context.Context, requestID, vehicleID int64, vehicle *domain.Vehicle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if vehicle != nil {
		cp := *vehicle
		f.vehicles[vehicleID] = &cp
	}
	return nil
}

func (f *fakeRepo) SavePosition(ctx context.Context, pos domain.VehiclePosition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, pos)
	return nil
}

func (f *fakeRepo) GetVehicle(ctx context.Context, vehicleID int64) (*domain.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[vehicleID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	keys   []string
	failed bool
}

func (f *fakePublisher) PublishJSON(ctx context.Context, exchange, routingKey string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return errors.New("channel closed")
	}
	f.keys = append(f.keys, routingKey)
	return nil
}

func (f *fakePublisher) routingKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func newTestService() (*RescueService, *fakeRepo, *fakePublisher) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	return NewRescueService(repo, pub, util.New()), repo, pub
}

func TestCreateRequest(t *testing.T) {
	t.Parallel()

	svc, _, pub := newTestService()

	req, err := svc.CreateRequest(context.Background(), domain.CreateRequestInput{
		CivilianID:    5,
		SubcategoryID: 3,
		Latitude:      6.91,
		Longitude:     79.85,
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if req.ID == 0 || req.Status != domain.StatusSearching {
		t.Fatalf("request = %+v", req)
	}
	if keys := pub.routingKeys(); len(keys) != 1 || keys[0] != "rescue.request.created" {
		t.Fatalf("published keys = %v", keys)
	}
}

func TestCreateRequest_Validation(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService()

	cases := []struct {
		name  string
		input domain.CreateRequestInput
		want  error
	}{
		{"latitude out of range", domain.CreateRequestInput{SubcategoryID: 3, Latitude: 91}, domain.ErrInvalidCoordinates},
		{"longitude out of range", domain.CreateRequestInput{SubcategoryID: 3, Longitude: 181}, domain.ErrInvalidCoordinates},
		{"bad subcategory", domain.CreateRequestInput{SubcategoryID: 0, Latitude: 6.9, Longitude: 79.8}, domain.ErrInvalidSubcategory},
	}

	for _, tc := range cases {
		if _, err := svc.CreateRequest(context.Background(), tc.input); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestCreateRequest_PublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	svc, _, pub := newTestService()
	pub.failed = true

	if _, err := svc.CreateRequest(context.Background(), domain.CreateRequestInput{
		CivilianID: 5, SubcategoryID: 3, Latitude: 6.9, Longitude: 79.8,
	}); err != nil {
		t.Fatalf("a failed event publish must not fail the mutation: %v", err)
	}
}

func TestCancelRequest(t *testing.T) {
	t.Parallel()

	svc, _, pub := newTestService()
	req, _ := svc.CreateRequest(context.Background(), domain.CreateRequestInput{
		CivilianID: 5, SubcategoryID: 3, Latitude: 6.9, Longitude: 79.8,
	})

	if _, err := svc.CancelRequest(context.Background(), req.ID, 99); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("foreign cancel: err = %v, want ErrForbidden", err)
	}
	if _, err := svc.CancelRequest(context.Background(), 404, 5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing request: err = %v, want ErrNotFound", err)
	}

	cancelled, err := svc.CancelRequest(context.Background(), req.ID, 5)
	if err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("status = %s", cancelled.Status)
	}
	if keys := pub.routingKeys(); keys[len(keys)-1] != "rescue.request.cancelled" {
		t.Fatalf("published keys = %v", keys)
	}

	// terminal requests cannot be cancelled again
	if _, err := svc.CancelRequest(context.Background(), req.ID, 5); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("double cancel: err = %v, want ErrInvalidStatus", err)
	}
}

func TestApplyStatusChange(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newTestService()
	req, _ := svc.CreateRequest(context.Background(), domain.CreateRequestInput{
		CivilianID: 5, SubcategoryID: 3, Latitude: 6.9, Longitude: 79.8,
	})

	vehicle := &domain.Vehicle{ID: 41, Code: "AMB-12", PlateNumber: "CAB-4412"}
	detail, err := svc.ApplyStatusChange(context.Background(), req.ID, domain.StatusDispatched, 41, vehicle)
	if err != nil {
		t.Fatalf("ApplyStatusChange: %v", err)
	}
	if detail.Status != domain.StatusDispatched {
		t.Fatalf("detail status = %s", detail.Status)
	}
	if _, err := repo.GetVehicle(context.Background(), 41); err != nil {
		t.Fatal("assignment vehicle not recorded")
	}

	if _, err := svc.ApplyStatusChange(context.Background(), 404, domain.StatusDispatched, 0, nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown request: err = %v, want ErrNotFound", err)
	}
}

func TestApplyPosition(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newTestService()

	pos := domain.VehiclePosition{VehicleID: 41, Latitude: 6.95, Longitude: 79.9, Active: true, LastActive: time.Now()}

	// unknown vehicle identity is tolerated
	vehicle, err := svc.ApplyPosition(context.Background(), pos)
	if err != nil {
		t.Fatalf("ApplyPosition: %v", err)
	}
	if vehicle != nil {
		t.Fatalf("vehicle = %+v, want nil for unknown identity", vehicle)
	}

	repo.mu.Lock()
	saved := len(repo.saved)
	repo.mu.Unlock()
	if saved != 1 {
		t.Fatalf("positions saved = %d", saved)
	}

	repo.RecordAssignment(context.Background(), 1, 41, &domain.Vehicle{ID: 41, Code: "AMB-12"})
	vehicle, err = svc.ApplyPosition(context.Background(), pos)
	if err != nil || vehicle == nil || vehicle.Code != "AMB-12" {
		t.Fatalf("vehicle = %+v err = %v", vehicle, err)
	}
}
