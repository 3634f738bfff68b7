package app

import (
	"context"
	"fmt"
	"time"

	"rescue-link/internal/gateway/domain"
	"rescue-link/internal/shared/util"
)

type RescueService struct {
	repo   domain.RequestRepository
	pub    domain.Publisher
	logger *util.Logger
}

func NewRescueService(repo domain.RequestRepository, pub domain.Publisher, logger *util.Logger) *RescueService {
	return &RescueService{repo: repo, pub: pub, logger: logger}
}

func (s *RescueService) CreateRequest(ctx context.Context, input domain.CreateRequestInput) (*domain.RescueRequest, error) {
	instance := "RescueService.CreateRequest"
	start := time.Now()

	if input.Latitude < -90 || input.Latitude > 90 || input.Longitude < -180 || input.Longitude > 180 {
		s.logger.Warn(instance, fmt.Sprintf("invalid coordinates: lat=%.4f, lng=%.4f", input.Latitude, input.Longitude))
		return nil, domain.ErrInvalidCoordinates
	}

	if input.SubcategoryID <= 0 {
		s.logger.Warn(instance, fmt.Sprintf("invalid subcategory id: %d", input.SubcategoryID))
		return nil, domain.ErrInvalidSubcategory
	}

	req := &domain.RescueRequest{
		CivilianID:    input.CivilianID,
		SubcategoryID: input.SubcategoryID,
		Status:        domain.StatusSearching,
		Latitude:      input.Latitude,
		Longitude:     input.Longitude,
		Address:       input.Address,
		Description:   input.Description,
		ProofImageRef: input.ProofImage,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.repo.CreateRequest(ctx, req); err != nil {
		s.logger.Error(instance, err)
		return nil, err
	}

	// Announce the new request to the external dispatch system. Assignment
	// decisions come back on the rescue_status queue.
	event := map[string]interface{}{
		"request_id":     req.ID,
		"civilian_id":    req.CivilianID,
		"subcategory_id": req.SubcategoryID,
		"location": map[string]interface{}{
			"lat":     req.Latitude,
			"lng":     req.Longitude,
			"address": req.Address,
		},
		"created_at": req.CreatedAt.Format(time.RFC3339),
	}
	if err := s.pub.PublishJSON(ctx, "rescue_topic", "rescue.request.created", event); err != nil {
		s.logger.Warn(instance, fmt.Sprintf("failed to publish request created event: %v", err))
	} else {
		s.logger.OK(instance, "request created event published")
	}

	s.logger.Info(instance, fmt.Sprintf("request created [id=%d, civilian=%d, duration_ms=%d]",
		req.ID, req.CivilianID, time.Since(start).Milliseconds()))

	return req, nil
}

func (s *RescueService) CancelRequest(ctx context.Context, id, civilianID int64) (*domain.RescueRequest, error) {
	instance := "RescueService.CancelRequest"
	start := time.Now()

	req, err := s.repo.GetRequestByID(ctx, id)
	if err != nil {
		s.logger.Warn(instance, fmt.Sprintf("request not found: %d", id))
		return nil, domain.ErrNotFound
	}

	if req.CivilianID != civilianID {
		s.logger.Warn(instance, fmt.Sprintf("civilian %d tried to cancel request %d owned by %d", civilianID, id, req.CivilianID))
		return nil, domain.ErrForbidden
	}

	if domain.IsTerminal(req.Status) {
		s.logger.Warn(instance, fmt.Sprintf("request %d already terminal: %s", id, req.Status))
		return nil, domain.ErrInvalidStatus
	}

	if err := s.repo.UpdateStatus(ctx, id, domain.StatusCancelled); err != nil {
		s.logger.Error(instance, err)
		return nil, fmt.Errorf("failed to cancel request: %w", err)
	}
	req.Status = domain.StatusCancelled

	event := map[string]interface{}{
		"request_id": id,
		"status":     domain.StatusCancelled,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.pub.PublishJSON(ctx, "rescue_topic", "rescue.request.cancelled", event); err != nil {
		s.logger.Warn(instance, fmt.Sprintf("failed to publish cancel event: %v", err))
	}

	s.logger.OK(instance, fmt.Sprintf("request %d cancelled (duration=%dms)", id, time.Since(start).Milliseconds()))
	return req, nil
}

func (s *RescueService) ActiveRequestIDs(ctx context.Context, civilianID int64) ([]int64, error) {
	return s.repo.ActiveRequestIDs(ctx, civilianID)
}

func (s *RescueService) GetRequestDetail(ctx context.Context, id int64) (*domain.RequestDetail, error) {
	return s.repo.GetRequestDetail(ctx, id)
}

// ApplyStatusChange persists an upstream status event and returns the fresh
// detail view to be relayed to subscribed civilians.
func (s *RescueService) ApplyStatusChange(ctx context.Context, requestID int64, status string, vehicleID int64, vehicle *domain.Vehicle) (*domain.RequestDetail, error) {
	instance := "RescueService.ApplyStatusChange"

	if err := s.repo.UpdateStatus(ctx, requestID, status); err != nil {
		return nil, err
	}

	if vehicleID > 0 {
		if err := s.repo.RecordAssignment(ctx, requestID, vehicleID, vehicle); err != nil {
			s.logger.Warn(instance, fmt.Sprintf("failed to record assignment for request %d: %v", requestID, err))
		}
	}

	return s.repo.GetRequestDetail(ctx, requestID)
}

// ApplyPosition persists a vehicle position and resolves the vehicle identity
// for the relay payload. A missing identity is not an error.
func (s *RescueService) ApplyPosition(ctx context.Context, pos domain.VehiclePosition) (*domain.Vehicle, error) {
	if err := s.repo.SavePosition(ctx, pos); err != nil {
		return nil, err
	}

	vehicle, err := s.repo.GetVehicle(ctx, pos.VehicleID)
	if err != nil {
		return nil, nil
	}
	return vehicle, nil
}
