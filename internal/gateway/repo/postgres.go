package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rescue-link/internal/gateway/domain"
)

type RequestRepo struct {
	db *pgxpool.Pool
}

func NewRequestRepo(db *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{db: db}
}

func (r *RequestRepo) CreateRequest(ctx context.Context, req *domain.RescueRequest) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO rescue_requests
			(civilian_id, subcategory_id, status, latitude, longitude, address, description, proof_image_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		req.CivilianID, req.SubcategoryID, req.Status, req.Latitude, req.Longitude,
		req.Address, req.Description, req.ProofImageRef, req.CreatedAt,
	)
	if err := row.Scan(&req.ID); err != nil {
		return fmt.Errorf("insert rescue request failed: %w", err)
	}
	return nil
}

func (r *RequestRepo) GetRequestByID(ctx context.Context, id int64) (*domain.RescueRequest, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, civilian_id, subcategory_id, status, latitude, longitude, address, description, proof_image_ref, created_at
		FROM rescue_requests
		WHERE id = $1
	`, id)

	var req domain.RescueRequest
	err := row.Scan(&req.ID, &req.CivilianID, &req.SubcategoryID, &req.Status,
		&req.Latitude, &req.Longitude, &req.Address, &req.Description, &req.ProofImageRef, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepo) ActiveRequestIDs(ctx context.Context, civilianID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id
		FROM rescue_requests
		WHERE civilian_id = $1
		  AND status IN ('Searching', 'Dispatched', 'Arrived')
		ORDER BY created_at DESC
	`, civilianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *RequestRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE rescue_requests
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RequestRepo) RecordAssignment(ctx context.Context, requestID, vehicleID int64, vehicle *domain.Vehicle) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if vehicle != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO rescue_vehicles (id, code, plate_number, category_name, category_icon)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET code = EXCLUDED.code,
			    plate_number = EXCLUDED.plate_number,
			    category_name = EXCLUDED.category_name,
			    category_icon = EXCLUDED.category_icon
		`, vehicleID, vehicle.Code, vehicle.PlateNumber, vehicle.CategoryName, vehicle.CategoryIcon)
		if err != nil {
			return fmt.Errorf("upsert vehicle failed: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO rescue_assignments (request_id, vehicle_id, assigned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_id, vehicle_id) DO NOTHING
	`, requestID, vehicleID, time.Now())
	if err != nil {
		return fmt.Errorf("insert assignment failed: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *RequestRepo) SavePosition(ctx context.Context, pos domain.VehiclePosition) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO vehicle_positions (vehicle_id, latitude, longitude, active, last_active)
		VALUES ($1, $2, $3, $4, $5)
	`, pos.VehicleID, pos.Latitude, pos.Longitude, pos.Active, pos.LastActive)
	return err
}

func (r *RequestRepo) GetVehicle(ctx context.Context, vehicleID int64) (*domain.Vehicle, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, code, plate_number, category_name, category_icon
		FROM rescue_vehicles
		WHERE id = $1
	`, vehicleID)

	var v domain.Vehicle
	err := row.Scan(&v.ID, &v.Code, &v.PlateNumber, &v.CategoryName, &v.CategoryIcon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *RequestRepo) GetRequestDetail(ctx context.Context, id int64) (*domain.RequestDetail, error) {
	req, err := r.GetRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &domain.RequestDetail{
		ID:        req.ID,
		Status:    req.Status,
		CreatedAt: req.CreatedAt,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}

	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.request_id, a.vehicle_id, a.assigned_at,
		       v.code, v.plate_number, v.category_name, v.category_icon
		FROM rescue_assignments a
		JOIN rescue_vehicles v ON v.id = a.vehicle_id
		WHERE a.request_id = $1
		ORDER BY a.assigned_at DESC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Assignment
		var v domain.Vehicle
		if err := rows.Scan(&a.ID, &a.RequestID, &a.VehicleID, &a.Timestamp,
			&v.Code, &v.PlateNumber, &v.CategoryName, &v.CategoryIcon); err != nil {
			return nil, err
		}
		v.ID = a.VehicleID
		a.Vehicle = &v
		detail.Assignments = append(detail.Assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, a := range detail.Assignments {
		row := r.db.QueryRow(ctx, `
			SELECT vehicle_id, latitude, longitude, active, last_active
			FROM vehicle_positions
			WHERE vehicle_id = $1
			ORDER BY last_active DESC
			LIMIT 1
		`, a.VehicleID)

		var pos domain.VehiclePosition
		err := row.Scan(&pos.VehicleID, &pos.Latitude, &pos.Longitude, &pos.Active, &pos.LastActive)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		detail.LastKnownPositions = append(detail.LastKnownPositions, pos)
	}

	return detail, nil
}
