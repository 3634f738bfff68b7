package domain

import "context"

type RequestRepository interface {
	CreateRequest(ctx context.Context, req *RescueRequest) error
	GetRequestByID(ctx context.Context, id int64) (*RescueRequest, error)
	GetRequestDetail(ctx context.Context, id int64) (*RequestDetail, error)
	ActiveRequestIDs(ctx context.Context, civilianID int64) ([]int64, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	RecordAssignment(ctx context.Context, requestID, vehicleID int64, vehicle *Vehicle) error
	SavePosition(ctx context.Context, pos VehiclePosition) error
	GetVehicle(ctx context.Context, vehicleID int64) (*Vehicle, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, data interface{}) error
}
