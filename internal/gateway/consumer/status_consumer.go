package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"rescue-link/internal/gateway/api"
	"rescue-link/internal/gateway/app"
	"rescue-link/internal/gateway/domain"
	"rescue-link/internal/shared/util"
)

// StatusConsumer applies externally produced request status changes and relays
// the resulting detail view to subscribed civilians. The dispatch system that
// produces these events is out of scope here.
type StatusConsumer struct {
	service *app.RescueService
	channel *amqp.Channel
	queue   string
	hub     *api.Hub
	logger  *util.Logger
}

type statusUpdate struct {
	RequestID int64           `json:"request_id"`
	Status    string          `json:"status"`
	VehicleID int64           `json:"vehicle_id,omitempty"`
	Vehicle   *vehiclePayload `json:"vehicle,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

type vehiclePayload struct {
	Code        string `json:"code"`
	PlateNumber string `json:"plate_number"`
	Category    string `json:"category"`
	Icon        string `json:"icon,omitempty"`
}

func decodeStatusUpdate(body []byte) (*statusUpdate, error) {
	var update statusUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, err
	}
	if update.RequestID == 0 || update.Status == "" {
		return nil, errors.New("missing request_id or status")
	}
	return &update, nil
}

func NewStatusConsumer(service *app.RescueService, ch *amqp.Channel, hub *api.Hub, logger *util.Logger) *StatusConsumer {
	return &StatusConsumer{
		service: service,
		channel: ch,
		queue:   "rescue_status",
		hub:     hub,
		logger:  logger,
	}
}

func (c *StatusConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",
		false, // manual acknowledgment
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			c.handleStatusUpdate(ctx, msg)
		}
	}()
	c.logger.Info("StatusConsumer.Start", "rescue_status consumer started")
	return nil
}

func (c *StatusConsumer) handleStatusUpdate(ctx context.Context, msg amqp.Delivery) {
	instance := "StatusConsumer.handleStatusUpdate"

	update, err := decodeStatusUpdate(msg.Body)
	if err != nil {
		c.logger.Warn(instance, "invalid payload: "+err.Error())
		// don't requeue malformed messages
		_ = msg.Nack(false, false)
		return
	}

	var vehicle *domain.Vehicle
	if update.Vehicle != nil {
		vehicle = &domain.Vehicle{
			ID:           update.VehicleID,
			Code:         update.Vehicle.Code,
			PlateNumber:  update.Vehicle.PlateNumber,
			CategoryName: update.Vehicle.Category,
			CategoryIcon: update.Vehicle.Icon,
		}
	}

	detail, err := c.service.ApplyStatusChange(ctx, update.RequestID, update.Status, update.VehicleID, vehicle)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.logger.Warn(instance, fmt.Sprintf("status for unknown request %d dropped", update.RequestID))
			_ = msg.Nack(false, false)
			return
		}
		c.logger.Error(instance, err)
		_ = msg.Nack(false, true) // requeue for retry
		return
	}

	c.hub.BroadcastStatus(update.RequestID, api.ToDetailResponse(detail))
	_ = msg.Ack(false)
}
