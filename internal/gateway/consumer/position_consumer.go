package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"rescue-link/internal/gateway/api"
	"rescue-link/internal/gateway/app"
	"rescue-link/internal/gateway/domain"
	"rescue-link/internal/shared/util"
)

// PositionConsumer persists vehicle position pings and relays them to
// civilians tracking the vehicle.
type PositionConsumer struct {
	service *app.RescueService
	channel *amqp.Channel
	queue   string
	hub     *api.Hub
	logger  *util.Logger
}

type positionUpdate struct {
	VehicleID  int64   `json:"vehicle_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Active     bool    `json:"active"`
	LastActive string  `json:"last_active,omitempty"`
}

func decodePositionUpdate(body []byte) (*positionUpdate, error) {
	var update positionUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, err
	}
	if update.VehicleID == 0 {
		return nil, errors.New("missing vehicle_id")
	}
	if update.Latitude < -90 || update.Latitude > 90 || update.Longitude < -180 || update.Longitude > 180 {
		return nil, errors.New("coordinates out of range")
	}
	return &update, nil
}

func NewPositionConsumer(service *app.RescueService, ch *amqp.Channel, hub *api.Hub, logger *util.Logger) *PositionConsumer {
	return &PositionConsumer{
		service: service,
		channel: ch,
		queue:   "vehicle_positions",
		hub:     hub,
		logger:  logger,
	}
}

func (c *PositionConsumer) Start(ctx context.Context) error {
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
			c.handlePositionUpdate(ctx, msg)
		}
	}()
	c.logger.Info("PositionConsumer.Start", "vehicle_positions consumer started")
	return nil
}

func (c *PositionConsumer) handlePositionUpdate(ctx context.Context, msg amqp.Delivery) {
	instance := "PositionConsumer.handlePositionUpdate"

	update, err := decodePositionUpdate(msg.Body)
	if err != nil {
		c.logger.Warn(instance, "invalid payload: "+err.Error())
		_ = msg.Nack(false, false)
		return
	}

	lastActive := time.Now().UTC()
	if update.LastActive != "" {
		if t, err := time.Parse(time.RFC3339, update.LastActive); err == nil {
			lastActive = t
		}
	}

	pos := domain.VehiclePosition{
		VehicleID:  update.VehicleID,
		Latitude:   update.Latitude,
		Longitude:  update.Longitude,
		Active:     update.Active,
		LastActive: lastActive,
	}

	vehicle, err := c.service.ApplyPosition(ctx, pos)
	if err != nil {
		c.logger.Error(instance, err)
		_ = msg.Nack(false, true) // requeue for retry
		return
	}

	payload := api.PositionPayload{
		VehicleID:  pos.VehicleID,
		Active:     pos.Active,
		Latitude:   pos.Latitude,
		Longitude:  pos.Longitude,
		LastActive: pos.LastActive.Format(time.RFC3339),
	}
	if vehicle != nil {
		payload.Vehicle = &api.VehiclePayload{
			Code:        vehicle.Code,
			PlateNumber: vehicle.PlateNumber,
			Category:    vehicle.CategoryName,
			Icon:        vehicle.CategoryIcon,
		}
	}

	c.hub.BroadcastPosition(pos.VehicleID, payload)
	_ = msg.Ack(false)
}
