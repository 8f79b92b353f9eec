package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/codecoalition/collabd/internal/infrastructure/contracts"
	"github.com/codecoalition/collabd/internal/infrastructure/messaging"
	"github.com/rabbitmq/amqp091-go"
)

type roomConsumer struct {
	rabbitmq *messaging.RabbitMQ
}

func NewRoomConsumer(rabbitmq *messaging.RabbitMQ) *roomConsumer {
	return &roomConsumer{
		rabbitmq: rabbitmq,
	}
}

func (c *roomConsumer) Listen() error {
	return c.rabbitmq.ConsumeMessages(messaging.SessionsQueue, func(ctx context.Context, msg amqp091.Delivery) error {
		var message contracts.AmqpMessage
		if err := json.Unmarshal(msg.Body, &message); err != nil {
			log.Printf("Failed to unmarshal message: %v", err)
			return err
		}

		if len(message.Data) == 0 {
			log.Printf("Session event %s for room %s", msg.RoutingKey, message.RoomID)
			return nil
		}

		var payload messaging.SessionEventData
		if err := json.Unmarshal(message.Data, &payload); err != nil {
			log.Printf("Failed to unmarshal message: %v", err)
			return err
		}

		log.Printf("Session event %s for room %s: user %s", msg.RoutingKey, message.RoomID, payload.User.Username)

		return nil
	})
}
