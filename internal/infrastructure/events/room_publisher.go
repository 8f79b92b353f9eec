package events

import (
	"context"
	"encoding/json"

	"github.com/codecoalition/collabd/internal/domain"
	"github.com/codecoalition/collabd/internal/infrastructure/contracts"
	"github.com/codecoalition/collabd/internal/infrastructure/messaging"
)

type RoomPublisher struct {
	rabbitmq *messaging.RabbitMQ
}

func NewRoomPublisher(rabbitmq *messaging.RabbitMQ) *RoomPublisher {
	return &RoomPublisher{
		rabbitmq: rabbitmq,
	}
}

func (p *RoomPublisher) PublishMemberJoined(ctx context.Context, user domain.SessionUser) error {
	payload := messaging.SessionEventData{
		User: user,
	}

	sessionEventJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.rabbitmq.PublishMessage(ctx, contracts.EventMemberJoined, contracts.AmqpMessage{
		RoomID: user.RoomID,
		Data:   sessionEventJSON,
	})
}

func (p *RoomPublisher) PublishMemberLeft(ctx context.Context, user domain.SessionUser) error {
	payload := messaging.SessionEventData{
		User: user,
	}

	sessionEventJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.rabbitmq.PublishMessage(ctx, contracts.EventMemberLeft, contracts.AmqpMessage{
		RoomID: user.RoomID,
		Data:   sessionEventJSON,
	})
}

func (p *RoomPublisher) PublishRoomOpened(ctx context.Context, user domain.SessionUser) error {
	payload := messaging.SessionEventData{
		User: user,
	}

	sessionEventJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.rabbitmq.PublishMessage(ctx, contracts.EventRoomOpened, contracts.AmqpMessage{
		RoomID: user.RoomID,
		Data:   sessionEventJSON,
	})
}

func (p *RoomPublisher) PublishRoomClosed(ctx context.Context, roomID string) error {
	return p.rabbitmq.PublishMessage(ctx, contracts.EventRoomClosed, contracts.AmqpMessage{
		RoomID: roomID,
	})
}
