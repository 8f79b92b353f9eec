package contracts

// AmqpMessage is the message structure for AMQP.
type AmqpMessage struct {
	RoomID string `json:"roomId"`
	Data   []byte `json:"data"`
}

// Routing keys - using consistent event/command patterns
const (
	EventMemberJoined = "member.joined"
	EventMemberLeft   = "member.left"
	EventRoomOpened   = "room.opened"
	EventRoomClosed   = "room.closed"
)
