package messaging

import "github.com/codecoalition/collabd/internal/domain"

const (
	SessionsQueue   = "sessions"
	DeadLetterQueue = "dead_letter_queue"
)

type SessionEventData struct {
	User domain.SessionUser `json:"user"`
}
