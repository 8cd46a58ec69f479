package dto

import "time"

type EnqueueCommandRequest struct {
	Action  string         `json:"action" binding:"required"`
	Payload map[string]any `json:"payload"`
}

// EnqueueCommandResponse confirms queueing only. Accepted means "queued",
// never "delivered" or "executed".
type EnqueueCommandResponse struct {
	Accepted   bool      `json:"accepted"`
	CommandID  string    `json:"command_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
