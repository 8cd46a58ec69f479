package dto

import (
	"time"

	"github.com/ngajar-feri/myrvm-edge/internal/commands"
	"github.com/ngajar-feri/myrvm-edge/internal/liveness"
)

// HeartbeatRequest is the recurring poll body. Everything is optional; an
// empty body is a valid "still alive" ping.
type HeartbeatRequest struct {
	Report liveness.Report `json:"reported_state"`
}

type HeartbeatResponse struct {
	ServerTime time.Time          `json:"server_time"`
	Commands   []commands.Command `json:"commands"`
}
