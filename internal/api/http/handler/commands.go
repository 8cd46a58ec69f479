package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ngajar-feri/myrvm-edge/internal/api/http/dto"
	"github.com/ngajar-feri/myrvm-edge/internal/audit"
	"github.com/ngajar-feri/myrvm-edge/internal/commands"
)

// CommandsHandler is the operator-facing producer side of the queue.
type CommandsHandler struct {
	queue commands.Queue
	sink  audit.Sink
}

func NewCommandsHandler(queue commands.Queue, sink audit.Sink) *CommandsHandler {
	return &CommandsHandler{queue: queue, sink: sink}
}

// Enqueue handles POST /api/v1/devices/:id/commands. The queue keeps no
// foreign keys: scheduling work for a device id with no record succeeds,
// and the batch is delivered if that device ever shows up. "Accepted"
// means queued, not delivered.
func (h *CommandsHandler) Enqueue(c *gin.Context) {
	deviceID := c.Param("id")

	var req dto.EnqueueCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	action, err := commands.ParseAction(req.Action)
	if err != nil {
		if errors.Is(err, commands.ErrUnknownAction) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "action"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	cmd := commands.New(action, req.Payload)
	h.queue.Enqueue(deviceID, cmd)

	audit.BestEffort(c.Request.Context(), h.sink, audit.Entry{
		Actor:    c.GetString("operator_id"),
		Action:   "command.enqueue",
		DeviceID: deviceID,
		Detail:   map[string]any{"command_id": cmd.ID.String(), "action": string(action)},
	})

	slog.Info("Command enqueued", "device_id", deviceID, "action", action, "command_id", cmd.ID)
	c.JSON(http.StatusAccepted, dto.EnqueueCommandResponse{
		Accepted:   true,
		CommandID:  cmd.ID.String(),
		EnqueuedAt: cmd.EnqueuedAt,
	})
}
