package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ngajar-feri/myrvm-edge/internal/api/http/dto"
	"github.com/ngajar-feri/myrvm-edge/internal/api/http/middleware"
	"github.com/ngajar-feri/myrvm-edge/internal/commands"
	"github.com/ngajar-feri/myrvm-edge/internal/devices"
	"github.com/ngajar-feri/myrvm-edge/internal/handshake"
)

// EdgeHandler serves the two device-facing endpoints: handshake and
// heartbeat. Both run behind DeviceAuth, so the device on the context is
// already authenticated.
type EdgeHandler struct {
	devices   *devices.Service
	handshake *handshake.Service
	queue     commands.Queue
}

func NewEdgeHandler(devSvc *devices.Service, hs *handshake.Service, queue commands.Queue) *EdgeHandler {
	return &EdgeHandler{
		devices:   devSvc,
		handshake: hs,
		queue:     queue,
	}
}

// Handshake handles POST /api/v1/edge/handshake.
func (h *EdgeHandler) Handshake(c *gin.Context) {
	d, ok := middleware.DeviceFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "device not resolved"})
		return
	}

	var req handshake.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.handshake.Handshake(c.Request.Context(), d, req)
	if err != nil {
		var verr *handshake.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Reason, "field": verr.Field})
			return
		}
		slog.Error("Handshake failed", "error", err, "device_id", d.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "handshake failed"})
		return
	}

	c.JSON(http.StatusOK, res)
}

// Heartbeat handles POST /api/v1/edge/heartbeat: refresh liveness, then
// atomically drain and return this device's pending commands. A device
// that misses the response loses the batch; delivery is at most once.
func (h *EdgeHandler) Heartbeat(c *gin.Context) {
	d, ok := middleware.DeviceFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "device not resolved"})
		return
	}

	// An empty body is a bare liveness ping.
	var req dto.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.devices.RecordSeen(c.Request.Context(), d, req.Report, time.Now().UTC()); err != nil {
		slog.Error("Failed to record heartbeat", "error", err, "device_id", d.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record heartbeat"})
		return
	}

	cmds := h.queue.Drain(d.ID.String())
	if cmds == nil {
		cmds = []commands.Command{}
	}
	if len(cmds) > 0 {
		slog.Info("Delivering commands", "device_id", d.ID, "count", len(cmds))
	}

	c.JSON(http.StatusOK, dto.HeartbeatResponse{
		ServerTime: time.Now().UTC(),
		Commands:   cmds,
	})
}
