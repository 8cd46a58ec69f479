package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ngajar-feri/myrvm-edge/internal/api/http/dto"
	"github.com/ngajar-feri/myrvm-edge/internal/audit"
	"github.com/ngajar-feri/myrvm-edge/internal/commands"
	"github.com/ngajar-feri/myrvm-edge/internal/devices"
)

type DevicesHandler struct {
	devices *devices.Service
	queue   commands.Queue
	sink    audit.Sink
}

func NewDevicesHandler(devSvc *devices.Service, queue commands.Queue, sink audit.Sink) *DevicesHandler {
	return &DevicesHandler{devices: devSvc, queue: queue, sink: sink}
}

// Register handles POST /api/v1/devices. The response carries the
// plaintext credential exactly once.
func (h *DevicesHandler) Register(c *gin.Context) {
	var req dto.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var machineID *uuid.UUID
	if req.MachineID != "" {
		parsed, err := uuid.Parse(req.MachineID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid machine_id", "field": "machine_id"})
			return
		}
		machineID = &parsed
	}

	d, key, err := h.devices.Register(c.Request.Context(), req.Name, machineID)
	if err != nil {
		if errors.Is(err, devices.ErrMachineTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "machine already has a device"})
			return
		}
		slog.Error("Failed to register device", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register device"})
		return
	}

	audit.BestEffort(c.Request.Context(), h.sink, audit.Entry{
		Actor:    c.GetString("operator_id"),
		Action:   "device.register",
		DeviceID: d.ID.String(),
		Detail:   map[string]any{"name": d.Name},
	})

	c.JSON(http.StatusCreated, dto.RegisterDeviceResponse{
		Device: toDeviceResponse(d),
		APIKey: key,
	})
}

// RotateKey handles POST /api/v1/devices/:id/rotate-key.
func (h *DevicesHandler) RotateKey(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	key, err := h.devices.RotateCredential(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, devices.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		slog.Error("Failed to rotate device key", "error", err, "device_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate key"})
		return
	}

	audit.BestEffort(c.Request.Context(), h.sink, audit.Entry{
		Actor:    c.GetString("operator_id"),
		Action:   "device.rotate_key",
		DeviceID: id.String(),
	})

	c.JSON(http.StatusOK, dto.RotateKeyResponse{APIKey: key})
}

// List handles GET /api/v1/devices. Trash is included on request so the
// dashboard can offer restores.
func (h *DevicesHandler) List(c *gin.Context) {
	includeTrashed := c.Query("include_trashed") == "true"

	all, err := h.devices.List(c.Request.Context(), includeTrashed)
	if err != nil {
		slog.Error("Failed to list devices", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list devices"})
		return
	}

	resp := dto.ListDevicesResponse{Devices: make([]dto.DeviceResponse, len(all))}
	for i := range all {
		resp.Devices[i] = toDeviceResponse(&all[i])
	}
	resp.Count = len(resp.Devices)
	c.JSON(http.StatusOK, resp)
}

// Get handles GET /api/v1/devices/:id.
func (h *DevicesHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	d, err := h.devices.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, devices.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		slog.Error("Failed to get device", "error", err, "device_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get device"})
		return
	}

	c.JSON(http.StatusOK, toDeviceResponse(d))
}

// Trash handles DELETE /api/v1/devices/:id: soft-delete, release the
// machine link, and discard any pending commands.
func (h *DevicesHandler) Trash(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.devices.Trash(c.Request.Context(), id); err != nil {
		if errors.Is(err, devices.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		slog.Error("Failed to trash device", "error", err, "device_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to trash device"})
		return
	}

	// Work queued for a trashed device would otherwise sit until TTL.
	if dropped := h.queue.Drain(id.String()); len(dropped) > 0 {
		slog.Info("Discarded pending commands for trashed device",
			"device_id", id, "count", len(dropped))
	}

	audit.BestEffort(c.Request.Context(), h.sink, audit.Entry{
		Actor:    c.GetString("operator_id"),
		Action:   "device.trash",
		DeviceID: id.String(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "device moved to trash"})
}

// Restore handles POST /api/v1/devices/:id/restore.
func (h *DevicesHandler) Restore(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req dto.RestoreDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var machineID *uuid.UUID
	if req.MachineID != "" {
		parsed, err := uuid.Parse(req.MachineID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid machine_id", "field": "machine_id"})
			return
		}
		machineID = &parsed
	}

	d, err := h.devices.Restore(c.Request.Context(), id, machineID)
	if err != nil {
		switch {
		case errors.Is(err, devices.ErrNotTrashed):
			c.JSON(http.StatusNotFound, gin.H{"error": "device is not in trash"})
		case errors.Is(err, devices.ErrMachineTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "machine already has a device"})
		default:
			slog.Error("Failed to restore device", "error", err, "device_id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to restore device"})
		}
		return
	}

	audit.BestEffort(c.Request.Context(), h.sink, audit.Entry{
		Actor:    c.GetString("operator_id"),
		Action:   "device.restore",
		DeviceID: id.String(),
	})

	c.JSON(http.StatusOK, toDeviceResponse(d))
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid device id"})
		return uuid.Nil, false
	}
	return id, true
}

func toDeviceResponse(d *devices.Device) dto.DeviceResponse {
	resp := dto.DeviceResponse{
		ID:              d.ID.String(),
		Name:            d.Name,
		Status:          string(d.State.Status),
		IPAddress:       d.State.IPAddress,
		FirmwareVersion: d.State.FirmwareVersion,
		RegisteredAt:    d.RegisteredAt,
		Trashed:         d.Trashed(),
	}
	if d.MachineID != nil {
		resp.MachineID = d.MachineID.String()
	}
	if !d.State.LastSeenAt.IsZero() {
		t := d.State.LastSeenAt
		resp.LastSeenAt = &t
	}
	return resp
}
