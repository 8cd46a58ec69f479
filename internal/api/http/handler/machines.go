package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ngajar-feri/myrvm-edge/internal/api/http/dto"
	"github.com/ngajar-feri/myrvm-edge/internal/machines"
)

type MachinesHandler struct {
	store *machines.Store
}

func NewMachinesHandler(store *machines.Store) *MachinesHandler {
	return &MachinesHandler{store: store}
}

func (h *MachinesHandler) Create(c *gin.Context) {
	var req dto.CreateMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy := machines.DefaultPolicy()
	if req.HeartbeatIntervalSec > 0 {
		policy.HeartbeatIntervalSec = req.HeartbeatIntervalSec
	}
	if req.BinFullThresholdPct > 0 {
		policy.BinFullThresholdPct = req.BinFullThresholdPct
	}
	if req.SensorPollIntervalMs > 0 {
		policy.SensorPollIntervalMs = req.SensorPollIntervalMs
	}
	policy.MaintenanceMode = req.MaintenanceMode

	m, err := h.store.Create(c.Request.Context(), req.Code, req.Location, policy)
	if err != nil {
		slog.Error("Failed to create machine", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create machine"})
		return
	}

	c.JSON(http.StatusCreated, toMachineResponse(m))
}

func (h *MachinesHandler) List(c *gin.Context) {
	all, err := h.store.List(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list machines", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list machines"})
		return
	}

	resp := dto.ListMachinesResponse{Machines: make([]dto.MachineResponse, len(all))}
	for i := range all {
		resp.Machines[i] = toMachineResponse(&all[i])
	}
	resp.Count = len(resp.Machines)
	c.JSON(http.StatusOK, resp)
}

func toMachineResponse(m *machines.Machine) dto.MachineResponse {
	return dto.MachineResponse{
		ID:                   m.ID.String(),
		Code:                 m.Code,
		Location:             m.Location,
		HeartbeatIntervalSec: m.Policy.HeartbeatIntervalSec,
		BinFullThresholdPct:  m.Policy.BinFullThresholdPct,
		SensorPollIntervalMs: m.Policy.SensorPollIntervalMs,
		MaintenanceMode:      m.Policy.MaintenanceMode,
		CreatedAt:            m.CreatedAt,
	}
}
