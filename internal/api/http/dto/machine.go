package dto

import "time"

type CreateMachineRequest struct {
	Code     string `json:"code" binding:"required,max=64"`
	Location string `json:"location" binding:"max=255"`

	HeartbeatIntervalSec int     `json:"heartbeat_interval_sec"`
	BinFullThresholdPct  float64 `json:"bin_full_threshold_pct"`
	SensorPollIntervalMs int     `json:"sensor_poll_interval_ms"`
	MaintenanceMode      bool    `json:"maintenance_mode"`
}

type MachineResponse struct {
	ID                   string    `json:"id"`
	Code                 string    `json:"code"`
	Location             string    `json:"location"`
	HeartbeatIntervalSec int       `json:"heartbeat_interval_sec"`
	BinFullThresholdPct  float64   `json:"bin_full_threshold_pct"`
	SensorPollIntervalMs int       `json:"sensor_poll_interval_ms"`
	MaintenanceMode      bool      `json:"maintenance_mode"`
	CreatedAt            time.Time `json:"created_at"`
}

type ListMachinesResponse struct {
	Machines []MachineResponse `json:"machines"`
	Count    int               `json:"count"`
}

type PublishModelRequest struct {
	Slug        string `json:"slug" binding:"required,max=64"`
	Version     string `json:"version" binding:"required,max=64"`
	ContentHash string `json:"content_hash" binding:"required,len=64"`
	SizeBytes   int64  `json:"size_bytes"`
	Activate    bool   `json:"activate"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
