package dto

import "time"

type RegisterDeviceRequest struct {
	Name      string `json:"name" binding:"required,max=255"`
	MachineID string `json:"machine_id"`
}

type RegisterDeviceResponse struct {
	Device DeviceResponse `json:"device"`
	// APIKey is shown exactly once; only its hash is stored.
	APIKey string `json:"api_key"`
}

type RotateKeyResponse struct {
	APIKey string `json:"api_key"`
}

type RestoreDeviceRequest struct {
	MachineID string `json:"machine_id"`
}

type DeviceResponse struct {
	ID              string     `json:"id"`
	MachineID       string     `json:"machine_id,omitempty"`
	Name            string     `json:"name"`
	Status          string     `json:"status"`
	LastSeenAt      *time.Time `json:"last_seen_at,omitempty"`
	IPAddress       string     `json:"ip_address,omitempty"`
	FirmwareVersion string     `json:"firmware_version,omitempty"`
	RegisteredAt    time.Time  `json:"registered_at"`
	Trashed         bool       `json:"trashed"`
}

type ListDevicesResponse struct {
	Devices []DeviceResponse `json:"devices"`
	Count   int              `json:"count"`
}
