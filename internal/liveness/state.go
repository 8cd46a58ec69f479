package liveness

import "time"

// Status is the device's liveness classification. This package only ever
// promotes to online; the demotion sweep that marks stale devices offline
// runs out of band and keys off LastSeenAt.
type Status string

const (
	StatusOnline            Status = "online"
	StatusOffline           Status = "offline"
	StatusMaintenance       Status = "maintenance"
	StatusAwaitingHandshake Status = "awaiting_handshake"
)

// State is the stored liveness snapshot for one device.
type State struct {
	Status          Status    `json:"status"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	IPAddress       string    `json:"ip_address,omitempty"`
	PublicIP        string    `json:"public_ip,omitempty"`
	FirmwareVersion string    `json:"firmware_version,omitempty"`
	ModelVersion    string    `json:"model_version,omitempty"`
	CPUPercent      float64   `json:"cpu_percent,omitempty"`
	MemoryPercent   float64   `json:"memory_percent,omitempty"`
	DiskPercent     float64   `json:"disk_percent,omitempty"`
	TemperatureC    float64   `json:"temperature_c,omitempty"`
	UptimeSeconds   int64     `json:"uptime_seconds,omitempty"`
}

// Merge applies a report to prev with field-level last-write-wins: fields
// present in the report overwrite, absent fields keep their stored value.
// Every inbound endpoint must funnel through this one function so a partial
// report never erases previously known good data.
//
// Status becomes online and LastSeenAt never moves backward.
func Merge(prev State, r Report, now time.Time) State {
	next := prev
	next.Status = StatusOnline
	if now.After(prev.LastSeenAt) {
		next.LastSeenAt = now
	}

	if r.IPAddress.Set {
		next.IPAddress = r.IPAddress.Value
	}
	if r.PublicIP.Set {
		next.PublicIP = r.PublicIP.Value
	}
	if r.FirmwareVersion.Set {
		next.FirmwareVersion = r.FirmwareVersion.Value
	}
	if r.ModelVersion.Set {
		next.ModelVersion = r.ModelVersion.Value
	}
	if r.CPUPercent.Set {
		next.CPUPercent = r.CPUPercent.Value
	}
	if r.MemoryPercent.Set {
		next.MemoryPercent = r.MemoryPercent.Value
	}
	if r.DiskPercent.Set {
		next.DiskPercent = r.DiskPercent.Value
	}
	if r.TemperatureC.Set {
		next.TemperatureC = r.TemperatureC.Value
	}
	if r.UptimeSeconds.Set {
		next.UptimeSeconds = r.UptimeSeconds.Value
	}
	return next
}
