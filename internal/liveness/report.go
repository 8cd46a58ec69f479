package liveness

import "encoding/json"

// Field wraps an optional report value so "absent" and "zero" stay
// distinguishable after JSON decoding. Only fields the device actually sent
// are marked Set, and only Set fields participate in a merge.
type Field[T any] struct {
	Value T
	Set   bool
}

// Some builds a present field, mostly for tests and internal callers.
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, &f.Value); err != nil {
		return err
	}
	f.Set = true
	return nil
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// Report is the partial state a device volunteers on handshake, heartbeat
// or any telemetry-bearing request. Every field is optional; flaky devices
// routinely send subsets.
type Report struct {
	IPAddress       Field[string]  `json:"ip_address"`
	PublicIP        Field[string]  `json:"public_ip"`
	FirmwareVersion Field[string]  `json:"firmware_version"`
	ModelVersion    Field[string]  `json:"model_version"`
	CPUPercent      Field[float64] `json:"cpu_percent"`
	MemoryPercent   Field[float64] `json:"memory_percent"`
	DiskPercent     Field[float64] `json:"disk_percent"`
	TemperatureC    Field[float64] `json:"temperature_c"`
	UptimeSeconds   Field[int64]   `json:"uptime_seconds"`
}
