package devices

import (
	"time"

	"github.com/google/uuid"

	"github.com/ngajar-feri/myrvm-edge/internal/liveness"
)

// Device is the persistent identity of one edge controller. A device links
// to at most one machine; the link is nullable so an orphaned controller
// can sit unassigned until an operator relinks it.
type Device struct {
	ID             uuid.UUID
	MachineID      *uuid.UUID
	Name           string
	CredentialHash string
	State          liveness.State
	Snapshot       *HandshakeSnapshot
	RegisteredAt   time.Time
	DeletedAt      *time.Time
}

// Trashed reports whether the device sits in the recoverable trash state.
func (d *Device) Trashed() bool { return d.DeletedAt != nil }

// HandshakeSnapshot is the replace-on-write record of what the device
// reported at its most recent handshake. No history is kept.
type HandshakeSnapshot struct {
	Network     map[string]any `json:"network,omitempty"`
	System      map[string]any `json:"system,omitempty"`
	Hardware    map[string]any `json:"hardware,omitempty"`
	Health      map[string]any `json:"health,omitempty"`
	Diagnostics map[string]any `json:"diagnostics,omitempty"`
	TakenAt     time.Time      `json:"taken_at"`
}
