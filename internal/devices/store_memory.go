package devices

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ngajar-feri/myrvm-edge/internal/liveness"
)

// MemoryStore is an in-process Storage used by unit tests and DB-less
// development runs. Semantics mirror the Postgres store, including the
// one-live-device-per-machine constraint.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[uuid.UUID]*Device
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: make(map[uuid.UUID]*Device)}
}

func (m *MemoryStore) Create(_ context.Context, p CreateParams) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.MachineID != nil && m.machineClaimedLocked(*p.MachineID, uuid.Nil) {
		return nil, ErrMachineTaken
	}

	d := &Device{
		ID:             uuid.New(),
		MachineID:      p.MachineID,
		Name:           p.Name,
		CredentialHash: p.CredentialHash,
		State:          p.State,
		RegisteredAt:   time.Now().UTC(),
	}
	m.devices[d.ID] = d
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) GetByCredentialHash(_ context.Context, hash string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.devices {
		if d.CredentialHash == hash && d.DeletedAt == nil {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *MemoryStore) List(_ context.Context, includeTrashed bool) ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Device
	for _, d := range m.devices {
		if !includeTrashed && d.DeletedAt != nil {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (m *MemoryStore) UpdateCredentialHash(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[id]
	if !ok || d.DeletedAt != nil {
		return ErrDeviceNotFound
	}
	d.CredentialHash = hash
	return nil
}

func (m *MemoryStore) SaveState(_ context.Context, id uuid.UUID, st liveness.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.State = st
	return nil
}

func (m *MemoryStore) SaveSnapshot(_ context.Context, id uuid.UUID, snap HandshakeSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.Snapshot = &snap
	return nil
}

func (m *MemoryStore) SoftDelete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[id]
	if !ok || d.DeletedAt != nil {
		return ErrDeviceNotFound
	}
	now := time.Now().UTC()
	d.DeletedAt = &now
	d.MachineID = nil
	return nil
}

func (m *MemoryStore) Restore(_ context.Context, id uuid.UUID, machineID *uuid.UUID) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[id]
	if !ok || d.DeletedAt == nil {
		return nil, ErrNotTrashed
	}
	if machineID != nil && m.machineClaimedLocked(*machineID, id) {
		return nil, ErrMachineTaken
	}
	d.DeletedAt = nil
	d.MachineID = machineID
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) machineClaimedLocked(machineID, exclude uuid.UUID) bool {
	for _, d := range m.devices {
		if d.ID == exclude || d.DeletedAt != nil || d.MachineID == nil {
			continue
		}
		if *d.MachineID == machineID {
			return true
		}
	}
	return false
}
