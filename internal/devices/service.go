package devices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ngajar-feri/myrvm-edge/internal/liveness"
)

var ErrInvalidCredential = errors.New("invalid device credential")

// Storage is what the device service needs from its persistence layer.
// It is satisfied by the Postgres Store and the in-memory MemoryStore.
type Storage interface {
	Create(ctx context.Context, p CreateParams) (*Device, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Device, error)
	GetByCredentialHash(ctx context.Context, hash string) (*Device, error)
	List(ctx context.Context, includeTrashed bool) ([]Device, error)
	UpdateCredentialHash(ctx context.Context, id uuid.UUID, hash string) error
	SaveState(ctx context.Context, id uuid.UUID, st liveness.State) error
	SaveSnapshot(ctx context.Context, id uuid.UUID, snap HandshakeSnapshot) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID, machineID *uuid.UUID) (*Device, error)
}

type Service struct {
	store Storage
}

func NewService(store Storage) *Service {
	return &Service{store: store}
}

// Register creates a device record and returns it together with the
// plaintext credential. The plaintext is shown exactly once and never
// recoverable afterwards.
func (s *Service) Register(ctx context.Context, name string, machineID *uuid.UUID) (*Device, string, error) {
	key, err := GenerateCredential()
	if err != nil {
		return nil, "", fmt.Errorf("generate credential: %w", err)
	}

	d, err := s.store.Create(ctx, CreateParams{
		Name:           name,
		MachineID:      machineID,
		CredentialHash: HashCredential(key),
		State:          liveness.State{Status: liveness.StatusAwaitingHandshake},
	})
	if err != nil {
		return nil, "", err
	}

	slog.Info("Device registered", "device_id", d.ID, "name", name)
	return d, key, nil
}

// RotateCredential replaces the device's credential, invalidating the old
// one immediately, and returns the new plaintext once.
func (s *Service) RotateCredential(ctx context.Context, id uuid.UUID) (string, error) {
	key, err := GenerateCredential()
	if err != nil {
		return "", fmt.Errorf("generate credential: %w", err)
	}
	if err := s.store.UpdateCredentialHash(ctx, id, HashCredential(key)); err != nil {
		return "", err
	}
	slog.Info("Device credential rotated", "device_id", id)
	return key, nil
}

// Resolve authenticates an inbound credential to a live device record.
// This runs at the transport boundary, before any protocol logic.
func (s *Service) Resolve(ctx context.Context, key string) (*Device, error) {
	if !ValidCredentialShape(key) {
		return nil, ErrInvalidCredential
	}
	d, err := s.store.GetByCredentialHash(ctx, HashCredential(key))
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, err
	}
	return d, nil
}

// RecordSeen merges a partial report into the device's liveness state and
// persists the result. The merge is field-level last-write-wins; see
// liveness.Merge for the contract.
func (s *Service) RecordSeen(ctx context.Context, d *Device, r liveness.Report, now time.Time) (liveness.State, error) {
	next := liveness.Merge(d.State, r, now)
	if err := s.store.SaveState(ctx, d.ID, next); err != nil {
		return liveness.State{}, fmt.Errorf("persist liveness state: %w", err)
	}
	d.State = next
	return next, nil
}

// SaveSnapshot replaces the device's handshake snapshot.
func (s *Service) SaveSnapshot(ctx context.Context, d *Device, snap HandshakeSnapshot) error {
	if err := s.store.SaveSnapshot(ctx, d.ID, snap); err != nil {
		return err
	}
	d.Snapshot = &snap
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Device, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, includeTrashed bool) ([]Device, error) {
	return s.store.List(ctx, includeTrashed)
}

// Trash soft-deletes the device. The machine link is nulled by the store
// so a replacement controller can claim the machine.
func (s *Service) Trash(ctx context.Context, id uuid.UUID) error {
	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	slog.Info("Device moved to trash", "device_id", id)
	return nil
}

// Restore recovers a trashed device. Relinking to a machine that another
// live device has claimed in the meantime fails with ErrMachineTaken.
func (s *Service) Restore(ctx context.Context, id uuid.UUID, machineID *uuid.UUID) (*Device, error) {
	d, err := s.store.Restore(ctx, id, machineID)
	if err != nil {
		return nil, err
	}
	slog.Info("Device restored from trash", "device_id", id)
	return d, nil
}
