// Package handshake implements the registration exchange an edge device
// performs on boot or resync: refresh identity, report state, and receive
// the operating bundle (kiosk URL, transport token, model descriptor,
// policy snapshot).
package handshake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ngajar-feri/myrvm-edge/internal/audit"
	"github.com/ngajar-feri/myrvm-edge/internal/auth"
	"github.com/ngajar-feri/myrvm-edge/internal/devices"
	"github.com/ngajar-feri/myrvm-edge/internal/liveness"
	"github.com/ngajar-feri/myrvm-edge/internal/machines"
	"github.com/ngajar-feri/myrvm-edge/internal/mlmodels"
)

// ValidationError rejects a malformed handshake payload, naming the field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// MachineProvider resolves the machine a device is linked to.
type MachineProvider interface {
	GetByID(ctx context.Context, id uuid.UUID) (*machines.Machine, error)
}

// ModelProvider yields the latest active model release, if any.
type ModelProvider interface {
	LatestActive(ctx context.Context) (*mlmodels.ModelVersion, error)
}

type Config struct {
	KioskBaseURL string
	KioskSecret  string
	KioskTTL     time.Duration
	Token        auth.Config
}

// Request mirrors what a device sends. All report sections are optional;
// identity is the only validated part.
type Request struct {
	Identity    Identity        `json:"device_identity"`
	Network     map[string]any  `json:"reported_network,omitempty"`
	System      map[string]any  `json:"reported_system,omitempty"`
	Hardware    map[string]any  `json:"reported_hardware,omitempty"`
	Health      map[string]any  `json:"reported_health,omitempty"`
	Diagnostics map[string]any  `json:"reported_diagnostics,omitempty"`
	Report      liveness.Report `json:"reported_state"`
}

type Identity struct {
	Name   string `json:"name"`
	Serial string `json:"serial"`
}

type Result struct {
	Identity      ResultIdentity        `json:"identity"`
	Kiosk         Kiosk                 `json:"kiosk"`
	TransportAuth TransportAuth         `json:"transport_auth"`
	Policy        machines.Policy       `json:"policy"`
	ModelInfo     *mlmodels.ModelVersion `json:"model_info,omitempty"`
	ServerTime    time.Time             `json:"server_time"`
}

type ResultIdentity struct {
	DeviceID  string `json:"device_id"`
	MachineID string `json:"machine_id,omitempty"`
	Name      string `json:"name"`
}

type Kiosk struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type TransportAuth struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	devices  *devices.Service
	machines MachineProvider
	models   ModelProvider
	sink     audit.Sink
	cfg      Config
}

func NewService(devSvc *devices.Service, mp MachineProvider, models ModelProvider, sink audit.Sink, cfg Config) *Service {
	return &Service{
		devices:  devSvc,
		machines: mp,
		models:   models,
		sink:     sink,
		cfg:      cfg,
	}
}

// Handshake runs the full exchange for an already-authenticated device.
// The only mutating steps, snapshot replace and liveness merge, are both
// idempotent: repeating the call with identical input converges to the
// same stored state and never creates a second record.
func (s *Service) Handshake(ctx context.Context, d *devices.Device, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	snap := devices.HandshakeSnapshot{
		Network:     req.Network,
		System:      req.System,
		Hardware:    req.Hardware,
		Health:      req.Health,
		Diagnostics: req.Diagnostics,
		TakenAt:     now,
	}
	if err := s.devices.SaveSnapshot(ctx, d, snap); err != nil {
		return nil, fmt.Errorf("save handshake snapshot: %w", err)
	}

	if _, err := s.devices.RecordSeen(ctx, d, req.Report, now); err != nil {
		return nil, err
	}

	result, err := s.buildResult(ctx, d, req, now)
	if err != nil {
		return nil, err
	}

	audit.BestEffort(ctx, s.sink, audit.Entry{
		Actor:    "device",
		Action:   "device.handshake",
		DeviceID: d.ID.String(),
		Detail:   map[string]any{"name": req.Identity.Name, "serial": req.Identity.Serial},
		At:       now,
	})

	slog.Info("Device handshake completed", "device_id", d.ID, "name", req.Identity.Name)
	return result, nil
}

// buildResult derives the trust/config bundle from current server state.
// Nothing in here mutates.
func (s *Service) buildResult(ctx context.Context, d *devices.Device, req Request, now time.Time) (*Result, error) {
	kioskURL, err := auth.SignKioskURL(s.cfg.KioskBaseURL, d.ID.String(),
		[]byte(s.cfg.KioskSecret), s.cfg.KioskTTL, now)
	if err != nil {
		return nil, fmt.Errorf("sign kiosk url: %w", err)
	}

	// Transport tokens bind to the machine identity so a swapped
	// controller on the same machine keeps the same downstream audience.
	// An unlinked device falls back to its own id.
	subject := d.ID.String()
	policy := machines.DefaultPolicy()
	machineID := ""
	if d.MachineID != nil {
		machineID = d.MachineID.String()
		subject = machineID
		m, err := s.machines.GetByID(ctx, *d.MachineID)
		switch {
		case err == nil:
			policy = m.Policy
		case errors.Is(err, machines.ErrMachineNotFound):
			// Stale link; keep defaults.
		default:
			return nil, fmt.Errorf("load machine policy: %w", err)
		}
	}

	token, err := auth.GenerateTransportToken(s.cfg.Token, subject)
	if err != nil {
		return nil, fmt.Errorf("generate transport token: %w", err)
	}

	var modelInfo *mlmodels.ModelVersion
	if s.models != nil {
		m, err := s.models.LatestActive(ctx)
		switch {
		case err == nil:
			modelInfo = m
		case errors.Is(err, mlmodels.ErrNoActiveModel):
			// Nothing published yet; the device keeps what it has.
		default:
			return nil, fmt.Errorf("load model descriptor: %w", err)
		}
	}

	return &Result{
		Identity: ResultIdentity{
			DeviceID:  d.ID.String(),
			MachineID: machineID,
			Name:      d.Name,
		},
		Kiosk: Kiosk{
			URL:       kioskURL,
			ExpiresAt: now.Add(s.cfg.KioskTTL),
		},
		TransportAuth: TransportAuth{
			Token:     token,
			ExpiresAt: now.Add(s.cfg.Token.TransportTTL),
		},
		Policy:     policy,
		ModelInfo:  modelInfo,
		ServerTime: now,
	}, nil
}

func validate(req Request) error {
	if req.Identity.Name == "" {
		return &ValidationError{Field: "device_identity.name", Reason: "must not be empty"}
	}
	if len(req.Identity.Name) > 255 {
		return &ValidationError{Field: "device_identity.name", Reason: "must be at most 255 characters"}
	}
	if req.Identity.Serial == "" {
		return &ValidationError{Field: "device_identity.serial", Reason: "must not be empty"}
	}
	return nil
}
