package machines

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrMachineNotFound = errors.New("machine not found")

// Machine is the logical recycling machine a device attaches to. The
// machine outlives any particular edge controller bolted onto it.
type Machine struct {
	ID        uuid.UUID
	Code      string
	Location  string
	Policy    Policy
	CreatedAt time.Time
}

// Policy is the operational snapshot handed to a device at handshake.
type Policy struct {
	HeartbeatIntervalSec int     `json:"heartbeat_interval_sec"`
	BinFullThresholdPct  float64 `json:"bin_full_threshold_pct"`
	SensorPollIntervalMs int     `json:"sensor_poll_interval_ms"`
	MaintenanceMode      bool    `json:"maintenance_mode"`
}

// DefaultPolicy matches a freshly provisioned machine.
func DefaultPolicy() Policy {
	return Policy{
		HeartbeatIntervalSec: 60,
		BinFullThresholdPct:  90,
		SensorPollIntervalMs: 500,
	}
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, code, location string, policy Policy) (*Machine, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO machines (code, location, heartbeat_interval_sec, bin_full_threshold_pct, sensor_poll_interval_ms, maintenance_mode)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, code, location, heartbeat_interval_sec, bin_full_threshold_pct, sensor_poll_interval_ms, maintenance_mode, created_at`,
		code, location, policy.HeartbeatIntervalSec, policy.BinFullThresholdPct,
		policy.SensorPollIntervalMs, policy.MaintenanceMode)
	return scanMachine(row)
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Machine, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, code, location, heartbeat_interval_sec, bin_full_threshold_pct, sensor_poll_interval_ms, maintenance_mode, created_at
		FROM machines WHERE id = $1`, id.String())
	m, err := scanMachine(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMachineNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *Store) List(ctx context.Context) ([]Machine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, location, heartbeat_interval_sec, bin_full_threshold_pct, sensor_poll_interval_ms, maintenance_mode, created_at
		FROM machines ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	defer rows.Close()

	var out []Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMachine(row pgx.Row) (*Machine, error) {
	var m Machine
	if err := row.Scan(&m.ID, &m.Code, &m.Location,
		&m.Policy.HeartbeatIntervalSec, &m.Policy.BinFullThresholdPct,
		&m.Policy.SensorPollIntervalMs, &m.Policy.MaintenanceMode,
		&m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
