package devices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ngajar-feri/myrvm-edge/internal/liveness"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrMachineTaken   = errors.New("machine already claimed by another device")
	ErrNotTrashed     = errors.New("device is not in trash")
)

const uniqueViolation = "23505"

// Store persists device identity rows in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const deviceColumns = `
	id, machine_id, name, credential_hash, state, handshake, registered_at, deleted_at`

type CreateParams struct {
	Name           string
	MachineID      *uuid.UUID
	CredentialHash string
	State          liveness.State
}

func (s *Store) Create(ctx context.Context, p CreateParams) (*Device, error) {
	stateJSON, err := json.Marshal(p.State)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO devices (name, machine_id, credential_hash, state)
		VALUES ($1, $2, $3, $4)
		RETURNING`+deviceColumns,
		p.Name, machineArg(p.MachineID), p.CredentialHash, stateJSON)

	d, err := scanDevice(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrMachineTaken
		}
		return nil, fmt.Errorf("insert device: %w", err)
	}
	return d, nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Device, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT`+deviceColumns+`
		FROM devices WHERE id = $1`, id.String())
	return oneDevice(row)
}

// GetByCredentialHash resolves an inbound device credential. Trashed
// devices never resolve, so a revoked controller loses access the moment
// it is moved to trash.
func (s *Store) GetByCredentialHash(ctx context.Context, hash string) (*Device, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT`+deviceColumns+`
		FROM devices WHERE credential_hash = $1 AND deleted_at IS NULL`, hash)
	return oneDevice(row)
}

func (s *Store) List(ctx context.Context, includeTrashed bool) ([]Device, error) {
	q := `SELECT` + deviceColumns + ` FROM devices`
	if !includeTrashed {
		q += ` WHERE deleted_at IS NULL`
	}
	q += ` ORDER BY registered_at`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCredentialHash(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE devices SET credential_hash = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id.String(), hash)
	if err != nil {
		return fmt.Errorf("rotate credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// SaveState persists the merged liveness snapshot. The status and
// last-seen columns mirror the jsonb so the offline demotion sweep can
// query them without unpacking json.
func (s *Store) SaveState(ctx context.Context, id uuid.UUID, st liveness.State) error {
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE devices SET state = $2, status = $3, last_seen_at = $4 WHERE id = $1`,
		id.String(), stateJSON, string(st.Status), st.LastSeenAt)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// SaveSnapshot replaces the handshake snapshot; no history is retained.
func (s *Store) SaveSnapshot(ctx context.Context, id uuid.UUID, snap HandshakeSnapshot) error {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE devices SET handshake = $2 WHERE id = $1`, id.String(), snapJSON)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// SoftDelete moves a device to trash and releases its machine so the
// machine becomes assignable to a replacement controller.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE devices SET deleted_at = now(), machine_id = NULL
		WHERE id = $1 AND deleted_at IS NULL`, id.String())
	if err != nil {
		return fmt.Errorf("soft delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Restore pulls a device out of trash, optionally relinking a machine.
// The partial unique index on live machine links makes a restore-and-relink
// onto a machine claimed in the meantime fail atomically.
func (s *Store) Restore(ctx context.Context, id uuid.UUID, machineID *uuid.UUID) (*Device, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE devices SET deleted_at = NULL, machine_id = $2
		WHERE id = $1 AND deleted_at IS NOT NULL
		RETURNING`+deviceColumns, id.String(), machineArg(machineID))

	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotTrashed
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrMachineTaken
		}
		return nil, fmt.Errorf("restore device: %w", err)
	}
	return d, nil
}

func oneDevice(row pgx.Row) (*Device, error) {
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("query device: %w", err)
	}
	return d, nil
}

func machineArg(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func scanDevice(row pgx.Row) (*Device, error) {
	var (
		d         Device
		machineID *string
		stateJSON []byte
		snapJSON  []byte
		deletedAt *time.Time
	)
	if err := row.Scan(&d.ID, &machineID, &d.Name, &d.CredentialHash,
		&stateJSON, &snapJSON, &d.RegisteredAt, &deletedAt); err != nil {
		return nil, err
	}
	if machineID != nil {
		parsed, err := uuid.Parse(*machineID)
		if err != nil {
			return nil, fmt.Errorf("bad machine id in row: %w", err)
		}
		d.MachineID = &parsed
	}
	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &d.State); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
	}
	if len(snapJSON) > 0 {
		d.Snapshot = &HandshakeSnapshot{}
		if err := json.Unmarshal(snapJSON, d.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
	}
	d.DeletedAt = deletedAt
	return &d, nil
}
