// Package audit is the best-effort side channel for operator-visible
// activity records. Writes must never fail a request: callers go through
// BestEffort, which logs and swallows sink errors.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Entry struct {
	Actor    string
	Action   string
	DeviceID string
	Detail   map[string]any
	At       time.Time
}

type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// BestEffort writes e to sink, logging instead of propagating any failure.
func BestEffort(ctx context.Context, sink Sink, e Entry) {
	if sink == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := sink.Write(ctx, e); err != nil {
		slog.Warn("Audit write failed, continuing",
			"action", e.Action, "device_id", e.DeviceID, "error", err)
	}
}

// PostgresSink appends entries to the audit_log table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) Write(ctx context.Context, e Entry) error {
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (actor, action, device_id, detail, at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)`,
		e.Actor, e.Action, e.DeviceID, detail, e.At); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
