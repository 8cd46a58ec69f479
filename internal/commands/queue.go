package commands

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long an undelivered batch survives. The window is
	// reset on every enqueue, not per command.
	DefaultTTL = 10 * time.Minute

	// DefaultMaxPerDevice bounds a single device's backlog. The oldest
	// entry is dropped when the cap is hit.
	DefaultMaxPerDevice = 100
)

// Queue holds undelivered commands per device. Implementations must make
// Drain a single atomic read-and-clear so that two concurrent heartbeats
// never both receive the same batch.
type Queue interface {
	Enqueue(deviceID string, cmd Command)
	Drain(deviceID string) []Command
}

type batch struct {
	cmds      []Command
	expiresAt time.Time
}

// MemoryQueue is a process-local Queue with a per-device TTL and size cap.
type MemoryQueue struct {
	mu      sync.Mutex
	batches map[string]*batch
	ttl     time.Duration
	max     int
}

func NewMemoryQueue(ttl time.Duration, maxPerDevice int) *MemoryQueue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxPerDevice <= 0 {
		maxPerDevice = DefaultMaxPerDevice
	}
	return &MemoryQueue{
		batches: make(map[string]*batch),
		ttl:     ttl,
		max:     maxPerDevice,
	}
}

// Enqueue appends cmd to the device's batch and resets the batch TTL.
// The queue has no foreign-key awareness: enqueueing for a device id with
// no record still succeeds, and the batch is delivered if that device ever
// handshakes and polls.
func (q *MemoryQueue) Enqueue(deviceID string, cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()

	b, ok := q.batches[deviceID]
	if !ok || time.Now().After(b.expiresAt) {
		b = &batch{}
		q.batches[deviceID] = b
	}
	b.cmds = append(b.cmds, cmd)
	if len(b.cmds) > q.max {
		dropped := len(b.cmds) - q.max
		b.cmds = b.cmds[dropped:]
		slog.Warn("Command backlog over cap, dropping oldest",
			"device_id", deviceID, "dropped", dropped, "cap", q.max)
	}
	b.expiresAt = time.Now().Add(q.ttl)
}

// Drain atomically returns the device's pending batch and clears it.
// An unknown or empty device id yields an empty slice, never an error.
func (q *MemoryQueue) Drain(deviceID string) []Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	b, ok := q.batches[deviceID]
	if !ok {
		return nil
	}
	delete(q.batches, deviceID)
	if time.Now().After(b.expiresAt) {
		return nil
	}
	return b.cmds
}

// Len reports the number of pending commands for a device without
// consuming them.
func (q *MemoryQueue) Len(deviceID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	b, ok := q.batches[deviceID]
	if !ok || time.Now().After(b.expiresAt) {
		return 0
	}
	return len(b.cmds)
}

// StartCleanup evicts expired batches until ctx is cancelled.
func (q *MemoryQueue) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.cleanup()
		}
	}
}

func (q *MemoryQueue) cleanup() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, b := range q.batches {
		if now.After(b.expiresAt) {
			delete(q.batches, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Expired undelivered command batches", "removed", removed)
	}
}
