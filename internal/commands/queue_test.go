package commands

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	a, err := ParseAction("RESTART")
	require.NoError(t, err)
	assert.Equal(t, ActionRestart, a)

	_, err = ParseAction("FORMAT_DISK")
	assert.ErrorIs(t, err, ErrUnknownAction)

	// Actions are case-sensitive wire values.
	_, err = ParseAction("restart")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestDrainReturnsFIFOAndClears(t *testing.T) {
	q := NewMemoryQueue(time.Minute, 0)

	c1 := New(ActionRestart, nil)
	c2 := New(ActionReadSensor, map[string]any{"sensor": "fill_level"})
	c3 := New(ActionShellExec, map[string]any{"cmd": "uptime"})
	q.Enqueue("rvm-01", c1)
	q.Enqueue("rvm-01", c2)
	q.Enqueue("rvm-01", c3)

	got := q.Drain("rvm-01")
	require.Len(t, got, 3)
	assert.Equal(t, c1.ID, got[0].ID)
	assert.Equal(t, c2.ID, got[1].ID)
	assert.Equal(t, c3.ID, got[2].ID)

	// Second drain right after must be empty.
	assert.Empty(t, q.Drain("rvm-01"))
}

func TestDrainUnknownDevice(t *testing.T) {
	q := NewMemoryQueue(time.Minute, 0)
	assert.Empty(t, q.Drain("never-seen"))
}

func TestQueuesAreIndependentPerDevice(t *testing.T) {
	q := NewMemoryQueue(time.Minute, 0)
	q.Enqueue("rvm-01", New(ActionRestart, nil))
	q.Enqueue("rvm-02", New(ActionPullUpdate, nil))

	assert.Len(t, q.Drain("rvm-01"), 1)
	assert.Equal(t, 1, q.Len("rvm-02"))
}

func TestBatchTTLExpiry(t *testing.T) {
	q := NewMemoryQueue(20*time.Millisecond, 0)
	q.Enqueue("rvm-01", New(ActionRestart, nil))

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, q.Drain("rvm-01"))

	// Enqueue after expiry starts a fresh window, identical to a fresh key.
	q.Enqueue("rvm-01", New(ActionPullUpdate, nil))
	got := q.Drain("rvm-01")
	require.Len(t, got, 1)
	assert.Equal(t, ActionPullUpdate, got[0].Action)
}

func TestEnqueueResetsTTLForWholeBatch(t *testing.T) {
	q := NewMemoryQueue(50*time.Millisecond, 0)
	q.Enqueue("rvm-01", New(ActionRestart, nil))

	time.Sleep(30 * time.Millisecond)
	q.Enqueue("rvm-01", New(ActionReadSensor, nil))

	// First command is past its own age but the batch window was reset.
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, q.Drain("rvm-01"), 2)
}

func TestBacklogCapDropsOldest(t *testing.T) {
	q := NewMemoryQueue(time.Minute, 3)
	first := New(ActionRestart, nil)
	q.Enqueue("rvm-01", first)
	q.Enqueue("rvm-01", New(ActionReadSensor, nil))
	q.Enqueue("rvm-01", New(ActionReadSensor, nil))
	q.Enqueue("rvm-01", New(ActionReadSensor, nil))

	got := q.Drain("rvm-01")
	require.Len(t, got, 3)
	for _, c := range got {
		assert.NotEqual(t, first.ID, c.ID)
	}
}

func TestConcurrentDrainsNeverDuplicate(t *testing.T) {
	for i := 0; i < 50; i++ {
		q := NewMemoryQueue(time.Minute, 0)
		q.Enqueue("rvm-02", New(ActionRestart, nil))
		q.Enqueue("rvm-02", New(ActionPullUpdate, nil))

		var wg sync.WaitGroup
		results := make([][]Command, 2)
		for n := 0; n < 2; n++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				results[n] = q.Drain("rvm-02")
			}(n)
		}
		wg.Wait()

		// Exactly one drain wins the full batch, the other sees nothing.
		total := len(results[0]) + len(results[1])
		require.Equal(t, 2, total)
		assert.True(t, len(results[0]) == 0 || len(results[1]) == 0)
	}
}

func TestCleanupEvictsExpired(t *testing.T) {
	q := NewMemoryQueue(10*time.Millisecond, 0)
	q.Enqueue("rvm-01", New(ActionRestart, nil))
	q.Enqueue("rvm-02", New(ActionRestart, nil))

	time.Sleep(20 * time.Millisecond)
	q.cleanup()

	q.mu.Lock()
	n := len(q.batches)
	q.mu.Unlock()
	assert.Zero(t, n)
}
