package liveness

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSetsOnlineAndTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	next := Merge(State{Status: StatusAwaitingHandshake}, Report{}, now)
	assert.Equal(t, StatusOnline, next.Status)
	assert.Equal(t, now, next.LastSeenAt)
}

func TestMergeAbsentFieldsNeverErase(t *testing.T) {
	now := time.Now()
	prev := State{
		Status:          StatusOnline,
		IPAddress:       "10.12.0.4",
		FirmwareVersion: "2.4.1",
		CPUPercent:      10,
	}

	// A heartbeat carrying no fields must keep everything known.
	next := Merge(prev, Report{}, now)
	assert.Equal(t, "10.12.0.4", next.IPAddress)
	assert.Equal(t, "2.4.1", next.FirmwareVersion)
	assert.Equal(t, float64(10), next.CPUPercent)
}

func TestMergePresentFieldsOverwrite(t *testing.T) {
	now := time.Now()
	prev := State{IPAddress: "10.12.0.4", CPUPercent: 10}

	r := Report{
		CPUPercent: Some(87.5),
		PublicIP:   Some("203.0.113.9"),
	}
	next := Merge(prev, r, now)

	assert.Equal(t, 87.5, next.CPUPercent)
	assert.Equal(t, "203.0.113.9", next.PublicIP)
	assert.Equal(t, "10.12.0.4", next.IPAddress)
}

func TestMergeExplicitZeroOverwrites(t *testing.T) {
	next := Merge(State{CPUPercent: 42}, Report{CPUPercent: Some(0.0)}, time.Now())
	assert.Zero(t, next.CPUPercent)
}

func TestMergeLastSeenMonotonic(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t0 := t1.Add(-30 * time.Second)

	st := Merge(State{}, Report{}, t1)
	// Late-arriving heartbeat stamped earlier must not move the clock back.
	st = Merge(st, Report{CPUPercent: Some(5.0)}, t0)

	assert.Equal(t, t1, st.LastSeenAt)
	assert.Equal(t, float64(5), st.CPUPercent)
}

func TestMergeIsPure(t *testing.T) {
	prev := State{IPAddress: "10.0.0.1"}
	_ = Merge(prev, Report{IPAddress: Some("10.0.0.2")}, time.Now())
	assert.Equal(t, "10.0.0.1", prev.IPAddress)
}

func TestReportUnmarshalTracksPresence(t *testing.T) {
	var r Report
	require.NoError(t, json.Unmarshal([]byte(`{"cpu_percent": 0, "ip_address": "10.0.0.7"}`), &r))

	assert.True(t, r.CPUPercent.Set)
	assert.Zero(t, r.CPUPercent.Value)
	assert.True(t, r.IPAddress.Set)
	assert.Equal(t, "10.0.0.7", r.IPAddress.Value)
	assert.False(t, r.FirmwareVersion.Set)
	assert.False(t, r.MemoryPercent.Set)
}

func TestReportUnmarshalNullStaysUnset(t *testing.T) {
	var r Report
	require.NoError(t, json.Unmarshal([]byte(`{"firmware_version": null}`), &r))
	assert.False(t, r.FirmwareVersion.Set)
}

func TestFieldMarshalRoundTrip(t *testing.T) {
	b, err := json.Marshal(Report{TemperatureC: Some(41.2)})
	require.NoError(t, err)

	var back Report
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.TemperatureC.Set)
	assert.Equal(t, 41.2, back.TemperatureC.Value)
	assert.False(t, back.CPUPercent.Set)
}
