package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngajar-feri/myrvm-edge/internal/api/http/dto"
	"github.com/ngajar-feri/myrvm-edge/internal/auth"
	"github.com/ngajar-feri/myrvm-edge/internal/commands"
	"github.com/ngajar-feri/myrvm-edge/internal/handshake"
)

func TestHandshakeAndHeartbeat(t *testing.T, env *Env) {
	// A machine with a non-default policy, a linked device, and one
	// published model. The handshake bundle must reflect all three.
	rr := env.asOperator(t, "POST", "/api/v1/machines", dto.CreateMachineRequest{
		Code:                 "JKT-001",
		Location:             "Mall lobby, Jakarta",
		HeartbeatIntervalSec: 30,
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var machine dto.MachineResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &machine))

	rr = env.asOperator(t, "POST", "/api/v1/models", dto.PublishModelRequest{
		Slug:        "bottle-detect",
		Version:     "1.2.0",
		ContentHash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		SizeBytes:   52_428_800,
		Activate:    true,
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.asOperator(t, "POST", "/api/v1/devices", dto.RegisterDeviceRequest{
		Name:      "linked rvm",
		MachineID: machine.ID,
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var dev dto.RegisterDeviceResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dev))

	handshakeBody := map[string]any{
		"device_identity": map[string]any{"name": "linked rvm", "serial": "SN-JKT-001"},
		"reported_state":  map[string]any{"firmware_version": "3.1.0", "ip_address": "192.168.4.20"},
	}

	t.Run("bundle reflects machine, model and policy", func(t *testing.T) {
		rr := env.asDevice("POST", "/api/v1/edge/handshake", handshakeBody, dev.APIKey)
		require.Equal(t, http.StatusOK, rr.Code)

		var res handshake.Result
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))

		assert.Equal(t, dev.Device.ID, res.Identity.DeviceID)
		assert.Equal(t, machine.ID, res.Identity.MachineID)
		assert.Equal(t, 30, res.Policy.HeartbeatIntervalSec)
		assert.NotEmpty(t, res.Kiosk.URL)

		require.NotNil(t, res.ModelInfo)
		assert.Equal(t, "bottle-detect", res.ModelInfo.Slug)
		assert.Equal(t, "1.2.0", res.ModelInfo.Version)

		claims, err := auth.ValidateToken(env.JWTSecret, res.TransportAuth.Token)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleTransport, claims.Role)
		assert.Equal(t, machine.ID, claims.MachineID)
	})

	t.Run("handshake is idempotent", func(t *testing.T) {
		rr := env.asDevice("POST", "/api/v1/edge/handshake", handshakeBody, dev.APIKey)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = env.asOperator(t, "GET", "/api/v1/devices", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var list dto.ListDevicesResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))

		seen := 0
		for _, d := range list.Devices {
			if d.ID == dev.Device.ID {
				seen++
			}
		}
		assert.Equal(t, 1, seen)
	})

	t.Run("heartbeat merges without erasing", func(t *testing.T) {
		rr := env.asDevice("POST", "/api/v1/edge/heartbeat", map[string]any{
			"reported_state": map[string]any{"cpu_percent": 41.5},
		}, dev.APIKey)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = env.asOperator(t, "GET", "/api/v1/devices/"+dev.Device.ID, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var d dto.DeviceResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
		assert.Equal(t, "online", d.Status)
		// Handshake fields survive a heartbeat that omitted them.
		assert.Equal(t, "3.1.0", d.FirmwareVersion)
		assert.Equal(t, "192.168.4.20", d.IPAddress)
		require.NotNil(t, d.LastSeenAt)
	})
}

func TestCommandDelivery(t *testing.T, env *Env) {
	id, key := env.registerDevice(t, "command rvm")

	t.Run("delivered exactly once", func(t *testing.T) {
		rr := env.asOperator(t, "POST", "/api/v1/devices/"+id+"/commands",
			dto.EnqueueCommandRequest{Action: "RESTART"})
		require.Equal(t, http.StatusAccepted, rr.Code)

		var enq dto.EnqueueCommandResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &enq))
		assert.True(t, enq.Accepted)

		rr = env.asDevice("POST", "/api/v1/edge/heartbeat", map[string]any{}, key)
		require.Equal(t, http.StatusOK, rr.Code)

		var hb dto.HeartbeatResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &hb))
		require.Len(t, hb.Commands, 1)
		assert.Equal(t, commands.ActionRestart, hb.Commands[0].Action)
		assert.Equal(t, enq.CommandID, hb.Commands[0].ID.String())

		rr = env.asDevice("POST", "/api/v1/edge/heartbeat", map[string]any{}, key)
		require.Equal(t, http.StatusOK, rr.Code)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &hb))
		assert.Empty(t, hb.Commands)
	})

	t.Run("fifo across multiple commands", func(t *testing.T) {
		for _, action := range []string{"PULL_UPDATE", "READ_SENSOR", "RESTART"} {
			rr := env.asOperator(t, "POST", "/api/v1/devices/"+id+"/commands",
				dto.EnqueueCommandRequest{Action: action})
			require.Equal(t, http.StatusAccepted, rr.Code)
		}

		rr := env.asDevice("POST", "/api/v1/edge/heartbeat", map[string]any{}, key)
		require.Equal(t, http.StatusOK, rr.Code)

		var hb dto.HeartbeatResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &hb))
		require.Len(t, hb.Commands, 3)
		assert.Equal(t, commands.ActionPullUpdate, hb.Commands[0].Action)
		assert.Equal(t, commands.ActionReadSensor, hb.Commands[1].Action)
		assert.Equal(t, commands.ActionRestart, hb.Commands[2].Action)
	})

	t.Run("unknown action rejected", func(t *testing.T) {
		rr := env.asOperator(t, "POST", "/api/v1/devices/"+id+"/commands",
			dto.EnqueueCommandRequest{Action: "SELF_DESTRUCT"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
