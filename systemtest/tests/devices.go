package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngajar-feri/myrvm-edge/internal/api/http/dto"
)

func TestDeviceLifecycle(t *testing.T, env *Env) {
	id, key := env.registerDevice(t, "lifecycle rvm")

	t.Run("credential is never readable again", func(t *testing.T) {
		rr := env.asOperator(t, "GET", "/api/v1/devices/"+id, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), key)
	})

	t.Run("fresh device awaits handshake", func(t *testing.T) {
		rr := env.asOperator(t, "GET", "/api/v1/devices/"+id, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var d dto.DeviceResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
		assert.Equal(t, "awaiting_handshake", d.Status)
		assert.Nil(t, d.LastSeenAt)
	})

	t.Run("rotate key invalidates old credential", func(t *testing.T) {
		rr := env.asOperator(t, "POST", "/api/v1/devices/"+id+"/rotate-key", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var rotated dto.RotateKeyResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rotated))
		require.NotEqual(t, key, rotated.APIKey)

		rr = env.asDevice("POST", "/api/v1/edge/heartbeat", map[string]any{}, key)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		rr = env.asDevice("POST", "/api/v1/edge/heartbeat", map[string]any{}, rotated.APIKey)
		assert.Equal(t, http.StatusOK, rr.Code)

		key = rotated.APIKey
	})

	t.Run("trash revokes access and hides the device", func(t *testing.T) {
		rr := env.asOperator(t, "DELETE", "/api/v1/devices/"+id, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = env.asDevice("POST", "/api/v1/edge/heartbeat", map[string]any{}, key)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		rr = env.asOperator(t, "GET", "/api/v1/devices", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var list dto.ListDevicesResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
		for _, d := range list.Devices {
			assert.NotEqual(t, id, d.ID)
		}

		rr = env.asOperator(t, "GET", "/api/v1/devices?include_trashed=true", nil)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
		found := false
		for _, d := range list.Devices {
			if d.ID == id {
				found = true
				assert.True(t, d.Trashed)
			}
		}
		assert.True(t, found)
	})

	t.Run("restore brings the device back", func(t *testing.T) {
		rr := env.asOperator(t, "POST", "/api/v1/devices/"+id+"/restore", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var d dto.DeviceResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
		assert.False(t, d.Trashed)

		rr = env.asDevice("POST", "/api/v1/edge/heartbeat", map[string]any{}, key)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
