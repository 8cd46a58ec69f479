package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngajar-feri/myrvm-edge/internal/api/http/dto"
	"github.com/ngajar-feri/myrvm-edge/internal/mlmodels"
)

func TestMachinesAndModels(t *testing.T, env *Env) {
	t.Run("create machine applies policy defaults", func(t *testing.T) {
		rr := env.asOperator(t, "POST", "/api/v1/machines",
			dto.CreateMachineRequest{Code: "SBY-001", Location: "Station hall, Surabaya"})
		require.Equal(t, http.StatusCreated, rr.Code)

		var m dto.MachineResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
		assert.Equal(t, 60, m.HeartbeatIntervalSec)
		assert.Equal(t, 90.0, m.BinFullThresholdPct)
		assert.Equal(t, 500, m.SensorPollIntervalMs)
		assert.False(t, m.MaintenanceMode)
	})

	t.Run("machine code is unique", func(t *testing.T) {
		body := dto.CreateMachineRequest{Code: "SBY-002"}
		rr := env.asOperator(t, "POST", "/api/v1/machines", body)
		require.Equal(t, http.StatusCreated, rr.Code)

		rr = env.asOperator(t, "POST", "/api/v1/machines", body)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("one device per machine", func(t *testing.T) {
		rr := env.asOperator(t, "POST", "/api/v1/machines",
			dto.CreateMachineRequest{Code: "SBY-003"})
		require.Equal(t, http.StatusCreated, rr.Code)
		var m dto.MachineResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))

		rr = env.asOperator(t, "POST", "/api/v1/devices",
			dto.RegisterDeviceRequest{Name: "first controller", MachineID: m.ID})
		require.Equal(t, http.StatusCreated, rr.Code)

		rr = env.asOperator(t, "POST", "/api/v1/devices",
			dto.RegisterDeviceRequest{Name: "second controller", MachineID: m.ID})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("activating a release retires the previous one", func(t *testing.T) {
		publish := func(version string, hashByte byte) {
			hash := make([]byte, 64)
			for i := range hash {
				hash[i] = hashByte
			}
			rr := env.asOperator(t, "POST", "/api/v1/models", dto.PublishModelRequest{
				Slug:        "can-detect",
				Version:     version,
				ContentHash: string(hash),
				Activate:    true,
			})
			require.Equal(t, http.StatusCreated, rr.Code)
		}
		publish("1.0.0", 'a')
		publish("1.1.0", 'b')

		rr := env.asOperator(t, "GET", "/api/v1/models", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			Models []mlmodels.ModelVersion `json:"models"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

		active := 0
		for _, m := range resp.Models {
			if m.Slug == "can-detect" && m.Active {
				active++
				assert.Equal(t, "1.1.0", m.Version)
			}
		}
		assert.Equal(t, 1, active)
	})
}
