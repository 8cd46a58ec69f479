package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngajar-feri/myrvm-edge/internal/api/http/dto"
	"github.com/ngajar-feri/myrvm-edge/internal/commands"
	"github.com/ngajar-feri/myrvm-edge/internal/devices"
)

type adminFixture struct {
	router *gin.Engine
	queue  *commands.MemoryQueue
}

func setupAdmin(t *testing.T) *adminFixture {
	t.Helper()

	devSvc := devices.NewService(devices.NewMemoryStore())
	queue := commands.NewMemoryQueue(time.Minute, 0)

	dh := NewDevicesHandler(devSvc, queue, nil)
	ch := NewCommandsHandler(queue, nil)

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.POST("/devices", dh.Register)
	v1.GET("/devices", dh.List)
	v1.GET("/devices/:id", dh.Get)
	v1.DELETE("/devices/:id", dh.Trash)
	v1.POST("/devices/:id/restore", dh.Restore)
	v1.POST("/devices/:id/rotate-key", dh.RotateKey)
	v1.POST("/devices/:id/commands", ch.Enqueue)

	return &adminFixture{router: r, queue: queue}
}

func (f *adminFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *adminFixture) register(t *testing.T, name string, machineID string) dto.RegisterDeviceResponse {
	t.Helper()
	body := map[string]any{"name": name}
	if machineID != "" {
		body["machine_id"] = machineID
	}
	w := f.do("POST", "/api/v1/devices", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp dto.RegisterDeviceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRegisterDeviceReturnsKeyOnce(t *testing.T) {
	f := setupAdmin(t)

	resp := f.register(t, "rvm lobby", "")
	assert.NotEmpty(t, resp.Device.ID)
	assert.True(t, devices.ValidCredentialShape(resp.APIKey))

	// The credential never shows up on reads.
	w := f.do("GET", "/api/v1/devices/"+resp.Device.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), resp.APIKey)
}

func TestRegisterDeviceMachineConflict(t *testing.T) {
	f := setupAdmin(t)
	machineID := uuid.NewString()

	f.register(t, "first", machineID)

	w := f.do("POST", "/api/v1/devices", map[string]any{"name": "second", "machine_id": machineID})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListDevicesExcludesTrashByDefault(t *testing.T) {
	f := setupAdmin(t)
	kept := f.register(t, "kept", "")
	gone := f.register(t, "gone", "")

	w := f.do("DELETE", "/api/v1/devices/"+gone.Device.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list dto.ListDevicesResponse
	w = f.do("GET", "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, kept.Device.ID, list.Devices[0].ID)

	w = f.do("GET", "/api/v1/devices?include_trashed=true", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)
}

func TestTrashDiscardsPendingCommands(t *testing.T) {
	f := setupAdmin(t)
	resp := f.register(t, "doomed", "")

	w := f.do("POST", "/api/v1/devices/"+resp.Device.ID+"/commands",
		map[string]any{"action": "RESTART"})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, 1, f.queue.Len(resp.Device.ID))

	w = f.do("DELETE", "/api/v1/devices/"+resp.Device.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, f.queue.Len(resp.Device.ID))
}

func TestRestoreDevice(t *testing.T) {
	f := setupAdmin(t)
	resp := f.register(t, "revived", "")

	require.Equal(t, http.StatusOK, f.do("DELETE", "/api/v1/devices/"+resp.Device.ID, nil).Code)

	w := f.do("POST", "/api/v1/devices/"+resp.Device.ID+"/restore", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var d dto.DeviceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.False(t, d.Trashed)
}

func TestRestoreNotTrashed(t *testing.T) {
	f := setupAdmin(t)
	resp := f.register(t, "alive", "")

	w := f.do("POST", "/api/v1/devices/"+resp.Device.ID+"/restore", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnqueueCommand(t *testing.T) {
	f := setupAdmin(t)
	deviceID := uuid.NewString()

	// Enqueue does not require the device to exist yet.
	w := f.do("POST", "/api/v1/devices/"+deviceID+"/commands", map[string]any{
		"action":  "DOWNLOAD_MODEL",
		"payload": map[string]any{"slug": "yolo11n"},
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp dto.EnqueueCommandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Accepted)
	assert.NotEmpty(t, resp.CommandID)
	assert.Equal(t, 1, f.queue.Len(deviceID))
}

func TestEnqueueCommandRejectsUnknownAction(t *testing.T) {
	f := setupAdmin(t)

	w := f.do("POST", "/api/v1/devices/"+uuid.NewString()+"/commands",
		map[string]any{"action": "FORMAT_DISK"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRotateKeyInvalidatesOldCredential(t *testing.T) {
	f := setupAdmin(t)
	resp := f.register(t, "rotated", "")

	w := f.do("POST", "/api/v1/devices/"+resp.Device.ID+"/rotate-key", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var rotated dto.RotateKeyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rotated))
	assert.NotEqual(t, resp.APIKey, rotated.APIKey)
	assert.True(t, devices.ValidCredentialShape(rotated.APIKey))
}

func TestDeviceRoutesRejectBadID(t *testing.T) {
	f := setupAdmin(t)

	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/api/v1/devices/not-a-uuid", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("DELETE", "/api/v1/devices/not-a-uuid", nil).Code)
}
