package handler

import (
	"bytes"
	"context"
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
	"github.com/ngajar-feri/myrvm-edge/internal/api/http/middleware"
	"github.com/ngajar-feri/myrvm-edge/internal/auth"
	"github.com/ngajar-feri/myrvm-edge/internal/commands"
	"github.com/ngajar-feri/myrvm-edge/internal/devices"
	"github.com/ngajar-feri/myrvm-edge/internal/handshake"
	"github.com/ngajar-feri/myrvm-edge/internal/machines"
	"github.com/ngajar-feri/myrvm-edge/internal/mlmodels"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type edgeFixture struct {
	router  *gin.Engine
	devices *devices.Service
	queue   *commands.MemoryQueue
	key     string
	device  *devices.Device
}

type stubMachines struct{}

func (stubMachines) GetByID(context.Context, uuid.UUID) (*machines.Machine, error) {
	return nil, machines.ErrMachineNotFound
}

type stubModels struct{}

func (stubModels) LatestActive(context.Context) (*mlmodels.ModelVersion, error) {
	return nil, mlmodels.ErrNoActiveModel
}

func setupEdge(t *testing.T) *edgeFixture {
	t.Helper()

	devSvc := devices.NewService(devices.NewMemoryStore())
	d, key, err := devSvc.Register(context.Background(), "rvm edge", nil)
	require.NoError(t, err)

	queue := commands.NewMemoryQueue(time.Minute, 0)
	hs := handshake.NewService(devSvc, stubMachines{}, stubModels{}, nil, handshake.Config{
		KioskBaseURL: "https://kiosk.test/screen",
		KioskSecret:  "kiosk-secret",
		KioskTTL:     24 * time.Hour,
		Token:        auth.Config{Secret: "jwt-secret", TransportTTL: 24 * time.Hour},
	})
	h := NewEdgeHandler(devSvc, hs, queue)

	r := gin.New()
	edge := r.Group("/api/v1/edge")
	edge.Use(middleware.DeviceAuth(devSvc))
	edge.POST("/handshake", h.Handshake)
	edge.POST("/heartbeat", h.Heartbeat)

	return &edgeFixture{router: r, devices: devSvc, queue: queue, key: key, device: d}
}

func (f *edgeFixture) do(method, path string, body any, key string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Device-Key", key)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func heartbeat(f *edgeFixture, t *testing.T) dto.HeartbeatResponse {
	t.Helper()
	w := f.do("POST", "/api/v1/edge/heartbeat", map[string]any{}, f.key)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.HeartbeatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHeartbeatRequiresCredential(t *testing.T) {
	f := setupEdge(t)

	w := f.do("POST", "/api/v1/edge/heartbeat", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do("POST", "/api/v1/edge/heartbeat", nil, "ek_not-a-real-credential-at-all")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHeartbeatRefreshesLivenessAndDrains(t *testing.T) {
	f := setupEdge(t)
	f.queue.Enqueue(f.device.ID.String(), commands.New(commands.ActionRestart, nil))

	resp := heartbeat(f, t)
	require.Len(t, resp.Commands, 1)
	assert.Equal(t, commands.ActionRestart, resp.Commands[0].Action)
	assert.False(t, resp.ServerTime.IsZero())

	// Drained on delivery: next poll is empty.
	resp = heartbeat(f, t)
	assert.Empty(t, resp.Commands)

	d, err := f.devices.Get(context.Background(), f.device.ID)
	require.NoError(t, err)
	assert.Equal(t, "online", string(d.State.Status))
	assert.False(t, d.State.LastSeenAt.IsZero())
}

func TestHeartbeatEmptyBody(t *testing.T) {
	f := setupEdge(t)

	req, _ := http.NewRequest("POST", "/api/v1/edge/heartbeat", nil)
	req.Header.Set("X-Device-Key", f.key)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHeartbeatPartialReportMerges(t *testing.T) {
	f := setupEdge(t)

	w := f.do("POST", "/api/v1/edge/heartbeat", map[string]any{
		"reported_state": map[string]any{"cpu_percent": 55.0, "ip_address": "10.0.0.3"},
	}, f.key)
	require.Equal(t, http.StatusOK, w.Code)

	// Second heartbeat without fields must not erase.
	_ = heartbeat(f, t)

	d, err := f.devices.Get(context.Background(), f.device.ID)
	require.NoError(t, err)
	assert.Equal(t, 55.0, d.State.CPUPercent)
	assert.Equal(t, "10.0.0.3", d.State.IPAddress)
}

func TestHandshakeEndpoint(t *testing.T) {
	f := setupEdge(t)

	w := f.do("POST", "/api/v1/edge/handshake", map[string]any{
		"device_identity": map[string]any{"name": "RVM Lobby", "serial": "SN-1"},
		"reported_state":  map[string]any{"firmware_version": "2.4.1"},
	}, f.key)
	require.Equal(t, http.StatusOK, w.Code)

	var res handshake.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, f.device.ID.String(), res.Identity.DeviceID)
	assert.NotEmpty(t, res.Kiosk.URL)
	assert.NotEmpty(t, res.TransportAuth.Token)
	assert.Equal(t, 60, res.Policy.HeartbeatIntervalSec)
}

func TestHandshakeValidationNamesField(t *testing.T) {
	f := setupEdge(t)

	w := f.do("POST", "/api/v1/edge/handshake", map[string]any{
		"device_identity": map[string]any{"serial": "SN-1"},
	}, f.key)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "device_identity.name", body["field"])
}

func TestQueueIndependentOfDeviceLifecycle(t *testing.T) {
	f := setupEdge(t)

	// Commands enqueued before the device ever handshakes still arrive.
	f.queue.Enqueue(f.device.ID.String(), commands.New(commands.ActionDownloadModel,
		map[string]any{"slug": "yolo11n"}))

	w := f.do("POST", "/api/v1/edge/handshake", map[string]any{
		"device_identity": map[string]any{"name": "RVM Lobby", "serial": "SN-1"},
	}, f.key)
	require.Equal(t, http.StatusOK, w.Code)

	resp := heartbeat(f, t)
	require.Len(t, resp.Commands, 1)
	assert.Equal(t, commands.ActionDownloadModel, resp.Commands[0].Action)
	assert.Equal(t, "yolo11n", resp.Commands[0].Payload["slug"])
}
