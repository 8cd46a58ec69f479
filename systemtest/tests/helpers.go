// Package tests holds the scenario bodies for the container-backed system
// test. Each entry point takes the shared Env so scenarios run against one
// server wired to one database.
package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngajar-feri/myrvm-edge/internal/api/http/dto"
)

type Env struct {
	Router      *gin.Engine
	JWTSecret   string
	AdminAPIKey string

	operatorToken string
}

func doJSON(router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// asOperator performs a request with a valid operator session, creating the
// shared operator account on first use.
func (e *Env) asOperator(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	if e.operatorToken == "" {
		reg := dto.RegisterOperatorRequest{Username: "fleet-admin", Password: "password123"}
		rr := doJSON(e.Router, "POST", "/auth/register", reg,
			map[string]string{"X-API-Key": e.AdminAPIKey})
		require.Contains(t, []int{http.StatusCreated, http.StatusConflict}, rr.Code)

		rr = doJSON(e.Router, "POST", "/auth/login",
			dto.LoginRequest{Username: "fleet-admin", Password: "password123"}, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.LoginResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		e.operatorToken = resp.Token
	}
	return doJSON(e.Router, method, path, body,
		map[string]string{"Authorization": "Bearer " + e.operatorToken})
}

// asDevice performs a request authenticated with a device credential.
func (e *Env) asDevice(method, path string, body any, key string) *httptest.ResponseRecorder {
	return doJSON(e.Router, method, path, body, map[string]string{"X-Device-Key": key})
}

// registerDevice provisions a device through the admin API and returns its
// id with the one-time plaintext credential.
func (e *Env) registerDevice(t *testing.T, name string) (id, key string) {
	t.Helper()
	rr := e.asOperator(t, "POST", "/api/v1/devices", dto.RegisterDeviceRequest{Name: name})
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp dto.RegisterDeviceResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.APIKey)
	return resp.Device.ID, resp.APIKey
}

func TestHealthCheck(t *testing.T, env *Env) {
	rr := doJSON(env.Router, "GET", "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}
