package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngajar-feri/myrvm-edge/internal/api/http/dto"
	"github.com/ngajar-feri/myrvm-edge/internal/auth"
)

func TestOperatorAuth(t *testing.T, env *Env) {
	t.Run("register requires bootstrap key", func(t *testing.T) {
		body := dto.RegisterOperatorRequest{Username: "sneaky", Password: "password123"}

		rr := doJSON(env.Router, "POST", "/auth/register", body, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		rr = doJSON(env.Router, "POST", "/auth/register", body,
			map[string]string{"X-API-Key": "wrong-key"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("register and login", func(t *testing.T) {
		body := dto.RegisterOperatorRequest{Username: "op-one", Password: "password123"}
		rr := doJSON(env.Router, "POST", "/auth/register", body,
			map[string]string{"X-API-Key": env.AdminAPIKey})
		require.Equal(t, http.StatusCreated, rr.Code)

		var reg dto.RegisterOperatorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reg))
		assert.Equal(t, "op-one", reg.Username)
		assert.NotEmpty(t, reg.ID)

		rr = doJSON(env.Router, "POST", "/auth/login",
			dto.LoginRequest{Username: "op-one", Password: "password123"}, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var login dto.LoginResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &login))
		require.NotEmpty(t, login.Token)

		claims, err := auth.ValidateToken(env.JWTSecret, login.Token)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleOperator, claims.Role)
		assert.Equal(t, reg.ID, claims.Subject)
	})

	t.Run("duplicate username", func(t *testing.T) {
		body := dto.RegisterOperatorRequest{Username: "op-dup", Password: "password123"}
		headers := map[string]string{"X-API-Key": env.AdminAPIKey}

		rr := doJSON(env.Router, "POST", "/auth/register", body, headers)
		require.Equal(t, http.StatusCreated, rr.Code)

		rr = doJSON(env.Router, "POST", "/auth/register", body, headers)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("password too short", func(t *testing.T) {
		body := dto.RegisterOperatorRequest{Username: "op-short", Password: "short"}
		rr := doJSON(env.Router, "POST", "/auth/register", body,
			map[string]string{"X-API-Key": env.AdminAPIKey})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		rr := doJSON(env.Router, "POST", "/auth/login",
			dto.LoginRequest{Username: "op-one", Password: "not-the-password"}, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("admin api rejects anonymous", func(t *testing.T) {
		rr := doJSON(env.Router, "GET", "/api/v1/devices", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
