package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ngajar-feri/myrvm-edge/internal/auth"
	"github.com/ngajar-feri/myrvm-edge/internal/devices"
)

const (
	deviceKeyHeader = "X-Device-Key"
	adminKeyHeader  = "X-API-Key"

	// DeviceContextKey is where DeviceAuth stores the resolved device.
	DeviceContextKey = "device"
)

// DeviceResolver authenticates a raw device credential.
type DeviceResolver interface {
	Resolve(ctx context.Context, key string) (*devices.Device, error)
}

// DeviceAuth validates the device credential header and resolves it to a
// live device record before any protocol logic runs. Trashed or unknown
// credentials are rejected here.
func DeviceAuth(resolver DeviceResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(deviceKeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing device key"})
			return
		}

		d, err := resolver.Resolve(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, devices.ErrInvalidCredential) {
				slog.Warn("Rejected device credential", "client_ip", c.ClientIP())
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid device key"})
				return
			}
			slog.Error("Device credential lookup failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(DeviceContextKey, d)
		c.Next()
	}
}

// DeviceFromContext pulls the device stored by DeviceAuth.
func DeviceFromContext(c *gin.Context) (*devices.Device, bool) {
	v, ok := c.Get(DeviceContextKey)
	if !ok {
		return nil, false
	}
	d, ok := v.(*devices.Device)
	return d, ok
}

// JWTAuth guards operator endpoints with a bearer session token.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		claims, err := auth.ValidateToken(secret, strings.TrimPrefix(header, "Bearer "))
		if err != nil || claims.Role != auth.RoleOperator {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("operator_id", claims.Subject)
		c.Next()
	}
}

// APIKeyAuth guards bootstrap admin endpoints with the static key from
// config, for setups that have no operator accounts yet.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			slog.Warn("Admin API key not configured, rejecting request",
				"path", c.Request.URL.Path, "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "Admin API is not configured",
			})
			return
		}

		providedKey := c.GetHeader(adminKeyHeader)
		if providedKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing API key"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			slog.Warn("Invalid API key attempt",
				"path", c.Request.URL.Path, "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		c.Next()
	}
}
