package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Config struct {
	Secret       string
	Issuer       string
	OperatorTTL  time.Duration
	TransportTTL time.Duration
}

// Claims carried by both operator sessions and device transport tokens.
// Transport tokens are bound to the machine identity, not the device: a
// replaced edge controller on the same machine keeps the same audience.
type Claims struct {
	MachineID string `json:"machine_id,omitempty"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

const (
	RoleOperator  = "operator"
	RoleTransport = "transport"
)

// GenerateOperatorToken issues a session token for the admin API.
func GenerateOperatorToken(cfg Config, operatorID, username string) (string, error) {
	return sign(cfg, Claims{
		Role: RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: operatorID,
			ID:      username,
		},
	}, cfg.OperatorTTL)
}

// GenerateTransportToken issues the short-lived token a device uses against
// downstream transports, bound to its machine id.
func GenerateTransportToken(cfg Config, machineID string) (string, error) {
	return sign(cfg, Claims{
		MachineID: machineID,
		Role:      RoleTransport,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: machineID,
		},
	}, cfg.TransportTTL)
}

func sign(cfg Config, claims Claims, ttl time.Duration) (string, error) {
	if cfg.Secret == "" {
		return "", errors.New("auth: empty signing secret")
	}
	now := time.Now()
	claims.Issuer = cfg.Issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature, algorithm and expiry.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
