package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// SignKioskURL produces the time-scoped URL a machine's kiosk screen loads.
// The signature covers device id and expiry so a leaked URL cannot be
// re-pointed at another device or extended.
func SignKioskURL(baseURL, deviceID string, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse kiosk base url: %w", err)
	}

	exp := now.Add(ttl).Unix()
	q := u.Query()
	q.Set("device", deviceID)
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", kioskSignature(secret, deviceID, exp))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// VerifyKioskURL reports whether a signed kiosk URL is intact and unexpired.
func VerifyKioskURL(rawURL string, secret []byte, now time.Time) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	q := u.Query()
	deviceID := q.Get("device")
	exp, err := strconv.ParseInt(q.Get("exp"), 10, 64)
	if err != nil || deviceID == "" {
		return false
	}
	if now.Unix() > exp {
		return false
	}
	want := kioskSignature(secret, deviceID, exp)
	return subtle.ConstantTimeCompare([]byte(want), []byte(q.Get("sig"))) == 1
}

func kioskSignature(secret []byte, deviceID string, exp int64) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s:%d", deviceID, exp)
	return hex.EncodeToString(mac.Sum(nil))
}
