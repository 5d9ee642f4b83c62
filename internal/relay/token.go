package relay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Tokens are base64(username|expiry) + "." + hex(HMAC-SHA256), signed with
// the relay secret. Opaque to the client, cheap to verify on every call.

var errBadToken = errors.New("invalid token")

func issueToken(secret []byte, username string, ttl time.Duration) string {
	payload := base64.RawURLEncoding.EncodeToString(
		fmt.Appendf(nil, "%s|%d", username, time.Now().Add(ttl).Unix()))
	return payload + "." + sign(secret, payload)
}

func parseToken(secret []byte, token string) (string, error) {
	payload, mac, ok := strings.Cut(token, ".")
	if !ok {
		return "", errBadToken
	}
	if !hmac.Equal([]byte(sign(secret, payload)), []byte(mac)) {
		return "", errBadToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", errBadToken
	}
	username, expStr, ok := strings.Cut(string(raw), "|")
	if !ok || username == "" {
		return "", errBadToken
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", errBadToken
	}
	if time.Now().Unix() > exp {
		return "", fmt.Errorf("%w: expired", errBadToken)
	}
	return username, nil
}

func sign(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// bearerToken extracts the Bearer token from an Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
