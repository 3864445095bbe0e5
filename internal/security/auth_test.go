package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windows-mcp-server/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuthenticateAnonymousBypass(t *testing.T) {
	auth := NewAuthenticator(config.SecurityConfig{RequireAuth: false}, testLogger())

	result := auth.Authenticate("", "")
	assert.True(t, result.Authenticated)
	assert.Equal(t, "anonymous", result.ClientID)

	// Even a garbage key passes when auth is off.
	result = auth.Authenticate("not-a-real-key", "")
	assert.True(t, result.Authenticated)
}

func TestAuthenticateAPIKey(t *testing.T) {
	auth := NewAuthenticator(config.SecurityConfig{
		RequireAuth: true,
		APIKey:      "wmcp_static",
	}, testLogger())

	result := auth.Authenticate("wmcp_static", "")
	assert.True(t, result.Authenticated)
	assert.Equal(t, "default", result.ClientID)

	result = auth.Authenticate("wmcp_wrong", "")
	assert.False(t, result.Authenticated)
	assert.Equal(t, "Invalid API key", result.Error)

	result = auth.Authenticate("", "")
	assert.False(t, result.Authenticated)
	assert.Equal(t, "Authentication required", result.Error)
}

func TestAuthenticateBearerToken(t *testing.T) {
	auth := NewAuthenticator(config.SecurityConfig{RequireAuth: true}, testLogger())
	auth.AddAPIKey("wmcp_token", "ci-bot")

	result := auth.Authenticate("", "Bearer wmcp_token")
	assert.True(t, result.Authenticated)
	assert.Equal(t, "ci-bot", result.ClientID)

	// Raw token without the Bearer prefix is also accepted.
	result = auth.Authenticate("", "wmcp_token")
	assert.True(t, result.Authenticated)

	result = auth.Authenticate("", "Bearer nope")
	assert.False(t, result.Authenticated)
}

func TestAddRemoveAPIKey(t *testing.T) {
	auth := NewAuthenticator(config.SecurityConfig{RequireAuth: true}, testLogger())

	auth.AddAPIKey("wmcp_k1", "alpha")
	assert.True(t, auth.Authenticate("wmcp_k1", "").Authenticated)

	assert.True(t, auth.RemoveAPIKey("wmcp_k1"))
	assert.False(t, auth.Authenticate("wmcp_k1", "").Authenticated)
	assert.False(t, auth.RemoveAPIKey("wmcp_k1"))
}

func TestGenerateAPIKey(t *testing.T) {
	auth := NewAuthenticator(config.SecurityConfig{RequireAuth: true}, testLogger())

	key, err := auth.GenerateAPIKey("generated-client")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, APIKeyPrefix))

	result := auth.Authenticate(key, "")
	assert.True(t, result.Authenticated)
	assert.Equal(t, "generated-client", result.ClientID)

	other, err := auth.GenerateAPIKey("another")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func signRequest(secret, method, path string, body []byte, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s\n%s\n%s\n", method, path, strconv.FormatInt(ts, 10))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	auth := NewAuthenticator(config.SecurityConfig{
		RequireAuth:   true,
		SigningSecret: "secret",
	}, testLogger())

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	now := time.Now().Unix()
	ts := strconv.FormatInt(now, 10)

	sig := signRequest("secret", "POST", "/", body, now)
	assert.True(t, auth.VerifySignature("POST", "/", body, ts, sig))

	// Any mutation breaks the signature.
	assert.False(t, auth.VerifySignature("GET", "/", body, ts, sig))
	assert.False(t, auth.VerifySignature("POST", "/other", body, ts, sig))
	assert.False(t, auth.VerifySignature("POST", "/", []byte("tampered"), ts, sig))

	// Stale timestamps are rejected even with a valid signature.
	old := now - 3600
	oldSig := signRequest("secret", "POST", "/", body, old)
	assert.False(t, auth.VerifySignature("POST", "/", body, strconv.FormatInt(old, 10), oldSig))

	assert.False(t, auth.VerifySignature("POST", "/", body, "not-a-number", sig))
}
