package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"windows-mcp-server/internal/config"
)

// APIKeyPrefix marks generated keys as belonging to this server.
const APIKeyPrefix = "wmcp_"

// signatureMaxSkew is the replay/clock-skew window for signed requests.
const signatureMaxSkew = 300 * time.Second

// AuthResult is the ephemeral outcome of an authentication attempt.
type AuthResult struct {
	Authenticated bool
	ClientID      string
	Error         string
}

// Authenticator validates credentials into a client identity. The key
// table maps api key -> client id; reads vastly outnumber writes, so the
// table is guarded by an RWMutex.
type Authenticator struct {
	requireAuth   bool
	signingSecret string

	mu      sync.RWMutex
	apiKeys map[string]string
	logger  *slog.Logger
}

// NewAuthenticator builds an authenticator from security settings. A
// statically configured api key is registered under the "default"
// identity, matching the settings loader.
func NewAuthenticator(cfg config.SecurityConfig, logger *slog.Logger) *Authenticator {
	a := &Authenticator{
		requireAuth:   cfg.RequireAuth,
		signingSecret: cfg.SigningSecret,
		apiKeys:       make(map[string]string),
		logger:        logger,
	}
	if cfg.APIKey != "" {
		a.apiKeys[cfg.APIKey] = "default"
	}
	return a
}

// AddAPIKey registers a key for a client. Re-adding an existing key
// rebinds it: last write wins.
func (a *Authenticator) AddAPIKey(key, clientID string) {
	a.mu.Lock()
	a.apiKeys[key] = clientID
	a.mu.Unlock()
	a.logger.Info("added api key", "client_id", clientID)
}

// RemoveAPIKey deletes a key, reporting whether it existed.
func (a *Authenticator) RemoveAPIKey(key string) bool {
	a.mu.Lock()
	clientID, ok := a.apiKeys[key]
	if ok {
		delete(a.apiKeys, key)
	}
	a.mu.Unlock()
	if ok {
		a.logger.Info("removed api key", "client_id", clientID)
	}
	return ok
}

// GenerateAPIKey mints a cryptographically random, prefixed key and
// registers it for the client.
func (a *Authenticator) GenerateAPIKey(clientID string) (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	a.AddAPIKey(key, clientID)
	return key, nil
}

// GenerateKey mints a prefixed random key without registering it.
func GenerateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Authenticate validates an api key or bearer token into a client
// identity. When authentication is not required the anonymous bypass
// always succeeds; this is controlled solely by the require_auth flag.
func (a *Authenticator) Authenticate(apiKey, bearerToken string) AuthResult {
	if !a.requireAuth {
		return AuthResult{Authenticated: true, ClientID: "anonymous"}
	}

	if apiKey != "" {
		if clientID, ok := a.lookup(apiKey); ok {
			a.logger.Debug("authenticated via api key", "client_id", clientID)
			return AuthResult{Authenticated: true, ClientID: clientID}
		}
		a.logger.Warn("invalid api key attempted")
		return AuthResult{Authenticated: false, Error: "Invalid API key"}
	}

	if bearerToken != "" {
		token := strings.TrimPrefix(bearerToken, "Bearer ")
		if clientID, ok := a.lookup(token); ok {
			a.logger.Debug("authenticated via bearer token", "client_id", clientID)
			return AuthResult{Authenticated: true, ClientID: clientID}
		}
		a.logger.Warn("invalid bearer token attempted")
		return AuthResult{Authenticated: false, Error: "Invalid bearer token"}
	}

	a.logger.Warn("no authentication credentials provided")
	return AuthResult{Authenticated: false, Error: "Authentication required"}
}

// SigningEnabled reports whether a signing secret is configured, so
// transports know to enforce request signatures.
func (a *Authenticator) SigningEnabled() bool {
	return a.signingSecret != ""
}

func (a *Authenticator) lookup(key string) (string, bool) {
	a.mu.RLock()
	clientID, ok := a.apiKeys[key]
	a.mu.RUnlock()
	return clientID, ok
}

// VerifySignature checks an HMAC-SHA256 request signature computed over
// "method\npath\ntimestamp\n" + body. The timestamp must be a decimal
// Unix time within the skew window; the comparison is constant-time.
func (a *Authenticator) VerifySignature(method, path string, body []byte, timestamp, signature string) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		a.logger.Warn("invalid signature timestamp format", "timestamp", timestamp)
		return false
	}

	skew := time.Since(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > signatureMaxSkew {
		a.logger.Warn("request timestamp outside allowed window", "timestamp", timestamp)
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.signingSecret))
	fmt.Fprintf(mac, "%s\n%s\n%s\n", method, path, timestamp)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if hmac.Equal([]byte(expected), []byte(signature)) {
		return true
	}

	a.logger.Warn("invalid request signature")
	return false
}
