package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"boardsync/pkg/config"
	"boardsync/pkg/logger"
	"boardsync/pkg/utils"
)

// Role represents the resolved caller role for a request.
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

// SecConfig mirrors the security-related configuration used to drive
// authentication, CORS and rate limiting behavior. Put here so limiter.go
// and gateway.go can reference the shared type.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
}

type ctxActorKey struct{}

// RequireSignedActor verifies HMAC signature headers and injects the
// verified actor id into the request context.
func RequireSignedActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Determine caller role set earlier by gateway middleware
		role := r.Header.Get("X-Role-Name")
		actorID := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
		sig := strings.TrimSpace(r.Header.Get("X-Actor-Signature"))

		// Backend/admin callers: allow missing signature entirely, or accept
		// a header-provided actor without a signature. If a signature is
		// present we will verify it below.
		if role == "backend" || role == "admin" {
			if sig == "" {
				// No signature provided; allow the request through. Handlers may
				// accept an actor from body or X-Actor-ID header as appropriate.
				next.ServeHTTP(w, r)
				return
			}
			// signature present -> fallthrough to verification logic
		}

		// If we reach here and there's no signature, the caller is not a
		// trusted backend/admin and we must require signature headers.
		if sig == "" || actorID == "" {
			logger.Warn("missing_signature_headers", "path", r.URL.Path, "remote", r.RemoteAddr)
			utils.JSONError(w, http.StatusUnauthorized, "missing signature headers")
			return
		}

		// Retrieve signing keys from the canonical config package.
		keys := config.GetSigningKeys()
		if len(keys) == 0 {
			logger.Error("no_signing_keys_configured")
			utils.JSONError(w, http.StatusInternalServerError, "server misconfigured: no signing secrets available")
			return
		}

		// Try all configured signing keys.
		ok := false
		for k := range keys {
			mac := hmac.New(sha256.New, []byte(k))
			mac.Write([]byte(actorID))
			expected := hex.EncodeToString(mac.Sum(nil))
			if hmac.Equal([]byte(expected), []byte(sig)) {
				ok = true
				break
			}
		}
		if !ok {
			logger.Warn("invalid_signature", "actor", actorID)
			utils.JSONError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		ctx := context.WithValue(r.Context(), ctxActorKey{}, actorID)
		r = r.WithContext(ctx)
		// do not set headers; handlers should use context via ActorIDFromContext
		next.ServeHTTP(w, r)
	})
}

// ActorIDFromContext returns the verified actor id or empty string.
func ActorIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxActorKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SignActor computes the hex HMAC-SHA256 of actorID under key. The
// backend issues these to browser clients; tests use it directly.
func SignActor(key, actorID string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(actorID))
	return hex.EncodeToString(mac.Sum(nil))
}
