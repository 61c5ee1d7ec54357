package auth

import (
	"net/http"
	"strings"

	"boardsync/pkg/logger"
)

func validateActor(a string) (bool, string) {
	if a == "" {
		return false, "actor required"
	}
	if len(a) > 128 {
		return false, "actor too long"
	}
	return true, ""
}

// ResolveActorFromRequest is the single canonical resolver handlers should
// call. It prefers a signature-verified actor (in context). If a signature
// is present it is authoritative: any conflicting actor provided via
// header/body/query causes a 403. When no signature is present,
// backend/admin roles may supply an actor via body, header (X-Actor-ID)
// or query (fallback). Frontend callers require a signature and receive
// 401 when missing.
func ResolveActorFromRequest(r *http.Request, bodyActor string) (string, int, string) {
	// Prefer signature-verified actor from context
	if id := ActorIDFromContext(r.Context()); id != "" {
		// If other provided actors conflict with the signature, reject.
		if q := strings.TrimSpace(r.URL.Query().Get("actor")); q != "" && q != id {
			logger.Warn("actor_mismatch_signature_query", "signature", id, "query", q, "path", r.URL.Path)
			return "", http.StatusForbidden, "actor mismatch between signature and query param"
		}
		if h := strings.TrimSpace(r.Header.Get("X-Actor-ID")); h != "" && h != id {
			logger.Warn("actor_mismatch_signature_header", "signature", id, "header", h, "path", r.URL.Path)
			return "", http.StatusForbidden, "actor mismatch between signature and header"
		}
		if bodyActor != "" && bodyActor != id {
			logger.Warn("actor_mismatch_signature_body", "signature", id, "body", bodyActor, "path", r.URL.Path)
			return "", http.StatusForbidden, "actor mismatch between signature and body actor"
		}
		return id, 0, ""
	}

	// No signature; allow backend/admins to supply an actor via body/header/query.
	role := r.Header.Get("X-Role-Name")
	if role == "backend" || role == "admin" {
		if bodyActor != "" {
			if ok, msg := validateActor(bodyActor); !ok {
				return "", http.StatusBadRequest, msg
			}
			return bodyActor, 0, ""
		}
		if h := strings.TrimSpace(r.Header.Get("X-Actor-ID")); h != "" {
			if ok, msg := validateActor(h); !ok {
				return "", http.StatusBadRequest, msg
			}
			return h, 0, ""
		}
		if q := strings.TrimSpace(r.URL.Query().Get("actor")); q != "" {
			if ok, msg := validateActor(q); !ok {
				return "", http.StatusBadRequest, msg
			}
			return q, 0, ""
		}
		logger.Warn("backend_missing_actor", "path", r.URL.Path)
		return "", http.StatusBadRequest, "actor required for backend requests"
	}

	// Otherwise require signature
	logger.Warn("missing_actor_signature", "role", role, "path", r.URL.Path)
	return "", http.StatusUnauthorized, "missing or invalid actor signature"
}
