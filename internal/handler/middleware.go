package handler

import (
	"net/http"
	"strings"

	"github.com/YannKr/certstamp/internal/auth"
	"github.com/YannKr/certstamp/internal/db"
)

// requireAPIAuth accepts "Authorization: Bearer cs_..." and places the key's
// principal in the request context.
func (h *Handler) requireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer API key")
			return
		}
		p, ok := h.validateAPIKey(strings.TrimSpace(key))
		if !ok {
			renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), p)))
	})
}

func (h *Handler) validateAPIKey(key string) (auth.Principal, bool) {
	prefix, ok := auth.LookupPrefix(key)
	if !ok {
		return auth.Principal{}, false
	}

	apiKey, err := db.GetAPIKeyByPrefix(h.DB, prefix)
	if err != nil || apiKey == nil {
		return auth.Principal{}, false
	}
	if !auth.CheckPassword(apiKey.KeyHash, key) {
		return auth.Principal{}, false
	}

	go db.TouchAPIKeyUsed(h.DB, apiKey.ID)

	return auth.Principal{KeyID: apiKey.ID, Name: apiKey.Name, Role: apiKey.Role}, true
}

// RequireWrite rejects viewer keys.
func (h *Handler) RequireWrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.CanWrite(r.Context()) {
			renderJSONError(w, http.StatusForbidden, "FORBIDDEN", "this API key is read-only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			renderJSONError(w, http.StatusForbidden, "FORBIDDEN", "admin API key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the address recorded in audit and validation logs. RealIP
// has already rewritten RemoteAddr when a proxy header was present.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndexByte(addr, ':'); i > 0 && !strings.HasSuffix(addr, "]") {
		return strings.Trim(addr[:i], "[]")
	}
	return strings.Trim(addr, "[]")
}
