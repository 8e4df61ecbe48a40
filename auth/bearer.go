// Package auth guards the upload surface with a static bearer token.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-audio-relay/core"
)

// BearerMiddleware rejects requests that do not carry the configured
// bearer token. With ghost mode on, rejections answer 404 instead of
// 401 so the endpoint is indistinguishable from an unknown path.
type BearerMiddleware struct {
	token     string
	ghostMode bool
	logger    core.Logger
}

func NewBearerMiddleware(cfg core.AuthConfig, logger core.Logger) *BearerMiddleware {
	return &BearerMiddleware{
		token:     strings.TrimSpace(cfg.Token),
		ghostMode: cfg.GhostMode,
		logger:    glog.Ensure(logger),
	}
}

func (m *BearerMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil || m.token == "" {
			writeAuthError(w, http.StatusInternalServerError, "authentication not configured")
			return
		}
		presented, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(m.token)) != 1 {
			m.logger.Warn("rejected unauthenticated request", "path", r.URL.Path, "remote", r.RemoteAddr)
			m.reject(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *BearerMiddleware) reject(w http.ResponseWriter) {
	if m.ghostMode {
		writeAuthError(w, http.StatusNotFound, "Not Found")
		return
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeAuthError(w, http.StatusUnauthorized, "invalid or missing bearer token")
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

func writeAuthError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
