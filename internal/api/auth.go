package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"subsync/internal/config"
)

// HTTPAuth guards the admin API with static API keys and per-key rate
// limiting. Health checks pass unauthenticated.
type HTTPAuth struct {
	cfg     config.APIConfig
	keys    []config.APIClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		cfg:     cfg,
		keys:    cfg.Auth.APIKeys,
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/healthz") {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			key := r.Header.Get(a.cfg.Auth.HeaderAPIKey)
			client, ok := a.lookup(key)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			if a.cfg.RateLimit.RPS > 0 && !a.limiter.Allow(client.Name) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// lookup compares the presented key against every configured key in
// constant time.
func (a *HTTPAuth) lookup(presented string) (config.APIClientKey, bool) {
	if presented == "" {
		return config.APIClientKey{}, false
	}
	for _, candidate := range a.keys {
		if subtle.ConstantTimeCompare([]byte(candidate.Key), []byte(presented)) == 1 {
			return candidate, true
		}
	}
	return config.APIClientKey{}, false
}
