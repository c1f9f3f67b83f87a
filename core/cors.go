package core

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSMiddleware returns HTTP middleware enforcing the given CORS policy.
// A nil or disabled config yields a pass-through middleware.
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if config == nil || !config.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" && isOriginAllowed(origin, config.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if config.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if len(config.ExposedHeaders) > 0 {
					w.Header().Set("Access-Control-Expose-Headers", strings.Join(config.ExposedHeaders, ", "))
				}
				// Caches vary by origin when the allowed origin is dynamic
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				if origin != "" && isOriginAllowed(origin, config.AllowedOrigins) {
					w.Header().Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
					w.Header().Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
					if config.MaxAge > 0 {
						w.Header().Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isOriginAllowed matches an origin against the allow list. Supports the
// "*" catch-all, wildcard subdomains (https://*.example.com) and wildcard
// ports (http://localhost:*).
func isOriginAllowed(origin string, allowed []string) bool {
	for _, pattern := range allowed {
		if pattern == "*" || pattern == origin {
			return true
		}

		// Wildcard subdomain: https://*.example.com
		if idx := strings.Index(pattern, "://*."); idx != -1 {
			scheme := pattern[:idx+3]
			domain := pattern[idx+5:]
			if strings.HasPrefix(origin, scheme) {
				host := origin[len(scheme):]
				if strings.HasSuffix(host, "."+domain) || host == domain {
					return true
				}
			}
			continue
		}

		// Wildcard port: http://localhost:*
		if strings.HasSuffix(pattern, ":*") {
			base := strings.TrimSuffix(pattern, ":*")
			if origin == base || strings.HasPrefix(origin, base+":") {
				return true
			}
		}
	}
	return false
}
