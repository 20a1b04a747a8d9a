package transport

import (
	"net/http"
	"net/url"
	"strings"
)

// CheckOrigin reports whether the request's Origin header is acceptable for
// a WebSocket upgrade. Requests without an Origin header (non-browser
// clients, tests) are allowed; browsers always send one.
func CheckOrigin(r *http.Request, allowedOrigins []string, development bool) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}

	// Same-host origins are fine when running locally.
	if development {
		if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
			return true
		}
	}

	return false
}
