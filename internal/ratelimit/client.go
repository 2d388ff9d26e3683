package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientID derives the rate-limit identity of a request: API key prefix
// first, then the first X-Forwarded-For hop, then the peer address.
func ClientID(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		prefix := key
		if len(prefix) > 8 {
			prefix = prefix[:8]
		}
		return "key:" + prefix + "..."
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hop := strings.TrimSpace(strings.Split(xff, ",")[0])
		if hop != "" {
			return "ip:" + hop
		}
	}

	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "" {
			return "ip:" + host
		}
	}
	return "ip:unknown"
}
