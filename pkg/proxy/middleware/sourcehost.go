package middleware

import (
	"net"
	"net/http"

	"github.com/mitchins/SmolRouter/pkg/telemetry/logging"
)

// Source host modes.
const (
	SourceHostFromIP   = "ip"
	SourceHostFromHost = "host"
)

// SourceHostMiddleware records the host routes match against. By default
// it is the client IP from RemoteAddr, which chi's RealIP middleware has
// already taken from X-Forwarded-For or X-Real-IP when present. In "host"
// mode it is the Host header without its port.
//
// mode is called per request so a config reload takes effect at once.
func SourceHostMiddleware(mode func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := r.RemoteAddr
			if mode() == SourceHostFromHost {
				host = r.Host
			}
			ctx := logging.WithSourceHost(r.Context(), stripPort(host))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func stripPort(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return host
}
