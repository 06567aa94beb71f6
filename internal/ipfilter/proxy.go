package ipfilter

import (
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
)

// Resolver finds the client address of a request. Forwarding headers are
// only honoured when the TCP peer is one of the trusted proxies.
type Resolver struct {
	proxies *Filter
}

// NewResolver builds a resolver from proxy IPs and CIDRs. With no proxies
// the TCP peer address is always used.
func NewResolver(trustedProxies []string, logger *slog.Logger) *Resolver {
	return &Resolver{proxies: New(trustedProxies, logger)}
}

func (rs *Resolver) trusted(addr netip.Addr) bool {
	return rs != nil && rs.proxies.Enabled() && rs.proxies.Allows(addr)
}

// ClientIP returns the TCP peer of r. For a trusted peer it walks
// X-Forwarded-For from the right and returns the first hop that is not a
// trusted proxy, falling back to X-Real-IP when no X-Forwarded-For is set.
func (rs *Resolver) ClientIP(r *http.Request) netip.Addr {
	peer := parseHost(r.RemoteAddr)
	if !rs.trusted(peer) {
		return peer
	}

	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		client := peer
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				// Hops left of a malformed entry cannot be attributed
				return client
			}
			client = addr.Unmap()
			if !rs.trusted(client) {
				return client
			}
		}
		return client
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr.Unmap()
		}
	}

	return peer
}

// Middleware replaces RemoteAddr with the resolved client address when the
// request arrived through a trusted proxy
func (rs *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if client := rs.ClientIP(r); client.IsValid() && client != parseHost(r.RemoteAddr) {
			r.RemoteAddr = client.String()
		}
		next.ServeHTTP(w, r)
	})
}
