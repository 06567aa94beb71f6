// Package ipfilter restricts HTTP endpoints to configured client networks
package ipfilter

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Filter holds the networks allowed to reach a handler
type Filter struct {
	prefixes []netip.Prefix
	logger   *slog.Logger
}

// New builds a filter from IPs and CIDRs. Invalid entries are logged and
// skipped. An empty list allows everyone.
func New(entries []string, logger *slog.Logger) *Filter {
	f := &Filter{logger: logger}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				logger.Warn("invalid CIDR in allowed_ips", "cidr", entry, "error", err)
				continue
			}
			f.prefixes = append(f.prefixes, p.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			logger.Warn("invalid IP in allowed_ips", "ip", entry, "error", err)
			continue
		}
		addr = addr.Unmap()
		f.prefixes = append(f.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return f
}

// Enabled returns true if filtering is active
func (f *Filter) Enabled() bool {
	return len(f.prefixes) > 0
}

// Count returns the number of allowed networks
func (f *Filter) Count() int {
	return len(f.prefixes)
}

// Allows reports whether addr may pass. A disabled filter allows every
// address, including invalid ones.
func (f *Filter) Allows(addr netip.Addr) bool {
	if !f.Enabled() {
		return true
	}
	if !addr.IsValid() {
		return false
	}

	addr = addr.Unmap()
	for _, p := range f.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// AllowsString parses and checks an IP or host:port string
func (f *Filter) AllowsString(s string) bool {
	return f.Allows(parseHost(s))
}

func parseHost(s string) netip.Addr {
	host := s
	if h, _, err := net.SplitHostPort(s); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

// Middleware returns a router middleware that passes allowed clients to the
// next handler and everyone else to deny. A nil deny answers a plain 403.
// The client is taken from RemoteAddr, so a Resolver middleware must run
// first when the service sits behind a proxy.
func (f *Filter) Middleware(deny http.Handler) func(http.Handler) http.Handler {
	if deny == nil {
		deny = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !f.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			ip := parseHost(r.RemoteAddr)
			if !f.Allows(ip) {
				f.logger.Warn("access denied by IP filter", "ip", ip.String(), "path", r.URL.Path)
				deny.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
