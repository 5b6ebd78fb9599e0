package server

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Allowlist restricts the status server to a set of client addresses.
// A nil or empty Allowlist admits everyone.
type Allowlist struct {
	prefixes []netip.Prefix
}

// ParseAllowlist reads CIDR blocks and single addresses. Blank entries are
// ignored.
func ParseAllowlist(entries []string) (*Allowlist, error) {
	al := &Allowlist{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("parse cidr %q: %w", entry, err)
			}
			al.prefixes = append(al.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("parse ip %q: %w", entry, err)
		}
		al.prefixes = append(al.prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return al, nil
}

// Allowed reports whether addr may use the server.
func (a *Allowlist) Allowed(addr netip.Addr) bool {
	if a == nil || len(a.prefixes) == 0 {
		return true
	}
	addr = addr.Unmap()
	for _, p := range a.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Middleware rejects requests from addresses outside the list with 403.
// Only the TCP peer is considered; forwarding headers are ignored.
func (a *Allowlist) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Allowed(remoteAddr(r)) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteAddr(r *http.Request) netip.Addr {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr
}
