// Package policy decides whether a network origin may retrieve files.
// The decision is pure: a Policy is built once from configuration and
// holds no mutable state, so repeated checks for the same origin always
// agree.
package policy

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// OriginUnknown is the sentinel used when no origin signal is available.
// It never matches an address range, so it is denied unless the allow-all
// override is on.
const OriginUnknown = "unknown"

// Policy is an IPv4 allow-list with an operator-level allow-all override.
type Policy struct {
	allowAll bool
	ranges   []*net.IPNet
}

// New parses the configured CIDR ranges. A malformed range is a
// configuration error and fails construction; malformed origins at check
// time merely fail to match.
func New(cidrs []string, allowAll bool) (*Policy, error) {
	p := &Policy{allowAll: allowAll}
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		_, ipnet, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("invalid address range %q: %w", c, err)
		}
		p.ranges = append(p.ranges, ipnet)
	}
	return p, nil
}

// Allowed reports whether the origin may retrieve files. Origins that do
// not parse as IPv4 addresses (including OriginUnknown) never match a
// range.
func (p *Policy) Allowed(origin string) bool {
	if p.allowAll {
		return true
	}
	ip := net.ParseIP(strings.TrimSpace(origin))
	if ip == nil || ip.To4() == nil {
		return false
	}
	for _, r := range p.ranges {
		if r.Contains(ip) {
			return true
		}
	}
	return false
}

// ResolveOrigin attributes a request to a network origin. Precedence:
// first X-Forwarded-For entry, then X-Real-IP, then the transport peer
// address with any port stripped.
func ResolveOrigin(headers http.Header, remoteAddr string) string {
	if xff := headers.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := headers.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if remoteAddr == "" {
		return OriginUnknown
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
