// Package ssrf implements the SSRF Guard (spec §4.D): rejecting origin URLs
// that resolve to loopback, link-local, private, or the proxy's own host.
// Grounded on the CIDR table and resolve-then-check shape of the LunaTV
// proxy's isSafePublicIP/resolveAndPickSafeIP (other_examples).
package ssrf

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrForbiddenHost is returned for any origin the guard rejects.
var ErrForbiddenHost = errors.New("forbidden host")

var blockedCIDRs = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10", // carrier-grade NAT
	"::1/128",
	"fc00::/7",  // unique local
	"fe80::/10", // link-local
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	blocks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("ssrf: invalid CIDR literal %q: %v", cidr, err))
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// Resolver resolves hostnames to IP addresses; satisfied by
// *net.Resolver / net.DefaultResolver in production and fakeable in tests.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard rejects origin URLs that would let a caller reach internal network
// resources through the proxy.
type Guard struct {
	resolver Resolver
}

// New creates a Guard using net.DefaultResolver for DNS lookups.
func New() *Guard {
	return &Guard{resolver: net.DefaultResolver}
}

// NewWithResolver creates a Guard using a caller-supplied resolver, for tests.
func NewWithResolver(r Resolver) *Guard {
	return &Guard{resolver: r}
}

// Check validates u's scheme, hostname, and (after DNS resolution) IP address
// against the blocked ranges and the proxy's own host. It must be called
// again after every redirect hop (spec §4.D).
func (g *Guard) Check(ctx context.Context, u *url.URL, selfHost string) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not permitted", ErrForbiddenHost, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrForbiddenHost)
	}

	if isSelf(host, selfHost) || strings.EqualFold(host, "localhost") {
		return fmt.Errorf("%w: %s", ErrForbiddenHost, host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if !isSafe(ip) {
			return fmt.Errorf("%w: %s", ErrForbiddenHost, host)
		}
		return nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve host %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: no addresses for %s", ErrForbiddenHost, host)
	}
	for _, addr := range addrs {
		if !isSafe(addr.IP) {
			return fmt.Errorf("%w: %s resolves to %s", ErrForbiddenHost, host, addr.IP)
		}
	}
	return nil
}

func isSelf(host, selfHost string) bool {
	if selfHost == "" {
		return false
	}
	h := host
	sh := selfHost
	if i := strings.IndexByte(sh, ':'); i >= 0 {
		sh = sh[:i]
	}
	return strings.EqualFold(h, sh)
}

func isSafe(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}
	for _, block := range blockedCIDRs {
		if block.Contains(ip) {
			return false
		}
	}
	return true
}
