package icmp

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNoIPv4Address is returned when a host has no IPv4 address.
var ErrNoIPv4Address = errors.New("no IPv4 address found")

// Resolver is the subset of *net.Resolver used by ResolveIPv4.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// ResolveIPv4 returns the first IPv4 address of host, which may be a name or
// a literal address. A nil resolver uses net.DefaultResolver.
func ResolveIPv4(ctx context.Context, r Resolver, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
		return nil, fmt.Errorf("%s: %w", host, ErrNoIPv4Address)
	}

	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", host, err)
	}
	for _, a := range addrs {
		if ip4 := a.IP.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", host, ErrNoIPv4Address)
}
