package icmp

import (
	"errors"
	"net"
	"time"
)

// IANA protocol numbers for the raw sockets.
const (
	ICMPv4ProtocolNumber = 1
	ICMPv6ProtocolNumber = 58
)

// ErrTimeout is returned by Transport.RecvFrom when the receive timeout
// expires before a datagram arrives.
var ErrTimeout = errors.New("receive timed out")

// Transport is a blocking raw ICMP socket owned by a single session.
//
// RecvFrom returns the complete network-layer datagram; for IPv4 that
// includes the IP header, which Decode strips.
type Transport interface {
	SetReadTimeout(d time.Duration) error
	SendTo(b []byte, dst net.IP) (int, error)
	RecvFrom(buf []byte) (int, net.IP, error)
	Close() error
}

// OpenFunc creates a transport for an address family.
type OpenFunc func(family Family) (Transport, error)

// OpenRawSocket creates a raw ICMP socket for family: ICMP over IPv4 or
// ICMPv6 over IPv6. It usually requires root or CAP_NET_RAW.
func OpenRawSocket(family Family) (Transport, error) {
	return openRawSocket(family)
}
