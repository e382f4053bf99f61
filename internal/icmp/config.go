package icmp

import (
	"fmt"
	"net"
	"time"
)

// Default session parameters.
const (
	DefaultCount       = 4
	DefaultTimeout     = time.Second
	DefaultPayloadSize = 32

	// MaxCount is the number of distinct 16-bit sequence numbers.
	MaxCount = 1 << 16

	// ReceiveBufferSize is the minimum receive buffer for one datagram.
	ReceiveBufferSize = 1024

	maxIPv4HeaderLen = 60
)

// Config holds configuration for an echo session.
type Config struct {
	// Count is the number of echo exchanges in a session. Exchange i carries
	// sequence number i, so Count may not exceed MaxCount.
	Count int

	// Timeout bounds each receive. Expiry aborts the session.
	Timeout time.Duration

	// PayloadSize is the requested payload length of every request.
	// Build raises it to MinPayloadSize.
	PayloadSize int

	// Interval is the minimum spacing between consecutive requests.
	// 0 sends each request as soon as the previous reply arrives.
	Interval time.Duration

	// LenientDecode reports undecodable replies as the zero message, with
	// the failure only logged. Exchange.DecodeErr then stays nil.
	LenientDecode bool

	// AllowedCIDRs restricts which destination IPs can be pinged.
	// Empty list means all destinations are allowed.
	AllowedCIDRs []*net.IPNet
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Count:       DefaultCount,
		Timeout:     DefaultTimeout,
		PayloadSize: DefaultPayloadSize,
	}
}

// ParseCIDRs parses a list of CIDR strings.
func ParseCIDRs(cidrs []string) ([]*net.IPNet, error) {
	result := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, ipnet, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", c, err)
		}
		result = append(result, ipnet)
	}
	return result, nil
}

// IsDestinationAllowed reports whether ip falls inside one of AllowedCIDRs.
// It returns false for an empty list; callers decide what an empty list means.
func (c Config) IsDestinationAllowed(ip net.IP) bool {
	for _, ipnet := range c.AllowedCIDRs {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

// ErrCountTooLarge is returned when Count would wrap the sequence number.
var ErrCountTooLarge = fmt.Errorf("count exceeds %d exchanges", MaxCount)

// withDefaults fills zero fields with defaults.
func (c Config) withDefaults() Config {
	if c.Count <= 0 {
		c.Count = DefaultCount
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PayloadSize <= 0 {
		c.PayloadSize = DefaultPayloadSize
	}
	return c
}
