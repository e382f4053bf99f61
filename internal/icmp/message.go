package icmp

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	// HeaderLen is the size of the ICMP echo header on the wire.
	HeaderLen = 8

	// MinPayloadSize is the smallest payload Build will produce.
	MinPayloadSize = 16
)

// Kind is the ICMP message type byte.
type Kind uint8

// Echo kinds for both address families.
const (
	KindEchoReply     = Kind(ipv4.ICMPTypeEchoReply)
	KindEchoRequest   = Kind(ipv4.ICMPTypeEcho)
	KindEchoRequestV6 = Kind(ipv6.ICMPTypeEchoRequest)
	KindEchoReplyV6   = Kind(ipv6.ICMPTypeEchoReply)
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindEchoReply:
		return "echo reply"
	case KindEchoRequest:
		return "echo request"
	case KindEchoRequestV6:
		return "echo request (v6)"
	case KindEchoReplyV6:
		return "echo reply (v6)"
	default:
		return fmt.Sprintf("type %d", uint8(k))
	}
}

// Family selects the address family of a destination.
type Family int

const (
	// FamilyIPv4 is used for IPv4 (and IPv4-mapped IPv6) destinations.
	FamilyIPv4 Family = iota
	// FamilyIPv6 is used for every other destination.
	FamilyIPv6
)

// String returns "ipv4" or "ipv6".
func (f Family) String() string {
	if f == FamilyIPv4 {
		return "ipv4"
	}
	return "ipv6"
}

// FamilyOf returns the address family of ip.
func FamilyOf(ip net.IP) Family {
	if ip.To4() != nil {
		return FamilyIPv4
	}
	return FamilyIPv6
}

// EchoMessage is an ICMP echo request or reply.
//
// The zero value doubles as the sentinel produced by DecodeLenient for
// malformed datagrams.
type EchoMessage struct {
	Kind       Kind
	Code       uint8
	Checksum   uint16
	Identifier uint16
	Sequence   uint16
	Payload    []byte
}

// Build creates an echo request for the given family. The checksum is left
// at zero and the payload is size zero bytes, raised to MinPayloadSize.
func Build(family Family, id, seq uint16, size int) EchoMessage {
	kind := KindEchoRequest
	if family == FamilyIPv6 {
		kind = KindEchoRequestV6
	}

	return EchoMessage{
		Kind:       kind,
		Code:       0,
		Checksum:   0,
		Identifier: id,
		Sequence:   seq,
		Payload:    make([]byte, max(size, MinPayloadSize)),
	}
}

// Len returns the marshalled size of the message.
func (m *EchoMessage) Len() int {
	return HeaderLen + len(m.Payload)
}

// Marshal returns the wire encoding of the message. The Checksum field is
// written as-is; call SetChecksum first for outbound messages.
func (m *EchoMessage) Marshal() []byte {
	b := make([]byte, m.Len())
	b[0] = byte(m.Kind)
	b[1] = m.Code
	binary.BigEndian.PutUint16(b[2:4], m.Checksum)
	binary.BigEndian.PutUint16(b[4:6], m.Identifier)
	binary.BigEndian.PutUint16(b[6:8], m.Sequence)
	copy(b[HeaderLen:], m.Payload)
	return b
}

// SetChecksum computes the checksum and stores it in the message.
func (m *EchoMessage) SetChecksum() {
	m.Checksum = ComputeChecksum(m)
}

// IsZero reports whether every header field is zero and the payload is empty.
// A zero message is either the decode sentinel or a legitimate all-zero
// datagram; use Decode to tell the two apart.
func (m *EchoMessage) IsZero() bool {
	return m.Kind == 0 && m.Code == 0 && m.Checksum == 0 &&
		m.Identifier == 0 && m.Sequence == 0 && len(m.Payload) == 0
}
