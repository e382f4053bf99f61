package icmp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/net/ipv4"

	"github.com/postalsys/echoping/internal/logging"
)

// DecodeReason identifies why a datagram could not be decoded.
type DecodeReason int

const (
	// ReasonTooShort means the datagram cannot hold a minimal IPv4 header.
	ReasonTooShort DecodeReason = iota + 1
	// ReasonBadHeaderLength means the IHL field is below the minimum or
	// points past the end of the datagram.
	ReasonBadHeaderLength
	// ReasonTruncatedHeader means fewer than 8 bytes follow the IP header.
	ReasonTruncatedHeader
)

// String returns a short label, also used as a metric label value.
func (r DecodeReason) String() string {
	switch r {
	case ReasonTooShort:
		return "too_short"
	case ReasonBadHeaderLength:
		return "bad_header_length"
	case ReasonTruncatedHeader:
		return "truncated_icmp_header"
	default:
		return "unknown"
	}
}

// Decode failures, matchable with errors.Is.
var (
	ErrTooShort        = errors.New("datagram too short for an IPv4 header")
	ErrBadHeaderLength = errors.New("invalid IPv4 header length")
	ErrTruncatedHeader = errors.New("datagram too short for an ICMP header")
)

// DecodeError describes a malformed datagram.
type DecodeError struct {
	Reason    DecodeReason
	Length    int // datagram length
	HeaderLen int // IPv4 header length from IHL, 0 if not read
}

func (e *DecodeError) Error() string {
	switch e.Reason {
	case ReasonTooShort:
		return fmt.Sprintf("received packet too short to be valid (len: %d)", e.Length)
	case ReasonBadHeaderLength:
		return fmt.Sprintf("invalid IP header length (IP header len: %d, total len: %d)", e.HeaderLen, e.Length)
	case ReasonTruncatedHeader:
		return fmt.Sprintf("received packet too short for ICMP header after IP header (IP header len: %d, total len: %d)", e.HeaderLen, e.Length)
	default:
		return "malformed datagram"
	}
}

// Unwrap maps the reason to its sentinel error.
func (e *DecodeError) Unwrap() error {
	switch e.Reason {
	case ReasonTooShort:
		return ErrTooShort
	case ReasonBadHeaderLength:
		return ErrBadHeaderLength
	case ReasonTruncatedHeader:
		return ErrTruncatedHeader
	default:
		return nil
	}
}

// Decode parses a raw IPv4 datagram, as delivered by a raw ICMP socket, into
// an echo message. The IPv4 header is skipped using its IHL field. On failure
// the returned message is the zero value and the error is a *DecodeError.
//
// Reply kinds are not validated; whatever the peer sent is returned.
func Decode(b []byte) (EchoMessage, error) {
	n := len(b)
	if n < ipv4.HeaderLen {
		return EchoMessage{}, &DecodeError{Reason: ReasonTooShort, Length: n}
	}

	hdrLen := int(b[0]&0x0f) * 4
	if hdrLen < ipv4.HeaderLen || hdrLen > n {
		return EchoMessage{}, &DecodeError{Reason: ReasonBadHeaderLength, Length: n, HeaderLen: hdrLen}
	}

	if n-hdrLen < HeaderLen {
		return EchoMessage{}, &DecodeError{Reason: ReasonTruncatedHeader, Length: n, HeaderLen: hdrLen}
	}

	h := b[hdrLen:]
	m := EchoMessage{
		Kind:       Kind(h[0]),
		Code:       h[1],
		Checksum:   binary.BigEndian.Uint16(h[2:4]),
		Identifier: binary.BigEndian.Uint16(h[4:6]),
		Sequence:   binary.BigEndian.Uint16(h[6:8]),
		Payload:    append([]byte{}, h[HeaderLen:]...),
	}
	return m, nil
}

// DecodeLenient is Decode with failures degraded to the zero message. The
// failure is logged at warn level and never returned. Sessions use it when
// Config.LenientDecode is set.
func DecodeLenient(logger *slog.Logger, b []byte) EchoMessage {
	m, err := Decode(b)
	if err != nil {
		logDecodeFailure(logger, err)
	}
	return m
}

func logDecodeFailure(logger *slog.Logger, err error) {
	var de *DecodeError
	if !errors.As(err, &de) {
		logger.Warn("decode failed", logging.KeyError, err)
		return
	}
	logger.Warn(de.Error(),
		slog.String(logging.KeyReason, de.Reason.String()),
		slog.Int(logging.KeyLength, de.Length),
		slog.Int(logging.KeyHeaderLen, de.HeaderLen))
}
