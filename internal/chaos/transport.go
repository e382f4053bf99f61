package chaos

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/postalsys/echoping/internal/icmp"
)

// corruptLen is below the size of an IPv4 header, so Decode rejects it.
const corruptLen = 10

// Transport wraps an icmp.Transport and injects faults into it.
type Transport struct {
	inner    icmp.Transport
	injector *FaultInjector
}

// Wrap returns inner with faults from injector applied.
func Wrap(inner icmp.Transport, injector *FaultInjector) *Transport {
	return &Transport{inner: inner, injector: injector}
}

// Opener wraps every transport returned by open.
func Opener(open icmp.OpenFunc, injector *FaultInjector) icmp.OpenFunc {
	return func(family icmp.Family) (icmp.Transport, error) {
		tr, err := open(family)
		if err != nil {
			return nil, err
		}
		return Wrap(tr, injector), nil
	}
}

func (t *Transport) SetReadTimeout(d time.Duration) error {
	return t.inner.SetReadTimeout(d)
}

func (t *Transport) SendTo(b []byte, dst net.IP) (int, error) {
	if fault, _ := t.injector.MaybeInject(FaultError); fault == FaultError {
		return 0, ErrInjected
	}
	return t.inner.SendTo(b, dst)
}

func (t *Transport) RecvFrom(buf []byte) (int, net.IP, error) {
	n, peer, err := t.inner.RecvFrom(buf)
	if err != nil {
		return n, peer, err
	}

	fault, delay := t.injector.MaybeInject(FaultDrop, FaultDelay, FaultCorrupt)
	switch fault {
	case FaultDrop:
		return 0, nil, icmp.ErrTimeout
	case FaultDelay:
		time.Sleep(delay)
	case FaultCorrupt:
		n = min(n, corruptLen)
	}
	return n, peer, nil
}

func (t *Transport) Close() error {
	return t.inner.Close()
}

// EchoTransport is an in-memory IPv4 host that answers every echo request
// with a matching reply behind a 20-byte IPv4 header, the way a raw socket
// delivers it. RecvFrom with nothing queued reports icmp.ErrTimeout at once.
type EchoTransport struct {
	mu      sync.Mutex
	local   net.IP
	replies [][]byte
	peers   []net.IP
	timeout time.Duration
	sent    int
	closed  bool
}

// NewEchoTransport creates an echo transport.
func NewEchoTransport() *EchoTransport {
	return &EchoTransport{local: net.IPv4(192, 0, 2, 99).To4()}
}

// EchoOpener returns an icmp.OpenFunc that always yields e.
func EchoOpener(e *EchoTransport) icmp.OpenFunc {
	return func(icmp.Family) (icmp.Transport, error) { return e, nil }
}

func (e *EchoTransport) SetReadTimeout(d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeout = d
	return nil
}

func (e *EchoTransport) SendTo(b []byte, dst net.IP) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, net.ErrClosed
	}
	e.sent++
	if len(b) < icmp.HeaderLen || b[0] != byte(icmp.KindEchoRequest) {
		return len(b), nil
	}

	reply := append([]byte(nil), b...)
	reply[0] = byte(icmp.KindEchoReply)
	reply[2], reply[3] = 0, 0
	binary.BigEndian.PutUint16(reply[2:], icmp.Checksum(reply))

	h := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(reply),
		TTL:      64,
		Protocol: icmp.ICMPv4ProtocolNumber,
		Src:      dst,
		Dst:      e.local,
	}
	hdr, err := h.Marshal()
	if err != nil {
		return 0, err
	}

	e.replies = append(e.replies, append(hdr, reply...))
	e.peers = append(e.peers, dst)
	return len(b), nil
}

func (e *EchoTransport) RecvFrom(buf []byte) (int, net.IP, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, nil, net.ErrClosed
	}
	if len(e.replies) == 0 {
		return 0, nil, icmp.ErrTimeout
	}

	datagram, peer := e.replies[0], e.peers[0]
	e.replies, e.peers = e.replies[1:], e.peers[1:]
	return copy(buf, datagram), peer, nil
}

func (e *EchoTransport) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Closed reports whether Close was called.
func (e *EchoTransport) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Sent returns the number of datagrams written to e.
func (e *EchoTransport) Sent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sent
}

// ReadTimeout returns the last timeout set.
func (e *EchoTransport) ReadTimeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeout
}
