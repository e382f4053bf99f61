//go:build unix

package icmp

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// rawSocket is a Transport on a SOCK_RAW file descriptor.
type rawSocket struct {
	fd     int
	family Family
}

func openRawSocket(family Family) (Transport, error) {
	domain, proto := unix.AF_INET, unix.IPPROTO_ICMP
	if family == FamilyIPv6 {
		domain, proto = unix.AF_INET6, unix.IPPROTO_ICMPV6
	}

	fd, err := unix.Socket(domain, unix.SOCK_RAW, proto)
	if err != nil {
		return nil, fmt.Errorf("create raw %s ICMP socket: %w", family, err)
	}
	unix.CloseOnExec(fd)

	return &rawSocket{fd: fd, family: family}, nil
}

// SetReadTimeout sets SO_RCVTIMEO. A zero duration blocks forever.
func (s *rawSocket) SetReadTimeout(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	if err := unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("set receive timeout: %w", err)
	}
	return nil
}

func (s *rawSocket) SendTo(b []byte, dst net.IP) (int, error) {
	sa, err := s.sockaddr(dst)
	if err != nil {
		return 0, err
	}

	for {
		err = unix.Sendto(s.fd, b, 0, sa)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("send to %s: %w", dst, err)
	}
	return len(b), nil
}

func (s *rawSocket) RecvFrom(buf []byte) (int, net.IP, error) {
	var (
		n    int
		from unix.Sockaddr
		err  error
	)
	for {
		n, from, err = unix.Recvfrom(s.fd, buf, 0)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		if isTimeout(err) {
			return 0, nil, ErrTimeout
		}
		return 0, nil, fmt.Errorf("receive: %w", err)
	}

	var peer net.IP
	switch sa := from.(type) {
	case *unix.SockaddrInet4:
		peer = net.IP(append([]byte{}, sa.Addr[:]...))
	case *unix.SockaddrInet6:
		peer = net.IP(append([]byte{}, sa.Addr[:]...))
	}

	return n, peer, nil
}

func (s *rawSocket) Close() error {
	return unix.Close(s.fd)
}

func (s *rawSocket) sockaddr(ip net.IP) (unix.Sockaddr, error) {
	if s.family == FamilyIPv4 {
		ip4 := ip.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("%s is not an IPv4 address", ip)
		}
		sa := &unix.SockaddrInet4{}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}

	ip16 := ip.To16()
	if ip16 == nil {
		return nil, fmt.Errorf("%s is not an IPv6 address", ip)
	}
	sa := &unix.SockaddrInet6{}
	copy(sa.Addr[:], ip16)
	return sa, nil
}

// isTimeout reports whether err is the errno a blocking socket returns when
// SO_RCVTIMEO expires.
func isTimeout(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
