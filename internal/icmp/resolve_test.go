package icmp

import (
	"context"
	"errors"
	"net"
	"testing"
)

// mockResolver implements Resolver with a fixed answer.
type mockResolver struct {
	addrs []net.IPAddr
	err   error
	hosts []string
}

func (r *mockResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	r.hosts = append(r.hosts, host)
	return r.addrs, r.err
}

func TestResolveIPv4(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		addrs   []net.IPAddr
		err     error
		want    string
		wantErr error
	}{
		{
			name: "literal IPv4",
			host: "192.0.2.5",
			want: "192.0.2.5",
		},
		{
			name:    "literal IPv6",
			host:    "2001:db8::1",
			wantErr: ErrNoIPv4Address,
		},
		{
			name: "first IPv4 wins",
			host: "example.test",
			addrs: []net.IPAddr{
				{IP: net.ParseIP("2001:db8::1")},
				{IP: net.ParseIP("198.51.100.1")},
				{IP: net.ParseIP("198.51.100.2")},
			},
			want: "198.51.100.1",
		},
		{
			name:    "only IPv6",
			host:    "v6only.test",
			addrs:   []net.IPAddr{{IP: net.ParseIP("2001:db8::2")}},
			wantErr: ErrNoIPv4Address,
		},
		{
			name:    "resolver error",
			host:    "missing.test",
			err:     &net.DNSError{Err: "no such host", Name: "missing.test", IsNotFound: true},
			wantErr: &net.DNSError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockResolver{addrs: tt.addrs, err: tt.err}
			ip, err := ResolveIPv4(context.Background(), r, tt.host)

			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("ResolveIPv4() = %v, want error", ip)
				}
				var dnsErr *net.DNSError
				if _, isDNS := tt.wantErr.(*net.DNSError); isDNS {
					if !errors.As(err, &dnsErr) {
						t.Errorf("ResolveIPv4() error = %v, want *net.DNSError", err)
					}
				} else if !errors.Is(err, tt.wantErr) {
					t.Errorf("ResolveIPv4() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("ResolveIPv4() error = %v", err)
			}
			if ip.String() != tt.want {
				t.Errorf("ResolveIPv4() = %v, want %s", ip, tt.want)
			}
			if len(ip) != net.IPv4len {
				t.Errorf("ResolveIPv4() returned %d-byte IP, want 4", len(ip))
			}
		})
	}
}

func TestResolveIPv4_LiteralSkipsResolver(t *testing.T) {
	r := &mockResolver{err: errors.New("should not be called")}
	if _, err := ResolveIPv4(context.Background(), r, "127.0.0.1"); err != nil {
		t.Fatalf("ResolveIPv4() error = %v", err)
	}
	if len(r.hosts) != 0 {
		t.Errorf("resolver called for a literal address: %v", r.hosts)
	}
}
