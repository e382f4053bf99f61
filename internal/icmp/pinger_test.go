package icmp

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/postalsys/echoping/internal/recovery"
)

func TestPinger_OpensAndClosesTransport(t *testing.T) {
	tr := &mockTransport{}
	for seq := uint16(0); seq < 4; seq++ {
		tr.recvs = append(tr.recvs, recvResult{data: echoReply(t, 7, seq), peer: testDst})
	}

	var opened []Family
	open := func(f Family) (Transport, error) {
		opened = append(opened, f)
		return tr, nil
	}

	rep := &mockReporter{}
	p := NewPinger(DefaultConfig(), open, rep, nil, nil)
	p.NewIdentifier = func() uint16 { return 7 }

	if err := p.Ping(context.Background(), testDst); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if len(opened) != 1 || opened[0] != FamilyIPv4 {
		t.Errorf("opened = %v, want [ipv4]", opened)
	}
	if !tr.closed {
		t.Error("transport was not closed")
	}
	if len(rep.received) != 4 {
		t.Errorf("EchoReceived calls = %d, want 4", len(rep.received))
	}
	for _, req := range rep.sent {
		if req.Identifier != 7 {
			t.Errorf("request identifier = %d, want 7", req.Identifier)
		}
	}
}

func TestPinger_ClosesTransportOnAbort(t *testing.T) {
	tr := &mockTransport{recvs: []recvResult{{err: ErrTimeout}}}
	p := NewPinger(DefaultConfig(), func(Family) (Transport, error) { return tr, nil }, nil, nil, nil)

	err := p.Ping(context.Background(), testDst)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Ping() error = %v, want ErrTimeout", err)
	}
	if !tr.closed {
		t.Error("transport was not closed after abort")
	}
}

func TestPinger_OpenFailure(t *testing.T) {
	openErr := errors.New("operation not permitted")
	p := NewPinger(DefaultConfig(), func(Family) (Transport, error) { return nil, openErr }, nil, nil, nil)

	err := p.Ping(context.Background(), testDst)
	if !errors.Is(err, openErr) {
		t.Fatalf("Ping() error = %v, want %v", err, openErr)
	}
	var se *SessionError
	if !errors.As(err, &se) || se.Stage != StageSetup {
		t.Errorf("Ping() error = %v, want setup failure", err)
	}
}

func TestPinger_IPv6Family(t *testing.T) {
	var opened Family = -1
	open := func(f Family) (Transport, error) {
		opened = f
		return nil, errors.New("stop")
	}

	p := NewPinger(DefaultConfig(), open, nil, nil, nil)
	_ = p.Ping(context.Background(), net.ParseIP("2001:db8::1"))
	if opened != FamilyIPv6 {
		t.Errorf("opened family = %v, want ipv6", opened)
	}
}

func TestPinger_DestinationNotAllowed(t *testing.T) {
	cidrs, err := ParseCIDRs([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("ParseCIDRs() error = %v", err)
	}

	cfg := DefaultConfig()
	cfg.AllowedCIDRs = cidrs

	openCalled := false
	p := NewPinger(cfg, func(Family) (Transport, error) {
		openCalled = true
		return &mockTransport{}, nil
	}, nil, nil, nil)

	err = p.Ping(context.Background(), testDst)
	if !errors.Is(err, ErrDestinationNotAllowed) {
		t.Fatalf("Ping() error = %v, want ErrDestinationNotAllowed", err)
	}
	if openCalled {
		t.Error("transport opened for a rejected destination")
	}
}

func TestPinger_NilDestination(t *testing.T) {
	p := NewPinger(DefaultConfig(), func(Family) (Transport, error) {
		t.Fatal("transport opened without a destination")
		return nil, nil
	}, nil, nil, nil)

	if err := p.Ping(context.Background(), nil); err == nil {
		t.Error("Ping(nil) should fail")
	}
}

// panicReporter panics on the first sent request.
type panicReporter struct{ mockReporter }

func (r *panicReporter) EchoSent(*EchoMessage, int, net.IP) {
	panic("reporter failure")
}

func TestPinger_ReporterPanic(t *testing.T) {
	tr := &mockTransport{}
	p := NewPinger(DefaultConfig(), func(Family) (Transport, error) { return tr, nil }, &panicReporter{}, nil, nil)

	err := p.Ping(context.Background(), testDst)
	var pe *recovery.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("Ping() error = %v, want *recovery.PanicError", err)
	}
	if !tr.closed {
		t.Error("transport was not closed after a panic")
	}
}

func TestProcessIdentifier(t *testing.T) {
	if ProcessIdentifier() != ProcessIdentifier() {
		t.Error("ProcessIdentifier() is not stable within a process")
	}
}
