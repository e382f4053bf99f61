package icmp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/postalsys/echoping/internal/logging"
	"github.com/postalsys/echoping/internal/metrics"
	"github.com/postalsys/echoping/internal/recovery"
)

// ErrDestinationNotAllowed is returned when AllowedCIDRs is set and the
// destination is outside every listed network.
var ErrDestinationNotAllowed = errors.New("destination not allowed")

// Pinger opens a transport per destination and runs a session over it.
type Pinger struct {
	config   Config
	open     OpenFunc
	reporter Reporter
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// NewIdentifier returns the identifier for the next session.
	// Defaults to ProcessIdentifier.
	NewIdentifier func() uint16
}

// NewPinger creates a pinger. A nil open uses OpenRawSocket.
func NewPinger(cfg Config, open OpenFunc, reporter Reporter, m *metrics.Metrics, logger *slog.Logger) *Pinger {
	if open == nil {
		open = OpenRawSocket
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Pinger{
		config:        cfg.withDefaults(),
		open:          open,
		reporter:      reporter,
		metrics:       m,
		logger:        logger,
		NewIdentifier: ProcessIdentifier,
	}
}

// ProcessIdentifier derives an echo identifier from the process id.
func ProcessIdentifier() uint16 {
	return uint16(os.Getpid() & 0xffff)
}

// Ping runs one session against dst. The transport is opened for dst's
// address family and closed when the session ends, however it ends. A panic
// in the reporter is returned as a *recovery.PanicError.
func (p *Pinger) Ping(ctx context.Context, dst net.IP) (err error) {
	defer recovery.RecoverToError(p.logger, "icmp", &err)

	if dst == nil {
		return fmt.Errorf("no destination address")
	}
	if len(p.config.AllowedCIDRs) > 0 && !p.config.IsDestinationAllowed(dst) {
		return fmt.Errorf("%s: %w", dst, ErrDestinationNotAllowed)
	}

	transport, err := p.open(FamilyOf(dst))
	if err != nil {
		return &SessionError{Stage: StageSetup, Err: err}
	}
	defer func() {
		if cerr := transport.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close transport: %w", cerr)
		}
	}()

	s := NewSession(p.config, transport, dst, p.NewIdentifier(), p.reporter, p.metrics, p.logger)
	return s.Run(ctx)
}
