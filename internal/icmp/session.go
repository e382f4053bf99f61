package icmp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/postalsys/echoping/internal/logging"
	"github.com/postalsys/echoping/internal/metrics"
)

// SessionState represents the state of an echo session.
type SessionState int

const (
	// StateIdle means no exchange has started yet.
	StateIdle SessionState = iota
	// StateSending means a request is being built and sent.
	StateSending
	// StateReceiving means the session is blocked waiting for a reply.
	StateReceiving
	// StateDone means every exchange completed.
	StateDone
	// StateAborted means an exchange failed and the session stopped.
	StateAborted
)

// String returns a human-readable name for the state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSending:
		return "SENDING"
	case StateReceiving:
		return "RECEIVING"
	case StateDone:
		return "DONE"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Stage names the step of an exchange that failed.
type Stage string

const (
	StageSetup   Stage = "setup"
	StageSend    Stage = "send"
	StageReceive Stage = "receive"
	StageTimeout Stage = "timeout"
	StageCancel  Stage = "cancel"
)

// SessionError is returned when a session aborts.
type SessionError struct {
	Seq   uint16
	Stage Stage
	Err   error
}

func (e *SessionError) Error() string {
	if e.Stage == StageSetup {
		return fmt.Sprintf("session setup: %v", e.Err)
	}
	return fmt.Sprintf("icmp_seq %d: %s: %v", e.Seq, e.Stage, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Exchange is the outcome of one request/reply cycle.
type Exchange struct {
	Request   EchoMessage
	Reply     EchoMessage
	BytesSent int
	BytesRecv int
	Peer      net.IP
	RTT       time.Duration

	// DecodeErr is set when the reply could not be decoded and the session
	// is not lenient. Reply is then the zero message and the session
	// carries on.
	DecodeErr error
}

// Reporter receives session progress. Calls happen on the session's
// goroutine, in order.
type Reporter interface {
	SessionStarted(dst net.IP, payloadSize int)
	EchoSent(req *EchoMessage, n int, dst net.IP)
	EchoReceived(ex *Exchange)
}

// Session runs count sequential echo exchanges against one destination over
// one transport.
//
// Exactly one request is in flight at a time, so the next datagram the
// transport yields is taken as the reply to the last request. Replies are not
// matched against the request's identifier or sequence number; another
// process pinging the same host can therefore be reported as a reply.
type Session struct {
	cfg       Config
	transport Transport
	dst       net.IP
	id        uint16

	reporter Reporter
	metrics  *metrics.Metrics
	logger   *slog.Logger

	state     SessionState
	completed int
}

// NewSession creates a session. The transport is used but not closed; its
// owner releases it.
func NewSession(cfg Config, transport Transport, dst net.IP, id uint16, reporter Reporter, m *metrics.Metrics, logger *slog.Logger) *Session {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Session{
		cfg:       cfg.withDefaults(),
		transport: transport,
		dst:       dst,
		id:        id,
		reporter:  reporter,
		metrics:   m,
		logger:    logger.With(slog.String(logging.KeyComponent, "icmp")),
		state:     StateIdle,
	}
}

// State returns the current state.
func (s *Session) State() SessionState {
	return s.state
}

// Completed returns the number of exchanges that received a reply.
func (s *Session) Completed() int {
	return s.completed
}

// Identifier returns the session identifier carried in every request.
func (s *Session) Identifier() uint16 {
	return s.id
}

// Run executes the session. It returns nil when every exchange completed and
// a *SessionError otherwise. Later sequence numbers are never attempted after
// a failure. ctx is checked between exchanges; a receive in progress is only
// bounded by the configured timeout.
func (s *Session) Run(ctx context.Context) error {
	if s.state != StateIdle {
		return fmt.Errorf("session already ran (state %s)", s.state)
	}

	if s.cfg.Count > MaxCount {
		return s.abort(&SessionError{Stage: StageSetup, Err: ErrCountTooLarge})
	}
	if err := s.transport.SetReadTimeout(s.cfg.Timeout); err != nil {
		return s.abort(&SessionError{Stage: StageSetup, Err: err})
	}

	family := FamilyOf(s.dst)
	s.metrics.RecordSessionStart(family.String())
	if s.reporter != nil {
		s.reporter.SessionStarted(s.dst, max(s.cfg.PayloadSize, MinPayloadSize))
	}

	s.logger.Debug("session started",
		logging.KeyAddress, s.dst.String(),
		logging.KeyIdentifier, s.id,
		logging.KeyCount, s.cfg.Count)

	var limiter *rate.Limiter
	if s.cfg.Interval > 0 {
		limiter = rate.NewLimiter(rate.Every(s.cfg.Interval), 1)
	}

	// Room for the largest IPv4 header in front of a full-size reply.
	buf := make([]byte, max(ReceiveBufferSize, maxIPv4HeaderLen+HeaderLen+s.cfg.PayloadSize))
	for i := 0; i < s.cfg.Count; i++ {
		seq := uint16(i)

		if err := ctx.Err(); err != nil {
			return s.abort(&SessionError{Seq: seq, Stage: StageCancel, Err: err})
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return s.abort(&SessionError{Seq: seq, Stage: StageCancel, Err: err})
			}
		}

		if err := s.exchange(family, seq, buf); err != nil {
			return s.abort(err)
		}
	}

	s.state = StateDone
	s.logger.Debug("session done",
		logging.KeyAddress, s.dst.String(),
		logging.KeyCount, s.completed)
	return nil
}

func (s *Session) exchange(family Family, seq uint16, buf []byte) *SessionError {
	s.state = StateSending

	req := Build(family, s.id, seq, s.cfg.PayloadSize)
	req.SetChecksum()

	start := time.Now()
	sent, err := s.transport.SendTo(req.Marshal(), s.dst)
	if err != nil {
		return &SessionError{Seq: seq, Stage: StageSend, Err: err}
	}
	s.metrics.RecordEchoSent(sent)
	if s.reporter != nil {
		s.reporter.EchoSent(&req, sent, s.dst)
	}

	s.state = StateReceiving
	n, peer, err := s.transport.RecvFrom(buf)
	if err != nil {
		stage := StageReceive
		if errors.Is(err, ErrTimeout) {
			stage = StageTimeout
		}
		return &SessionError{Seq: seq, Stage: stage, Err: err}
	}
	rtt := time.Since(start)

	ex := &Exchange{
		Request:   req,
		BytesSent: sent,
		BytesRecv: n,
		Peer:      peer,
		RTT:       rtt,
	}
	if s.cfg.LenientDecode {
		ex.Reply = DecodeLenient(s.logger, buf[:n])
	} else {
		ex.Reply, ex.DecodeErr = Decode(buf[:n])
	}
	if ex.DecodeErr != nil {
		logDecodeFailure(s.logger, ex.DecodeErr)
		var de *DecodeError
		if errors.As(ex.DecodeErr, &de) {
			s.metrics.RecordDecodeFailure(de.Reason.String())
		}
	}

	s.metrics.RecordEchoReceived(n, rtt.Seconds())
	s.completed++
	s.logger.Debug("echo reply",
		logging.KeyPeer, peer.String(),
		logging.KeySequence, seq,
		logging.KeyLength, n,
		logging.KeyDuration, rtt)
	if s.reporter != nil {
		s.reporter.EchoReceived(ex)
	}
	return nil
}

func (s *Session) abort(err *SessionError) error {
	prev := s.state
	s.state = StateAborted
	s.metrics.RecordSessionAbort(string(err.Stage))
	s.logger.Debug("session aborted",
		logging.KeyState, prev.String(),
		logging.KeySequence, err.Seq,
		logging.KeyReason, string(err.Stage),
		logging.KeyError, err.Err)
	return err
}
