// Package report renders echo session progress for a terminal or a pipe.
package report

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/postalsys/echoping/internal/health"
	"github.com/postalsys/echoping/internal/icmp"
)

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type styles struct {
	header   lipgloss.Style
	sent     lipgloss.Style
	received lipgloss.Style
	warn     lipgloss.Style
	summary  lipgloss.Style
}

func newStyles() styles {
	return styles{
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		sent:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		received: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warn:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		summary:  lipgloss.NewStyle().Bold(true),
	}
}

// Printer writes one line per session event. It implements icmp.Reporter
// and health.StatsProvider.
type Printer struct {
	w      io.Writer
	styled bool
	styles styles

	mu             sync.Mutex
	dst            net.IP
	running        bool
	sent           int
	received       int
	decodeFailures int
	bytesSent      uint64
	rttMin         time.Duration
	rttMax         time.Duration
	rttSum         time.Duration
}

// NewPrinter creates a printer. styled enables colors and bold text.
func NewPrinter(w io.Writer, styled bool) *Printer {
	return &Printer{
		w:      w,
		styled: styled,
		styles: newStyles(),
	}
}

func (p *Printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *Printer) println(s lipgloss.Style, format string, args ...interface{}) {
	fmt.Fprintln(p.w, p.render(s, fmt.Sprintf(format, args...)))
}

// Resolved prints the address a hostname resolved to.
func (p *Printer) Resolved(ip net.IP) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.println(p.styles.sent, "Attempting to ping address: %s", ip)
}

// SessionStarted prints the session banner.
func (p *Printer) SessionStarted(dst net.IP, payloadSize int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dst = dst
	p.running = true
	p.println(p.styles.header, "PING %s: %d data bytes", dst, payloadSize)
}

// EchoSent prints a sent request.
func (p *Printer) EchoSent(req *icmp.EchoMessage, n int, dst net.IP) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sent++
	p.bytesSent += uint64(n)
	p.println(p.styles.sent, "Sent %d bytes (ID: %d, Seq: %d) to %s",
		n, req.Identifier, req.Sequence, dst)
}

// EchoReceived prints a received reply, or the decode failure in its place.
func (p *Printer) EchoReceived(ex *icmp.Exchange) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.received++
	if p.received == 1 || ex.RTT < p.rttMin {
		p.rttMin = ex.RTT
	}
	if ex.RTT > p.rttMax {
		p.rttMax = ex.RTT
	}
	p.rttSum += ex.RTT

	if ex.DecodeErr != nil {
		p.decodeFailures++
		reason := "malformed"
		var de *icmp.DecodeError
		if errors.As(ex.DecodeErr, &de) {
			reason = de.Reason.String()
		}
		p.println(p.styles.warn, "Received %d bytes (undecodable: %s) from %s time=%s",
			ex.BytesRecv, reason, ex.Peer, formatRTT(ex.RTT))
		return
	}

	r := ex.Reply
	p.println(p.styles.received, "Received %d bytes (Type: %d, Code: %d, ID: %d, Seq: %d) from %s time=%s",
		ex.BytesRecv, uint8(r.Kind), r.Code, r.Identifier, r.Sequence, ex.Peer, formatRTT(ex.RTT))
}

// Finish marks the session as over and prints the summary.
func (p *Printer) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false

	loss := 0.0
	if p.sent > 0 {
		loss = float64(p.sent-p.received) / float64(p.sent) * 100
	}

	p.println(p.styles.summary, "--- %s ping statistics ---", p.dst)
	fmt.Fprintf(p.w, "%d packets transmitted, %d received, %.0f%% packet loss, %s sent\n",
		p.sent, p.received, loss, humanize.IBytes(p.bytesSent))
	if p.received > 0 {
		avg := p.rttSum / time.Duration(p.received)
		fmt.Fprintf(p.w, "rtt min/avg/max = %s/%s/%s\n",
			formatRTT(p.rttMin), formatRTT(avg), formatRTT(p.rttMax))
	}
}

// IsRunning reports whether a session has started and not finished.
func (p *Printer) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns the session counters.
func (p *Printer) Stats() health.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var dst string
	if p.dst != nil {
		dst = p.dst.String()
	}
	return health.Stats{
		Destination:    dst,
		Sent:           p.sent,
		Received:       p.received,
		DecodeFailures: p.decodeFailures,
	}
}

func formatRTT(d time.Duration) string {
	return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
}
