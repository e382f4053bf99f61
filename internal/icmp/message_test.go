package icmp

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/postalsys/echoping/internal/logging"
)

// withIPv4Header prepends a 20-byte IPv4 header to an ICMP message.
func withIPv4Header(t *testing.T, msg []byte) []byte {
	t.Helper()

	h := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(msg),
		TTL:      64,
		Protocol: ICMPv4ProtocolNumber,
		Src:      net.IPv4(192, 0, 2, 1),
		Dst:      net.IPv4(192, 0, 2, 2),
	}
	hdr, err := h.Marshal()
	if err != nil {
		t.Fatalf("ipv4.Header.Marshal() error = %v", err)
	}
	return append(hdr, msg...)
}

func TestBuild_Kind(t *testing.T) {
	tests := []struct {
		name   string
		family Family
		want   Kind
	}{
		{"ipv4", FamilyIPv4, 8},
		{"ipv6", FamilyIPv6, 128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Build(tt.family, 1, 2, 32)
			if m.Kind != tt.want {
				t.Errorf("Kind = %d, want %d", m.Kind, tt.want)
			}
			if m.Code != 0 {
				t.Errorf("Code = %d, want 0", m.Code)
			}
			if m.Checksum != 0 {
				t.Errorf("Checksum = %#04x, want 0", m.Checksum)
			}
		})
	}
}

func TestBuild_PayloadSize(t *testing.T) {
	tests := []struct {
		requested int
		want      int
	}{
		{0, 16},
		{-5, 16},
		{15, 16},
		{16, 16},
		{32, 32},
		{40, 40},
	}

	for _, tt := range tests {
		m := Build(FamilyIPv4, 0, 0, tt.requested)
		if len(m.Payload) != tt.want {
			t.Errorf("Build(size=%d) payload len = %d, want %d", tt.requested, len(m.Payload), tt.want)
		}
		if !bytes.Equal(m.Payload, make([]byte, tt.want)) {
			t.Errorf("Build(size=%d) payload is not zero-filled", tt.requested)
		}
	}
}

func TestFamilyOf(t *testing.T) {
	tests := []struct {
		ip   string
		want Family
	}{
		{"8.8.8.8", FamilyIPv4},
		{"::ffff:10.0.0.1", FamilyIPv4},
		{"::1", FamilyIPv6},
		{"2001:db8::1", FamilyIPv6},
	}

	for _, tt := range tests {
		if got := FamilyOf(net.ParseIP(tt.ip)); got != tt.want {
			t.Errorf("FamilyOf(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestComputeChecksum_KnownValue(t *testing.T) {
	m := Build(FamilyIPv4, 0, 0, 0)

	// Only the 0x0800 type/code word is non-zero.
	if got := ComputeChecksum(&m); got != 0xf7ff {
		t.Errorf("ComputeChecksum() = %#04x, want 0xf7ff", got)
	}
}

func TestComputeChecksum_Idempotent(t *testing.T) {
	m := Build(FamilyIPv4, 0x1234, 7, 33)
	for i := range m.Payload {
		m.Payload[i] = byte(i * 7)
	}
	payload := append([]byte{}, m.Payload...)

	first := ComputeChecksum(&m)
	second := ComputeChecksum(&m)
	if first != second {
		t.Errorf("ComputeChecksum() not idempotent: %#04x then %#04x", first, second)
	}

	m.SetChecksum()
	if again := ComputeChecksum(&m); again != first {
		t.Errorf("ComputeChecksum() after SetChecksum = %#04x, want %#04x", again, first)
	}
	if !bytes.Equal(m.Payload, payload) {
		t.Error("ComputeChecksum() modified the payload")
	}
}

func TestComputeChecksum_SelfConsistent(t *testing.T) {
	tests := []struct {
		name string
		id   uint16
		seq  uint16
		size int
		fill byte
	}{
		{"zero", 0, 0, 16, 0x00},
		{"default size", 4242, 3, 32, 0xab},
		{"odd payload", 0xffff, 0xffff, 17, 0xff},
		{"large payload", 0x8001, 512, 1400, 0x5a},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Build(FamilyIPv4, tt.id, tt.seq, tt.size)
			for i := range m.Payload {
				m.Payload[i] = tt.fill
			}
			m.SetChecksum()

			b := m.Marshal()
			if !ValidChecksum(b) {
				t.Errorf("marshalled message does not sum to 0xffff (checksum %#04x)", m.Checksum)
			}
			if got := Checksum(b); got != 0 {
				t.Errorf("Checksum(marshalled) = %#04x, want 0", got)
			}
		})
	}
}

func TestComputeChecksum_MatchesBytes(t *testing.T) {
	m := Build(FamilyIPv4, 99, 5, 21)
	m.Payload[20] = 0x7f

	// Checksum over the marshalled bytes with a zero checksum field must
	// agree with the field-wise computation, including the odd trailing byte.
	if got, want := ComputeChecksum(&m), Checksum(m.Marshal()); got != want {
		t.Errorf("ComputeChecksum() = %#04x, Checksum(bytes) = %#04x", got, want)
	}
}

func TestMarshal_Layout(t *testing.T) {
	m := EchoMessage{
		Kind:       KindEchoRequest,
		Code:       0,
		Checksum:   0xbeef,
		Identifier: 0x1234,
		Sequence:   0x0102,
		Payload:    []byte("0123456789abcdef"),
	}

	b := m.Marshal()
	want := append([]byte{8, 0, 0xbe, 0xef, 0x12, 0x34, 0x01, 0x02}, "0123456789abcdef"...)
	if !bytes.Equal(b, want) {
		t.Errorf("Marshal() = %x, want %x", b, want)
	}
	if len(b) != m.Len() {
		t.Errorf("len(Marshal()) = %d, Len() = %d", len(b), m.Len())
	}
}

func TestMarshal_ParsesWithXNetICMP(t *testing.T) {
	m := Build(FamilyIPv4, 4242, 9, 32)
	copy(m.Payload, "hello")
	m.SetChecksum()

	parsed, err := icmp.ParseMessage(ICMPv4ProtocolNumber, m.Marshal())
	if err != nil {
		t.Fatalf("icmp.ParseMessage() error = %v", err)
	}
	if parsed.Type != ipv4.ICMPTypeEcho {
		t.Errorf("Type = %v, want %v", parsed.Type, ipv4.ICMPTypeEcho)
	}
	if parsed.Checksum != int(m.Checksum) {
		t.Errorf("Checksum = %#04x, want %#04x", parsed.Checksum, m.Checksum)
	}
	echo, ok := parsed.Body.(*icmp.Echo)
	if !ok {
		t.Fatalf("Body = %T, want *icmp.Echo", parsed.Body)
	}
	if echo.ID != 4242 || echo.Seq != 9 {
		t.Errorf("ID/Seq = %d/%d, want 4242/9", echo.ID, echo.Seq)
	}
	if !bytes.Equal(echo.Data, m.Payload) {
		t.Errorf("Data = %x, want %x", echo.Data, m.Payload)
	}
}

func TestMarshal_MatchesXNetICMP(t *testing.T) {
	payload := bytes.Repeat([]byte{0xa5}, 32)

	ref, err := (&icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: 777, Seq: 3, Data: payload},
	}).Marshal(nil)
	if err != nil {
		t.Fatalf("icmp.Message.Marshal() error = %v", err)
	}

	m := Build(FamilyIPv4, 777, 3, 32)
	copy(m.Payload, payload)
	m.SetChecksum()

	if got := m.Marshal(); !bytes.Equal(got, ref) {
		t.Errorf("Marshal() = %x, want %x", got, ref)
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	for _, size := range []int{16, 17, 32, 56, 1000} {
		m := Build(FamilyIPv4, 0xcafe, uint16(size), size)
		for i := range m.Payload {
			m.Payload[i] = byte(i)
		}
		m.SetChecksum()

		raw := withIPv4Header(t, m.Marshal())
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode(size=%d) error = %v", size, err)
		}

		if got.Kind != m.Kind || got.Code != m.Code || got.Checksum != m.Checksum ||
			got.Identifier != m.Identifier || got.Sequence != m.Sequence {
			t.Errorf("Decode(size=%d) header = %+v, want %+v", size, got, m)
		}
		if !bytes.Equal(got.Payload, m.Payload) {
			t.Errorf("Decode(size=%d) payload mismatch", size)
		}
	}
}

func TestDecode_HeaderWithOptions(t *testing.T) {
	m := Build(FamilyIPv4, 1, 2, 16)
	m.Kind = KindEchoReply
	m.SetChecksum()

	// IHL=6: 24-byte header with one word of options.
	raw := make([]byte, 24)
	raw[0] = 0x46
	raw = append(raw, m.Marshal()...)

	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Kind != KindEchoReply || got.Identifier != 1 || got.Sequence != 2 {
		t.Errorf("Decode() = %+v", got)
	}
	if len(got.Payload) != 16 {
		t.Errorf("payload len = %d, want 16", len(got.Payload))
	}
}

func TestDecode_HeaderOnly(t *testing.T) {
	raw := make([]byte, 28)
	raw[0] = 0x45
	raw[20] = byte(KindEchoReply)
	raw[24], raw[25] = 0x00, 0x2a

	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Identifier != 42 {
		t.Errorf("Identifier = %d, want 42", got.Identifier)
	}
	if len(got.Payload) != 0 {
		t.Errorf("payload len = %d, want 0", len(got.Payload))
	}
}

func TestDecode_DoesNotAlias(t *testing.T) {
	m := Build(FamilyIPv4, 1, 1, 16)
	raw := withIPv4Header(t, m.Marshal())

	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	raw[len(raw)-1] = 0xff
	if got.Payload[len(got.Payload)-1] != 0 {
		t.Error("decoded payload aliases the receive buffer")
	}
}

func TestDecode_Malformed(t *testing.T) {
	ihl3 := make([]byte, 64)
	ihl3[0] = 0x43

	ihl15 := make([]byte, 40)
	ihl15[0] = 0x4f

	truncated := make([]byte, 25)
	truncated[0] = 0x45

	tests := []struct {
		name   string
		raw    []byte
		reason DecodeReason
		want   error
	}{
		{"empty", nil, ReasonTooShort, ErrTooShort},
		{"ten bytes", make([]byte, 10), ReasonTooShort, ErrTooShort},
		{"nineteen bytes", append([]byte{0x45}, make([]byte, 18)...), ReasonTooShort, ErrTooShort},
		{"IHL below minimum", ihl3, ReasonBadHeaderLength, ErrBadHeaderLength},
		{"IHL past end", ihl15, ReasonBadHeaderLength, ErrBadHeaderLength},
		{"IHL zero", make([]byte, 40), ReasonBadHeaderLength, ErrBadHeaderLength},
		{"truncated ICMP header", truncated, ReasonTruncatedHeader, ErrTruncatedHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			if err == nil {
				t.Fatal("Decode() should fail")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}

			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("Decode() error type = %T, want *DecodeError", err)
			}
			if de.Reason != tt.reason {
				t.Errorf("Reason = %v, want %v", de.Reason, tt.reason)
			}
			if de.Length != len(tt.raw) {
				t.Errorf("Length = %d, want %d", de.Length, len(tt.raw))
			}
			if !got.IsZero() {
				t.Errorf("Decode() message = %+v, want zero", got)
			}
		})
	}
}

func TestDecodeLenient(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLoggerWithWriter("warn", "text", &buf)

	got := DecodeLenient(logger, make([]byte, 10))
	if !got.IsZero() {
		t.Errorf("DecodeLenient() = %+v, want zero", got)
	}
	out := buf.String()
	if !strings.Contains(out, "too short") {
		t.Errorf("expected diagnostic, got: %s", out)
	}
	if !strings.Contains(out, "reason=too_short") {
		t.Errorf("expected reason attribute, got: %s", out)
	}
}

func TestDecodeLenient_Valid(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLoggerWithWriter("debug", "text", &buf)

	m := Build(FamilyIPv4, 5, 6, 16)
	m.SetChecksum()

	got := DecodeLenient(logger, withIPv4Header(t, m.Marshal()))
	if got.Identifier != 5 || got.Sequence != 6 {
		t.Errorf("DecodeLenient() = %+v", got)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output: %s", buf.String())
	}
}

func TestDecodeReason_String(t *testing.T) {
	tests := []struct {
		reason DecodeReason
		want   string
	}{
		{ReasonTooShort, "too_short"},
		{ReasonBadHeaderLength, "bad_header_length"},
		{ReasonTruncatedHeader, "truncated_icmp_header"},
		{DecodeReason(0), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.reason.String(); got != tt.want {
			t.Errorf("DecodeReason(%d).String() = %q, want %q", tt.reason, got, tt.want)
		}
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindEchoReply, "echo reply"},
		{KindEchoRequest, "echo request"},
		{KindEchoRequestV6, "echo request (v6)"},
		{KindEchoReplyV6, "echo reply (v6)"},
		{Kind(3), "type 3"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
