package dump

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/arpfuzzer/internal/core"
)

func init() {
	color.NoColor = true
}

var (
	hostA = core.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x0a}
	hostB = core.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x0b}
	at    = time.Date(2024, 5, 1, 12, 30, 45, 123456000, time.UTC)
)

func captured(f core.Frame) core.CapturedFrame {
	return core.CapturedFrame{Frame: f, Seq: 7, ReceivedAt: at}
}

func request() core.Frame {
	f := core.DefaultFrame()
	f.SetHdrDstMAC(core.BroadcastMAC)
	f.SetHdrSrcMAC(hostA)
	f.SetSenderMAC(hostA)
	f.SetSenderIP(core.IPv4{10, 0, 0, 10})
	f.SetTargetIP(core.IPv4{10, 0, 0, 11})
	return f
}

func TestFormatRequest(t *testing.T) {
	line := Format(captured(request()))
	assert.Equal(t,
		"#7 12:30:45.123456 02:00:00:00:00:0a > ff:ff:ff:ff:ff:ff ARP request who-has 10.0.0.11 tell 10.0.0.10 (02:00:00:00:00:0a)",
		line)
}

func TestFormatReply(t *testing.T) {
	f := request()
	f.SetOpcode(core.OpReply)
	f.SetHdrDstMAC(hostB)
	f.SetTargetMAC(hostB)

	line := Format(captured(f))
	assert.Contains(t, line, "ARP reply 10.0.0.10 is-at 02:00:00:00:00:0a")
}

func TestFormatUnknownOpcode(t *testing.T) {
	f := request()
	f.SetOpcode(9)
	assert.Contains(t, Format(captured(f)), "ARP op=9 02:00:00:00:00:0a/10.0.0.10 > 00:00:00:00:00:00/10.0.0.11")
}

func TestFormatMalformedFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*core.Frame)
	}{
		{"non-arp ethertype", func(f *core.Frame) { f.SetFrameType(0x88b5) }},
		{"bad hardware size", func(f *core.Frame) { f.SetHardwareSize(255) }},
		{"bad protocol type", func(f *core.Frame) { f.SetProtocolType(0x86dd) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := request()
			tt.mutate(&f)
			line := Format(captured(f))
			assert.Contains(t, line, "malformed")
			assert.Contains(t, line, "op=1")
			assert.True(t, strings.HasPrefix(line, "#7 "))
		})
	}
}

func TestPrinterWithHex(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)
	require.NoError(t, p.Print(captured(request())))

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	// One summary line plus three hexdump rows for 42 bytes.
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "ff ff ff ff ff ff 02 00")
}
