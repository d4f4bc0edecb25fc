package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/arpfuzzer/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arpfuzzer.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
arpfuzzer:
  interface: veth0
  frame:
    sender_mac: "02:00:00:00:00:01"
    sender_ip: 10.1.0.1
    target_ip: 10.1.0.2
    opcode: "0x0002"
  filters:
    opcode: 2
    targetIp: 10.1.0.1
  capture:
    poll_timeout: 500ms
    arp_only: false
  notify:
    enabled: true
    socket: /tmp/depth.sock
    attempts: 3
  send:
    count: 4
    interval: 10ms
  log:
    level: debug
    format: pattern
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "veth0", cfg.Interface)
	assert.Equal(t, 500*time.Millisecond, cfg.Capture.PollTimeout)
	assert.False(t, cfg.Capture.ARPOnly)
	assert.True(t, cfg.Capture.Enabled)
	assert.Equal(t, 4, cfg.Send.Count)
	assert.Equal(t, 10*time.Millisecond, cfg.Send.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "pattern", cfg.Log.Format)
	assert.NotEmpty(t, cfg.Log.Pattern)

	assert.Equal(t, uint16(core.OpReply), cfg.Frame.Opcode)
	assert.True(t, cfg.Frame.SenderMAC.Valid)
	assert.Equal(t, core.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}, cfg.Frame.SenderMAC.Addr)
	assert.False(t, cfg.Frame.HdrSrcMAC.Valid)
	assert.True(t, cfg.Frame.HdrDstMAC.Valid)
	assert.Equal(t, core.BroadcastMAC, cfg.Frame.HdrDstMAC.Addr)

	// viper lowercases keys; field names still resolve.
	engine, err := cfg.Filters()
	require.NoError(t, err)
	assert.Equal(t, "opcode=0x0002 && target-ip=10.1.0.1", engine.String())

	n := cfg.NotifyOptions()
	require.NotNil(t, n)
	assert.Equal(t, "/tmp/depth.sock", n.Socket)
	assert.Equal(t, 3, n.Attempts)
}

func TestDefaults(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "eth0", cfg.Interface)
	assert.Equal(t, 3*time.Second, cfg.Capture.PollTimeout)
	assert.True(t, cfg.Capture.ARPOnly)
	assert.Equal(t, "/var/run/arpfuzzer.sock", cfg.Control.Socket)
	assert.Equal(t, ":9092", cfg.Metrics.Listen)
	assert.Equal(t, "/tmp/.arpfuzzer.uddsocket.server", cfg.Notify.Socket)
	assert.Equal(t, 5, cfg.Notify.Attempts)
	assert.Equal(t, time.Millisecond, cfg.Notify.Backoff)
	assert.Nil(t, cfg.NotifyOptions())
	assert.Equal(t, 1, cfg.Send.Count)

	f := cfg.Frame.FrameTemplate(core.HardwareAddr{}, core.IPv4{})
	assert.Equal(t, core.BroadcastMAC, f.HdrDstMAC())
	assert.Equal(t, uint16(core.EtherTypeARP), f.FrameType())
	assert.Equal(t, uint8(6), f.HardwareSize())
	assert.Equal(t, uint8(4), f.ProtocolSize())
	assert.Equal(t, uint16(core.OpRequest), f.Opcode())
	assert.Equal(t, core.IPv4{127, 0, 0, 1}, f.TargetIP())
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ARPFUZZER_CAPTURE_POLL_TIMEOUT", "250ms")
	t.Setenv("ARPFUZZER_INTERFACE", "lo")

	cfg, err := Load(writeConfig(t, "arpfuzzer:\n  interface: eth9\n"))
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Capture.PollTimeout)
	assert.Equal(t, "lo", cfg.Interface)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "arpfuzzer:\n  log:\n    level: trace\n"},
		{"log format", "arpfuzzer:\n  log:\n    format: xml\n"},
		{"poll timeout too long", "arpfuzzer:\n  capture:\n    poll_timeout: 11s\n"},
		{"unknown filter field", "arpfuzzer:\n  filters:\n    ttl: 3\n"},
		{"header mac filter", "arpfuzzer:\n  filters:\n    hdr-dst-mac: ff:ff:ff:ff:ff:ff\n"},
		{"filter value", "arpfuzzer:\n  filters:\n    opcode: 70000\n"},
		{"bad frame mac", "arpfuzzer:\n  frame:\n    sender_mac: nope\n"},
		{"bad frame ip", "arpfuzzer:\n  frame:\n    target_ip: \"::1\"\n"},
		{"send count", "arpfuzzer:\n  send:\n    count: 0\n"},
		{"notify attempts", "arpfuzzer:\n  notify:\n    enabled: true\n    attempts: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestFrameTemplateResolvesLocalAddrs(t *testing.T) {
	local := core.HardwareAddr{0x02, 0xaa, 0, 0, 0, 0x01}
	ip := core.IPv4{192, 168, 7, 1}

	fc := FrameConfig{
		FrameType:    core.EtherTypeARP,
		HardwareType: core.HardwareTypeEthernet,
		ProtocolType: core.ProtocolTypeIPv4,
		HardwareSize: 6,
		ProtocolSize: 4,
		Opcode:       core.OpRequest,
		TargetIP:     OptionalIPv4{Addr: core.IPv4{192, 168, 7, 2}, Valid: true},
	}
	assert.True(t, fc.NeedsLocalAddrs())

	f := fc.FrameTemplate(local, ip)
	assert.Equal(t, local, f.HdrSrcMAC())
	assert.Equal(t, local, f.SenderMAC())
	assert.Equal(t, ip, f.SenderIP())
	assert.Equal(t, core.BroadcastMAC, f.HdrDstMAC())
	assert.True(t, f.TargetMAC().IsZero())
	assert.Equal(t, core.IPv4{192, 168, 7, 2}, f.TargetIP())

	fc.HdrSrcMAC = OptionalMAC{Addr: core.HardwareAddr{1, 2, 3, 4, 5, 6}, Valid: true}
	fc.SenderMAC = fc.HdrSrcMAC
	fc.SenderIP = OptionalIPv4{Addr: core.IPv4{1, 1, 1, 1}, Valid: true}
	assert.False(t, fc.NeedsLocalAddrs())
	f = fc.FrameTemplate(local, ip)
	assert.Equal(t, core.HardwareAddr{1, 2, 3, 4, 5, 6}, f.SenderMAC())
	assert.Equal(t, core.IPv4{1, 1, 1, 1}, f.SenderIP())
}

func TestOptionalText(t *testing.T) {
	var m OptionalMAC
	require.NoError(t, m.UnmarshalText([]byte(" ")))
	assert.False(t, m.Valid)
	require.NoError(t, m.UnmarshalText([]byte("aa:bb:cc:dd:ee:ff")))
	text, err := m.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", string(text))

	var ip OptionalIPv4
	assert.Error(t, ip.UnmarshalText([]byte("300.1.1.1")))
	text, err = ip.MarshalText()
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "arpfuzzer.yml"))
	require.NoError(t, err)

	assert.Equal(t, "eth0", cfg.Interface)
	assert.Equal(t, uint16(core.EtherTypeARP), cfg.Frame.FrameType)
	assert.Equal(t, "/var/run/arpfuzzer.pid", cfg.Control.PIDFile)
	assert.Equal(t, 3*time.Second, cfg.Capture.PollTimeout)

	engine, err := cfg.Filters()
	require.NoError(t, err)
	assert.Equal(t, 2, engine.Len())
}
