package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/arpfuzzer/internal/config"
	"firestige.xyz/arpfuzzer/internal/core"
	"firestige.xyz/arpfuzzer/internal/dump"
	"firestige.xyz/arpfuzzer/internal/fuzzer"
)

func init() {
	color.NoColor = true
}

// echoLink hands every sent frame back to the receive side.
type echoLink struct {
	mu       sync.Mutex
	sent     int
	rx       chan []byte
	pending  []byte
	closeErr error
}

func (l *echoLink) Send(f *core.Frame) (int, error) {
	l.mu.Lock()
	l.sent++
	l.mu.Unlock()
	b := f.Encode()
	l.rx <- b
	return len(b), nil
}

func (l *echoLink) Wait(timeout time.Duration) (bool, error) {
	select {
	case b := <-l.rx:
		l.pending = b
		return true, nil
	case <-time.After(timeout):
		return false, nil
	}
}

func (l *echoLink) Receive(buf []byte) (int, error) { return copy(buf, l.pending), nil }
func (l *echoLink) Close() error                    { return l.closeErr }

func newCmdFuzzer(t *testing.T, cfg *config.Config) (*fuzzer.Fuzzer, *echoLink) {
	t.Helper()
	link := &echoLink{rx: make(chan []byte, 64)}
	engine, err := cfg.Filters()
	require.NoError(t, err)
	f, err := fuzzer.New(fuzzer.Config{
		Interface:   "lo",
		Link:        link,
		Frame:       core.DefaultFrame(),
		Filter:      engine,
		PollTimeout: cfg.Capture.PollTimeout,
	})
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f, link
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Interface = "lo"
	cfg.Capture.PollTimeout = 100 * time.Millisecond
	return cfg
}

func TestRunSendCapturesEcho(t *testing.T) {
	cfg := testConfig(t)
	cfg.Send.Count = 3
	f, link := newCmdFuzzer(t, cfg)

	var out bytes.Buffer
	err := runSend(context.Background(), f, cfg, []string{"opcode=2", "sender-ip=10.0.0.7"}, &out)
	require.NoError(t, err)

	assert.Equal(t, 3, link.sent)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "sent 3/3 frame(s) on lo", lines[0])
	assert.Contains(t, lines[1], "ARP reply 10.0.0.7 is-at")
	assert.Equal(t, "captured 3 frame(s), 3 received, 0 filtered, 0 short", lines[4])
	assert.Equal(t, "stopped", f.CaptureStatus().State)
}

func TestRunSendWithoutCapture(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capture.Enabled = false
	f, link := newCmdFuzzer(t, cfg)

	var out bytes.Buffer
	require.NoError(t, runSend(context.Background(), f, cfg, nil, &out))
	assert.Equal(t, 1, link.sent)
	assert.Equal(t, "sent 1/1 frame(s) on lo\n", out.String())
	assert.Equal(t, "idle", f.CaptureStatus().State)
}

func TestRunSendRejectsOverrides(t *testing.T) {
	cfg := testConfig(t)
	f, link := newCmdFuzzer(t, cfg)

	assert.ErrorIs(t, runSend(context.Background(), f, cfg, []string{"opcode"}, &bytes.Buffer{}), core.ErrInvalidValue)
	assert.ErrorIs(t, runSend(context.Background(), f, cfg, []string{"ttl=3"}, &bytes.Buffer{}), core.ErrUnknownField)
	assert.Zero(t, link.sent)
}

func TestRunSendRejectsRepeatOverride(t *testing.T) {
	for _, count := range []int{0, -3} {
		cfg := testConfig(t)
		cfg.Send.Count = count
		f, link := newCmdFuzzer(t, cfg)

		var out bytes.Buffer
		err := runSend(context.Background(), f, cfg, nil, &out)
		assert.ErrorIs(t, err, core.ErrConfigInvalid, "count %d", count)
		assert.Zero(t, link.sent)
		assert.Empty(t, out.String())
		assert.Equal(t, "idle", f.CaptureStatus().State)
	}

	cfg := testConfig(t)
	cfg.Send.Interval = -time.Second
	f, _ := newCmdFuzzer(t, cfg)
	assert.ErrorIs(t, runSend(context.Background(), f, cfg, nil, &bytes.Buffer{}), core.ErrConfigInvalid)
}

func TestCloseFuzzerLogsLinkError(t *testing.T) {
	var buf syncBuffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	link := &echoLink{rx: make(chan []byte, 1), closeErr: core.ErrSocket}
	f, err := fuzzer.New(fuzzer.Config{Interface: "lo", Link: link, Frame: core.DefaultFrame()})
	require.NoError(t, err)

	closeFuzzer(f)
	assert.Contains(t, buf.String(), "failed to close link")
	assert.Contains(t, buf.String(), "interface=lo")
}

func TestRunWatchPrintsUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	f, _ := newCmdFuzzer(t, cfg)

	var out syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, f, dump.NewPrinter(&out, false), 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return f.CaptureStatus().State == "running" }, time.Second, 5*time.Millisecond)
	_, err := f.SendRepeat(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Count(out.String(), "\n") == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
	assert.Contains(t, out.String(), "#1 ")
	assert.Contains(t, out.String(), "#2 ")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
