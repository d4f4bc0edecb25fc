//go:build linux

package link

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/arpfuzzer/internal/core"
)

// openLoopback opens a socket on lo, skipping when CAP_NET_RAW is unavailable.
func openLoopback(t *testing.T, opts ...Option) *Socket {
	t.Helper()
	s, err := Open("lo", opts...)
	if err != nil {
		if errors.Is(err, core.ErrSocket) {
			t.Skipf("raw socket unavailable: %v", err)
		}
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenUnknownInterface(t *testing.T) {
	_, err := Open("does-not-exist0")
	assert.ErrorIs(t, err, core.ErrSocket)
}

func TestWaitRejectsNonPositiveTimeout(t *testing.T) {
	s := openLoopback(t)
	_, err := s.Wait(0)
	assert.ErrorIs(t, err, core.ErrSocket)
}

func TestSendAndReceiveLoopback(t *testing.T) {
	rx := openLoopback(t, WithARPOnly())
	tx := openLoopback(t)

	f := core.DefaultFrame()
	f.SetHdrDstMAC(core.BroadcastMAC)
	f.SetSenderMAC(core.HardwareAddr{0x02, 0, 0, 0, 0xab, 0xcd})
	f.SetTargetIP(core.IPv4{127, 0, 0, 2})

	n, err := tx.Send(&f)
	require.NoError(t, err)
	assert.Equal(t, core.FrameLen, n)

	buf := make([]byte, MaxFrameSize)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ready, err := rx.Wait(100 * time.Millisecond)
		require.NoError(t, err)
		if !ready {
			continue
		}
		n, err := rx.Receive(buf)
		require.NoError(t, err)
		got, err := core.FrameFromBytes(buf[:n])
		if err != nil {
			continue
		}
		if got.SenderMAC() == f.SenderMAC() {
			assert.Equal(t, f.TargetIP(), got.TargetIP())
			return
		}
	}
	t.Fatal("sent frame was not captured on lo")
}

func TestCloseIsIdempotent(t *testing.T) {
	s := openLoopback(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestLocalAddrsLoopback(t *testing.T) {
	_, ip, err := LocalAddrs("lo")
	require.NoError(t, err)
	assert.Equal(t, core.IPv4{127, 0, 0, 1}, ip)

	_, _, err = LocalAddrs("does-not-exist0")
	assert.Error(t, err)
}
