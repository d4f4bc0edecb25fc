package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerExposesMetrics(t *testing.T) {
	FramesSentTotal.WithLabelValues("test0").Add(3)

	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `arpfuzzer_frames_sent_total{interface="test0"} 3`)

	health, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestServerStartFailsOnBusyAddress(t *testing.T) {
	first := NewServer("127.0.0.1:0", "/metrics")
	require.NoError(t, first.Start(context.Background()))
	defer first.Stop(context.Background())

	second := NewServer(first.Addr(), "/metrics")
	assert.Error(t, second.Start(context.Background()))
}

func TestStopBeforeStart(t *testing.T) {
	s := NewServer(":0", "")
	assert.NoError(t, s.Stop(context.Background()))
}
