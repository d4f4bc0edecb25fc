package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/arpfuzzer/internal/command"
)

// MockClient is a mock implementation of ControlClient.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Call(ctx context.Context, method string, params interface{}) (*command.Response, error) {
	args := m.Called(ctx, method, params)
	if resp := args.Get(0); resp != nil {
		return resp.(*command.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRunCtlMapsCommands(t *testing.T) {
	tests := []struct {
		args   []string
		method string
		params interface{}
	}{
		{[]string{"ping"}, "ping", nil},
		{[]string{"get"}, "frame_get", command.FrameGetParams{}},
		{[]string{"get", "opcode"}, "frame_get", command.FrameGetParams{Field: "opcode"}},
		{[]string{"set", "target-ip", "10.0.0.1"}, "frame_set", command.FrameSetParams{Field: "target-ip", Value: "10.0.0.1"}},
		{[]string{"send"}, "frame_send", command.FrameSendParams{Count: 1}},
		{[]string{"send", "4"}, "frame_send", command.FrameSendParams{Count: 4}},
		{[]string{"filter", "opcode=2", "target-ip=10.0.0.1"}, "filter_set", command.FilterSetParams{
			Filters: map[string]interface{}{"opcode": "2", "target-ip": "10.0.0.1"},
		}},
		{[]string{"filter"}, "filter_set", command.FilterSetParams{Filters: map[string]interface{}{}}},
		{[]string{"pop"}, "queue_pop", nil},
		{[]string{"size"}, "queue_size", nil},
		{[]string{"start"}, "capture_start", nil},
		{[]string{"stop"}, "capture_stop", nil},
		{[]string{"status"}, "capture_status", nil},
		{[]string{"info"}, "daemon_status", nil},
		{[]string{"shutdown"}, "daemon_shutdown", nil},
	}

	for _, tt := range tests {
		t.Run(tt.args[0]+"_"+tt.method, func(t *testing.T) {
			client := new(MockClient)
			client.On("Call", mock.Anything, tt.method, tt.params).
				Return(&command.Response{ID: "1", Result: map[string]interface{}{"ok": true}}, nil)

			var out bytes.Buffer
			require.NoError(t, runCtl(context.Background(), client, tt.args, &out))
			assert.JSONEq(t, `{"ok": true}`, out.String())
			client.AssertExpectations(t)
		})
	}
}

func TestRunCtlRejectsBadArguments(t *testing.T) {
	tests := [][]string{
		{"bogus"},
		{"set", "opcode"},
		{"get", "opcode", "extra"},
		{"send", "zero"},
		{"send", "0"},
		{"send", "1", "2"},
		{"filter", "opcode"},
		{"filter", "=2"},
	}
	for _, args := range tests {
		client := new(MockClient)
		var out bytes.Buffer
		assert.Error(t, runCtl(context.Background(), client, args, &out), "%v", args)
		client.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, out.String())
	}
}

func TestRunCtlReturnsDaemonError(t *testing.T) {
	client := new(MockClient)
	client.On("Call", mock.Anything, "queue_pop", nil).Return(&command.Response{
		ID:    "1",
		Error: &command.ErrorInfo{Code: command.ErrCodeQueueEmpty, Message: "queue is empty"},
	}, nil)

	var out bytes.Buffer
	err := runCtl(context.Background(), client, []string{"pop"}, &out)

	var info *command.ErrorInfo
	require.True(t, errors.As(err, &info))
	assert.Equal(t, command.ErrCodeQueueEmpty, info.Code)
	assert.Empty(t, out.String())
}

func TestRunCtlTransportError(t *testing.T) {
	client := new(MockClient)
	client.On("Call", mock.Anything, "ping", nil).Return(nil, errors.New("connection refused"))

	err := runCtl(context.Background(), client, []string{"ping"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon is not running")
	client.AssertExpectations(t)
}
