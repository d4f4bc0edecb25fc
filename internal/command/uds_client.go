package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// UDSClient is a JSON-RPC client over Unix Domain Socket. Each call uses its own connection.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
	nextID     atomic.Uint64
}

// NewUDSClient creates a new UDS client.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &UDSClient{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Call sends a command and waits for the response. A JSON-RPC error is
// returned in Response.Error, not as err.
func (c *UDSClient) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsJSON = data
	}

	reqID := fmt.Sprintf("req-%d", c.nextID.Add(1))
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsJSON,
		ID:      reqID,
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestSize)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return nil, fmt.Errorf("connection closed without response")
	}

	var jsonrpcResp JSONRPCResponse
	if err := json.Unmarshal(scanner.Bytes(), &jsonrpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if respID := fmt.Sprintf("%v", jsonrpcResp.ID); respID != reqID {
		return nil, fmt.Errorf("response ID mismatch: expected %v, got %v", reqID, respID)
	}

	return &Response{
		ID:     reqID,
		Result: jsonrpcResp.Result,
		Error:  jsonrpcResp.Error,
	}, nil
}

// Ping checks that the daemon is answering.
func (c *UDSClient) Ping(ctx context.Context) error {
	resp, err := c.Call(ctx, "ping", nil)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	return nil
}

// FrameSet is a convenience method for the frame_set command.
func (c *UDSClient) FrameSet(ctx context.Context, field string, value interface{}) (*Response, error) {
	return c.Call(ctx, "frame_set", FrameSetParams{Field: field, Value: value})
}

// FrameGet is a convenience method for the frame_get command. An empty field returns all fields.
func (c *UDSClient) FrameGet(ctx context.Context, field string) (*Response, error) {
	return c.Call(ctx, "frame_get", FrameGetParams{Field: field})
}

// FrameSend is a convenience method for the frame_send command.
func (c *UDSClient) FrameSend(ctx context.Context, count int, interval time.Duration) (*Response, error) {
	params := FrameSendParams{Count: count}
	if interval > 0 {
		params.Interval = interval.String()
	}
	return c.Call(ctx, "frame_send", params)
}

// FilterSet is a convenience method for the filter_set command.
func (c *UDSClient) FilterSet(ctx context.Context, filters map[string]interface{}) (*Response, error) {
	return c.Call(ctx, "filter_set", FilterSetParams{Filters: filters})
}

// QueuePop is a convenience method for the queue_pop command.
func (c *UDSClient) QueuePop(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "queue_pop", nil)
}

// QueueSize is a convenience method for the queue_size command.
func (c *UDSClient) QueueSize(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "queue_size", nil)
}

// CaptureStart is a convenience method for the capture_start command.
func (c *UDSClient) CaptureStart(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "capture_start", nil)
}

// CaptureStop is a convenience method for the capture_stop command.
func (c *UDSClient) CaptureStop(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "capture_stop", nil)
}

// CaptureStatus is a convenience method for the capture_status command.
func (c *UDSClient) CaptureStatus(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "capture_status", nil)
}

// Shutdown asks the daemon to stop.
func (c *UDSClient) Shutdown(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "daemon_shutdown", nil)
}
