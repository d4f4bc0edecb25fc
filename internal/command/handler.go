// Package command implements control plane command handling.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/arpfuzzer/internal/core"
	"firestige.xyz/arpfuzzer/internal/filter"
	"firestige.xyz/arpfuzzer/internal/fuzzer"
	"firestige.xyz/arpfuzzer/internal/metrics"
)

// CommandHandler handles control plane commands against one fuzzer.
type CommandHandler struct {
	fuzzer       *fuzzer.Fuzzer
	shutdownFunc func() // Called by daemon_shutdown to trigger graceful stop
	startTime    time.Time
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(f *fuzzer.Fuzzer) *CommandHandler {
	return &CommandHandler{
		fuzzer:    f,
		startTime: time.Now(),
	}
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g., "frame_set", "queue_pop"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`               // matches request ID
	Result interface{} `json:"result,omitempty"` // success result
	Error  *ErrorInfo  `json:"error,omitempty"`  // error info if failed
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error

	ErrCodeQueueEmpty = -32001 // Nothing captured yet
	ErrCodeLifecycle  = -32002 // Capture state does not allow the operation
	ErrCodeSocket     = -32003 // Link socket failure
)

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	slog.Debug("handling command", "method", cmd.Method, "id", cmd.ID)

	var resp Response
	method := cmd.Method
	switch cmd.Method {
	case "ping":
		resp = Response{ID: cmd.ID, Result: "pong"}
	case "frame_set":
		resp = h.handleFrameSet(ctx, cmd)
	case "frame_get":
		resp = h.handleFrameGet(ctx, cmd)
	case "frame_send":
		resp = h.handleFrameSend(ctx, cmd)
	case "filter_set":
		resp = h.handleFilterSet(ctx, cmd)
	case "queue_pop":
		resp = h.handleQueuePop(ctx, cmd)
	case "queue_size":
		resp = Response{ID: cmd.ID, Result: map[string]interface{}{"size": h.fuzzer.Available()}}
	case "capture_start":
		resp = h.handleCaptureStart(ctx, cmd)
	case "capture_stop":
		resp = h.handleCaptureStop(ctx, cmd)
	case "capture_status":
		resp = Response{ID: cmd.ID, Result: h.fuzzer.CaptureStatus()}
	case "daemon_shutdown":
		resp = h.handleDaemonShutdown(ctx, cmd)
	case "daemon_status":
		resp = h.handleDaemonStatus(ctx, cmd)
	default:
		method = "unknown"
		resp = Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeMethodNotFound,
				Message: fmt.Sprintf("method %q not found", cmd.Method),
			},
		}
	}

	result := metrics.ResultOK
	if resp.Error != nil {
		result = metrics.ResultError
	}
	metrics.ControlRequestsTotal.WithLabelValues(method, result).Inc()
	return resp
}

// errorResponse maps sentinel errors to JSON-RPC error codes.
func errorResponse(id string, err error) Response {
	code := ErrCodeInternalError
	switch {
	case errors.Is(err, core.ErrUnknownField),
		errors.Is(err, core.ErrInvalidValue),
		errors.Is(err, core.ErrFilterRegistration):
		code = ErrCodeInvalidParams
	case errors.Is(err, core.ErrQueueEmpty):
		code = ErrCodeQueueEmpty
	case errors.Is(err, core.ErrPipelineLifecycle):
		code = ErrCodeLifecycle
	case errors.Is(err, core.ErrSocket), errors.Is(err, core.ErrPeerClosed):
		code = ErrCodeSocket
	}
	return Response{ID: id, Error: &ErrorInfo{Code: code, Message: err.Error()}}
}

// decodeParams decodes params keeping numbers exact. Empty params leave v untouched.
func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid params: %w", core.ErrInvalidValue, err)
	}
	return nil
}

// FrameSetParams represents parameters for the frame_set command.
type FrameSetParams struct {
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

func (h *CommandHandler) handleFrameSet(_ context.Context, cmd Command) Response {
	var params FrameSetParams
	if err := decodeParams(cmd.Params, &params); err != nil {
		return errorResponse(cmd.ID, err)
	}
	if err := h.fuzzer.SetByName(params.Field, params.Value); err != nil {
		return errorResponse(cmd.ID, err)
	}
	frame := h.fuzzer.Frame()
	return Response{ID: cmd.ID, Result: frame.Fields()}
}

// FrameGetParams represents parameters for the frame_get command.
type FrameGetParams struct {
	Field string `json:"field,omitempty"` // Empty returns every field
}

func (h *CommandHandler) handleFrameGet(_ context.Context, cmd Command) Response {
	var params FrameGetParams
	if err := decodeParams(cmd.Params, &params); err != nil {
		return errorResponse(cmd.ID, err)
	}
	if params.Field == "" {
		frame := h.fuzzer.Frame()
		result := frame.Fields()
		result["hex"] = frame.String()
		return Response{ID: cmd.ID, Result: result}
	}

	field, err := core.ParseField(params.Field)
	if err != nil {
		return errorResponse(cmd.ID, err)
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			field.String(): h.fuzzer.Get(field).Interface(),
		},
	}
}

// FrameSendParams represents parameters for the frame_send command.
type FrameSendParams struct {
	Count    int    `json:"count,omitempty"`    // Default 1
	Interval string `json:"interval,omitempty"` // Go duration, e.g. "10ms"
}

func (h *CommandHandler) handleFrameSend(ctx context.Context, cmd Command) Response {
	var params FrameSendParams
	if err := decodeParams(cmd.Params, &params); err != nil {
		return errorResponse(cmd.ID, err)
	}
	if params.Count == 0 {
		params.Count = 1
	}
	if params.Count < 0 {
		return errorResponse(cmd.ID, fmt.Errorf("%w: count must be positive", core.ErrInvalidValue))
	}
	var interval time.Duration
	if params.Interval != "" {
		d, err := time.ParseDuration(params.Interval)
		if err != nil || d < 0 {
			return errorResponse(cmd.ID, fmt.Errorf("%w: interval %q", core.ErrInvalidValue, params.Interval))
		}
		interval = d
	}

	sent, err := h.fuzzer.SendRepeat(ctx, params.Count, interval)
	if err != nil {
		return errorResponse(cmd.ID, fmt.Errorf("sent %d of %d: %w", sent, params.Count, err))
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"sent":  sent,
			"bytes": sent * core.FrameLen,
		},
	}
}

// FilterSetParams represents parameters for the filter_set command.
type FilterSetParams struct {
	Filters map[string]interface{} `json:"filters"`
}

func (h *CommandHandler) handleFilterSet(_ context.Context, cmd Command) Response {
	var params FilterSetParams
	if err := decodeParams(cmd.Params, &params); err != nil {
		return errorResponse(cmd.ID, err)
	}
	engine, err := filter.FromMap(params.Filters)
	if err != nil {
		return errorResponse(cmd.ID, err)
	}
	if err := h.fuzzer.SetFilter(engine); err != nil {
		return errorResponse(cmd.ID, err)
	}
	return Response{ID: cmd.ID, Result: map[string]interface{}{"filter": engine.String()}}
}

func (h *CommandHandler) handleQueuePop(_ context.Context, cmd Command) Response {
	item, err := h.fuzzer.Pop()
	if err != nil {
		return errorResponse(cmd.ID, err)
	}
	result := item.Frame.Fields()
	result["seq"] = item.Seq
	result["received_at"] = item.ReceivedAt.Format(time.RFC3339Nano)
	result["hex"] = item.Frame.String()
	return Response{ID: cmd.ID, Result: result}
}

func (h *CommandHandler) handleCaptureStart(_ context.Context, cmd Command) Response {
	if err := h.fuzzer.StartCapture(); err != nil {
		return errorResponse(cmd.ID, err)
	}
	return Response{ID: cmd.ID, Result: h.fuzzer.CaptureStatus()}
}

// handleCaptureStop stops capture. A worker that had already failed still
// reports success; its error is visible in the returned status.
func (h *CommandHandler) handleCaptureStop(_ context.Context, cmd Command) Response {
	if err := h.fuzzer.StopCapture(); err != nil {
		slog.Warn("capture stopped with error", "error", err)
	}
	return Response{ID: cmd.ID, Result: h.fuzzer.CaptureStatus()}
}

func (h *CommandHandler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInternalError,
				Message: "shutdown handler not registered",
			},
		}
	}

	slog.Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // Non-blocking: let the response be sent first

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": "shutting_down",
		},
	}
}

// handleDaemonStatus returns daemon status information.
func (h *CommandHandler) handleDaemonStatus(_ context.Context, cmd Command) Response {
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"interface":  h.fuzzer.Interface(),
			"uptime_sec": int64(time.Since(h.startTime).Seconds()),
			"capture":    h.fuzzer.CaptureStatus(),
		},
	}
}
