package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

const maxRequestSize = 1 << 20

// UDSServer serves newline-delimited JSON-RPC 2.0 over a Unix domain socket.
type UDSServer struct {
	socketPath string
	handler    *CommandHandler

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	stopped  bool
}

// NewUDSServer creates a new UDS server.
func NewUDSServer(socketPath string, handler *CommandHandler) *UDSServer {
	return &UDSServer{
		socketPath: socketPath,
		handler:    handler,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Listen binds the socket. A stale socket file is replaced.
func (s *UDSServer) Listen() error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.socketPath, err)
	}
	// Owner only: the control socket can send raw frames.
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	slog.Info("control socket listening", "socket", s.socketPath)
	return nil
}

// Serve accepts connections until ctx is cancelled, then stops the server.
// Listen must have succeeded.
func (s *UDSServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return fmt.Errorf("control socket %s is not listening", s.socketPath)
	}

	go s.acceptLoop(ctx, listener)

	<-ctx.Done()
	slog.Info("control socket stopping", "reason", ctx.Err())
	return s.Stop()
}

// Start binds and serves. Blocks until ctx is cancelled or binding fails.
func (s *UDSServer) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *UDSServer) acceptLoop(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isStopped() {
				return
			}
			slog.Error("failed to accept connection", "error", err)
			continue
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(ctx, conn)
	}
}

func (s *UDSServer) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// handleConnection answers requests on conn, one JSON object per line.
func (s *UDSServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestSize)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := encoder.Encode(s.dispatch(ctx, line)); err != nil {
			slog.Error("failed to send response", "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil && !s.isStopped() {
		slog.Warn("control connection error", "error", err)
	}
}

// dispatch decodes one request line and runs it through the handler.
func (s *UDSServer) dispatch(ctx context.Context, line []byte) JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return JSONRPCResponse{
			JSONRPC: "2.0",
			Error: &ErrorInfo{
				Code:    ErrCodeParseError,
				Message: fmt.Sprintf("parse error: %v", err),
			},
		}
	}
	if req.Method == "" {
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &ErrorInfo{Code: ErrCodeInvalidRequest, Message: "missing method"},
		}
	}

	resp := s.handler.Handle(ctx, Command{
		Method: req.Method,
		Params: req.Params,
		ID:     fmt.Sprintf("%v", req.ID),
	})
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  resp.Result,
		Error:   resp.Error,
	}
}

// Stop closes the listener and every open connection, then removes the socket file.
func (s *UDSServer) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	os.RemoveAll(s.socketPath)

	slog.Info("control socket stopped", "socket", s.socketPath)
	return nil
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}
