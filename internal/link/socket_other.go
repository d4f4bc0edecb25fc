//go:build !linux

package link

import (
	"errors"
	"fmt"
	"net"
	"time"

	"firestige.xyz/arpfuzzer/internal/core"
)

// Socket is unavailable outside Linux.
type Socket struct {
	iface *net.Interface
}

func Open(name string, opts ...Option) (*Socket, error) {
	return nil, fmt.Errorf("%w: raw packet sockets: %w", core.ErrSocket, errors.ErrUnsupported)
}

func (s *Socket) Interface() *net.Interface { return s.iface }

func (s *Socket) Send(*core.Frame) (int, error) {
	return 0, fmt.Errorf("%w: %w", core.ErrSocket, errors.ErrUnsupported)
}

func (s *Socket) Wait(time.Duration) (bool, error) {
	return false, fmt.Errorf("%w: %w", core.ErrSocket, errors.ErrUnsupported)
}

func (s *Socket) Receive([]byte) (int, error) {
	return 0, fmt.Errorf("%w: %w", core.ErrSocket, errors.ErrUnsupported)
}

func (s *Socket) Close() error { return nil }
