//go:build linux

package link

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"firestige.xyz/arpfuzzer/internal/core"
)

// Socket is an AF_PACKET raw socket bound to one interface. Send and Receive may be
// called concurrently from different goroutines with distinct buffers.
type Socket struct {
	fd     int
	iface  *net.Interface
	opts   options
	closed atomic.Bool
}

// Open creates a raw packet socket bound to the named interface.
func Open(name string, opts ...Option) (*Socket, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: interface %q: %w", core.ErrSocket, name, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("%w: socket: %w", core.ErrSocket, err)
	}

	s := &Socket{fd: fd, iface: iface, opts: o}
	if err := s.setup(); err != nil {
		unix.Close(fd)
		return nil, err
	}

	slog.Info("link socket opened",
		"interface", iface.Name,
		"ifindex", iface.Index,
		"arp_only", o.arpOnly,
		"promiscuous", o.promiscuous,
	)
	return s, nil
}

func (s *Socket) setup() error {
	// The filter goes on before bind so no unfiltered frame is queued.
	if s.opts.arpOnly {
		if err := s.attachARPOnly(); err != nil {
			return err
		}
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  s.iface.Index,
	}
	if err := unix.Bind(s.fd, &addr); err != nil {
		return fmt.Errorf("%w: bind to %s: %w", core.ErrSocket, s.iface.Name, err)
	}

	if s.opts.promiscuous {
		mreq := unix.PacketMreq{
			Ifindex: int32(s.iface.Index),
			Type:    unix.PACKET_MR_PROMISC,
		}
		if err := unix.SetsockoptPacketMreq(s.fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
			return fmt.Errorf("%w: promiscuous mode on %s: %w", core.ErrSocket, s.iface.Name, err)
		}
	}
	return nil
}

func (s *Socket) attachARPOnly() error {
	raw, err := assembleARPOnly()
	if err != nil {
		return fmt.Errorf("%w: assemble filter: %w", core.ErrSocket, err)
	}
	filters := make([]unix.SockFilter, len(raw))
	for i, ins := range raw {
		filters[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	prog := unix.SockFprog{Len: uint16(len(filters)), Filter: &filters[0]}
	if err := unix.SetsockoptSockFprog(s.fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &prog); err != nil {
		return fmt.Errorf("%w: attach filter: %w", core.ErrSocket, err)
	}
	return nil
}

// Interface returns the bound interface.
func (s *Socket) Interface() *net.Interface {
	return s.iface
}

// Send transmits the frame with a single sendto. A short write is reported as an
// error and never retried.
func (s *Socket) Send(f *core.Frame) (int, error) {
	dst := f.HdrDstMAC()
	to := &unix.SockaddrLinklayer{
		Protocol: htons(f.FrameType()),
		Ifindex:  s.iface.Index,
		Halen:    uint8(len(dst)),
	}
	copy(to.Addr[:], dst[:])

	n, err := unix.SendmsgN(s.fd, f.Encode(), nil, to, 0)
	if err != nil {
		return n, fmt.Errorf("%w: sendto %s: %w", core.ErrSocket, s.iface.Name, err)
	}
	if n != core.FrameLen {
		return n, fmt.Errorf("%w: short write on %s: %d of %d bytes", core.ErrSocket, s.iface.Name, n, core.FrameLen)
	}
	return n, nil
}

// Wait blocks until a frame is readable or timeout elapses. It returns false on
// timeout or when interrupted by a signal. The timeout must be positive.
func (s *Socket) Wait(timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		return false, fmt.Errorf("%w: wait timeout must be positive, got %s", core.ErrSocket, timeout)
	}
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, fmt.Errorf("%w: poll %s: %w", core.ErrSocket, s.iface.Name, err)
	}
	if n == 0 {
		return false, nil
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		return false, fmt.Errorf("%w: poll %s: revents 0x%x", core.ErrSocket, s.iface.Name, fds[0].Revents)
	}
	return fds[0].Revents&unix.POLLIN != 0, nil
}

// Receive reads exactly one frame into buf.
func (s *Socket) Receive(buf []byte) (int, error) {
	n, _, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: recvfrom %s: %w", core.ErrSocket, s.iface.Name, err)
	}
	if n == 0 {
		return 0, core.ErrPeerClosed
	}
	return n, nil
}

// Close releases the socket. It is safe to call more than once.
func (s *Socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := unix.Close(s.fd); err != nil {
		return fmt.Errorf("%w: close: %w", core.ErrSocket, err)
	}
	slog.Info("link socket closed", "interface", s.iface.Name)
	return nil
}
