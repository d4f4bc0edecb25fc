// Package core defines the ARP frame codec and shared types with zero external dependencies.
package core

import (
	"fmt"
	"net"
	"net/netip"
	"time"
)

// HardwareAddr is a 6-byte link-layer address.
type HardwareAddr [6]byte

// BroadcastMAC is ff:ff:ff:ff:ff:ff.
var BroadcastMAC = HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMAC parses an EUI-48 address in any form accepted by net.ParseMAC.
func ParseMAC(s string) (HardwareAddr, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return HardwareAddr{}, fmt.Errorf("%w: %q: %w", ErrInvalidValue, s, err)
	}
	if len(hw) != 6 {
		return HardwareAddr{}, fmt.Errorf("%w: %q is not a 6-byte address", ErrInvalidValue, s)
	}
	var mac HardwareAddr
	copy(mac[:], hw)
	return mac, nil
}

func (m HardwareAddr) String() string {
	return net.HardwareAddr(m[:]).String()
}

// IsZero reports whether m is 00:00:00:00:00:00.
func (m HardwareAddr) IsZero() bool {
	return m == HardwareAddr{}
}

func (m HardwareAddr) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *HardwareAddr) UnmarshalText(text []byte) error {
	mac, err := ParseMAC(string(text))
	if err != nil {
		return err
	}
	*m = mac
	return nil
}

// IPv4 is a 4-byte protocol address in network order.
type IPv4 [4]byte

// ParseIPv4 parses a dotted-quad IPv4 address.
func ParseIPv4(s string) (IPv4, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return IPv4{}, fmt.Errorf("%w: %q: %w", ErrInvalidValue, s, err)
	}
	if !addr.Is4() {
		return IPv4{}, fmt.Errorf("%w: %q is not an IPv4 address", ErrInvalidValue, s)
	}
	return IPv4(addr.As4()), nil
}

// IPv4FromAddr converts a netip.Addr, unmapping 4-in-6 forms.
func IPv4FromAddr(addr netip.Addr) (IPv4, bool) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return IPv4{}, false
	}
	return IPv4(addr.As4()), true
}

func (ip IPv4) Addr() netip.Addr {
	return netip.AddrFrom4(ip)
}

func (ip IPv4) String() string {
	return ip.Addr().String()
}

// IsZero reports whether ip is 0.0.0.0.
func (ip IPv4) IsZero() bool {
	return ip == IPv4{}
}

func (ip IPv4) MarshalText() ([]byte, error) {
	return []byte(ip.String()), nil
}

func (ip *IPv4) UnmarshalText(text []byte) error {
	v, err := ParseIPv4(string(text))
	if err != nil {
		return err
	}
	*ip = v
	return nil
}

// CapturedFrame is a frame accepted by the capture pipeline.
type CapturedFrame struct {
	Frame      Frame
	Seq        uint64    // Arrival order, assigned under the queue lock
	ReceivedAt time.Time
}
