// Package link provides the raw link-layer socket used to send and capture ARP frames.
package link

import (
	"encoding/binary"
	"fmt"
	"net"

	"firestige.xyz/arpfuzzer/internal/core"
)

// MaxFrameSize is the receive buffer size callers should use with Receive.
const MaxFrameSize = 65535

type options struct {
	arpOnly     bool
	promiscuous bool
}

// Option configures Open.
type Option func(*options)

// WithARPOnly attaches a kernel filter that only passes ARP frames of at least core.FrameLen bytes.
func WithARPOnly() Option {
	return func(o *options) { o.arpOnly = true }
}

// WithPromiscuous puts the interface into promiscuous mode for the lifetime of the socket.
func WithPromiscuous() Option {
	return func(o *options) { o.promiscuous = true }
}

// LocalAddrs returns the hardware address and first IPv4 address of the named interface.
// The IPv4 address is zero when the interface has none.
func LocalAddrs(name string) (core.HardwareAddr, core.IPv4, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return core.HardwareAddr{}, core.IPv4{}, fmt.Errorf("interface %q: %w", name, err)
	}
	var mac core.HardwareAddr
	if len(iface.HardwareAddr) == len(mac) {
		copy(mac[:], iface.HardwareAddr)
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return mac, core.IPv4{}, fmt.Errorf("interface %q addresses: %w", name, err)
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return mac, core.IPv4(ip4), nil
		}
	}
	return mac, core.IPv4{}, nil
}

// htons converts a uint16 from host to network byte order.
func htons(v uint16) uint16 {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return binary.NativeEndian.Uint16(buf[:])
}
