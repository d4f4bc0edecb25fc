package core

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// FrameLen is the fixed wire size of an Ethernet + ARP (IPv4 over Ethernet) frame.
const FrameLen = 42

// Well-known field values.
const (
	EtherTypeARP         uint16 = 0x0806
	HardwareTypeEthernet uint16 = 1
	ProtocolTypeIPv4     uint16 = 0x0800

	OpRequest uint16 = 1
	OpReply   uint16 = 2
)

// Frame is an ARP frame in wire layout. Multi-byte integers are stored big-endian.
// Any field may hold any value: fuzzing relies on malformed frames being representable.
type Frame [FrameLen]byte

// NewFrame returns a zero frame with hardware size 6 and protocol size 4.
func NewFrame() Frame {
	var f Frame
	f[FieldHardwareSize.Offset()] = 6
	f[FieldProtocolSize.Offset()] = 4
	return f
}

// DefaultFrame returns an ARP request template for 127.0.0.1 with zero addresses elsewhere.
func DefaultFrame() Frame {
	f := NewFrame()
	f.SetFrameType(EtherTypeARP)
	f.SetHardwareType(HardwareTypeEthernet)
	f.SetProtocolType(ProtocolTypeIPv4)
	f.SetOpcode(OpRequest)
	f.SetTargetIP(IPv4{127, 0, 0, 1})
	return f
}

// FrameFromBytes copies the first FrameLen bytes of b into a frame.
// Trailing bytes (Ethernet padding, FCS) are ignored.
func FrameFromBytes(b []byte) (Frame, error) {
	var f Frame
	if len(b) < FrameLen {
		return f, fmt.Errorf("%w: %d < %d bytes", ErrFrameTooShort, len(b), FrameLen)
	}
	copy(f[:], b)
	return f, nil
}

// Encode returns a copy of the wire bytes.
func (f *Frame) Encode() []byte {
	out := make([]byte, FrameLen)
	copy(out, f[:])
	return out
}

func (f *Frame) String() string {
	return hex.EncodeToString(f[:])
}

// Raw returns the wire slice of field. The slice aliases the frame and is
// empty for an unknown field.
func (f *Frame) Raw(field Field) []byte {
	off := field.Offset()
	return f[off : off+field.Width()]
}

// Set writes v at field. The value kind must match the field kind.
func (f *Frame) Set(field Field, v Value) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	if v.Kind() != field.Kind() {
		return fmt.Errorf("%w: %s expects %s, got %s", ErrInvalidValue, field, field.Kind(), v.Kind())
	}
	copy(f.Raw(field), v.buf[:field.Width()])
	return nil
}

// Get reads field as a typed value. An unknown field reads as the zero Value.
func (f *Frame) Get(field Field) Value {
	return valueFromWire(field.Kind(), f.Raw(field))
}

func (f *Frame) putMAC(field Field, m HardwareAddr) { copy(f.Raw(field), m[:]) }
func (f *Frame) putIPv4(field Field, ip IPv4)       { copy(f.Raw(field), ip[:]) }
func (f *Frame) putUint16(field Field, v uint16) {
	binary.BigEndian.PutUint16(f.Raw(field), v)
}

func (f *Frame) mac(field Field) HardwareAddr { return HardwareAddr(f.Raw(field)) }
func (f *Frame) ipv4(field Field) IPv4        { return IPv4(f.Raw(field)) }
func (f *Frame) u16(field Field) uint16 {
	return binary.BigEndian.Uint16(f.Raw(field))
}

func (f *Frame) SetHdrDstMAC(m HardwareAddr) { f.putMAC(FieldHdrDstMAC, m) }
func (f *Frame) SetHdrSrcMAC(m HardwareAddr) { f.putMAC(FieldHdrSrcMAC, m) }
func (f *Frame) SetFrameType(v uint16)       { f.putUint16(FieldFrameType, v) }
func (f *Frame) SetHardwareType(v uint16)    { f.putUint16(FieldHardwareType, v) }
func (f *Frame) SetProtocolType(v uint16)    { f.putUint16(FieldProtocolType, v) }
func (f *Frame) SetHardwareSize(v uint8)     { f[FieldHardwareSize.Offset()] = v }
func (f *Frame) SetProtocolSize(v uint8)     { f[FieldProtocolSize.Offset()] = v }
func (f *Frame) SetOpcode(v uint16)          { f.putUint16(FieldOpcode, v) }
func (f *Frame) SetSenderMAC(m HardwareAddr) { f.putMAC(FieldSenderMAC, m) }
func (f *Frame) SetSenderIP(ip IPv4)         { f.putIPv4(FieldSenderIP, ip) }
func (f *Frame) SetTargetMAC(m HardwareAddr) { f.putMAC(FieldTargetMAC, m) }
func (f *Frame) SetTargetIP(ip IPv4)         { f.putIPv4(FieldTargetIP, ip) }

func (f *Frame) HdrDstMAC() HardwareAddr { return f.mac(FieldHdrDstMAC) }
func (f *Frame) HdrSrcMAC() HardwareAddr { return f.mac(FieldHdrSrcMAC) }
func (f *Frame) FrameType() uint16       { return f.u16(FieldFrameType) }
func (f *Frame) HardwareType() uint16    { return f.u16(FieldHardwareType) }
func (f *Frame) ProtocolType() uint16    { return f.u16(FieldProtocolType) }
func (f *Frame) HardwareSize() uint8     { return f[FieldHardwareSize.Offset()] }
func (f *Frame) ProtocolSize() uint8     { return f[FieldProtocolSize.Offset()] }
func (f *Frame) Opcode() uint16          { return f.u16(FieldOpcode) }
func (f *Frame) SenderMAC() HardwareAddr { return f.mac(FieldSenderMAC) }
func (f *Frame) SenderIP() IPv4          { return f.ipv4(FieldSenderIP) }
func (f *Frame) TargetMAC() HardwareAddr { return f.mac(FieldTargetMAC) }
func (f *Frame) TargetIP() IPv4          { return f.ipv4(FieldTargetIP) }

// Fields returns every field of f keyed by canonical name.
func (f *Frame) Fields() map[string]any {
	out := make(map[string]any, len(fieldTable))
	for _, field := range Fields() {
		out[field.String()] = f.Get(field).Interface()
	}
	return out
}
