package core

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a typed field value held in network byte order.
type Value struct {
	kind Kind
	buf  [6]byte
}

func Uint8Value(v uint8) Value {
	return Value{kind: KindUint8, buf: [6]byte{v}}
}

func Uint16Value(v uint16) Value {
	val := Value{kind: KindUint16}
	binary.BigEndian.PutUint16(val.buf[:2], v)
	return val
}

func MACValue(m HardwareAddr) Value {
	return Value{kind: KindMAC, buf: m}
}

func IPv4Value(ip IPv4) Value {
	val := Value{kind: KindIPv4}
	copy(val.buf[:4], ip[:])
	return val
}

// valueFromWire builds a value of kind k from its wire bytes.
func valueFromWire(k Kind, b []byte) Value {
	val := Value{kind: k}
	copy(val.buf[:k.Width()], b)
	return val
}

func (v Value) Kind() Kind { return v.kind }

// Bytes returns the wire representation.
func (v Value) Bytes() []byte {
	out := make([]byte, v.kind.Width())
	copy(out, v.buf[:])
	return out
}

// Uint returns the host-order integer for uint8 and uint16 values and 0 otherwise.
func (v Value) Uint() uint64 {
	switch v.kind {
	case KindUint8:
		return uint64(v.buf[0])
	case KindUint16:
		return uint64(binary.BigEndian.Uint16(v.buf[:2]))
	default:
		return 0
	}
}

func (v Value) MAC() HardwareAddr {
	if v.kind != KindMAC {
		return HardwareAddr{}
	}
	return HardwareAddr(v.buf)
}

func (v Value) IPv4() IPv4 {
	if v.kind != KindIPv4 {
		return IPv4{}
	}
	return IPv4(v.buf[:4])
}

func (v Value) String() string {
	switch v.kind {
	case KindUint8:
		return strconv.FormatUint(v.Uint(), 10)
	case KindUint16:
		return fmt.Sprintf("0x%04x", v.Uint())
	case KindMAC:
		return v.MAC().String()
	case KindIPv4:
		return v.IPv4().String()
	default:
		return "<invalid>"
	}
}

// Interface returns the value in a JSON-friendly form: integers as numbers,
// addresses as their text form.
func (v Value) Interface() any {
	switch v.kind {
	case KindUint8, KindUint16:
		return v.Uint()
	case KindMAC, KindIPv4:
		return v.String()
	default:
		return nil
	}
}

// ParseValue converts loosely typed input into a value of kind k.
//
// Integer kinds accept Go integers, integral float64 (decoded JSON numbers) and
// strings in decimal or 0x-prefixed hex. Address kinds accept their text form.
// Integers that do not fit the field width are rejected.
func ParseValue(k Kind, raw any) (Value, error) {
	switch k {
	case KindUint8, KindUint16:
		n, err := toUint(raw)
		if err != nil {
			return Value{}, err
		}
		limit := uint64(math.MaxUint8)
		if k == KindUint16 {
			limit = math.MaxUint16
		}
		if n > limit {
			return Value{}, fmt.Errorf("%w: %d exceeds %s range", ErrInvalidValue, n, k)
		}
		if k == KindUint8 {
			return Uint8Value(uint8(n)), nil
		}
		return Uint16Value(uint16(n)), nil
	case KindMAC:
		switch x := raw.(type) {
		case HardwareAddr:
			return MACValue(x), nil
		case string:
			mac, err := ParseMAC(x)
			if err != nil {
				return Value{}, err
			}
			return MACValue(mac), nil
		}
	case KindIPv4:
		switch x := raw.(type) {
		case IPv4:
			return IPv4Value(x), nil
		case string:
			ip, err := ParseIPv4(x)
			if err != nil {
				return Value{}, err
			}
			return IPv4Value(ip), nil
		}
	default:
		return Value{}, fmt.Errorf("%w: unknown kind %s", ErrInvalidValue, k)
	}
	return Value{}, fmt.Errorf("%w: cannot use %T as %s", ErrInvalidValue, raw, k)
}

func toUint(raw any) (uint64, error) {
	switch x := raw.(type) {
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	case uint:
		return uint64(x), nil
	case int, int8, int16, int32, int64:
		n := toInt64(x)
		if n < 0 {
			return 0, fmt.Errorf("%w: negative value %d", ErrInvalidValue, n)
		}
		return uint64(n), nil
	case float64:
		if x < 0 || x != math.Trunc(x) || x > math.MaxUint32 {
			return 0, fmt.Errorf("%w: %v is not a field integer", ErrInvalidValue, x)
		}
		return uint64(x), nil
	case json.Number:
		return toUint(x.String())
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(x), 0, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalidValue, x, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: cannot use %T as integer", ErrInvalidValue, raw)
	}
}

func toInt64(x any) int64 {
	switch n := x.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	default:
		return n.(int64)
	}
}
