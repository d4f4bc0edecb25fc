package core

import (
	"fmt"
	"strings"
)

// Kind is the value shape stored at a frame field.
type Kind uint8

const (
	KindUint8 Kind = iota + 1
	KindUint16
	KindMAC
	KindIPv4
)

func (k Kind) String() string {
	switch k {
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindMAC:
		return "mac"
	case KindIPv4:
		return "ipv4"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Width returns the on-wire size in bytes.
func (k Kind) Width() int {
	switch k {
	case KindUint8:
		return 1
	case KindUint16:
		return 2
	case KindMAC:
		return 6
	case KindIPv4:
		return 4
	default:
		return 0
	}
}

// Field identifies one fixed-offset field of an ARP frame.
type Field uint8

const (
	FieldHdrDstMAC Field = iota + 1
	FieldHdrSrcMAC
	FieldFrameType
	FieldHardwareType
	FieldProtocolType
	FieldHardwareSize
	FieldProtocolSize
	FieldOpcode
	FieldSenderMAC
	FieldSenderIP
	FieldTargetMAC
	FieldTargetIP
)

type fieldInfo struct {
	name       string
	alias      string
	offset     int
	kind       Kind
	filterable bool
}

// Indexed by Field. Offsets are fixed by the Ethernet + ARP (IPv4 over Ethernet) layout.
var fieldTable = [...]fieldInfo{
	FieldHdrDstMAC:    {"hdr-dst-mac", "hdrDstMAC", 0, KindMAC, false},
	FieldHdrSrcMAC:    {"hdr-src-mac", "hdrSrcMAC", 6, KindMAC, false},
	FieldFrameType:    {"frame-type", "frameType", 12, KindUint16, true},
	FieldHardwareType: {"hardware-type", "hardType", 14, KindUint16, true},
	FieldProtocolType: {"protocol-type", "protType", 16, KindUint16, true},
	FieldHardwareSize: {"hardware-size", "hardSize", 18, KindUint8, true},
	FieldProtocolSize: {"protocol-size", "protSize", 19, KindUint8, true},
	FieldOpcode:       {"opcode", "opcode", 20, KindUint16, true},
	FieldSenderMAC:    {"sender-mac", "senderMAC", 22, KindMAC, true},
	FieldSenderIP:     {"sender-ip", "senderIp", 28, KindIPv4, true},
	FieldTargetMAC:    {"target-mac", "targetMAC", 32, KindMAC, true},
	FieldTargetIP:     {"target-ip", "targetIp", 38, KindIPv4, true},
}

var fieldsByName = func() map[string]Field {
	m := make(map[string]Field, 2*len(fieldTable))
	for _, f := range Fields() {
		info := fieldTable[f]
		m[info.name] = f
		m[strings.ToLower(info.alias)] = f
		m[strings.ReplaceAll(info.name, "-", "_")] = f
	}
	return m
}()

// Fields returns every field in wire order.
func Fields() []Field {
	out := make([]Field, 0, len(fieldTable)-1)
	for f := FieldHdrDstMAC; int(f) < len(fieldTable); f++ {
		out = append(out, f)
	}
	return out
}

// ParseField resolves a field name. Canonical kebab-case names, their snake_case
// spelling and the legacy camelCase names (frameType, senderMAC, targetIp...) are accepted,
// case-insensitively.
func ParseField(name string) (Field, error) {
	if f, ok := fieldsByName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Valid reports whether f is a member of the closed field set.
func (f Field) Valid() bool {
	return f >= FieldHdrDstMAC && int(f) < len(fieldTable)
}

func (f Field) String() string {
	if !f.Valid() {
		return fmt.Sprintf("field(%d)", uint8(f))
	}
	return fieldTable[f].name
}

// Offset, Kind and Width are zero for a field outside the closed set.
func (f Field) Offset() int {
	if !f.Valid() {
		return 0
	}
	return fieldTable[f].offset
}

func (f Field) Kind() Kind {
	if !f.Valid() {
		return 0
	}
	return fieldTable[f].kind
}

func (f Field) Width() int { return f.Kind().Width() }

// Filterable reports whether capture filters may match on f.
// The link header addresses are settable but not filterable.
func (f Field) Filterable() bool {
	return f.Valid() && fieldTable[f].filterable
}
