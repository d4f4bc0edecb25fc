package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/arpfuzzer/internal/core"
)

var (
	testSenderMAC = core.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	testTargetMAC = core.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
)

func sampleFrame() core.Frame {
	f := core.DefaultFrame()
	f.SetHdrDstMAC(core.BroadcastMAC)
	f.SetHdrSrcMAC(testSenderMAC)
	f.SetSenderMAC(testSenderMAC)
	f.SetSenderIP(core.IPv4{192, 168, 1, 10})
	f.SetTargetMAC(testTargetMAC)
	f.SetTargetIP(core.IPv4{192, 168, 1, 1})
	return f
}

// matchingRules returns one rule per filterable field, each satisfied by sampleFrame.
func matchingRules(t *testing.T) []Rule {
	t.Helper()
	f := sampleFrame()
	var rules []Rule
	for _, field := range core.Fields() {
		if !field.Filterable() {
			continue
		}
		r, err := NewRule(field, f.Get(field))
		require.NoError(t, err)
		rules = append(rules, r)
	}
	return rules
}

func TestEmptyEngineAcceptsAll(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	f := sampleFrame()
	assert.True(t, e.Apply(&f))

	var zero core.Frame
	assert.True(t, e.Apply(&zero))

	var nilEngine *Engine
	assert.True(t, nilEngine.Apply(&f))
	assert.Equal(t, "any", e.String())
}

func TestSingleRule(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		value  any
		accept bool
	}{
		{"opcode match", "opcode", 1, true},
		{"opcode mismatch", "opcode", 2, false},
		{"frame type hex", "frameType", "0x0806", true},
		{"hardware size", "hardware-size", 6, true},
		{"protocol size mismatch", "protocol-size", 16, false},
		{"sender mac", "senderMAC", "aa:bb:cc:dd:ee:ff", true},
		{"sender mac mismatch", "sender-mac", "aa:bb:cc:dd:ee:00", false},
		{"sender ip", "sender-ip", "192.168.1.10", true},
		{"target mac", "target-mac", "02:00:00:00:00:01", true},
		{"target ip", "targetIp", "192.168.1.1", true},
		{"target ip mismatch", "target-ip", "192.168.1.2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseRule(tt.field, tt.value)
			require.NoError(t, err)
			e, err := New(r)
			require.NoError(t, err)
			f := sampleFrame()
			assert.Equal(t, tt.accept, e.Apply(&f))
		})
	}
}

// A target-ip rule must look at the target address, not the sender address.
func TestTargetIPDoesNotMatchSender(t *testing.T) {
	e, err := FromMap(map[string]any{"target-ip": "192.168.1.10"})
	require.NoError(t, err)
	f := sampleFrame()
	assert.False(t, e.Apply(&f))
}

func TestAllRulesConjunction(t *testing.T) {
	rules := matchingRules(t)
	require.Len(t, rules, 10)

	e, err := New(rules...)
	require.NoError(t, err)
	f := sampleFrame()
	require.True(t, e.Apply(&f))

	// Falsifying any single field must reject the frame.
	for _, r := range rules {
		t.Run(r.Field.String(), func(t *testing.T) {
			g := sampleFrame()
			raw := g.Raw(r.Field)
			raw[len(raw)-1] ^= 0xff
			assert.False(t, e.Apply(&g))
		})
	}
}

func TestRegistrationErrors(t *testing.T) {
	_, err := ParseRule("ttl", 64)
	assert.ErrorIs(t, err, core.ErrFilterRegistration)
	assert.ErrorIs(t, err, core.ErrUnknownField)

	_, err = ParseRule("hdr-dst-mac", "ff:ff:ff:ff:ff:ff")
	assert.ErrorIs(t, err, core.ErrFilterRegistration)

	_, err = ParseRule("opcode", "request")
	assert.ErrorIs(t, err, core.ErrFilterRegistration)

	_, err = NewRule(core.FieldSenderIP, core.Uint16Value(1))
	assert.ErrorIs(t, err, core.ErrFilterRegistration)

	_, err = New(Rule{Field: core.FieldOpcode, Value: core.MACValue(testSenderMAC)})
	assert.ErrorIs(t, err, core.ErrFilterRegistration)

	_, err = FromMap(map[string]any{"opcode": 1, "bogus": 2})
	assert.ErrorIs(t, err, core.ErrFilterRegistration)
}

func TestLaterRuleReplacesEarlier(t *testing.T) {
	e, err := New(
		Rule{Field: core.FieldOpcode, Value: core.Uint16Value(2)},
		Rule{Field: core.FieldOpcode, Value: core.Uint16Value(1)},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Len())
	f := sampleFrame()
	assert.True(t, e.Apply(&f))
}

func TestFromMapRejectsAliasedFields(t *testing.T) {
	tests := []map[string]any{
		{"sender-ip": "10.0.0.1", "senderIp": "10.0.0.2"},
		{"sender-ip": "10.0.0.1", "senderIp": "10.0.0.2", "sender_ip": "10.0.0.3"},
		{"opcode": 1, "OPCODE": 2},
		{"target-mac": "02:00:00:00:00:01", "targetMAC": "02:00:00:00:00:01"},
	}
	for _, m := range tests {
		for i := 0; i < 20; i++ {
			e, err := FromMap(m)
			require.Error(t, err, "%v", m)
			assert.ErrorIs(t, err, core.ErrFilterRegistration)
			assert.Nil(t, e)
		}
	}

	_, err := FromMap(map[string]any{"sender-ip": "10.0.0.1", "senderIp": "10.0.0.2"})
	assert.Contains(t, err.Error(), `"sender-ip" and "senderIp" both name sender-ip`)
}

func TestRulesAreWireOrdered(t *testing.T) {
	e, err := FromMap(map[string]any{
		"target-ip":  "192.168.1.1",
		"opcode":     1,
		"frame-type": 0x0806,
	})
	require.NoError(t, err)

	rules := e.Rules()
	require.Len(t, rules, 3)
	assert.Equal(t, core.FieldFrameType, rules[0].Field)
	assert.Equal(t, core.FieldOpcode, rules[1].Field)
	assert.Equal(t, core.FieldTargetIP, rules[2].Field)
	assert.Equal(t, "frame-type=0x0806 && opcode=0x0001 && target-ip=192.168.1.1", e.String())
}
