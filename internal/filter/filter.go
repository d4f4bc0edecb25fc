// Package filter implements capture filters over ARP frame fields.
package filter

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"firestige.xyz/arpfuzzer/internal/core"
)

// Rule requires a frame field to equal a value.
type Rule struct {
	Field core.Field
	Value core.Value
}

// NewRule validates that field is filterable and that v has the field's kind.
func NewRule(field core.Field, v core.Value) (Rule, error) {
	if !field.Filterable() {
		return Rule{}, fmt.Errorf("%w: field %s is not filterable", core.ErrFilterRegistration, field)
	}
	if v.Kind() != field.Kind() {
		return Rule{}, fmt.Errorf("%w: field %s expects %s, got %s",
			core.ErrFilterRegistration, field, field.Kind(), v.Kind())
	}
	return Rule{Field: field, Value: v}, nil
}

// ParseRule builds a rule from a field name and a loosely typed value.
func ParseRule(name string, raw any) (Rule, error) {
	field, err := core.ParseField(name)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %w", core.ErrFilterRegistration, err)
	}
	v, err := core.ParseValue(field.Kind(), raw)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: field %s: %w", core.ErrFilterRegistration, field, err)
	}
	return NewRule(field, v)
}

func (r Rule) String() string {
	return r.Field.String() + "=" + r.Value.String()
}

// comparator reports whether the wire bytes of a field match want.
type comparator func(got, want []byte) bool

var comparators = map[core.Kind]comparator{
	core.KindUint8: func(got, want []byte) bool {
		return got[0] == want[0]
	},
	core.KindUint16: func(got, want []byte) bool {
		return binary.BigEndian.Uint16(got) == binary.BigEndian.Uint16(want)
	},
	core.KindMAC:  bytes.Equal,
	core.KindIPv4: bytes.Equal,
}

type compiledRule struct {
	Rule
	want    []byte
	compare comparator
}

// Engine is an immutable conjunction of rules. The zero value accepts every frame.
type Engine struct {
	rules []compiledRule
}

// New compiles rules into an engine. A later rule for the same field replaces an earlier one.
func New(rules ...Rule) (*Engine, error) {
	byField := make(map[core.Field]Rule, len(rules))
	for _, r := range rules {
		if _, err := NewRule(r.Field, r.Value); err != nil {
			return nil, err
		}
		byField[r.Field] = r
	}

	e := &Engine{rules: make([]compiledRule, 0, len(byField))}
	for _, r := range byField {
		e.rules = append(e.rules, compiledRule{
			Rule:    r,
			want:    r.Value.Bytes(),
			compare: comparators[r.Field.Kind()],
		})
	}
	// Wire order keeps Rules() and String() stable.
	sort.Slice(e.rules, func(i, j int) bool { return e.rules[i].Field < e.rules[j].Field })
	return e, nil
}

// FromMap builds an engine from name/value pairs such as a config filters section.
// Two names that resolve to the same field (sender-ip and senderIp) are an error.
func FromMap(m map[string]any) (*Engine, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make([]Rule, 0, len(m))
	seen := make(map[core.Field]string, len(m))
	for _, name := range names {
		r, err := ParseRule(name, m[name])
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[r.Field]; ok {
			return nil, fmt.Errorf("%w: %q and %q both name %s",
				core.ErrFilterRegistration, prev, name, r.Field)
		}
		seen[r.Field] = name
		rules = append(rules, r)
	}
	return New(rules...)
}

// Apply reports whether frame satisfies every rule. It stops at the first mismatch.
func (e *Engine) Apply(frame *core.Frame) bool {
	if e == nil {
		return true
	}
	for i := range e.rules {
		r := &e.rules[i]
		if !r.compare(frame.Raw(r.Field), r.want) {
			return false
		}
	}
	return true
}

// Len returns the number of rules.
func (e *Engine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

// Rules returns a copy of the rules in wire order.
func (e *Engine) Rules() []Rule {
	if e == nil {
		return nil
	}
	out := make([]Rule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.Rule
	}
	return out
}

func (e *Engine) String() string {
	if e.Len() == 0 {
		return "any"
	}
	parts := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, " && ")
}
