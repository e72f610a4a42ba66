// Package tlv maps BER-TLV data onto Go structs.
//
// A field opts in with a `tlv:"84"` tag naming the (hex) BER tag it receives. Supported
// field types are []byte, which receives the raw value, and a struct or pointer to
// struct, which is decoded recursively from the constructed value. One field may be
// tagged `tlv:",unknown"` with type []bertlv.TLV to collect the packets no other field
// claimed. When a tag repeats, the last occurrence wins.
package tlv

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// ErrTagNotFound is returned by Lookup when no top-level packet carries the tag.
var ErrTagNotFound = errors.New("tlv: tag not found")

const unknownOpt = ",unknown"

var packetsType = reflect.TypeOf([]bertlv.TLV(nil))

// Unmarshal decodes data and maps the packets onto target, a non-nil struct pointer.
func Unmarshal(data []byte, target any) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("tlv: decode: %w", err)
	}
	return UnmarshalPackets(packets, target)
}

// UnmarshalPackets maps already decoded packets onto target.
func UnmarshalPackets(packets []bertlv.TLV, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("tlv: target must be a non-nil struct pointer, got %T", target)
	}
	return fill(packets, v.Elem())
}

func fill(packets []bertlv.TLV, v reflect.Value) error {
	t := v.Type()
	claimed := make([]bool, len(packets))
	var unknown reflect.Value

	for i := range t.NumField() {
		opt := t.Field(i).Tag.Get("tlv")
		switch {
		case opt == "":
			continue
		case opt == unknownOpt:
			if t.Field(i).Type == packetsType {
				unknown = v.Field(i)
			}
			continue
		}

		tag, _, _ := strings.Cut(opt, ",")
		for j, p := range packets {
			if !strings.EqualFold(p.Tag, tag) {
				continue
			}
			if err := assign(p, v.Field(i)); err != nil {
				return fmt.Errorf("tlv: tag %s: %w", p.Tag, err)
			}
			claimed[j] = true
		}
	}

	if !unknown.IsValid() {
		return nil
	}
	var rest []bertlv.TLV
	for j, p := range packets {
		if !claimed[j] {
			rest = append(rest, p)
		}
	}
	if len(rest) > 0 {
		unknown.Set(reflect.ValueOf(rest))
	}
	return nil
}

func assign(p bertlv.TLV, field reflect.Value) error {
	switch {
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Uint8:
		field.SetBytes(Value(p))
		return nil
	case field.Kind() == reflect.Struct:
		return decodeInto(p, field)
	case field.Kind() == reflect.Pointer && field.Type().Elem().Kind() == reflect.Struct:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return decodeInto(p, field.Elem())
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
}

func decodeInto(p bertlv.TLV, v reflect.Value) error {
	if len(p.TLVs) > 0 {
		return fill(p.TLVs, v)
	}
	inner, err := bertlv.Decode(p.Value)
	if err != nil {
		return err
	}
	return fill(inner, v)
}

// Find returns the first top-level packet whose tag matches, ignoring case.
func Find(packets []bertlv.TLV, tag string) (bertlv.TLV, bool) {
	for _, p := range packets {
		if strings.EqualFold(p.Tag, tag) {
			return p, true
		}
	}
	return bertlv.TLV{}, false
}

// Value returns the content of p. Constructed packets are re-encoded.
func Value(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}

// Lookup decodes data and returns the content of the first packet tagged tag.
func Lookup(data []byte, tag string) ([]byte, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("tlv: decode: %w", err)
	}
	p, ok := Find(packets, tag)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTagNotFound, strings.ToUpper(tag))
	}
	return Value(p), nil
}
