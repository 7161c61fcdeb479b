package xtrack

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"reflect"
	"strconv"
)

// Payload is an insertion-ordered accumulator of event fields.
//
// Empty strings and absent values (nil, nil pointers) are never stored, so
// builders can add optional fields unconditionally. Adding an existing key
// replaces its value in place.
//
// A Payload is not safe for concurrent mutation. Once handed to
// Emitter.Input it must be treated as read-only.
type Payload struct {
	keys   []string
	values map[string]any
}

// NewPayload returns an empty Payload.
func NewPayload() *Payload {
	return &Payload{values: make(map[string]any)}
}

// PayloadFromStrings builds a Payload from a plain string map. Key order
// follows the map's iteration order.
func PayloadFromStrings(fields map[string]string) *Payload {
	p := NewPayload()
	for k, v := range fields {
		p.Add(k, v)
	}
	return p
}

// Add stores value under name unless value is empty or absent.
func (p *Payload) Add(name string, value any) {
	v, ok := scalar(value)
	if !ok {
		return
	}
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, exists := p.values[name]; !exists {
		p.keys = append(p.keys, name)
	}
	p.values[name] = v
}

// AddMany applies Add to every pair.
func (p *Payload) AddMany(fields map[string]any) {
	for k, v := range fields {
		p.Add(k, v)
	}
}

// AddJSON serializes value as JSON and stores it under keyIfEncoded as
// URL-safe base64 when encodeBase64 is set, otherwise under keyIfPlain.
// A nil value is a no-op.
func (p *Payload) AddJSON(value any, encodeBase64 bool, keyIfEncoded, keyIfPlain string) error {
	if value == nil {
		return nil
	}
	data, err := defaultCodec.Marshal(value)
	if err != nil {
		return fmt.Errorf("xtrack: encode %s: %w", keyIfPlain, err)
	}
	if encodeBase64 {
		p.Add(keyIfEncoded, base64.URLEncoding.EncodeToString(data))
		return nil
	}
	p.Add(keyIfPlain, string(data))
	return nil
}

// Get returns the value stored under name.
func (p *Payload) Get(name string) (any, bool) {
	if p == nil || p.values == nil {
		return nil, false
	}
	v, ok := p.values[name]
	return v, ok
}

// GetString returns the stringified value stored under name.
func (p *Payload) GetString(name string) string {
	v, ok := p.Get(name)
	if !ok {
		return ""
	}
	return stringify(v)
}

// Len returns the number of fields.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns field names in insertion order.
func (p *Payload) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Fields returns a copy of the fields.
func (p *Payload) Fields() map[string]any {
	if p == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(p.keys))
	for _, k := range p.keys {
		out[k] = p.values[k]
	}
	return out
}

// Strings returns a copy of the fields with every value stringified.
func (p *Payload) Strings() map[string]string {
	if p == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(p.keys))
	for _, k := range p.keys {
		out[k] = stringify(p.values[k])
	}
	return out
}

// Clone returns an independent copy. Cloning nil yields an empty Payload.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return NewPayload()
	}
	c := &Payload{
		keys:   make([]string, len(p.keys)),
		values: make(map[string]any, len(p.values)),
	}
	copy(c.keys, p.keys)
	for k, v := range p.values {
		c.values[k] = v
	}
	return c
}

// stringified returns a copy whose values are all strings, as sent on the wire.
func (p *Payload) stringified() *Payload {
	c := &Payload{
		keys:   make([]string, len(p.keys)),
		values: make(map[string]any, len(p.values)),
	}
	copy(c.keys, p.keys)
	for k, v := range p.values {
		c.values[k] = stringify(v)
	}
	return c
}

// set overwrites name without the empty-value check. Used for synthesized
// fields such as stm.
func (p *Payload) set(name, value string) {
	if _, exists := p.values[name]; !exists {
		p.keys = append(p.keys, name)
	}
	p.values[name] = value
}

// MarshalJSON encodes the fields as a JSON object in insertion order.
func (p *Payload) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := defaultCodec.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := defaultCodec.Marshal(p.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object. Key order follows the decoded
// map, so it is only meaningful for payloads read back from the wire.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := defaultCodec.Unmarshal(data, &m); err != nil {
		return err
	}
	p.keys = p.keys[:0]
	p.values = make(map[string]any, len(m))
	p.AddMany(m)
	return nil
}

// String renders the payload for logs.
func (p *Payload) String() string {
	b, err := p.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%v", p.Fields())
	}
	return string(b)
}

// scalar normalizes value, reporting false for empty or absent values.
// Pointers are dereferenced unless they implement fmt.Stringer; nil
// pointers, slices and maps count as absent.
func scalar(value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case string:
		return v, v != ""
	case fmt.Stringer:
		if isNil(reflect.ValueOf(v)) {
			return nil, false
		}
		return v, true
	}

	rv := reflect.ValueOf(value)
	if isNil(rv) {
		return nil, false
	}
	if rv.Kind() == reflect.Pointer {
		return scalar(rv.Elem().Interface())
	}
	return value, true
}

func isNil(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int8:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint8:
		return strconv.FormatUint(uint64(t), 10)
	case uint16:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
