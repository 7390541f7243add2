// Package changes computes field-level deltas between two versions of a
// business record.
package changes

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one key/value pair of a Record.
type Field[V any] struct {
	Key   string
	Value V
}

// Record is an ordered snapshot of a business record's fields. Key order is
// the order fields were first set and is preserved through JSON encoding.
// The zero Record is empty and ready to use.
//
// Records have value semantics: a plain copy (cur := prev) may be edited
// with Set without affecting the original, and vice versa.
type Record[V any] struct {
	fields []Field[V]
	index  map[string]int
}

// NewRecord builds a record from fields. A repeated key keeps its first
// position and takes the last value.
func NewRecord[V any](fields ...Field[V]) Record[V] {
	var r Record[V]
	for _, f := range fields {
		r.set(f.Key, f.Value)
	}
	return r
}

// F is shorthand for constructing a Field.
func F[V any](key string, value V) Field[V] {
	return Field[V]{Key: key, Value: value}
}

// Set assigns value to key, appending the key when new. The storage may be
// shared with copies of r, so Set writes to a private copy of it. Build
// large records with NewRecord rather than repeated Set calls.
func (r *Record[V]) Set(key string, value V) {
	r.detach()
	r.set(key, value)
}

// detach gives r storage that no other Record value references.
func (r *Record[V]) detach() {
	fields := make([]Field[V], len(r.fields), len(r.fields)+1)
	copy(fields, r.fields)
	index := make(map[string]int, len(r.fields)+1)
	for i, f := range fields {
		index[f.Key] = i
	}
	r.fields, r.index = fields, index
}

// set writes in place. Only call it on a record no copy can observe.
func (r *Record[V]) set(key string, value V) {
	if i, ok := r.index[key]; ok {
		r.fields[i].Value = value
		return
	}
	if r.index == nil {
		r.index = make(map[string]int)
	}
	r.index[key] = len(r.fields)
	r.fields = append(r.fields, Field[V]{Key: key, Value: value})
}

// Get returns the value for key and whether the key is present.
func (r Record[V]) Get(key string) (V, bool) {
	if i, ok := r.index[key]; ok {
		return r.fields[i].Value, true
	}
	var zero V
	return zero, false
}

func (r Record[V]) Has(key string) bool {
	_, ok := r.index[key]
	return ok
}

func (r Record[V]) Len() int { return len(r.fields) }

// Keys returns the keys in record order.
func (r Record[V]) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns a copy of the fields in record order.
func (r Record[V]) Fields() []Field[V] {
	return append([]Field[V](nil), r.fields...)
}

// Clone copies the record's field list. Values are copied shallowly.
func (r Record[V]) Clone() Record[V] {
	return NewRecord(r.fields...)
}

// MarshalJSON encodes the record as a JSON object in record order.
func (r Record[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the document's key order.
// JSON null decodes to an empty record.
func (r *Record[V]) UnmarshalJSON(data []byte) error {
	*r = Record[V]{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record key must be a string")
		}
		var value V
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		r.set(key, value)
	}
	_, err = dec.Token()
	return err
}
