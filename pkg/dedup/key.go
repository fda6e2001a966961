package dedup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// GenerateKey builds the canonical key for a request.
//
// The method is upper-cased and data is serialized with object keys sorted
// at every depth, so payloads that differ only in key order map to the same
// key. Array order is preserved. The parts are joined with ':' and are not
// escaped, so a URL containing ':' can in theory collide with another
// method/URL/data split.
//
// Data that JSON cannot encode (a map holding a func, a channel, a cyclic
// pointer graph) is keyed by type and address when it is a map, slice or
// pointer. Two such values that are equal in content but distinct in memory
// therefore get different keys and are never deduplicated against each
// other. Scalars that fail to encode fall back to their fmt form.
func GenerateKey(method, url string, data any) string {
	return strings.ToUpper(method) + ":" + url + ":" + serializeData(data)
}

// serializeData never fails: anything that cannot be encoded as JSON is
// coerced to a string instead.
func serializeData(data any) string {
	if data == nil {
		return ""
	}
	normalized, err := normalize(data)
	if err != nil {
		return fallbackString(data)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return fallbackString(data)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// normalize turns data into plain maps, slices and scalars. encoding/json
// writes map keys in sorted order, so marshalling the result is canonical.
// Structs go through the same round trip, which drops their field order.
func normalize(data any) (any, error) {
	var raw []byte
	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		if !json.Valid(v) {
			return string(v), nil
		}
		raw = v
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// fallbackString avoids walking reference types, which may be cyclic.
func fallbackString(data any) string {
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return fmt.Sprintf("%T@%#x", data, v.Pointer())
	default:
		return fmt.Sprint(data)
	}
}
