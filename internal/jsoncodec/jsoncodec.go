// Package jsoncodec is the JSON codec shared by the parsers, the ingestion
// endpoint and the chat wire.
package jsoncodec

import (
	"errors"
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

var errNotObject = errors.New("jsoncodec: top-level value is not an object")

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func UnmarshalString(s string, v any) error {
	return defaultConfig.UnmarshalFromString(s, v)
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return defaultConfig.NewDecoder(r).Decode(v)
}

// Valid reports whether data is a single well-formed JSON document.
func Valid(data []byte) bool {
	var v any
	return defaultConfig.Unmarshal(data, &v) == nil
}

// Document is a decoded JSON object with loosely-typed field lookup.
type Document map[string]any

// ParseDocument decodes s as a JSON object. Any other top-level value is an error.
func ParseDocument(s string) (Document, error) {
	var doc map[string]any
	if err := defaultConfig.UnmarshalFromString(s, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errNotObject
	}
	return Document(doc), nil
}

// Lookup walks nested objects along path. It reports false when any step is
// missing, is not an object, or the final value is JSON null.
func (d Document) Lookup(path ...string) (any, bool) {
	var cur any = map[string]any(d)
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// String returns the string at path. Non-string values report false.
func (d Document) String(path ...string) (string, bool) {
	v, ok := d.Lookup(path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Objects returns the array of objects at path. Array items that are not
// objects are returned as nil entries so callers can fail closed on them.
func (d Document) Objects(path ...string) ([]Document, bool) {
	v, ok := d.Lookup(path...)
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]Document, len(arr))
	for i, item := range arr {
		if obj, ok := item.(map[string]any); ok {
			out[i] = Document(obj)
		}
	}
	return out, true
}
