package store

import (
	"bytes"
	"encoding/json"
)

// Kind identifies which variant a [Value] holds.
type Kind uint8

const (
	// KindString marks an opaque string value.
	KindString Kind = iota + 1

	// KindJSON marks a structured JSON document.
	KindJSON
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Value is a tagged union of the two storable variants.
//
// The zero Value holds neither variant and is never stored. Construct values
// with [StringValue] or [JSONValue]; callers switch on [Value.Kind] and use
// the matching accessor.
type Value struct {
	kind Kind
	str  string
	doc  json.RawMessage
}

// StringValue returns a Value holding the string s.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// JSONValue returns a Value holding a compacted copy of doc.
//
// doc must be valid JSON; the codec validates documents before they reach
// the store. If compaction fails the bytes are copied as-is.
func JSONValue(doc json.RawMessage) Value {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return Value{kind: KindJSON, doc: append(json.RawMessage(nil), doc...)}
	}
	return Value{kind: KindJSON, doc: json.RawMessage(buf.Bytes())}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind {
	return v.kind
}

// Str returns the string variant. ok is false when v holds another variant.
func (v Value) Str() (s string, ok bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// JSON returns a copy of the JSON variant. ok is false when v holds another
// variant.
func (v Value) JSON() (doc json.RawMessage, ok bool) {
	if v.kind != KindJSON {
		return nil, false
	}
	return append(json.RawMessage(nil), v.doc...), true
}

// Equal reports whether v and other hold the same variant and contents.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindJSON:
		return bytes.Equal(v.doc, other.doc)
	default:
		return true
	}
}
