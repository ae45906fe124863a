package router

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

var errEmptySegment = errors.New("empty path segment")

// splitPath splits a dot-separated path. The empty path selects the whole
// document and yields no parts.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, errEmptySegment
		}
	}
	return parts, nil
}

// extractPath looks up parts in doc. Objects are indexed by key and arrays
// by decimal index. Every part is escaped so wildcards, queries and
// modifiers are matched as literal keys. The returned bytes are the
// sub-document exactly as stored.
func extractPath(doc json.RawMessage, parts []string) (json.RawMessage, bool) {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = gjson.Escape(p)
	}

	res := gjson.GetBytes(doc, strings.Join(escaped, "."))
	if !res.Exists() {
		return nil, false
	}
	return json.RawMessage(res.Raw), true
}
