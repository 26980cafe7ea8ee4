// Package nfcore holds the wire shapes of the nf-core statistics snapshots
// (pipelines.json and nfcore_issue_stats.json) and fetches them over HTTP.
package nfcore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is one JSON object kept as raw fields, so that callers can tell an
// omitted field from one set to its zero value.
type Payload map[string]json.RawMessage

// Has reports whether field is present and not null.
func (p Payload) Has(field string) bool {
	raw, ok := p[field]
	return ok && !isNull(raw)
}

// Clone returns a shallow copy that can be modified without touching p.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Set encodes v as the value of field.
func (p Payload) Set(field string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}
	p[field] = raw
	return nil
}

// Objects decodes field as an array of objects. A missing or null field
// yields an empty slice.
func (p Payload) Objects(field string) ([]Payload, error) {
	raw, ok := p[field]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var out []Payload
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: expected an array of objects: %w", field, err)
	}
	for i, obj := range out {
		if obj == nil {
			return nil, fmt.Errorf("%s[%d]: expected an object", field, i)
		}
	}
	return out, nil
}

// Labels decodes field as an array of topic labels. pipelines.json lists
// topics as plain strings; objects carrying a "topic" field are accepted too.
func (p Payload) Labels(field string) ([]Payload, error) {
	raw, ok := p[field]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s: expected an array: %w", field, err)
	}

	out := make([]Payload, 0, len(items))
	for i, item := range items {
		switch firstByte(item) {
		case '"':
			out = append(out, Payload{"topic": item})
		case '{':
			var obj Payload
			if err := json.Unmarshal(item, &obj); err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
			}
			out = append(out, obj)
		default:
			return nil, fmt.Errorf("%s[%d]: expected a string or an object", field, i)
		}
	}
	return out, nil
}

// DecodePayload parses one JSON object.
func DecodePayload(data []byte) (Payload, error) {
	if firstByte(data) != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// UnescapeURL strips the backslash escapes that the snapshot exporter leaves
// in front of path separators ("https:\/\/github.com" -> "https://github.com").
func UnescapeURL(s string) string {
	return strings.ReplaceAll(s, `\`, "")
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func firstByte(raw []byte) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
