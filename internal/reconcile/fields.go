package reconcile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MatthiasZepper/nfcore-stats-backend/pkg/nfcore"
)

// Field setters. A JSON null resets the attribute to its zero value.

func stringField[T any](get func(*T) *string) Setter[T] {
	return func(rec *T, raw json.RawMessage) error {
		var s *string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("expected a string")
		}
		*get(rec) = ""
		if s != nil {
			*get(rec) = *s
		}
		return nil
	}
}

func urlField[T any](get func(*T) *string) Setter[T] {
	set := stringField(get)
	return func(rec *T, raw json.RawMessage) error {
		if err := set(rec, raw); err != nil {
			return err
		}
		*get(rec) = nfcore.UnescapeURL(*get(rec))
		return nil
	}
}

// versionField accepts a string or a bare number ("3.0" or 3.0).
func versionField[T any](get func(*T) *string) Setter[T] {
	return func(rec *T, raw json.RawMessage) error {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		switch t := v.(type) {
		case nil:
			*get(rec) = ""
		case string:
			*get(rec) = t
		case float64:
			*get(rec) = strings.TrimSpace(string(raw))
		default:
			return fmt.Errorf("expected a string or a number")
		}
		return nil
	}
}

func intField[T any](get func(*T) *int) Setter[T] {
	return func(rec *T, raw json.RawMessage) error {
		var n *int
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("expected an integer")
		}
		*get(rec) = 0
		if n != nil {
			*get(rec) = *n
		}
		return nil
	}
}

func int64Field[T any](get func(*T) *int64) Setter[T] {
	return func(rec *T, raw json.RawMessage) error {
		var n *int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("expected an integer")
		}
		*get(rec) = 0
		if n != nil {
			*get(rec) = *n
		}
		return nil
	}
}

// counterField stores an optional integer; null clears it.
func counterField[T any](get func(*T) **int64) Setter[T] {
	return func(rec *T, raw json.RawMessage) error {
		var n *int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("expected an integer")
		}
		*get(rec) = n
		return nil
	}
}

func boolField[T any](get func(*T) *bool) Setter[T] {
	return func(rec *T, raw json.RawMessage) error {
		var b *bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("expected a boolean")
		}
		*get(rec) = b != nil && *b
		return nil
	}
}

// timeField parses RFC 3339 timestamps. Null and "" clear the attribute.
func timeField[T any](get func(*T) **time.Time) Setter[T] {
	return func(rec *T, raw json.RawMessage) error {
		var s *string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("expected an RFC 3339 timestamp")
		}
		if s == nil || *s == "" {
			*get(rec) = nil
			return nil
		}
		t, err := time.Parse(time.RFC3339, *s)
		if err != nil {
			return err
		}
		t = t.UTC()
		*get(rec) = &t
		return nil
	}
}

// stringKey reads a non-empty string attribute as a natural key.
func stringKey[T any](get func(*T) *string) func(*T) (any, bool) {
	return func(rec *T) (any, bool) {
		s := *get(rec)
		return s, s != ""
	}
}
