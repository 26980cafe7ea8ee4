// Package reconcile decides, for one entity payload, whether it names a row
// that already exists and either creates that row or patches it in place.
//
// Each entity kind is described by a Kind: the table it lives in, the
// priority-ordered natural keys that establish identity, and an explicit
// allow-list of patchable fields. Payload fields outside the allow-list are
// ignored.
package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/MatthiasZepper/nfcore-stats-backend/internal/store"
	"github.com/MatthiasZepper/nfcore-stats-backend/pkg/nfcore"
)

// ErrValidation marks payloads rejected before any persistence.
var ErrValidation = errors.New("validation failed")

// FieldError reports one payload field that could not be applied.
type FieldError struct {
	Kind  string
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Kind, e.Field, e.Err)
}

func (e *FieldError) Unwrap() []error { return []error{ErrValidation, e.Err} }

// Setter decodes one raw payload value onto a record.
type Setter[T any] func(rec *T, raw json.RawMessage) error

// NaturalKey is one identity field. Value reads the normalized key from a
// record the field was applied to; ok is false when the key is empty.
type NaturalKey[T any] struct {
	Field string
	Where string // single-placeholder SQL predicate
	Value func(rec *T) (v any, ok bool)
}

// Kind describes how payloads of one entity kind are stored.
type Kind[T any] struct {
	Name     string
	Table    store.Table[T]
	Keys     []NaturalKey[T]
	Fields   map[string]Setter[T]
	Required []string
	// Init assigns generated identity and defaults to a new record.
	Init func(rec *T)
}

// Apply copies every allow-listed field present in p onto rec. Fields the
// kind does not know are skipped.
func (k Kind[T]) Apply(rec *T, p nfcore.Payload) error {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		set, ok := k.Fields[name]
		if !ok {
			continue
		}
		if err := set(rec, p[name]); err != nil {
			return &FieldError{Kind: k.Name, Field: name, Err: err}
		}
	}
	return nil
}

// Validate checks p against the kind without touching storage.
func (k Kind[T]) Validate(p nfcore.Payload) error {
	for _, field := range k.Required {
		if !p.Has(field) {
			return &FieldError{Kind: k.Name, Field: field, Err: errors.New("required")}
		}
	}
	var scratch T
	if err := k.Apply(&scratch, p); err != nil {
		return err
	}
	for _, key := range k.Keys {
		if contains(k.Required, key.Field) {
			if _, ok := key.Value(&scratch); !ok {
				return &FieldError{Kind: k.Name, Field: key.Field, Err: errors.New("must not be empty")}
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
