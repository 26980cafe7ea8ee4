package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/MatthiasZepper/nfcore-stats-backend/internal/store"
	"github.com/MatthiasZepper/nfcore-stats-backend/pkg/nfcore"
)

// Match is the outcome of natural-key resolution.
type Match int

const (
	// NoKey means the payload carries no identity field, so it can never
	// match and is treated as new on every import.
	NoKey Match = iota
	// Missing means the key was present but no row has it yet.
	Missing
	// Found means an existing row was returned.
	Found
)

func (m Match) String() string {
	switch m {
	case Found:
		return "found"
	case Missing:
		return "missing"
	}
	return "no-key"
}

// Resolve looks up the row p refers to. Keys are tried in priority order and
// the first one present in p decides the outcome.
func Resolve[T any](ctx context.Context, q sqlx.ExtContext, k Kind[T], p nfcore.Payload) (*T, Match, error) {
	for _, key := range k.Keys {
		if !p.Has(key.Field) {
			continue
		}
		var scratch T
		if set, ok := k.Fields[key.Field]; ok {
			if err := set(&scratch, p[key.Field]); err != nil {
				return nil, NoKey, &FieldError{Kind: k.Name, Field: key.Field, Err: err}
			}
		}
		v, ok := key.Value(&scratch)
		if !ok {
			continue
		}

		rec, err := k.Table.Lookup(ctx, q, key.Where, v)
		if errors.Is(err, store.ErrNotFound) {
			return nil, Missing, nil
		}
		if err != nil {
			return nil, NoKey, fmt.Errorf("resolve %s by %s: %w", k.Name, key.Field, err)
		}
		return rec, Found, nil
	}
	return nil, NoKey, nil
}

// Reconcile creates a record from p when existing is nil, otherwise patches
// the fields present in p onto existing. The returned record reflects what
// was persisted.
func Reconcile[T any](ctx context.Context, q sqlx.ExtContext, k Kind[T], existing *T, p nfcore.Payload) (*T, bool, error) {
	if existing == nil {
		var rec T
		if k.Init != nil {
			k.Init(&rec)
		}
		if err := k.Apply(&rec, p); err != nil {
			return nil, false, err
		}
		created, err := k.Table.Insert(ctx, q, &rec)
		if err != nil {
			return nil, false, fmt.Errorf("create %s: %w", k.Name, err)
		}
		return created, true, nil
	}

	rec := *existing
	if err := k.Apply(&rec, p); err != nil {
		return nil, false, err
	}
	if err := k.Table.Update(ctx, q, &rec); err != nil {
		return nil, false, fmt.Errorf("patch %s: %w", k.Name, err)
	}
	return &rec, false, nil
}

// Upsert resolves p and reconciles it in one step.
func Upsert[T any](ctx context.Context, q sqlx.ExtContext, k Kind[T], p nfcore.Payload) (*T, bool, error) {
	existing, _, err := Resolve(ctx, q, k, p)
	if err != nil {
		return nil, false, err
	}
	return Reconcile(ctx, q, k, existing, p)
}
