package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Table maps records of type T onto one SQL table. Columns are the
// insertable columns; a Generated key is assigned by the database and left
// out of inserts.
type Table[T any] struct {
	Name      string
	Key       string
	Generated bool
	Columns   []string
}

// Get fetches the row whose primary key equals key.
func (t Table[T]) Get(ctx context.Context, q sqlx.ExtContext, key any) (*T, error) {
	var rec T
	query := q.Rebind(fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", t.Name, t.Key))
	if err := sqlx.GetContext(ctx, q, &rec, query, key); err != nil {
		return nil, notFound(err, fmt.Sprintf("get %s %v", t.Name, key))
	}
	return &rec, nil
}

// Lookup returns the first row matching a single-placeholder where clause,
// or ErrNotFound.
func (t Table[T]) Lookup(ctx context.Context, q sqlx.ExtContext, where string, arg any) (*T, error) {
	var rec T
	query := q.Rebind(fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY %s LIMIT 1", t.Name, where, t.Key))
	if err := sqlx.GetContext(ctx, q, &rec, query, arg); err != nil {
		return nil, notFound(err, fmt.Sprintf("lookup %s", t.Name))
	}
	return &rec, nil
}

// Insert persists rec and reads the row back so generated keys and column
// defaults are reflected in the returned record.
func (t Table[T]) Insert(ctx context.Context, q sqlx.ExtContext, rec *T) (*T, error) {
	cols := strings.Join(t.Columns, ", ")
	binds := ":" + strings.Join(t.Columns, ", :")
	query, args, err := q.BindNamed(
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s", t.Name, cols, binds, t.Key), rec)
	if err != nil {
		return nil, fmt.Errorf("bind insert %s: %w", t.Name, err)
	}

	var key any
	if err := q.QueryRowxContext(ctx, query, args...).Scan(&key); err != nil {
		return nil, fmt.Errorf("insert %s: %w", t.Name, err)
	}
	return t.Get(ctx, q, key)
}

// Update writes every non-key column of rec to the row sharing its key.
func (t Table[T]) Update(ctx context.Context, q sqlx.ExtContext, rec *T) error {
	sets := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c == t.Key {
			continue
		}
		sets = append(sets, c+" = :"+c)
	}
	query, args, err := q.BindNamed(
		fmt.Sprintf("UPDATE %s SET %s WHERE %s = :%s", t.Name, strings.Join(sets, ", "), t.Key, t.Key), rec)
	if err != nil {
		return fmt.Errorf("bind update %s: %w", t.Name, err)
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %s: %w", t.Name, ErrNotFound)
	}
	return nil
}

// Delete removes the row with the given key. Deleting a missing row is not
// an error.
func (t Table[T]) Delete(ctx context.Context, q sqlx.ExtContext, key any) error {
	query := q.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.Name, t.Key))
	if _, err := q.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete %s %v: %w", t.Name, key, err)
	}
	return nil
}

// List returns up to limit rows ordered by orderBy.
func (t Table[T]) List(ctx context.Context, q sqlx.ExtContext, orderBy string, limit int) ([]T, error) {
	if limit <= 0 {
		limit = 100
	}
	recs := []T{}
	query := q.Rebind(fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT ?", t.Name, orderBy))
	if err := sqlx.SelectContext(ctx, q, &recs, query, limit); err != nil {
		return nil, fmt.Errorf("list %s: %w", t.Name, err)
	}
	return recs, nil
}
