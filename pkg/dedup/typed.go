package dedup

import (
	"context"
	"fmt"
)

// Do is a typed wrapper around Deduplicator.Deduplicate.
func Do[T any](ctx context.Context, d *Deduplicator, key string, op func(ctx context.Context) (T, error)) (T, error) {
	v, err := d.Deduplicate(ctx, key, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	return typed[T](v, err)
}

// Run is a typed wrapper around Deduplicator.Execute.
func Run[T any](ctx context.Context, d *Deduplicator, cfg RequestConfig, op func(ctx context.Context) (T, error)) (T, error) {
	v, err := d.Execute(ctx, cfg, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	return typed[T](v, err)
}

// typed fails with ErrResultType when callers sharing a key disagree on T.
func typed[T any](v any, err error) (T, error) {
	var zero T
	if err != nil {
		if t, ok := v.(T); ok {
			return t, err
		}
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrResultType, v, zero)
	}
	return t, nil
}
