package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("record not found")

// Per-operation timeouts. List queries and writes get more room than
// point reads.
const (
	DefaultQueryTimeout     = 5 * time.Second
	DefaultListQueryTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
)

// WithQueryTimeout bounds a point read.
func WithQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, DefaultQueryTimeout)
}

// WithListQueryTimeout bounds a multi-row query.
func WithListQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, DefaultListQueryTimeout)
}

// WithWriteTimeout bounds an insert or update.
func WithWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, DefaultWriteTimeout)
}

// withTimeout applies the timeout unless the caller's deadline is
// already sooner.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < d {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
