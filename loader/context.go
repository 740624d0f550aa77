package loader

import "context"

type ctxKey struct{}

// WithLoaders stores a request's loaders in ctx. Loaders do not cache across
// windows, but sharing one set per request lets concurrent lookups coalesce.
func WithLoaders[T any](ctx context.Context, loaders T) context.Context {
	return context.WithValue(ctx, ctxKey{}, loaders)
}

// For returns the loaders stored by WithLoaders, or the zero value of T.
func For[T any](ctx context.Context) T {
	v, _ := ctx.Value(ctxKey{}).(T)
	return v
}
