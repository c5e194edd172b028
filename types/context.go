package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyBatchID     contextKey = "batch_id"
	keyDestination contextKey = "destination"
)

// WithBatchID adds batch ID to context.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, keyBatchID, batchID)
}

// BatchID extracts batch ID from context.
func BatchID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyBatchID).(string)
	return v, ok && v != ""
}

// WithDestination adds the destination name to context.
func WithDestination(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyDestination, name)
}

// Destination extracts the destination name from context.
func Destination(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyDestination).(string)
	return v, ok && v != ""
}
