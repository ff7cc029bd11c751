package authengine

import "context"

type contextKey uint8

const clientMetaKey contextKey = iota

// WithClient attaches the caller's device/network description to the
// context. Engine methods pick it up for session records and audit events.
func WithClient(ctx context.Context, meta ClientMeta) context.Context {
	return context.WithValue(ctx, clientMetaKey, meta)
}

func clientFromContext(ctx context.Context) ClientMeta {
	meta, _ := ctx.Value(clientMetaKey).(ClientMeta)
	return meta
}
