package authcore

import "context"

type contextKey uint8

const (
	clientAddrKey contextKey = iota
	userAgentKey
)

// WithClientAddr attaches the caller's network address to the context.
// The address keys the per-address rate limiter and is recorded in audit
// events and sessions; callers that omit it share the empty-address
// bucket.
func WithClientAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, clientAddrKey, addr)
}

// WithUserAgent attaches the caller's user agent string to the context
// for audit and session records.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey, ua)
}

func clientAddr(ctx context.Context) string {
	addr, _ := ctx.Value(clientAddrKey).(string)
	return addr
}

func userAgent(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey).(string)
	return ua
}
