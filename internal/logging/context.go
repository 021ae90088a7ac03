package logging

import "context"

type ctxKey struct{}

// RequestIDKey is the attribute name request ids are logged under.
const RequestIDKey = "request_id"

// WithRequestID tags ctx with the id of the request it serves. Both backends
// add it to every entry logged with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the id ctx was tagged with, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func withRequestID(ctx context.Context, args []any) []any {
	if id := RequestID(ctx); id != "" {
		return append(args[:len(args):len(args)], RequestIDKey, id)
	}
	return args
}
